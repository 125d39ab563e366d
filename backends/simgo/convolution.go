// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
)

// convolutionKernel back-propagates the errors of a "valid" convolution, and accumulates the
// gradients of its kernel and biases.
type convolutionKernel struct {
	*windowTables
	outputFeatureMaps int
}

func newConvolutionKernel(input, output layerconfig.Specific) kernel {
	window := layerkinds.ConvolutionWindow(input, output)
	return &convolutionKernel{
		windowTables:      newWindowTables(input, output, window, onesLike(window)),
		outputFeatureMaps: output.FeatureMapCount,
	}
}

func convolutionWorkspaceBytes(input, output layerconfig.Specific) uint64 {
	return windowTablesBytes(output, layerkinds.ConvolutionWindow(input, output))
}

func (k *convolutionKernel) backward(v *batchViews) {
	weights := v.weights[0] // Biases don't take part in the backward pass.
	kernelGradients, biasGradients := v.gradients[0], v.gradients[1]
	windowSize := len(k.deltas)
	if v.inputErrors != nil {
		clear(v.inputErrors)
	}
	for entry := range v.entries {
		for outFM := range k.outputFeatureMaps {
			outStart := entry*v.outputNeurons + outFM*k.outputPerFeatureMap
			for outIdx, base := range k.base {
				e := v.outputErrors[outStart+outIdx]
				if e == 0 {
					continue
				}
				biasGradients[outFM] += e
				for inFM := range k.featureMaps {
					inStart := entry*v.inputNeurons + inFM*k.inputPerFeatureMap + int(base)
					weightStart := (outFM*k.featureMaps + inFM) * windowSize
					for wIdx, delta := range k.deltas {
						inIdx := inStart + int(delta)
						kernelGradients[weightStart+wIdx] += v.input[inIdx] * e
						if v.inputErrors != nil {
							v.inputErrors[inIdx] += weights[weightStart+wIdx] * e
						}
					}
				}
			}
		}
	}
}
