// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
)

// maxoutKernel routes the error of each output neuron to the input feature map that was the maximum.
type maxoutKernel struct {
	outputFeatureMaps, subsamplingSize, neuronsPerFeatureMap int

	// argmax holds, for each output neuron of the entry being processed, the winning input neuron.
	argmax []int32
}

func newMaxoutKernel(input, output layerconfig.Specific) kernel {
	return &maxoutKernel{
		outputFeatureMaps:    output.FeatureMapCount,
		subsamplingSize:      layerkinds.MaxoutSubsamplingSize(input, output),
		neuronsPerFeatureMap: output.NeuronCountPerFeatureMap(),
		argmax:               make([]int32, output.NeuronCount()),
	}
}

// maxoutWorkspaceBytes is the size of the argmax table: one int32 per output neuron.
func maxoutWorkspaceBytes(_, output layerconfig.Specific) uint64 {
	return 4 * uint64(output.NeuronCount())
}

func (k *maxoutKernel) backward(v *batchViews) {
	if v.inputErrors == nil {
		return
	}
	n := k.neuronsPerFeatureMap
	featureMapStride := k.outputFeatureMaps * n
	for entry := range v.entries {
		input := v.input[entry*v.inputNeurons : (entry+1)*v.inputNeurons]
		outputErrors := v.outputErrors[entry*v.outputNeurons : (entry+1)*v.outputNeurons]
		inputErrors := v.inputErrors[entry*v.inputNeurons : (entry+1)*v.inputNeurons]
		for outIdx := range k.argmax {
			best := outIdx
			for j := 1; j < k.subsamplingSize; j++ {
				candidate := outIdx + j*featureMapStride
				if input[candidate] > input[best] {
					best = candidate
				}
			}
			k.argmax[outIdx] = int32(best)
		}
		clear(inputErrors)
		for outIdx, inIdx := range k.argmax {
			inputErrors[inIdx] = outputErrors[outIdx]
		}
	}
}
