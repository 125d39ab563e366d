// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
)

// windowTables are the offset tables shared by the kernels that slide a window over the input.
type windowTables struct {
	featureMaps                             int
	inputPerFeatureMap, outputPerFeatureMap int

	// base is, for each output position, the input offset of the first element of its window.
	base []int32

	// deltas is, for each element of the window, its input offset relative to base.
	deltas []int32
}

// newWindowTables builds the tables for windows of the given dimensions placed at input position
// outputPosition*step (per axis).
func newWindowTables(input, output layerconfig.Specific, window, step []int) *windowTables {
	t := &windowTables{
		featureMaps:         input.FeatureMapCount,
		inputPerFeatureMap:  input.NeuronCountPerFeatureMap(),
		outputPerFeatureMap: output.NeuronCountPerFeatureMap(),
	}
	strides := input.Strides()
	t.base = make([]int32, t.outputPerFeatureMap)
	for offset, position := range output.Positions() {
		inOffset := 0
		for axis, pos := range position {
			inOffset += pos * step[axis] * strides[axis]
		}
		t.base[offset] = int32(inOffset)
	}
	windowConfig := layerconfig.Specific{FeatureMapCount: 1, Dimensions: window}
	t.deltas = make([]int32, windowConfig.NeuronCountPerFeatureMap())
	for offset, position := range windowConfig.Positions() {
		delta := 0
		for axis, pos := range position {
			delta += pos * strides[axis]
		}
		t.deltas[offset] = int32(delta)
	}
	return t
}

// windowTablesBytes is the size of the tables built by newWindowTables: one int32 per output
// position of a feature map, plus one per window element.
func windowTablesBytes(output layerconfig.Specific, window []int) uint64 {
	windowSize := uint64(1)
	for _, dim := range window {
		windowSize *= uint64(dim)
	}
	return 4 * (uint64(output.NeuronCountPerFeatureMap()) + windowSize)
}

func subsamplingWorkspaceBytes(input, output layerconfig.Specific) uint64 {
	return windowTablesBytes(output, layerkinds.SubsamplingWindow(input, output))
}

func onesLike(dims []int) []int {
	ones := make([]int, len(dims))
	for ii := range ones {
		ones[ii] = 1
	}
	return ones
}

// maxSubsamplingKernel routes the error of each output neuron to the maximum input of its window.
type maxSubsamplingKernel struct {
	*windowTables
}

func newMaxSubsamplingKernel(input, output layerconfig.Specific) kernel {
	window := layerkinds.SubsamplingWindow(input, output)
	return &maxSubsamplingKernel{newWindowTables(input, output, window, window)}
}

func (k *maxSubsamplingKernel) backward(v *batchViews) {
	if v.inputErrors == nil {
		return
	}
	clear(v.inputErrors)
	for entry := range v.entries {
		for fm := range k.featureMaps {
			inStart := entry*v.inputNeurons + fm*k.inputPerFeatureMap
			outStart := entry*v.outputNeurons + fm*k.outputPerFeatureMap
			input := v.input[inStart : inStart+k.inputPerFeatureMap]
			inputErrors := v.inputErrors[inStart : inStart+k.inputPerFeatureMap]
			for outIdx, base := range k.base {
				best := int(base)
				for _, delta := range k.deltas[1:] {
					candidate := int(base + delta)
					if input[candidate] > input[best] {
						best = candidate
					}
				}
				inputErrors[best] += v.outputErrors[outStart+outIdx]
			}
		}
	}
}

// averageSubsamplingKernel spreads the error of each output neuron evenly over its window.
type averageSubsamplingKernel struct {
	*windowTables
}

func newAverageSubsamplingKernel(input, output layerconfig.Specific) kernel {
	window := layerkinds.SubsamplingWindow(input, output)
	return &averageSubsamplingKernel{newWindowTables(input, output, window, window)}
}

func (k *averageSubsamplingKernel) backward(v *batchViews) {
	if v.inputErrors == nil {
		return
	}
	clear(v.inputErrors)
	scale := 1 / float32(len(k.deltas))
	for entry := range v.entries {
		for fm := range k.featureMaps {
			inStart := entry*v.inputNeurons + fm*k.inputPerFeatureMap
			outStart := entry*v.outputNeurons + fm*k.outputPerFeatureMap
			inputErrors := v.inputErrors[inStart : inStart+k.inputPerFeatureMap]
			for outIdx, base := range k.base {
				e := v.outputErrors[outStart+outIdx] * scale
				for _, delta := range k.deltas {
					inputErrors[base+delta] += e
				}
			}
		}
	}
}
