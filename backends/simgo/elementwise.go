// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
)

// elementwiseBackward computes the input error of one neuron, given its input x, output y and output error e.
type elementwiseBackward func(x, y, e float32) float32

func tanhBackward(_, y, e float32) float32 { return e * (1 - y*y) }

func sigmoidBackward(_, y, e float32) float32 { return e * y * (1 - y) }

func reluBackward(_, y, e float32) float32 {
	if y > 0 {
		return e
	}
	return 0
}

func absoluteBackward(x, _, e float32) float32 {
	switch {
	case x > 0:
		return e
	case x < 0:
		return -e
	}
	return 0
}

// elementwiseKernel applies an elementwiseBackward to every neuron. It needs no workspace.
type elementwiseKernel struct {
	fn elementwiseBackward
}

func newElementwiseKernel(fn elementwiseBackward) func(input, output layerconfig.Specific) kernel {
	return func(_, _ layerconfig.Specific) kernel {
		return &elementwiseKernel{fn: fn}
	}
}

func (k *elementwiseKernel) backward(v *batchViews) {
	if v.inputErrors == nil {
		return
	}
	for ii, e := range v.outputErrors {
		v.inputErrors[ii] = k.fn(v.input[ii], v.output[ii], e)
	}
}

// softmaxKernel back-propagates a softmax taken across feature maps, for each spatial position.
type softmaxKernel struct {
	featureMaps, neuronsPerFeatureMap int
}

func newSoftmaxKernel(input, _ layerconfig.Specific) kernel {
	return &softmaxKernel{
		featureMaps:          input.FeatureMapCount,
		neuronsPerFeatureMap: input.NeuronCountPerFeatureMap(),
	}
}

func (k *softmaxKernel) backward(v *batchViews) {
	if v.inputErrors == nil {
		return
	}
	n := k.neuronsPerFeatureMap
	for entry := range v.entries {
		start := entry * v.outputNeurons
		for pos := range n {
			var dot float32
			for fm := range k.featureMaps {
				idx := start + fm*n + pos
				dot += v.outputErrors[idx] * v.output[idx]
			}
			for fm := range k.featureMaps {
				idx := start + fm*n + pos
				v.inputErrors[idx] = v.output[idx] * (v.outputErrors[idx] - dot)
			}
		}
	}
}
