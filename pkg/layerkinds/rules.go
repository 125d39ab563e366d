// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layerkinds

import (
	"fmt"

	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
)

// Maxout takes the maximum over groups of input feature maps: output feature map i is the
// maximum of input feature maps i, i+O, i+2*O, ... where O is the number of output feature maps.
// The spatial dimensions are unchanged, and the input feature map count must be a multiple of the output one.
var Maxout = &Kind{
	ID:    layerid.Maxout,
	Name:  "maxout",
	check: checkMaxout,
}

// Convolution is a "valid" (no padding, stride 1) convolution with a window of size
// input dimension - output dimension + 1 on each axis, with a full connection between input and output
// feature maps. Its weights are the kernel [outFM, inFM, window...] followed by the biases [outFM].
var Convolution = &Kind{
	ID:           layerid.Convolution,
	Name:         "convolution",
	check:        checkConvolution,
	weightShapes: convolutionWeightShapes,
}

// MaxSubsampling takes the maximum over non-overlapping windows of size input dimension / output dimension.
var MaxSubsampling = &Kind{
	ID:    layerid.MaxSubsampling,
	Name:  "max_subsampling",
	check: checkSubsampling,
}

// AverageSubsampling averages non-overlapping windows of size input dimension / output dimension.
var AverageSubsampling = &Kind{
	ID:    layerid.AverageSubsampling,
	Name:  "average_subsampling",
	check: checkSubsampling,
}

// Element-wise layer kinds: the output configuration is the same as the input.
var (
	HyperbolicTangent = &Kind{ID: layerid.HyperbolicTangent, Name: "hyperbolic_tangent", check: checkIdentity}
	Sigmoid           = &Kind{ID: layerid.Sigmoid, Name: "sigmoid", check: checkIdentity}
	RectifiedLinear   = &Kind{ID: layerid.RectifiedLinear, Name: "rectified_linear", check: checkIdentity}
	Absolute          = &Kind{ID: layerid.Absolute, Name: "absolute", check: checkIdentity}

	// Softmax is computed across the feature maps, independently for each spatial position.
	Softmax = &Kind{ID: layerid.Softmax, Name: "softmax", check: checkIdentity}
)

func checkIdentity(input, output layerconfig.Specific) string {
	if !input.Equal(output) {
		return "output configuration must be equal to the input"
	}
	return ""
}

func checkMaxout(input, output layerconfig.Specific) string {
	if !input.EqualDimensions(output) {
		return "spatial dimensions must be unchanged"
	}
	if input.FeatureMapCount%output.FeatureMapCount != 0 {
		return fmt.Sprintf("input feature map count %d is not a multiple of the output feature map count %d",
			input.FeatureMapCount, output.FeatureMapCount)
	}
	return ""
}

// MaxoutSubsamplingSize returns the number of input feature maps reduced to each output feature map.
func MaxoutSubsamplingSize(input, output layerconfig.Specific) int {
	return input.FeatureMapCount / output.FeatureMapCount
}

func checkConvolution(input, output layerconfig.Specific) string {
	if input.Rank() != output.Rank() {
		return fmt.Sprintf("input rank %d and output rank %d differ", input.Rank(), output.Rank())
	}
	for axis, dim := range output.Dimensions {
		if dim > input.Dimensions[axis] {
			return fmt.Sprintf("output dimension %d of axis %d is larger than input dimension %d",
				dim, axis, input.Dimensions[axis])
		}
	}
	return ""
}

// ConvolutionWindow returns the window (kernel spatial) dimensions of a convolution.
func ConvolutionWindow(input, output layerconfig.Specific) []int {
	window := make([]int, input.Rank())
	for axis := range window {
		window[axis] = input.Dimensions[axis] - output.Dimensions[axis] + 1
	}
	return window
}

func convolutionWeightShapes(input, output layerconfig.Specific) [][]int {
	kernel := append([]int{output.FeatureMapCount, input.FeatureMapCount}, ConvolutionWindow(input, output)...)
	return [][]int{kernel, {output.FeatureMapCount}}
}

func checkSubsampling(input, output layerconfig.Specific) string {
	if input.FeatureMapCount != output.FeatureMapCount {
		return "feature map count must be unchanged"
	}
	if input.Rank() != output.Rank() {
		return fmt.Sprintf("input rank %d and output rank %d differ", input.Rank(), output.Rank())
	}
	for axis, dim := range output.Dimensions {
		if input.Dimensions[axis]%dim != 0 {
			return fmt.Sprintf("input dimension %d of axis %d is not a multiple of the output dimension %d",
				input.Dimensions[axis], axis, dim)
		}
	}
	return ""
}

// SubsamplingWindow returns the window dimensions of a subsampling layer.
func SubsamplingWindow(input, output layerconfig.Specific) []int {
	window := make([]int, input.Rank())
	for axis := range window {
		window[axis] = input.Dimensions[axis] / output.Dimensions[axis]
	}
	return window
}
