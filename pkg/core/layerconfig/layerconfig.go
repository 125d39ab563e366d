// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layerconfig defines Specific, the concrete configuration of the data flowing into or
// out of a layer at one point of the network graph.
//
// A Specific holds the number of feature maps (channels) and the spatial dimensions of each
// feature map. Example: a 32x32 RGB image is `layerconfig.Make(3, 32, 32)`, and it is printed as
// `fm=3 [32 32]`. A flat vector of 10 neurons is `layerconfig.Make(10)`.
//
// Specific values are owned by the network graph and treated as immutable: functions that
// receive one never modify it, and accessors that return slices return copies.
package layerconfig

import (
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Specific is the configuration (shape) of the data going in or out of a layer.
//
// Use Make or New to create one.
type Specific struct {
	FeatureMapCount int
	Dimensions      []int
}

// New returns a Specific with the given number of feature maps and spatial dimensions,
// or an error if any of them is not positive or if the total neuron count overflows an int.
func New(featureMapCount int, dimensions ...int) (Specific, error) {
	c := Specific{FeatureMapCount: featureMapCount, Dimensions: slices.Clone(dimensions)}
	if featureMapCount <= 0 {
		return Specific{}, errors.Errorf("layerconfig.New(%s): feature map count must be > 0", c)
	}
	for axis, dim := range dimensions {
		if dim <= 0 {
			return Specific{}, errors.Errorf("layerconfig.New(%s): dimension of axis %d must be > 0", c, axis)
		}
	}
	if _, ok := c.checkedNeuronCount(); !ok {
		return Specific{}, errors.Errorf("layerconfig.New(%s): neuron count overflows", c)
	}
	return c, nil
}

// Make is like New, but panics on invalid values.
func Make(featureMapCount int, dimensions ...int) Specific {
	c, err := New(featureMapCount, dimensions...)
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return c
}

// Ok returns whether the configuration is valid: positive values whose product (the neuron count)
// fits an int. The zero value Specific{} is invalid.
func (c Specific) Ok() bool {
	if c.FeatureMapCount <= 0 {
		return false
	}
	for _, dim := range c.Dimensions {
		if dim <= 0 {
			return false
		}
	}
	_, ok := c.checkedNeuronCount()
	return ok
}

// checkedNeuronCount returns the neuron count and false if it overflows an int.
// Values must be positive.
func (c Specific) checkedNeuronCount() (int, bool) {
	count := c.FeatureMapCount
	for _, dim := range c.Dimensions {
		if dim > math.MaxInt/count {
			return 0, false
		}
		count *= dim
	}
	return count, true
}

// Rank returns the number of spatial dimensions.
func (c Specific) Rank() int { return len(c.Dimensions) }

// Dim returns the dimension of the given spatial axis. Negative axes count from the end.
// It panics for an out-of-bound axis.
func (c Specific) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += c.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= c.Rank() {
		exceptions.Panicf("Specific.Dim(%d) out-of-bounds for rank %d (config=%s)", axis, c.Rank(), c)
	}
	return c.Dimensions[adjustedAxis]
}

// NeuronCountPerFeatureMap is the product of the spatial dimensions (1 for rank 0).
func (c Specific) NeuronCountPerFeatureMap() (count int) {
	count = 1
	for _, dim := range c.Dimensions {
		count *= dim
	}
	return
}

// NeuronCount is the total number of values of one entry: feature maps times neurons per feature map.
func (c Specific) NeuronCount() int {
	return c.FeatureMapCount * c.NeuronCountPerFeatureMap()
}

// Strides returns the row-major strides of the spatial dimensions, in neurons.
func (c Specific) Strides() []int {
	strides := make([]int, c.Rank())
	stride := 1
	for axis := c.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= c.Dimensions[axis]
	}
	return strides
}

// Clone returns a deep copy.
func (c Specific) Clone() Specific {
	return Specific{FeatureMapCount: c.FeatureMapCount, Dimensions: slices.Clone(c.Dimensions)}
}

// Equal returns whether both configurations have the same feature maps and dimensions.
func (c Specific) Equal(c2 Specific) bool {
	return c.FeatureMapCount == c2.FeatureMapCount && slices.Equal(c.Dimensions, c2.Dimensions)
}

// EqualDimensions returns whether both configurations have the same spatial dimensions,
// regardless of the number of feature maps.
func (c Specific) EqualDimensions(c2 Specific) bool {
	return slices.Equal(c.Dimensions, c2.Dimensions)
}

// String implements fmt.Stringer.
func (c Specific) String() string {
	if c.Rank() == 0 {
		return fmt.Sprintf("fm=%d", c.FeatureMapCount)
	}
	return fmt.Sprintf("fm=%d %v", c.FeatureMapCount, c.Dimensions)
}
