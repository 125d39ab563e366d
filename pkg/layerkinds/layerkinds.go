// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layerkinds holds the backend-independent knowledge about each supported layer kind:
// its name, its identity and the rule relating the configuration of its input to its output.
//
// Backends use it to validate the configurations given to Schema.CreateUpdater before allocating
// any device resource, and to size the weights of the layers that have them.
package layerkinds

import (
	"math"
	"slices"

	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/updaters"
)

// MaxNeuronCount is the largest number of neurons of one entry, in the input or the output of a layer.
// Updaters index the neurons of an entry with 32-bit offsets.
const MaxNeuronCount = math.MaxInt32

// Kind describes a layer kind.
type Kind struct {
	ID   layerid.ID
	Name string

	// check validates the input/output configurations. It returns an empty string if they are valid,
	// or the reason why they are not.
	check func(input, output layerconfig.Specific) string

	// weightShapes returns the shapes of the weights of the layer, for valid configurations. Nil for layers without weights.
	weightShapes func(input, output layerconfig.Specific) [][]int
}

// Check returns nil if the input/output configurations follow the transformation rule of the layer kind,
// or a *updaters.ConfigurationMismatchError otherwise.
func (k *Kind) Check(input, output layerconfig.Specific) error {
	if !input.Ok() {
		return updaters.NewConfigurationMismatch(k.Name, input, output, "invalid input configuration")
	}
	if !output.Ok() {
		return updaters.NewConfigurationMismatch(k.Name, input, output, "invalid output configuration")
	}
	for _, c := range []struct {
		name   string
		config layerconfig.Specific
	}{{"input", input}, {"output", output}} {
		if count := c.config.NeuronCount(); count > MaxNeuronCount {
			return updaters.NewConfigurationMismatch(k.Name, input, output,
				"%s has %d neurons per entry, more than the maximum of %d", c.name, count, MaxNeuronCount)
		}
	}
	if reason := k.check(input, output); reason != "" {
		return updaters.NewConfigurationMismatch(k.Name, input, output, "%s", reason)
	}
	return nil
}

// WeightShapes returns the shapes of the weights (and biases) of a layer with the given configurations,
// or nil if the layer kind has no weights. The configurations must be valid (see Check).
func (k *Kind) WeightShapes(input, output layerconfig.Specific) [][]int {
	if k.weightShapes == nil {
		return nil
	}
	return k.weightShapes(input, output)
}

// HasWeights returns whether layers of this kind have trainable weights.
func (k *Kind) HasWeights() bool {
	return k.weightShapes != nil
}

// String implements fmt.Stringer.
func (k *Kind) String() string { return k.Name }

var catalog = []*Kind{
	Maxout, Convolution, MaxSubsampling, AverageSubsampling,
	HyperbolicTangent, Sigmoid, RectifiedLinear, Absolute, Softmax,
}

// All returns all the known layer kinds, sorted by name.
func All() []*Kind {
	all := slices.Clone(catalog)
	slices.SortFunc(all, func(a, b *Kind) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return all
}

// Lookup returns the Kind with the given id, or false if it is unknown.
func Lookup(id layerid.ID) (*Kind, bool) {
	for _, k := range catalog {
		if k.ID == id {
			return k, true
		}
	}
	return nil, false
}
