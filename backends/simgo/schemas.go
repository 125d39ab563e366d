// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
)

// kernelConstructor builds the kernel of one layer kind, for configurations already validated by the kind.
type kernelConstructor struct {
	// workspaceBytes returns the device memory used by the kernel tables, computed from the
	// configurations alone: it is reserved before the tables are built.
	workspaceBytes func(input, output layerconfig.Specific) uint64

	build func(input, output layerconfig.Specific) kernel
}

var (
	maxoutConstructor = kernelConstructor{maxoutWorkspaceBytes, newMaxoutKernel}
	noWorkspace       = func(_, _ layerconfig.Specific) uint64 { return 0 }
)

var kernelConstructors = map[layerid.ID]kernelConstructor{
	layerid.Maxout:             maxoutConstructor,
	layerid.Convolution:        {convolutionWorkspaceBytes, newConvolutionKernel},
	layerid.MaxSubsampling:     {subsamplingWorkspaceBytes, newMaxSubsamplingKernel},
	layerid.AverageSubsampling: {subsamplingWorkspaceBytes, newAverageSubsamplingKernel},
	layerid.HyperbolicTangent:  {noWorkspace, newElementwiseKernel(tanhBackward)},
	layerid.Sigmoid:            {noWorkspace, newElementwiseKernel(sigmoidBackward)},
	layerid.RectifiedLinear:    {noWorkspace, newElementwiseKernel(reluBackward)},
	layerid.Absolute:           {noWorkspace, newElementwiseKernel(absoluteBackward)},
	layerid.Softmax:            {noWorkspace, newSoftmaxKernel},
}

// RegisterSchemas registers into reg one schema per layer kind supported by the simulated backend,
// all creating their updaters on backend.
func RegisterSchemas(reg *updaters.Registry, backend *Backend) error {
	for _, kind := range layerkinds.All() {
		var s updaters.Schema
		if kind.ID == layerid.Maxout {
			s = NewMaxoutSchema(backend, 0)
		} else {
			var err error
			s, err = NewSchema(backend, kind)
			if err != nil {
				return err
			}
		}
		if err := reg.Register(s); err != nil {
			return errors.WithMessagef(err, "simgo.RegisterSchemas(%s)", kind)
		}
	}
	return nil
}

// Schema implements updaters.Schema for the simulated backend.
//
// It holds no state besides the (immutable) backend and layer kind.
type Schema struct {
	backend *Backend
	kind    *layerkinds.Kind
	newFn   kernelConstructor
}

// Compile-time check:
var _ updaters.Schema = (*Schema)(nil)

// NewSchema returns the schema for the given layer kind, or an error if the backend doesn't support it.
func NewSchema(backend *Backend, kind *layerkinds.Kind) (*Schema, error) {
	newFn, found := kernelConstructors[kind.ID]
	if !found {
		return nil, errors.Errorf("backend %q has no updater for layer kind %s", BackendName, kind)
	}
	return &Schema{backend: backend, kind: kind, newFn: newFn}, nil
}

// TypeID implements updaters.Schema.
func (s *Schema) TypeID() layerid.ID { return s.kind.ID }

// CreateSpecific implements updaters.Schema.
func (s *Schema) CreateSpecific() updaters.Schema {
	return &Schema{backend: s.backend, kind: s.kind, newFn: s.newFn}
}

// CreateUpdater implements updaters.Schema.
func (s *Schema) CreateUpdater(input, output layerconfig.Specific) (updaters.Updater, error) {
	if err := s.kind.Check(input, output); err != nil {
		return nil, err
	}
	return newUpdater(s.backend, s.kind, input, output, s.newFn)
}

// MaxoutSchema is the schema for maxout layers. Optionally it can be fixed to one feature map
// subsampling size, in which case it also rejects configurations with a different ratio of input to
// output feature maps.
type MaxoutSchema struct {
	Schema
	subsamplingSize int
}

// NewMaxoutSchema returns a maxout schema. If subsamplingSize is 0, any integer ratio of input
// to output feature maps is accepted.
func NewMaxoutSchema(backend *Backend, subsamplingSize int) *MaxoutSchema {
	return &MaxoutSchema{
		Schema:          Schema{backend: backend, kind: layerkinds.Maxout, newFn: maxoutConstructor},
		subsamplingSize: subsamplingSize,
	}
}

// SubsamplingSize returns the fixed feature map subsampling size, or 0 if not fixed.
func (s *MaxoutSchema) SubsamplingSize() int { return s.subsamplingSize }

// CreateSpecific implements updaters.Schema, preserving the subsampling size.
func (s *MaxoutSchema) CreateSpecific() updaters.Schema {
	return NewMaxoutSchema(s.backend, s.subsamplingSize)
}

// CreateUpdater implements updaters.Schema.
func (s *MaxoutSchema) CreateUpdater(input, output layerconfig.Specific) (updaters.Updater, error) {
	if err := s.kind.Check(input, output); err != nil {
		return nil, err
	}
	if s.subsamplingSize > 0 && input.FeatureMapCount != s.subsamplingSize*output.FeatureMapCount {
		return nil, updaters.NewConfigurationMismatch(s.kind.Name, input, output,
			"output feature map count must be the input feature map count divided by %d", s.subsamplingSize)
	}
	return newUpdater(s.backend, s.kind, input, output, s.newFn)
}
