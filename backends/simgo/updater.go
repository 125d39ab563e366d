// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/layerupdaters/backends"
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/layerkinds"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// launchConfigBytes is the device memory reserved by every updater for its kernel launch configuration.
const launchConfigBytes = 256

// kernel implements the backward pass of one layer kind, for fixed configurations.
type kernel interface {
	// backward runs the backward pass on the batch.
	backward(views *batchViews)
}

// batchViews holds the float32 views of the buffers of an updaters.Batch.
type batchViews struct {
	entries                     int
	input, output, outputErrors []float32
	inputErrors                 []float32 // nil if the batch has no InputErrors.
	weights, gradients          [][]float32
	inputNeurons, outputNeurons int
}

// Updater implements updaters.Updater for the simulated backend.
type Updater struct {
	backend       *Backend
	kind          *layerkinds.Kind
	input, output layerconfig.Specific
	weightShapes  [][]int
	kernel        kernel
	memoryBytes   uint64
	finalized     bool
}

// Compile-time check:
var _ updaters.Updater = (*Updater)(nil)

// newUpdater reserves the device memory for the kernel, builds it and returns the updater.
// Configurations must have been validated by kind.Check.
func newUpdater(backend *Backend, kind *layerkinds.Kind, input, output layerconfig.Specific, newKernel kernelConstructor) (updaters.Updater, error) {
	u := &Updater{
		backend:      backend,
		kind:         kind,
		input:        input.Clone(),
		output:       output.Clone(),
		weightShapes: kind.WeightShapes(input, output),
		memoryBytes:  launchConfigBytes + newKernel.workspaceBytes(input, output),
	}
	if err := backend.Allocate(u.memoryBytes); err != nil {
		var oom *backends.OutOfMemoryError
		if !errors.As(err, &oom) {
			return nil, errors.WithMessagef(err, "creating %s updater for %s -> %s", kind, input, output)
		}
		return nil, &updaters.ResourceAllocationError{
			Kind:      kind.Name,
			Input:     u.input,
			Output:    u.output,
			Requested: u.memoryBytes,
			Available: oom.Available,
			Cause:     err,
		}
	}
	u.kernel = newKernel.build(u.input, u.output)
	if klog.V(2).Enabled() {
		klog.Infof("simgo: created %s updater for %s -> %s, using %s", kind, input, output, humanize.IBytes(u.memoryBytes))
	}
	return u, nil
}

// TypeID implements updaters.Updater.
func (u *Updater) TypeID() layerid.ID { return u.kind.ID }

// InputConfig implements updaters.Updater.
func (u *Updater) InputConfig() layerconfig.Specific { return u.input.Clone() }

// OutputConfig implements updaters.Updater.
func (u *Updater) OutputConfig() layerconfig.Specific { return u.output.Clone() }

// MemoryBytes implements updaters.Updater.
func (u *Updater) MemoryBytes() uint64 { return u.memoryBytes }

// Finalize implements updaters.Updater.
func (u *Updater) Finalize() error {
	if u.finalized {
		return errors.Errorf("%s updater for %s -> %s already finalized", u.kind, u.input, u.output)
	}
	u.finalized = true
	u.kernel = nil
	u.backend.Release(u.memoryBytes)
	return nil
}

// Run implements updaters.Updater.
func (u *Updater) Run(batch *updaters.Batch) error {
	if u.finalized {
		return errors.Errorf("%s updater for %s -> %s used after Finalize", u.kind, u.input, u.output)
	}
	if batch == nil || batch.EntryCount <= 0 {
		return errors.Errorf("%s updater: batch must have a positive entry count", u.kind)
	}
	views := &batchViews{
		entries:       batch.EntryCount,
		inputNeurons:  u.input.NeuronCount(),
		outputNeurons: u.output.NeuronCount(),
	}
	var err error
	inputLen, outputLen := views.entries*views.inputNeurons, views.entries*views.outputNeurons
	if views.input, _, err = u.view("Input", batch.Input, inputLen, true); err != nil {
		return err
	}
	if views.output, _, err = u.view("Output", batch.Output, outputLen, true); err != nil {
		return err
	}
	if views.outputErrors, _, err = u.view("OutputErrors", batch.OutputErrors, outputLen, true); err != nil {
		return err
	}
	var inputErrorsBuf *Buffer
	if views.inputErrors, inputErrorsBuf, err = u.view("InputErrors", batch.InputErrors, inputLen, false); err != nil {
		return err
	}

	if len(batch.Weights) != len(u.weightShapes) || len(batch.Gradients) != len(u.weightShapes) {
		return errors.Errorf("%s updater: expected %d weights and gradients, got %d and %d",
			u.kind, len(u.weightShapes), len(batch.Weights), len(batch.Gradients))
	}
	gradientBufs := make([]*Buffer, len(u.weightShapes))
	for ii, shape := range u.weightShapes {
		size := 1
		for _, dim := range shape {
			size *= dim
		}
		var w, g []float32
		if w, _, err = u.view("Weights", batch.Weights[ii], size, true); err != nil {
			return err
		}
		if g, gradientBufs[ii], err = u.view("Gradients", batch.Gradients[ii], size, true); err != nil {
			return err
		}
		views.weights = append(views.weights, w)
		views.gradients = append(views.gradients, g)
	}

	u.kernel.backward(views)

	if inputErrorsBuf != nil {
		inputErrorsBuf.store(views.inputErrors)
	}
	for ii, buf := range gradientBufs {
		buf.store(views.gradients[ii])
	}
	return nil
}

// view validates the buffer and returns its float32 view. If the buffer is optional and nil, it returns nils.
func (u *Updater) view(name string, backendBuffer backends.Buffer, length int, required bool) ([]float32, *Buffer, error) {
	if backendBuffer == nil {
		if required {
			return nil, nil, errors.Errorf("%s updater: batch.%s is required", u.kind, name)
		}
		return nil, nil, nil
	}
	buf, err := u.backend.checkBuffer("Run", backendBuffer)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%s updater: batch.%s", u.kind, name)
	}
	if buf.length != length {
		return nil, nil, errors.Errorf("%s updater: batch.%s has %d elements, expected %d", u.kind, name, buf.length, length)
	}
	return buf.float32s(), buf, nil
}
