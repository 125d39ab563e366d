// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/layerupdaters/internal/workerspool"
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Instance holds one updater per layer of a Plan. It exclusively owns the updaters: call Finalize
// to release their device resources.
//
// It is not safe for concurrent use.
type Instance struct {
	plan      *Plan
	config    Config
	layers    []Layer
	updaters  []updaters.Updater
	finalized bool
}

// Instantiate creates the updaters of all layers, concurrently (see Config.Parallelism).
//
// If the creation of any updater fails, the ones already created are finalized and the error of the
// first failing layer is returned, naming the layer.
func (p *Plan) Instantiate(config Config) (*Instance, error) {
	inst := &Instance{
		plan:     p,
		config:   config,
		layers:   make([]Layer, len(p.layers)),
		updaters: make([]updaters.Updater, len(p.layers)),
	}
	copy(inst.layers, p.layers)
	errs := make([]error, len(p.layers))
	pool := workerspool.NewWithParallelism(config.Parallelism)
	pool.Run(len(p.layers), func(i int) {
		layer := p.layers[i]
		inst.updaters[i], errs[i] = createWithRetries(config, p.schemas[i], layer)
	})
	for i, err := range errs {
		if err != nil {
			inst.finalizeAll()
			return nil, errors.WithMessagef(err, "engine: instantiating layer %q (#%d)", p.layers[i].Name, i)
		}
	}
	if klog.V(1).Enabled() {
		klog.Infof("engine: instantiated %d updaters using %s of device memory", len(inst.updaters),
			humanize.IBytes(inst.MemoryBytes()))
	}
	return inst, nil
}

// createWithRetries creates the updater for layer, retrying on resource allocation failures.
func createWithRetries(config Config, schema updaters.Schema, layer Layer) (updaters.Updater, error) {
	backoff := config.RetryBackoff
	for attempt := 0; ; attempt++ {
		updater, err := createUpdater(schema, layer.Input, layer.Output)
		if err == nil {
			return updater, nil
		}
		if !updaters.IsRetryable(err) || attempt >= config.MaxRetries {
			return nil, err
		}
		klog.Warningf("engine: retrying (%d/%d) creation of updater for layer %q in %s: %v",
			attempt+1, config.MaxRetries, layer.Name, backoff, err)
		time.Sleep(backoff)
		backoff *= 2
		if config.MaxRetryBackoff > 0 && backoff > config.MaxRetryBackoff {
			backoff = config.MaxRetryBackoff
		}
	}
}

// createUpdater calls schema.CreateUpdater, converting a panic in the backend to an error.
func createUpdater(schema updaters.Schema, input, output layerconfig.Specific) (updater updaters.Updater, err error) {
	panicErr := exceptions.TryCatch[error](func() {
		updater, err = schema.CreateUpdater(input, output)
	})
	if panicErr != nil {
		return nil, errors.WithMessagef(panicErr, "%T.CreateUpdater(%s, %s) panicked", schema, input, output)
	}
	if err == nil && updater == nil {
		return nil, errors.Errorf("%T.CreateUpdater(%s, %s) returned no updater and no error", schema, input, output)
	}
	return updater, err
}

// Len returns the number of layers.
func (inst *Instance) Len() int { return len(inst.updaters) }

// Layer returns the current description of layer i, including its configurations (updated by Reshape).
func (inst *Instance) Layer(i int) Layer { return inst.layers[i] }

// Updater returns the updater of layer i. It is owned by the Instance: don't finalize it directly.
func (inst *Instance) Updater(i int) updaters.Updater { return inst.updaters[i] }

// MemoryBytes returns the device memory held by all the updaters.
func (inst *Instance) MemoryBytes() (total uint64) {
	for _, u := range inst.updaters {
		if u != nil {
			total += u.MemoryBytes()
		}
	}
	return
}

// Reshape replaces the updater of layer i with one created for the new configurations.
//
// The new updater is created before the old one is finalized: if creation fails, the old updater is
// kept and remains valid.
func (inst *Instance) Reshape(i int, input, output layerconfig.Specific) error {
	if inst.finalized {
		return errors.New("engine: Instance.Reshape called after Finalize")
	}
	if i < 0 || i >= len(inst.updaters) {
		return errors.Errorf("engine: Instance.Reshape(%d): layer index out of range [0, %d)", i, len(inst.updaters))
	}
	layer := inst.layers[i]
	layer.Input, layer.Output = input.Clone(), output.Clone()
	updater, err := createWithRetries(inst.config, inst.plan.schemas[i], layer)
	if err != nil {
		return errors.WithMessagef(err, "engine: reshaping layer %q (#%d)", layer.Name, i)
	}
	old := inst.updaters[i]
	inst.updaters[i] = updater
	inst.layers[i] = layer
	if err := old.Finalize(); err != nil {
		klog.Errorf("engine: finalizing previous updater of layer %q: %+v", layer.Name, err)
	}
	klog.V(1).Infof("engine: layer %q reshaped to %s -> %s", layer.Name, input, output)
	return nil
}

// Backward runs the updaters from the last layer to the first, batches[i] being the batch of layer i.
func (inst *Instance) Backward(batches []*updaters.Batch) error {
	if inst.finalized {
		return errors.New("engine: Instance.Backward called after Finalize")
	}
	if len(batches) != len(inst.updaters) {
		return errors.Errorf("engine: Instance.Backward got %d batches for %d layers", len(batches), len(inst.updaters))
	}
	for i := len(inst.updaters) - 1; i >= 0; i-- {
		if err := inst.updaters[i].Run(batches[i]); err != nil {
			return errors.WithMessagef(err, "engine: backward pass of layer %q (#%d)", inst.layers[i].Name, i)
		}
	}
	return nil
}

// Finalize releases all the updaters. The Instance can't be used afterward.
func (inst *Instance) Finalize() error {
	if inst.finalized {
		return nil
	}
	return inst.finalizeAll()
}

func (inst *Instance) finalizeAll() error {
	inst.finalized = true
	var firstErr error
	for i, u := range inst.updaters {
		if u == nil {
			continue
		}
		if err := u.Finalize(); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "engine: finalizing layer %q", inst.layers[i].Name)
		}
		inst.updaters[i] = nil
	}
	return firstErr
}
