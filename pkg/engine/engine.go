// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package engine is the graph-building side of the updater dispatch: it resolves the schema of each
// layer of a network once (Build), and then creates, reshapes and drives the updaters of each layer
// (Plan.Instantiate and Instance).
//
// The Registry is passed explicitly, there is no global state:
//
//	reg := updaters.NewRegistry()
//	must.M(simgo.RegisterSchemas(reg, backend))
//	reg.Seal()
//	plan := must.M1(engine.Build(reg, layers))
//	instance := must.M1(plan.Instantiate(engine.DefaultConfig()))
//	defer instance.Finalize()
package engine

import (
	"runtime"
	"time"

	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Layer describes one layer instance of a network: its kind and the configurations of the data
// flowing in and out of it.
type Layer struct {
	Name          string
	TypeID        layerid.ID
	Input, Output layerconfig.Specific
}

// Config controls how updaters are instantiated.
type Config struct {
	// Parallelism is the maximum number of updaters created concurrently. 0 creates them sequentially,
	// -1 means unlimited.
	Parallelism int

	// MaxRetries is the number of times the creation of an updater is retried after a resource
	// allocation failure. Other failures are never retried.
	MaxRetries int

	// RetryBackoff is the wait before the first retry. It doubles on each retry, up to MaxRetryBackoff.
	RetryBackoff, MaxRetryBackoff time.Duration
}

// DefaultConfig returns the default configuration: one concurrent creation per CPU, and 3 retries
// starting at 10ms.
func DefaultConfig() Config {
	return Config{
		Parallelism:     runtime.NumCPU(),
		MaxRetries:      3,
		RetryBackoff:    10 * time.Millisecond,
		MaxRetryBackoff: time.Second,
	}
}

// Plan is a network whose layers were resolved to their updater schemas.
type Plan struct {
	layers  []Layer
	schemas []updaters.Schema
}

// Build resolves the schema of each layer in reg.
//
// It fails if a layer kind is not registered (the error matches updaters.ErrUnsupportedType and names the
// layer), or if two layers have the same name.
func Build(reg *updaters.Registry, layers []Layer) (*Plan, error) {
	if reg == nil {
		return nil, errors.New("engine.Build: registry can't be nil")
	}
	p := &Plan{
		layers:  make([]Layer, len(layers)),
		schemas: make([]updaters.Schema, len(layers)),
	}
	names := make(map[string]int, len(layers))
	for ii, layer := range layers {
		if layer.Name == "" {
			return nil, errors.Errorf("engine.Build: layer #%d has no name", ii)
		}
		if previous, found := names[layer.Name]; found {
			return nil, errors.Errorf("engine.Build: layers #%d and #%d are both named %q", previous, ii, layer.Name)
		}
		names[layer.Name] = ii
		schema, err := reg.Lookup(layer.TypeID)
		if err != nil {
			return nil, errors.WithMessagef(err, "engine.Build: layer %q (#%d)", layer.Name, ii)
		}
		p.layers[ii] = Layer{Name: layer.Name, TypeID: layer.TypeID, Input: layer.Input.Clone(), Output: layer.Output.Clone()}
		p.schemas[ii] = schema
	}
	klog.V(1).Infof("engine: built plan with %d layers", len(layers))
	return p, nil
}

// Len returns the number of layers.
func (p *Plan) Len() int { return len(p.layers) }

// Layer returns the description of layer i.
func (p *Plan) Layer(i int) Layer { return p.layers[i] }

// Schema returns the schema resolved for layer i.
func (p *Plan) Schema(i int) updaters.Schema { return p.schemas[i] }
