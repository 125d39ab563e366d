// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package updaters defines how the training engine finds and builds the device-specific objects
// (Updater) that run the backward/weight-update pass of a network layer.
//
// Each layer kind is identified by a layerid.ID. A Registry maps the ID to a Schema, a stateless
// factory provided by a device backend. Given the configuration of the data flowing into and out
// of one layer instance, the Schema builds an Updater sized for exactly those shapes:
//
//	reg := updaters.NewRegistry()
//	must.M(simgo.RegisterSchemas(reg, backend))
//	reg.Seal()
//
//	schema, err := reg.Lookup(layer.TypeID)  // Once, at graph-build time.
//	...
//	updater, err := schema.CreateUpdater(layer.Input, layer.Output)  // Once per shape configuration.
//	...
//	defer updater.Finalize()
//	err = updater.Run(batch)  // Once per batch.
//
// Errors returned follow a fixed taxonomy (see ErrUnsupportedType, ErrConfigurationMismatch,
// ErrDuplicateRegistration and ErrResourceAllocation), so the engine can decide whether to abort
// the graph build or to retry.
package updaters

import (
	"github.com/gomlx/layerupdaters/backends"
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
)

// Schema is the stateless factory of Updater objects for one layer kind, on one device backend.
//
// Implementations must be safe for concurrent use: CreateUpdater is called concurrently for
// different layer instances.
type Schema interface {
	// TypeID returns the identity of the layer kind this schema builds updaters for.
	// It must match the identity stored in serialized layers of this kind.
	TypeID() layerid.ID

	// CreateSpecific returns a new instance of the same concrete schema, with the same configuration
	// but no shared mutable state. Used by Registry.Clone.
	CreateSpecific() Schema

	// CreateUpdater returns a new Updater, with its device resources allocated for exactly the given
	// input and output configurations.
	//
	// It returns a *ConfigurationMismatchError if the configurations don't follow the layer kind
	// transformation rule (in which case no device resource is allocated), or a
	// *ResourceAllocationError if the device couldn't provide the resources.
	CreateUpdater(input, output layerconfig.Specific) (Updater, error)
}

// Updater runs the backward/weight-update pass of one layer instance, for one fixed shape configuration,
// on the device it was created on.
//
// An Updater is exclusively owned by the layer instance that created it, and it is not safe for concurrent use.
type Updater interface {
	// TypeID returns the identity of the layer kind, the same as the Schema that created it.
	TypeID() layerid.ID

	// InputConfig returns the configuration of the data flowing into the layer.
	InputConfig() layerconfig.Specific

	// OutputConfig returns the configuration of the data produced by the layer.
	OutputConfig() layerconfig.Specific

	// MemoryBytes returns the device memory held by the updater. It depends only on the schema and the
	// input/output configurations.
	MemoryBytes() uint64

	// Run the backward pass for one batch: it writes Batch.InputErrors (if not nil) and accumulates
	// Batch.Gradients (for layer kinds with weights).
	Run(batch *Batch) error

	// Finalize releases the device resources immediately. The Updater can't be used afterward.
	Finalize() error
}

// Batch holds the device buffers used by Updater.Run for one batch of EntryCount entries.
//
// All buffers hold the entries back to back: e.g. Input has EntryCount * InputConfig().NeuronCount() elements.
type Batch struct {
	EntryCount int

	// Input and Output are the activations of the forward pass.
	Input, Output backends.Buffer

	// OutputErrors is the gradient of the loss with respect to Output.
	OutputErrors backends.Buffer

	// InputErrors is where the gradient of the loss with respect to Input is written.
	// It can be nil for the first layer of a network.
	InputErrors backends.Buffer

	// Weights and Gradients are only used by layer kinds with weights, in the order given by
	// layerkinds.Kind.WeightShapes. Gradients are accumulated, not overwritten.
	Weights, Gradients []backends.Buffer
}
