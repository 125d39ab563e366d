// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package updaters

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registry maps layer kinds (layerid.ID) to the Schema that builds their updaters.
//
// It has two phases: first schemas are registered (typically by each compiled-in backend, at startup),
// then the registry is sealed (see Seal) and from then on it is read-only: Lookup can be called
// concurrently from any number of goroutines without further synchronization.
//
// Lookup can also be used before sealing, but then the caller is responsible for not calling it
// concurrently with Register.
//
// The Registry exclusively owns its schemas. There is no global registry: create one with NewRegistry
// and pass it to the graph-building code.
type Registry struct {
	mu      sync.Mutex // Serializes Register and Seal.
	sealed  atomic.Bool
	schemas map[layerid.ID]Schema
}

// NewRegistry returns an empty Registry, in the registration phase.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[layerid.ID]Schema)}
}

// Register inserts schema, keyed by its own TypeID.
//
// It fails with a *DuplicateRegistrationError if there is already a schema with the same TypeID, in which
// case the registry is left unchanged. It also fails if the registry is sealed.
func (r *Registry) Register(schema Schema) error {
	if schema == nil {
		return errors.New("Registry.Register(nil): schema can't be nil")
	}
	id := schema.TypeID()
	if id.IsZero() {
		return errors.Errorf("Registry.Register(%T): schema reports a zero layer type id", schema)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return errors.Wrapf(ErrRegistrySealed, "Registry.Register(%T) for layer type %s", schema, id)
	}
	if _, found := r.schemas[id]; found {
		return &DuplicateRegistrationError{ID: id}
	}
	r.schemas[id] = schema
	klog.V(1).Infof("registered updater schema %T for layer type %s", schema, id)
	return nil
}

// MustRegister is like Register, but panics on error.
func (r *Registry) MustRegister(schema Schema) {
	if err := r.Register(schema); err != nil {
		exceptions.Panicf("%+v", err)
	}
}

// Seal ends the registration phase: afterward Register fails and the registry is read-only.
// Calling Seal more than once is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Swap(true) {
		return
	}
	klog.V(1).Infof("updater schema registry sealed with %d layer types", len(r.schemas))
}

// Sealed returns whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the schema registered for id, or an *UnsupportedTypeError.
func (r *Registry) Lookup(id layerid.ID) (Schema, error) {
	schema, found := r.schemas[id]
	if !found {
		return nil, &UnsupportedTypeError{ID: id}
	}
	return schema, nil
}

// MustLookup is like Lookup, but panics on error.
func (r *Registry) MustLookup(id layerid.ID) Schema {
	schema, err := r.Lookup(id)
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return schema
}

// Has returns whether there is a schema registered for id.
func (r *Registry) Has(id layerid.ID) bool {
	_, found := r.schemas[id]
	return found
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.schemas)
}

// IDs returns the registered layer type ids, sorted.
func (r *Registry) IDs() []layerid.ID {
	ids := make([]layerid.ID, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, layerid.ID.Compare)
	return ids
}

// Clone returns a new Registry, in the registration phase (not sealed), with a copy of every schema
// created with Schema.CreateSpecific. The two registries share no schema objects.
//
// It panics if a schema's CreateSpecific returns nil or a schema of a different layer type.
func (r *Registry) Clone() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := NewRegistry()
	for id, schema := range r.schemas {
		specific := schema.CreateSpecific()
		if specific == nil || specific.TypeID() != id {
			exceptions.Panicf("Registry.Clone(): %T.CreateSpecific() returned %T for layer type %s", schema, specific, id)
		}
		clone.schemas[id] = specific
	}
	return clone
}
