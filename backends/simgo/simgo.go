// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simgo implements a simulated accelerator backend in pure Go: device memory is host memory
// with an optional budget, and the updaters run their backward passes with plain Go loops.
//
// It is not fast, but it is portable, and it behaves like a real device where it matters for the
// engine: buffers and updater workspaces are accounted against the device memory, and running out
// of it is reported as a (retryable) resource allocation error.
//
// Configuration (see backends.NewWithConfig) is a comma-separated list of options:
//
//   - memory=<size>: device memory budget, e.g. "memory=64MiB". Defaults to unlimited.
//   - dtype=<float32|float16>: storage type of the buffers. Defaults to float32.
//
// Example: LAYERUPDATERS_BACKEND="go:memory=1GiB,dtype=float16".
package simgo

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/layerupdaters/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in LAYERUPDATERS_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new simulated Backend from the configuration string.
func New(config string) (backends.Backend, error) {
	return NewBackend(config)
}

// NewBackend is like New, but returns the concrete type.
func NewBackend(config string) (*Backend, error) {
	options, err := backends.ParseOptions(config)
	if err != nil {
		return nil, err
	}
	b := &Backend{dtype: backends.Float32}
	for key, value := range options {
		switch key {
		case "memory":
			b.memoryLimit, err = humanize.ParseBytes(value)
			if err != nil {
				return nil, errors.Wrapf(err, "backend %q: invalid memory option %q", BackendName, value)
			}
		case "dtype":
			b.dtype, err = backends.ParseDType(value)
			if err != nil {
				return nil, errors.WithMessagef(err, "backend %q", BackendName)
			}
		default:
			return nil, errors.Errorf("backend %q: unknown option %q in configuration %q", BackendName, key, config)
		}
	}
	klog.V(1).Infof("created backend %s", b.Description())
	return b, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	dtype backends.DType

	// bufferPools are a map to pools of buffers that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map

	mu          sync.Mutex
	memoryLimit uint64
	memoryInUse uint64
	finalized   bool
}

// Compile-time check that simgo.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	limit := "unlimited"
	if b.memoryLimit > 0 {
		limit = humanize.IBytes(b.memoryLimit)
	}
	return fmt.Sprintf("Simulated Go device (%s, memory %s)", b.dtype, limit)
}

// DType used to store buffers.
func (b *Backend) DType() backends.DType {
	return b.dtype
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return
	}
	b.finalized = true
	b.bufferPools.Clear()
	if b.memoryInUse > 0 {
		klog.Warningf("backend %q finalized with %s of device memory still in use", BackendName, humanize.IBytes(b.memoryInUse))
	}
}

// IsFinalized returns whether Finalize was called.
func (b *Backend) IsFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}
