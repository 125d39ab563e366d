// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"github.com/gomlx/layerupdaters/backends"
	"github.com/pkg/errors"
)

// Compile-time check:
var _ backends.MemoryInterface = (*Backend)(nil)

// Allocate reserves bytes of the simulated device memory.
func (b *Backend) Allocate(bytes uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return errors.Errorf("backend %q already finalized", BackendName)
	}
	if b.memoryLimit > 0 && b.memoryInUse+bytes > b.memoryLimit {
		return &backends.OutOfMemoryError{
			Backend:   BackendName,
			Requested: bytes,
			Available: b.memoryLimit - b.memoryInUse,
		}
	}
	b.memoryInUse += bytes
	return nil
}

// Release returns memory reserved with Allocate.
func (b *Backend) Release(bytes uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bytes > b.memoryInUse {
		// Accounting bug: clamp rather than wrap around.
		b.memoryInUse = 0
		return
	}
	b.memoryInUse -= bytes
}

// MemoryInUse returns the number of bytes currently reserved.
func (b *Backend) MemoryInUse() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memoryInUse
}

// MemoryLimit returns the memory budget, or 0 if unlimited.
func (b *Backend) MemoryLimit() uint64 {
	return b.memoryLimit
}
