// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/pkg/errors"
)

// Buffer represents data stored in the device that is going to execute the layer updaters.
// It's used for the activations, errors, weights and gradients handed to an updater.
//
// It is opaque from the engine perspective, except for its length and dtype.
type Buffer interface {
	// Len returns the number of elements in the buffer.
	Len() int

	// DType of the elements stored.
	DType() DType
}

// DataInterface is the Backend's sub-interface that defines the API to transfer Buffer to/from the device.
type DataInterface interface {
	// DType used by the backend to store buffers.
	DType() DType

	// NewBuffer allocates a zero-initialized buffer with the given number of elements.
	NewBuffer(length int) (Buffer, error)

	// BufferFromFlat transfers the flat values to the device, and returns the corresponding Buffer.
	BufferFromFlat(flat []float32) (Buffer, error)

	// BufferToFlat transfers the values of the buffer back into a newly allocated Go slice.
	BufferToFlat(buffer Buffer) ([]float32, error)

	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately -- as opposed to waiting for a GC.
	//
	// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
	BufferFinalize(buffer Buffer) error
}

// MemoryInterface is the Backend's sub-interface to account for the device memory used by updaters
// for their workspaces.
type MemoryInterface interface {
	// Allocate reserves the given number of bytes of device memory. It returns an *OutOfMemoryError
	// if the device can't fit it.
	Allocate(bytes uint64) error

	// Release returns bytes previously reserved with Allocate.
	Release(bytes uint64)

	// MemoryInUse returns the number of bytes currently reserved, including buffers.
	MemoryInUse() uint64

	// MemoryLimit returns the total device memory available, or 0 if unlimited.
	MemoryLimit() uint64
}

// ErrOutOfMemory is matched (with errors.Is) by every *OutOfMemoryError.
var ErrOutOfMemory = errors.New("device out of memory")

// OutOfMemoryError is returned when the device can't reserve the requested memory.
// The condition may be transient: memory may become available as other resources are released.
type OutOfMemoryError struct {
	Backend   string
	Requested uint64
	Available uint64
}

// Error implements error.
func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("backend %q out of memory: requested %d bytes, %d bytes available", e.Backend, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrOutOfMemory) true.
func (e *OutOfMemoryError) Is(target error) bool {
	return target == ErrOutOfMemory
}
