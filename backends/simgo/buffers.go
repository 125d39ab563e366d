// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"strings"
	"sync"

	"github.com/gomlx/layerupdaters/backends"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Compile-time check:
var _ backends.DataInterface = (*Backend)(nil)

// Buffer for the simulated backend holds a reference to the flat data.
type Buffer struct {
	dtype  backends.DType
	length int
	valid  bool

	// flat is either []float32 or []float16.Float16, depending on dtype.
	flat any
}

// Compile-time check:
var _ backends.Buffer = (*Buffer)(nil)

// Len returns the number of elements.
func (buf *Buffer) Len() int { return buf.length }

// DType returns the storage type.
func (buf *Buffer) DType() backends.DType { return buf.dtype }

type bufferPoolKey struct {
	dtype  backends.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype backends.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				buf := &Buffer{dtype: dtype, length: length}
				if dtype == backends.Float16 {
					buf.flat = make([]float16.Float16, length)
				} else {
					buf.flat = make([]float32, length)
				}
				return buf
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers, zero-initialized and accounted in the device memory.
func (b *Backend) getBuffer(length int) (*Buffer, error) {
	if length <= 0 {
		return nil, errors.Errorf("backend %q: cannot allocate buffer of length %d", BackendName, length)
	}
	if err := b.Allocate(b.dtype.Memory(length)); err != nil {
		return nil, err
	}
	buf := b.getBufferPool(b.dtype, length).Get().(*Buffer)
	switch flat := buf.flat.(type) {
	case []float32:
		clear(flat)
	case []float16.Float16:
		clear(flat)
	}
	buf.valid = true
	return buf, nil
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped.
func (b *Backend) putBuffer(buf *Buffer) {
	buf.valid = false
	b.Release(buf.dtype.Memory(buf.length))
	b.getBufferPool(buf.dtype, buf.length).Put(buf)
}

// NewBuffer allocates a zero-initialized buffer.
func (b *Backend) NewBuffer(length int) (backends.Buffer, error) {
	return b.getBuffer(length)
}

// BufferFromFlat transfers the flat values to a new device buffer.
func (b *Backend) BufferFromFlat(flat []float32) (backends.Buffer, error) {
	buf, err := b.getBuffer(len(flat))
	if err != nil {
		return nil, err
	}
	buf.store(flat)
	return buf, nil
}

// BufferToFlat copies the contents of the buffer to a new Go slice.
func (b *Backend) BufferToFlat(backendBuffer backends.Buffer) ([]float32, error) {
	buf, err := b.checkBuffer("BufferToFlat", backendBuffer)
	if err != nil {
		return nil, err
	}
	values := make([]float32, buf.length)
	switch flat := buf.flat.(type) {
	case []float32:
		copy(values, flat)
	case []float16.Float16:
		for ii, v := range flat {
			values[ii] = v.Float32()
		}
	}
	return values, nil
}

// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
// freed immediately.
//
// A finalized buffer should never be used again. Preferably, the caller should set its references to it to nil.
func (b *Backend) BufferFinalize(backendBuffer backends.Buffer) error {
	buf, err := b.checkBuffer("BufferFinalize", backendBuffer)
	if err != nil {
		return err
	}
	b.putBuffer(buf)
	return nil
}

// checkBuffer validates that backendBuffer is a valid buffer of this backend.
func (b *Backend) checkBuffer(method string, backendBuffer backends.Buffer) (*Buffer, error) {
	buf, ok := backendBuffer.(*Buffer)
	if !ok || buf == nil || buf.flat == nil || !buf.valid {
		var issues []string
		switch {
		case !ok:
			issues = append(issues, "buffer is not from the simgo backend")
		case buf == nil:
			issues = append(issues, "buffer was nil")
		case buf.flat == nil:
			issues = append(issues, "buffer.flat was nil")
		default:
			issues = append(issues, "buffer was marked as invalid")
		}
		return nil, errors.Errorf("%s(%p): %s -- buffer was already finalized!?", method, backendBuffer, strings.Join(issues, ", "))
	}
	return buf, nil
}

// float32s returns the buffer values as float32. For float32 buffers the returned slice shares the buffer storage;
// otherwise it is a converted copy, and changes must be written back with store.
func (buf *Buffer) float32s() []float32 {
	switch flat := buf.flat.(type) {
	case []float32:
		return flat
	case []float16.Float16:
		values := make([]float32, len(flat))
		for ii, v := range flat {
			values[ii] = v.Float32()
		}
		return values
	}
	return nil
}

// store writes values into the buffer storage. It is a no-op if values is already the storage.
func (buf *Buffer) store(values []float32) {
	switch flat := buf.flat.(type) {
	case []float32:
		if len(flat) > 0 && len(values) > 0 && &flat[0] == &values[0] {
			return
		}
		copy(flat, values)
	case []float16.Float16:
		for ii, v := range values {
			flat[ii] = float16.Fromfloat32(v)
		}
	}
}
