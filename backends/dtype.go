// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strings"

	"github.com/pkg/errors"
)

// DType is the storage type of the elements of a device Buffer.
type DType int

const (
	InvalidDType DType = iota
	Float32
	// Float16 buffers store IEEE half precision (github.com/x448/float16); computation is done in float32.
	Float16
)

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "invalid"
	}
}

// Size returns the number of bytes used by one element.
func (dtype DType) Size() int {
	switch dtype {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

// Memory returns the number of bytes used by length elements.
func (dtype DType) Memory(length int) uint64 {
	return uint64(dtype.Size()) * uint64(length)
}

// ParseDType converts a (case-insensitive) name to a DType.
func ParseDType(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float32", "f32":
		return Float32, nil
	case "float16", "f16", "half":
		return Float16, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype %q, valid values are \"float32\" or \"float16\"", name)
}
