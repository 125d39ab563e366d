// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layerid defines the identity of a layer kind.
//
// Every layer kind (maxout, convolution, ...) is identified by a 128-bit ID that is part of the
// serialized form of a network, and therefore must never change once defined. The ID is the
// only key used to find the updater schema of a layer.
package layerid

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID is the stable, globally unique identity of a layer kind.
type ID uuid.UUID

// Zero is the invalid ID, never assigned to a layer kind.
var Zero ID

// Well-known identities of the layer kinds supported by the bundled backends.
var (
	Maxout             = MustParse("a3a6d3c5-6c26-4e1c-8a91-6e0f6d6b7e01")
	Convolution        = MustParse("f3b3b4b0-02b0-4e2b-9b0b-2c5b93bd2c02")
	MaxSubsampling     = MustParse("5b1c1e5e-9e7c-4d3d-8f77-0b1ea3f33c03")
	AverageSubsampling = MustParse("8a3c4f10-7f0e-4d6b-a7a2-4f2b27d6d504")
	HyperbolicTangent  = MustParse("e8e7d6c5-1a2b-4c3d-9e8f-70a1b2c3d405")
	Sigmoid            = MustParse("b2c4d6e8-3f5a-4b7c-8d9e-0f1a2b3c4d06")
	RectifiedLinear    = MustParse("c0ffee00-5e1a-4c0d-b1a5-ed0123456707")
	Absolute           = MustParse("0a1b2c3d-4e5f-4a6b-9c7d-8e9f0a1b2c08")
	Softmax            = MustParse("d4c3b2a1-f6e5-4a8b-9c0d-1e2f3a4b5c09")
)

// Parse an ID from its canonical string representation.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "layerid.Parse(%q)", s)
	}
	return ID(u), nil
}

// MustParse is like Parse, but panics on error. Used to define constant identities.
func MustParse(s string) ID {
	return ID(uuid.MustParse(s))
}

// FromBytes builds an ID from its 16-bytes binary form, as stored in serialized networks.
func FromBytes(b []byte) (ID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return Zero, errors.Wrapf(err, "layerid.FromBytes(%d bytes)", len(b))
	}
	return ID(u), nil
}

// String implements fmt.Stringer.
func (id ID) String() string { return uuid.UUID(id).String() }

// IsZero returns whether id is the zero (invalid) ID.
func (id ID) IsZero() bool { return id == Zero }

// Compare returns -1, 0 or 1, comparing the binary form of the IDs. Used for stable listings.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}
