// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layerconfig

import "iter"

// Positions iterates over all the spatial positions of a feature map, in row-major order.
//
// It yields the flat offset within the feature map and the multi-dimensional position.
// The position slice is owned by the iterator and reused between iterations: clone it if you need to keep it.
// For rank 0 it yields exactly once, with offset 0 and an empty position.
func (c Specific) Positions() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		rank := c.Rank()
		position := make([]int, rank)
		size := c.NeuronCountPerFeatureMap()
		for offset := 0; offset < size; offset++ {
			if !yield(offset, position) {
				return
			}
			for axis := rank - 1; axis >= 0; axis-- {
				position[axis]++
				if position[axis] < c.Dimensions[axis] {
					break
				}
				position[axis] = 0
			}
		}
	}
}

// Offset converts a spatial position to the flat offset within a feature map.
func (c Specific) Offset(position []int) int {
	offset := 0
	for axis, pos := range position {
		offset = offset*c.Dimensions[axis] + pos
	}
	return offset
}
