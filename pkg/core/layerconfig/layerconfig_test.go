package layerconfig

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	c := Make(3, 32, 24)
	assert.True(t, c.Ok())
	assert.Equal(t, 2, c.Rank())
	assert.Equal(t, 24, c.Dim(-1))
	assert.Equal(t, 32*24, c.NeuronCountPerFeatureMap())
	assert.Equal(t, 3*32*24, c.NeuronCount())
	assert.Equal(t, "fm=3 [32 24]", c.String())
	assert.Equal(t, []int{24, 1}, c.Strides())

	flat := Make(10)
	assert.Equal(t, 0, flat.Rank())
	assert.Equal(t, 10, flat.NeuronCount())
	assert.Equal(t, "fm=10", flat.String())

	require.Panics(t, func() { Make(0) })
	require.Panics(t, func() { Make(2, 3, -1) })
	require.Panics(t, func() { c.Dim(2) })

	_, err := New(2, 0)
	require.Error(t, err)
	assert.False(t, Specific{}.Ok())
}

func TestNeuronCountOverflow(t *testing.T) {
	_, err := New(2, 1<<32, 1<<32)
	require.Error(t, err)
	require.Panics(t, func() { Make(2, 1<<32, 1<<32) })
	assert.False(t, Specific{FeatureMapCount: 2, Dimensions: []int{1 << 32, 1 << 32}}.Ok())
	assert.False(t, Specific{FeatureMapCount: math.MaxInt, Dimensions: []int{2}}.Ok())

	c, err := New(1, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, c.NeuronCount())
}

func TestCloneAndEqual(t *testing.T) {
	dims := []int{4, 4}
	c := Make(2, dims...)
	dims[0] = 100
	assert.Equal(t, 4, c.Dim(0), "Make must not alias the dimensions given")

	c2 := c.Clone()
	assert.True(t, c.Equal(c2))
	c2.Dimensions[1] = 7
	assert.False(t, c.Equal(c2))
	assert.Equal(t, 4, c.Dim(1))

	assert.True(t, Make(2, 4, 4).EqualDimensions(Make(8, 4, 4)))
	assert.False(t, Make(2, 4, 4).Equal(Make(8, 4, 4)))
}

func TestPositions(t *testing.T) {
	c := Make(1, 2, 3)
	var offsets []int
	var positions [][]int
	for offset, pos := range c.Positions() {
		offsets = append(offsets, offset)
		positions = append(positions, slices.Clone(pos))
		assert.Equal(t, offset, c.Offset(pos))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, offsets)
	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, positions)

	count := 0
	for range Make(5).Positions() {
		count++
	}
	assert.Equal(t, 1, count)
}
