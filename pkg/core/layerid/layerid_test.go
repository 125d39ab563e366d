package layerid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id, err := Parse(Maxout.String())
	require.NoError(t, err)
	assert.Equal(t, Maxout, id)

	_, err = Parse("not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-uuid")
}

func TestFromBytes(t *testing.T) {
	id, err := FromBytes(Convolution[:])
	require.NoError(t, err)
	assert.Equal(t, Convolution, id)

	_, err = FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestWellKnownAreDistinct(t *testing.T) {
	all := []ID{Maxout, Convolution, MaxSubsampling, AverageSubsampling, HyperbolicTangent,
		Sigmoid, RectifiedLinear, Absolute, Softmax}
	seen := make(map[ID]bool)
	for _, id := range all {
		require.False(t, id.IsZero())
		require.False(t, seen[id], "duplicate identity %s", id)
		seen[id] = true
	}
	assert.True(t, Zero.IsZero())
	assert.Equal(t, 0, Maxout.Compare(Maxout))
	assert.Equal(t, -Maxout.Compare(Softmax), Softmax.Compare(Maxout))
}
