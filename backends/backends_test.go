package backends

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	options, err := ParseOptions("memory=64MiB, dtype = float16,verbose")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"memory": "64MiB", "dtype": "float16", "verbose": ""}, options)

	options, err = ParseOptions("")
	require.NoError(t, err)
	assert.Empty(t, options)

	_, err = ParseOptions("=3")
	require.Error(t, err)
	_, err = ParseOptions("a=1,a=2")
	require.Error(t, err)
}

func TestDType(t *testing.T) {
	dtype, err := ParseDType("Float16")
	require.NoError(t, err)
	assert.Equal(t, Float16, dtype)
	assert.Equal(t, uint64(20), dtype.Memory(10))
	assert.Equal(t, "float32", Float32.String())
	assert.Equal(t, 4, Float32.Size())
	_, err = ParseDType("int8")
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	const name = "test_backend"
	var configGiven string
	Register(name, func(config string) (Backend, error) {
		configGiven = config
		return nil, errors.New("no device available")
	})
	require.Panics(t, func() { Register(name, nil) })
	assert.Contains(t, List(), name)

	_, err := NewWithConfig(name + ":devices=2")
	require.Error(t, err)
	assert.Equal(t, "devices=2", configGiven)
	assert.Contains(t, err.Error(), "no device available")

	_, err = NewWithConfig("unknown:foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestOutOfMemoryError(t *testing.T) {
	err := error(&OutOfMemoryError{Backend: "go", Requested: 100, Available: 10})
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.Contains(t, err.Error(), "100")
}
