package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/layerupdaters/backends/simgo"
	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	"github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mk = layerconfig.Make

func newRegistry(t *testing.T, config string) (*simgo.Backend, *updaters.Registry) {
	t.Helper()
	backend := must.M1(simgo.NewBackend(config))
	reg := updaters.NewRegistry()
	require.NoError(t, simgo.RegisterSchemas(reg, backend))
	reg.Seal()
	return backend, reg
}

// smallNetwork: conv -> relu -> maxout -> max subsampling -> softmax.
func smallNetwork() []Layer {
	return []Layer{
		{Name: "conv", TypeID: layerid.Convolution, Input: mk(1, 6, 6), Output: mk(4, 4, 4)},
		{Name: "relu", TypeID: layerid.RectifiedLinear, Input: mk(4, 4, 4), Output: mk(4, 4, 4)},
		{Name: "maxout", TypeID: layerid.Maxout, Input: mk(4, 4, 4), Output: mk(2, 4, 4)},
		{Name: "pool", TypeID: layerid.MaxSubsampling, Input: mk(2, 4, 4), Output: mk(2, 2, 2)},
		{Name: "softmax", TypeID: layerid.Softmax, Input: mk(2, 2, 2), Output: mk(2, 2, 2)},
	}
}

func TestBuild(t *testing.T) {
	_, reg := newRegistry(t, "")
	plan, err := Build(reg, smallNetwork())
	require.NoError(t, err)
	require.Equal(t, 5, plan.Len())
	for i := range plan.Len() {
		assert.Equal(t, plan.Layer(i).TypeID, plan.Schema(i).TypeID())
	}

	unknown := layerid.MustParse("12345678-1234-4234-8234-123456789abc")
	_, err = Build(reg, append(smallNetwork(), Layer{Name: "mystery", TypeID: unknown, Input: mk(1), Output: mk(1)}))
	require.ErrorIs(t, err, updaters.ErrUnsupportedType)
	assert.Contains(t, err.Error(), "mystery")
	assert.Contains(t, err.Error(), unknown.String())

	_, err = Build(reg, append(smallNetwork(), smallNetwork()[0]))
	require.Error(t, err)
	_, err = Build(reg, []Layer{{TypeID: layerid.Sigmoid, Input: mk(1), Output: mk(1)}})
	require.Error(t, err)
	_, err = Build(nil, smallNetwork())
	require.Error(t, err)
}

func TestInstantiate(t *testing.T) {
	backend, reg := newRegistry(t, "")
	plan := must.M1(Build(reg, smallNetwork()))
	inst, err := plan.Instantiate(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 5, inst.Len())
	for i := range inst.Len() {
		u := inst.Updater(i)
		assert.Equal(t, plan.Layer(i).TypeID, u.TypeID())
		assert.True(t, plan.Layer(i).Input.Equal(u.InputConfig()))
		assert.True(t, plan.Layer(i).Output.Equal(u.OutputConfig()))
	}
	assert.Equal(t, inst.MemoryBytes(), backend.MemoryInUse())

	// Reshape the softmax to a larger spatial size.
	require.NoError(t, inst.Reshape(4, mk(2, 3, 3), mk(2, 3, 3)))
	assert.True(t, inst.Updater(4).InputConfig().Equal(mk(2, 3, 3)))
	assert.True(t, inst.Layer(4).Output.Equal(mk(2, 3, 3)))
	assert.Equal(t, inst.MemoryBytes(), backend.MemoryInUse())

	// A bad reshape keeps the previous updater.
	previous := inst.Updater(2)
	err = inst.Reshape(2, mk(4, 4, 4), mk(3, 4, 4))
	require.ErrorIs(t, err, updaters.ErrConfigurationMismatch)
	assert.Contains(t, err.Error(), "maxout")
	assert.Same(t, previous, inst.Updater(2))
	require.Error(t, inst.Reshape(7, mk(1), mk(1)))

	require.NoError(t, inst.Finalize())
	require.NoError(t, inst.Finalize())
	assert.Equal(t, uint64(0), backend.MemoryInUse())
	require.Error(t, inst.Reshape(0, mk(1, 6, 6), mk(4, 4, 4)))
}

func TestInstantiateRollsBack(t *testing.T) {
	backend, reg := newRegistry(t, "")
	layers := smallNetwork()
	layers[3].Output = mk(2, 3, 3) // 4 is not a multiple of 3.
	plan := must.M1(Build(reg, layers))
	for _, parallelism := range []int{0, 2, -1} {
		config := DefaultConfig()
		config.Parallelism = parallelism
		_, err := plan.Instantiate(config)
		require.ErrorIs(t, err, updaters.ErrConfigurationMismatch)
		assert.Contains(t, err.Error(), `"pool"`)
		assert.Equal(t, uint64(0), backend.MemoryInUse(), "updaters created before the failure must be finalized")
	}
}

func TestInstantiateOutOfMemory(t *testing.T) {
	backend, reg := newRegistry(t, "memory=1KiB")
	plan := must.M1(Build(reg, smallNetwork()))
	config := DefaultConfig()
	config.MaxRetries = 1
	config.RetryBackoff = time.Millisecond
	_, err := plan.Instantiate(config)
	require.ErrorIs(t, err, updaters.ErrResourceAllocation)
	assert.True(t, updaters.IsRetryable(err))
	assert.Equal(t, uint64(0), backend.MemoryInUse())
}

// flakySchema fails with a resource allocation error a number of times before succeeding.
type flakySchema struct {
	updaters.Schema
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakySchema) CreateUpdater(input, output layerconfig.Specific) (updaters.Updater, error) {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return nil, &updaters.ResourceAllocationError{Kind: "flaky", Input: input, Output: output, Requested: 1}
	}
	return s.Schema.CreateUpdater(input, output)
}

// panickingSchema panics on CreateUpdater.
type panickingSchema struct {
	updaters.Schema
}

func (s *panickingSchema) CreateUpdater(input, output layerconfig.Specific) (updaters.Updater, error) {
	exceptions.Panicf("device context lost")
	return nil, nil
}

func TestRetries(t *testing.T) {
	_, reg := newRegistry(t, "")
	flaky := &flakySchema{Schema: reg.MustLookup(layerid.Sigmoid)}
	flaky.failures.Store(2)
	reg2 := updaters.NewRegistry()
	require.NoError(t, reg2.Register(flaky))
	plan := must.M1(Build(reg2, []Layer{{Name: "sigmoid", TypeID: layerid.Sigmoid, Input: mk(3), Output: mk(3)}}))

	config := Config{MaxRetries: 2, RetryBackoff: time.Millisecond}
	inst, err := plan.Instantiate(config)
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	require.NoError(t, inst.Finalize())

	flaky.failures.Store(5)
	flaky.calls.Store(0)
	_, err = plan.Instantiate(config)
	require.ErrorIs(t, err, updaters.ErrResourceAllocation)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestPanicsAreErrors(t *testing.T) {
	_, reg := newRegistry(t, "")
	reg2 := updaters.NewRegistry()
	require.NoError(t, reg2.Register(&panickingSchema{Schema: reg.MustLookup(layerid.Absolute)}))
	plan := must.M1(Build(reg2, []Layer{{Name: "abs", TypeID: layerid.Absolute, Input: mk(3), Output: mk(3)}}))
	_, err := plan.Instantiate(DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device context lost")
	assert.False(t, updaters.IsRetryable(err))
}

func TestBackward(t *testing.T) {
	backend, reg := newRegistry(t, "")
	layers := []Layer{
		{Name: "tanh", TypeID: layerid.HyperbolicTangent, Input: mk(2), Output: mk(2)},
		{Name: "maxout", TypeID: layerid.Maxout, Input: mk(2), Output: mk(1)},
	}
	inst := must.M1(must.M1(Build(reg, layers)).Instantiate(DefaultConfig()))
	defer func() { require.NoError(t, inst.Finalize()) }()

	hidden := must.M1(backend.BufferFromFlat([]float32{0.5, -0.5}))
	hiddenErrors := must.M1(backend.NewBuffer(2))
	batches := []*updaters.Batch{
		{
			EntryCount:   1,
			Input:        must.M1(backend.BufferFromFlat([]float32{0.55, -0.55})),
			Output:       hidden,
			OutputErrors: hiddenErrors,
		},
		{
			EntryCount:   1,
			Input:        hidden,
			Output:       must.M1(backend.BufferFromFlat([]float32{0.5})),
			OutputErrors: must.M1(backend.BufferFromFlat([]float32{2})),
			InputErrors:  hiddenErrors,
		},
	}
	require.NoError(t, inst.Backward(batches))
	assert.Equal(t, []float32{2, 0}, must.M1(backend.BufferToFlat(hiddenErrors)))

	require.Error(t, inst.Backward(batches[:1]))
	err := inst.Backward([]*updaters.Batch{batches[0], {EntryCount: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"maxout"`)
}
