package updaters_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/layerupdaters/pkg/core/layerconfig"
	"github.com/gomlx/layerupdaters/pkg/core/layerid"
	. "github.com/gomlx/layerupdaters/pkg/updaters"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	halvingID = layerid.MustParse("11111111-2222-4333-8444-555555555555")
	otherID   = layerid.MustParse("66666666-7777-4888-9999-aaaaaaaaaaaa")
)

// halvingSchema builds updaters for a layer kind whose output has half the input channels.
type halvingSchema struct {
	id          layerid.ID
	allocations *atomic.Int64
}

func (s *halvingSchema) TypeID() layerid.ID { return s.id }

func (s *halvingSchema) CreateSpecific() Schema {
	return &halvingSchema{id: s.id, allocations: s.allocations}
}

func (s *halvingSchema) CreateUpdater(input, output layerconfig.Specific) (Updater, error) {
	if input.FeatureMapCount != 2*output.FeatureMapCount {
		return nil, NewConfigurationMismatch("halving", input, output,
			"output channels must be half of the input channels")
	}
	s.allocations.Add(1)
	return &halvingUpdater{id: s.id, input: input.Clone(), output: output.Clone(), allocations: s.allocations,
		workspace: make([]float32, output.NeuronCount())}, nil
}

type halvingUpdater struct {
	id            layerid.ID
	input, output layerconfig.Specific
	allocations   *atomic.Int64
	workspace     []float32
}

func (u *halvingUpdater) TypeID() layerid.ID                 { return u.id }
func (u *halvingUpdater) InputConfig() layerconfig.Specific  { return u.input.Clone() }
func (u *halvingUpdater) OutputConfig() layerconfig.Specific { return u.output.Clone() }
func (u *halvingUpdater) MemoryBytes() uint64                { return uint64(4 * len(u.workspace)) }
func (u *halvingUpdater) Run(_ *Batch) error {
	if u.workspace == nil {
		return errors.New("finalized")
	}
	return nil
}
func (u *halvingUpdater) Finalize() error {
	if u.workspace == nil {
		return errors.New("already finalized")
	}
	u.workspace = nil
	u.allocations.Add(-1)
	return nil
}

func newHalving(id layerid.ID) *halvingSchema {
	return &halvingSchema{id: id, allocations: &atomic.Int64{}}
}

func TestRegistry_LookupReturnsMatchingType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newHalving(halvingID)))
	require.NoError(t, reg.Register(newHalving(otherID)))
	assert.Equal(t, 2, reg.Len())
	for _, id := range reg.IDs() {
		schema, err := reg.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, id, schema.TypeID())
	}
	assert.Equal(t, []layerid.ID{halvingID, otherID}, reg.IDs())
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	first := newHalving(halvingID)
	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(newHalving(otherID)))

	err := reg.Register(newHalving(halvingID))
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	var dup *DuplicateRegistrationError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, halvingID, dup.ID)
	assert.Contains(t, err.Error(), halvingID.String())

	// Previous state is intact.
	assert.Equal(t, 2, reg.Len())
	schema, err := reg.Lookup(halvingID)
	require.NoError(t, err)
	assert.Same(t, first, schema)
	assert.True(t, reg.Has(otherID))

	require.Panics(t, func() { reg.MustRegister(newHalving(otherID)) })
}

func TestRegistry_Unsupported(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newHalving(halvingID)))
	_, err := reg.Lookup(otherID)
	require.ErrorIs(t, err, ErrUnsupportedType)
	var unsupported *UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, otherID, unsupported.ID)
	assert.Contains(t, err.Error(), otherID.String())
	assert.Equal(t, 1, reg.Len())
	assert.False(t, reg.Has(otherID))
	require.Panics(t, func() { reg.MustLookup(otherID) })
}

func TestRegistry_InvalidSchemas(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.Register(nil))
	require.Error(t, reg.Register(newHalving(layerid.Zero)))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Seal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newHalving(halvingID)))
	assert.False(t, reg.Sealed())
	reg.Seal()
	reg.Seal()
	assert.True(t, reg.Sealed())
	err := reg.Register(newHalving(otherID))
	require.ErrorIs(t, err, ErrRegistrySealed)
	assert.Equal(t, 1, reg.Len())

	// Concurrent lookups after sealing.
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				schema, err := reg.Lookup(halvingID)
				if assert.NoError(t, err) {
					assert.Equal(t, halvingID, schema.TypeID())
				}
			}
		}()
	}
	wg.Wait()
}

func TestRegistry_Clone(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newHalving(halvingID)))
	require.NoError(t, reg.Register(newHalving(otherID)))
	reg.Seal()

	clone := reg.Clone()
	assert.False(t, clone.Sealed())
	require.Equal(t, reg.IDs(), clone.IDs())
	for _, id := range reg.IDs() {
		original := reg.MustLookup(id)
		copied := clone.MustLookup(id)
		assert.NotSame(t, original, copied)
		assert.Equal(t, original.TypeID(), copied.TypeID())
	}

	// The clone can be extended independently.
	thirdID := layerid.MustParse("bbbbbbbb-cccc-4ddd-8eee-ffffffffffff")
	require.NoError(t, clone.Register(newHalving(thirdID)))
	assert.Equal(t, 3, clone.Len())
	assert.Equal(t, 2, reg.Len())
}

func TestSchema_CreateUpdater(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newHalving(halvingID)))
	schema := reg.MustLookup(halvingID)
	allocations := schema.(*halvingSchema).allocations

	updater, err := schema.CreateUpdater(layerconfig.Make(4), layerconfig.Make(2))
	require.NoError(t, err)
	assert.Equal(t, halvingID, updater.TypeID())
	assert.Equal(t, int64(1), allocations.Load())

	_, err = schema.CreateUpdater(layerconfig.Make(4), layerconfig.Make(3))
	require.ErrorIs(t, err, ErrConfigurationMismatch)
	assert.False(t, IsRetryable(err))
	var mismatch *ConfigurationMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "halving", mismatch.Kind)
	assert.True(t, mismatch.Input.Equal(layerconfig.Make(4)))
	assert.True(t, mismatch.Output.Equal(layerconfig.Make(3)))
	assert.Equal(t, int64(1), allocations.Load(), "a mismatch must not allocate")

	// Independent instances.
	other, err := schema.CreateUpdater(layerconfig.Make(8, 3), layerconfig.Make(4, 3))
	require.NoError(t, err)
	require.NoError(t, updater.Finalize())
	require.NoError(t, other.Run(&Batch{}))
	assert.Equal(t, uint64(4*12), other.MemoryBytes())
	require.NoError(t, other.Finalize())
	assert.Equal(t, int64(0), allocations.Load())

	assert.Equal(t, halvingID, reg.MustLookup(halvingID).TypeID())
}

func TestErrors(t *testing.T) {
	cause := errors.New("out of memory")
	err := error(&ResourceAllocationError{Kind: "maxout", Input: layerconfig.Make(4), Output: layerconfig.Make(2),
		Requested: 128, Cause: cause})
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, ErrResourceAllocation))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrConfigurationMismatch))
	assert.Contains(t, err.Error(), "maxout")
	assert.Contains(t, err.Error(), "fm=4")

	wrapped := errors.WithMessage(&UnsupportedTypeError{ID: halvingID}, "layer \"conv1\"")
	assert.True(t, errors.Is(wrapped, ErrUnsupportedType))
	assert.False(t, IsRetryable(wrapped))
}
