package space_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/space"
)

func TestContinuousAllocate(t *testing.T) {
	c := space.NewContinuous(0.4, 2.2)

	require.Equal(t, []float64{}, c.Allocate(0))
	assert.InDelta(t, 1.3, c.Allocate(1)[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 2.2}, c.Allocate(2), 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 1.3, 2.2}, c.Allocate(3), 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 0.85, 1.3, 1.75, 2.2}, c.Allocate(5), 1e-9)
}

func TestContinuousUnlimitedUsesDefaultCount(t *testing.T) {
	c := space.NewContinuous(0.4, 2.2)
	assert.Len(t, c.Allocate(space.Unlimited), 5)
}

func TestSteppedAllocate(t *testing.T) {
	s := space.NewStepped(0.4, 2.2, 0.2)

	assert.InDeltaSlice(t, []float64{0.4, 0.6, 0.8, 1.0, 1.2, 1.4, 1.6, 1.8, 2.0, 2.2}, s.Allocate(space.Unlimited), 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 2.2}, s.Allocate(2), 1e-9)
	assert.InDeltaSlice(t, []float64{0.4, 1.2, 2.2}, s.Allocate(3), 1e-9)

	count, finite := s.Count()
	require.True(t, finite)
	assert.Equal(t, 10, count)
}

func TestSteppedOverAllocationSaturates(t *testing.T) {
	s := space.NewStepped(0.4, 2.2, 0.2)
	assert.Len(t, s.Allocate(100), 10)
}

func TestFixedAllocateIgnoresCount(t *testing.T) {
	f := space.NewFixed(5)
	want := []float64{0, 1, 2, 3, 4}
	for _, cnt := range []int{0, 1, 2, 5, 7, space.Unlimited} {
		assert.Equal(t, want, f.Allocate(cnt))
	}

	count, finite := f.Count()
	require.True(t, finite)
	assert.Equal(t, 5, count)
}
