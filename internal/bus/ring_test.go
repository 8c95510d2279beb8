package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execore/internal/schema"
)

func TestRingCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := NewRing(5)
	assert.Equal(t, 7, r.Capacity())
}

func TestRingPushPopFIFO(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 4; i++ {
		ok := r.Push(schema.Event{Type: schema.MarketDataEvent, Payload: i})
		require.True(t, ok)
	}

	for i := 0; i < 4; i++ {
		e, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, i, e.Payload)
	}
	_, ok := r.Pop()
	assert.False(t, ok)
}

func TestRingFullRejectsPush(t *testing.T) {
	r := NewRing(1)
	require.Equal(t, 1, r.Capacity())
	require.True(t, r.Push(schema.Event{}))
	assert.True(t, r.IsFull())
	assert.False(t, r.Push(schema.Event{}), "push into a full ring must return false, not block")
}

func TestRingEmptyAfterDrain(t *testing.T) {
	r := NewRing(4)
	assert.True(t, r.IsEmpty())
	r.Push(schema.Event{})
	assert.False(t, r.IsEmpty())
	r.Pop()
	assert.True(t, r.IsEmpty())
}

func TestRingSizeTracksPushPop(t *testing.T) {
	r := NewRing(4)
	assert.Equal(t, 0, r.Size())
	r.Push(schema.Event{})
	r.Push(schema.Event{})
	assert.Equal(t, 2, r.Size())
	r.Pop()
	assert.Equal(t, 1, r.Size())
}
