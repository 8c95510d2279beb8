// Package bus implements the SPSC ring buffer and event dispatcher that sit
// between venue adapters and strategy/risk subscribers (spec §4.1-§4.2).
package bus

import (
	"sync/atomic"

	"execore/internal/schema"
)

// Ring is a bounded, power-of-two-sized single-producer/single-consumer
// queue of schema.Event. One slot is always held back so that
// full <=> next(write) == read never collides with empty <=> read == write.
//
// push is called only from the Execution Core's serialized publish path;
// pop is called only from the dispatcher's consumer goroutine. No other
// synchronization is required between the two index cursors beyond the
// atomic release/acquire pair below.
type Ring struct {
	mask  uint64
	slots []schema.Event

	write atomic.Uint64
	read  atomic.Uint64
}

// NewRing allocates a ring with capacity slots, rounded up to the next
// power of two if capacity isn't already one. The usable capacity is one
// less than the slot count, so a configured power-of-two buffer_size
// (spec §6) maps directly to slots-1 usable entries instead of silently
// doubling.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(uint64(capacity))
	if size < 2 {
		size = 2 // at least one usable slot regardless of how small capacity is
	}
	return &Ring{
		mask:  size - 1,
		slots: make([]schema.Event, size),
	}
}

func nextPow2(v uint64) uint64 {
	n := uint64(1)
	for n < v {
		n <<= 1
	}
	return n
}

// Push attempts to enqueue an event, returning false if the ring is full.
// Never blocks, never allocates, never reorders.
func (r *Ring) Push(e schema.Event) bool {
	w := r.write.Load()
	next := w + 1
	if next-r.read.Load() > uint64(len(r.slots))-1 {
		return false
	}
	r.slots[w&r.mask] = e
	r.write.Store(next) // release: publishes the slot write above
	return true
}

// Pop dequeues the oldest event, returning ok=false if the ring is empty.
// The read index only advances after the slot has been copied out.
func (r *Ring) Pop() (schema.Event, bool) {
	rd := r.read.Load()
	if rd == r.write.Load() { // acquire: pairs with Push's release
		return schema.Event{}, false
	}
	e := r.slots[rd&r.mask]
	r.read.Store(rd + 1)
	return e, true
}

// IsFull reports whether the next Push would be rejected.
func (r *Ring) IsFull() bool {
	return r.write.Load()+1-r.read.Load() > uint64(len(r.slots))-1
}

// IsEmpty reports whether a Pop would currently return ok=false.
func (r *Ring) IsEmpty() bool {
	return r.read.Load() == r.write.Load()
}

// Size returns the number of events currently queued. O(1).
func (r *Ring) Size() int {
	return int(r.write.Load() - r.read.Load())
}

// Capacity returns the usable capacity (slot count minus the one slot held
// back to disambiguate full from empty).
func (r *Ring) Capacity() int {
	return len(r.slots) - 1
}
