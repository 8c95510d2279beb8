package bus

import (
	"sync"
	"sync/atomic"

	"execore/internal/obs"
	"execore/internal/schema"
)

// Handler receives one dispatched event. A handler that panics is caught
// and logged; it never brings down the dispatcher or affects sibling
// handlers for the same event.
type Handler func(schema.Event)

// SubscriptionID is an opaque token returned by Subscribe. It carries no
// meaning beyond identifying one registration for a later Unsubscribe call
// — callers must not compare it against handler identity or derive
// anything from its value.
type SubscriptionID uint64

// DropReason explains why Publish rejected an event.
type DropReason uint8

const (
	dropNone DropReason = iota
	// NotRunning means the dispatcher has not been Start()-ed, or Stop()
	// has already been called.
	NotRunning
	// BufferFull means the ring had no free slot.
	BufferFull
)

func (r DropReason) String() string {
	switch r {
	case NotRunning:
		return "NotRunning"
	case BufferFull:
		return "BufferFull"
	default:
		return "None"
	}
}

// PublishResult is the outcome of one Publish call.
type PublishResult struct {
	Accepted bool
	Reason   DropReason
}

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// Dispatcher owns a Ring and fans popped events out to subscribers
// registered per schema.EventType (spec §4.2). The producer side
// (Publish) is expected to be called from a single serialized caller (the
// Execution Core); the consumer runs on its own goroutine started by
// Start.
type Dispatcher struct {
	ring *Ring

	mu      sync.RWMutex
	subs    map[schema.EventType][]subscriber
	nextSub uint64

	running atomic.Bool
	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}

	metrics *obs.Metrics
	log     *obs.Logger
}

// NewDispatcher allocates a dispatcher over a ring of the given capacity.
func NewDispatcher(capacity int, metrics *obs.Metrics, log *obs.Logger) *Dispatcher {
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	if log == nil {
		log = obs.NewLogger("dispatcher")
	}
	return &Dispatcher{
		ring:    NewRing(capacity),
		subs:    make(map[schema.EventType][]subscriber),
		metrics: metrics,
		log:     log,
	}
}

// Start launches the consumer goroutine. Idempotent: calling Start on an
// already-running dispatcher is a no-op.
func (d *Dispatcher) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.notify = make(chan struct{}, 1)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.consumeLoop()
}

// Stop signals the consumer to drain in-flight work and exit, then blocks
// until it has joined. Idempotent: calling Stop twice, or before Start, is
// a no-op.
func (d *Dispatcher) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stop)
	<-d.done
}

// Publish enqueues an event for dispatch. Non-blocking: it never waits for
// a subscriber, only for the ring's atomic cursors.
func (d *Dispatcher) Publish(e schema.Event) PublishResult {
	if !d.running.Load() {
		return PublishResult{Reason: NotRunning}
	}
	if !d.ring.Push(e) {
		d.metrics.IncQueueDrop()
		d.log.Warnf("dropping %s event: ring buffer full", e.Type)
		return PublishResult{Reason: BufferFull}
	}
	select {
	case d.notify <- struct{}{}:
	default:
	}
	return PublishResult{Accepted: true}
}

// Subscribe registers handler to receive every event of type t, in
// registration order relative to other subscribers of the same type.
// Subscriptions added while the consumer is mid-dispatch take effect on
// the next popped event, never the one currently being fanned out.
func (d *Dispatcher) Subscribe(t schema.EventType, handler Handler) SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSub++
	id := SubscriptionID(d.nextSub)
	d.subs[t] = append(d.subs[t], subscriber{id: id, handler: handler})
	return id
}

// Unsubscribe removes a prior subscription. Unsubscribing an unknown or
// already-removed id is a no-op.
func (d *Dispatcher) Unsubscribe(id SubscriptionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t, list := range d.subs {
		for i, s := range list {
			if s.id == id {
				d.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (d *Dispatcher) consumeLoop() {
	defer close(d.done)
	for {
		d.drainAll()
		select {
		case <-d.stop:
			d.drainAll()
			return
		case <-d.notify:
		}
	}
}

func (d *Dispatcher) drainAll() {
	for {
		e, ok := d.ring.Pop()
		if !ok {
			return
		}
		start := e.Timestamp
		d.dispatch(e)
		d.metrics.ObserveEvent(e.Type, start)
	}
}

func (d *Dispatcher) dispatch(e schema.Event) {
	d.mu.RLock()
	list := d.subs[e.Type]
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)
	d.mu.RUnlock()

	for _, s := range snapshot {
		d.invoke(s, e)
	}
}

func (d *Dispatcher) invoke(s subscriber, e schema.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("subscriber %d panicked on %s event: %v", s.id, e.Type, r)
		}
	}()
	s.handler(e)
}

// Size reports the number of events currently buffered. Diagnostic only.
func (d *Dispatcher) Size() int { return d.ring.Size() }

// Capacity reports the ring's usable capacity.
func (d *Dispatcher) Capacity() int { return d.ring.Capacity() }
