// Package chaos injects transport-level faults — dropped pushes, delayed
// delivery, duplicated callbacks — into a venue.Adapter's callback stream,
// generalized from the teacher's WAL fault-injection engine
// (internal/chaos/engine.go: drop/duplicate/reorder/delay applied to a
// fixed-size pending window) to the market-data/order/trade callbacks a
// live adapter fires, so router and strategy tests can exercise the
// reconnect-backoff and VenueFatal paths (spec §4.3/§7) without a real
// network.
package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"execore/internal/schema"
	"execore/internal/venue"
)

// Config controls which faults Adapter injects and how often.
type Config struct {
	Seed          int64
	DropRate      float64       // probability a callback is swallowed entirely
	DuplicateRate float64       // probability a delivered callback fires twice
	MaxDelay      time.Duration // upper bound on injected delivery delay
}

// Validate mirrors the teacher's Config.Validate: reject rates outside
// [0,1] and negative delays rather than silently clamping them.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("chaos: dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("chaos: duplicateRate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("chaos: maxDelay must be >= 0")
	}
	return nil
}

// Adapter wraps a venue.Adapter, injecting configured faults into the
// market-data/order/trade callback stream it registers with the core.
// Every other method call — SubmitOrder, CancelOrder, Balance, Positions —
// passes straight through to the wrapped adapter unmodified, since the
// spec scopes transport faults to the push/callback path, not the
// request/response path.
type Adapter struct {
	venue.Adapter

	mu  sync.Mutex
	rng *rand.Rand
	cfg Config

	fatalCb venue.FatalCallback
}

// Wrap constructs a chaos-injecting decorator over adapter. cfg is
// validated eagerly; an invalid cfg makes Wrap panic, since chaos
// configuration is always supplied by test code, never external input.
func Wrap(adapter venue.Adapter, cfg Config) *Adapter {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Adapter{Adapter: adapter, rng: rand.New(rand.NewSource(seed)), cfg: cfg}
}

// SetCallbacks registers chaos-wrapped callbacks with the underlying
// adapter; each delivery may be dropped, delayed, or duplicated per cfg.
func (a *Adapter) SetCallbacks(md venue.MarketDataCallback, order venue.OrderCallback, trade venue.TradeCallback) {
	a.Adapter.SetCallbacks(
		func(v schema.MarketData) { a.deliver(func() { md(v) }) },
		func(v schema.OrderUpdate) { a.deliver(func() { order(v) }) },
		func(v schema.TradeUpdate) { a.deliver(func() { trade(v) }) },
	)
}

// SetFatalCallback passes through unmodified — a fault that should trip
// VenueFatal is injected explicitly via InjectFatal, not randomly, so a
// test controls exactly when that one-shot path fires.
func (a *Adapter) SetFatalCallback(cb venue.FatalCallback) {
	a.mu.Lock()
	a.fatalCb = cb
	a.mu.Unlock()
	a.Adapter.SetFatalCallback(cb)
}

// InjectFatal fires the registered FatalCallback directly, standing in for
// an unrecoverable venue failure without requiring the wrapped adapter to
// support one natively.
func (a *Adapter) InjectFatal(reason string) {
	a.mu.Lock()
	cb := a.fatalCb
	a.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

func (a *Adapter) deliver(fire func()) {
	a.mu.Lock()
	drop := a.cfg.DropRate > 0 && a.rng.Float64() < a.cfg.DropRate
	duplicate := !drop && a.cfg.DuplicateRate > 0 && a.rng.Float64() < a.cfg.DuplicateRate
	delay := a.delay()
	a.mu.Unlock()

	if drop {
		return
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	fire()
	if duplicate {
		fire()
	}
}

// delay must be called with a.mu held.
func (a *Adapter) delay() time.Duration {
	if a.cfg.MaxDelay <= 0 {
		return 0
	}
	return time.Duration(a.rng.Int63n(int64(a.cfg.MaxDelay) + 1))
}

// Connect forwards to the wrapped adapter when it implements one (a real
// adapter would; *venue.SimulatedAdapter does not).
func (a *Adapter) Connect(ctx context.Context) error {
	if conn, ok := a.Adapter.(interface{ Connect(context.Context) error }); ok {
		return conn.Connect(ctx)
	}
	return nil
}

// Disconnect forwards to the wrapped adapter when it implements one.
func (a *Adapter) Disconnect() {
	if d, ok := a.Adapter.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
}

// Reconnect forwards to the wrapped adapter when it implements one.
func (a *Adapter) Reconnect(ctx context.Context) {
	if r, ok := a.Adapter.(interface {
		Reconnect(context.Context)
	}); ok {
		r.Reconnect(ctx)
	}
}

var _ venue.Adapter = (*Adapter)(nil)
