// Package strategy implements the Strategy Lifecycle base (spec §4.7):
// the INITIALIZED -> RUNNING -> STOPPED state machine, subscription
// management against the Execution Core, local position bookkeeping,
// and the hook-exception -> ERROR + StrategyFaulted contract shared by
// every reference strategy.
package strategy

import (
	"context"
	"fmt"
	"sync"

	"execore/internal/bus"
	"execore/internal/errorsx"
	"execore/internal/execore"
	"execore/internal/obs"
	"execore/internal/schema"
)

// SymbolVenue is one (symbol, venue) pair a strategy subscribes to on
// start and unsubscribes from on stop.
type SymbolVenue struct {
	Symbol schema.Symbol
	Venue  schema.Venue
}

// Hooks is implemented by a concrete strategy. Base invokes these at the
// corresponding lifecycle transition or event arrival; a panic or
// returned error from any of them moves the strategy to Errored and
// publishes a StrategyFaulted SYSTEM event instead of propagating.
type Hooks interface {
	OnInitialize() error
	OnStart() error
	OnStop() error
	OnMarketData(schema.MarketData)
	OnOrderUpdate(schema.OrderUpdate)
	OnTradeUpdate(schema.TradeUpdate)
}

// ExecutionHandle is the subset of *execore.Core a strategy needs. It is
// satisfied structurally by *execore.Core; tests substitute a fake.
type ExecutionHandle interface {
	SubscribeMarketData(ctx context.Context, symbol schema.Symbol, venue schema.Venue, handler execore.MarketDataHandler) (execore.SubscriptionID, error)
	UnsubscribeMarketData(ctx context.Context, id execore.SubscriptionID) error
	SubmitOrder(ctx context.Context, order schema.Order, venue schema.Venue) (schema.OrderID, error)
	CancelOrder(ctx context.Context, id schema.OrderID) error
	OrderStatus(ctx context.Context, id schema.OrderID) (schema.OrderUpdate, error)
	Dispatcher() *bus.Dispatcher
	PublishStrategyFault(name, detail string)
}

// Base is the lifecycle, subscription, and position-bookkeeping
// machinery shared by every reference strategy. Concrete strategies
// embed *Base and implement Hooks.
type Base struct {
	name  string
	core  ExecutionHandle
	log   *obs.Logger
	hooks Hooks
	subs  []SymbolVenue

	mu    sync.Mutex
	state State

	mdSubIDs   []execore.SubscriptionID
	dispatchID []bus.SubscriptionID

	ordersMu     sync.Mutex
	activeOrders map[schema.OrderID]schema.Order
	orderVenue   map[schema.OrderID]schema.Venue

	positionsMu sync.Mutex
	positions   map[schema.Symbol]*schema.Position
}

// NewBase constructs a strategy base named name, trading the given
// (symbol, venue) pairs against core, delegating lifecycle hooks to
// hooks.
func NewBase(name string, core ExecutionHandle, subs []SymbolVenue, hooks Hooks) *Base {
	return &Base{
		name:         name,
		core:         core,
		log:          obs.NewLogger("strategy").With(name),
		hooks:        hooks,
		subs:         subs,
		state:        Created,
		activeOrders: make(map[schema.OrderID]schema.Order),
		orderVenue:   make(map[schema.OrderID]schema.Venue),
		positions:    make(map[schema.Symbol]*schema.Position),
	}
}

// Name returns the strategy's configured name.
func (b *Base) Name() string { return b.name }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Initialize transitions Created|Stopped -> Initialized, calling
// Hooks.OnInitialize.
func (b *Base) Initialize() error {
	b.mu.Lock()
	if b.state != Created && b.state != Stopped {
		b.mu.Unlock()
		return errorsx.Wrap(errorsx.ErrInvalidTransition, fmt.Sprintf("initialize from %s", b.state))
	}
	b.mu.Unlock()

	if err := b.runHook(b.hooks.OnInitialize); err != nil {
		return err
	}

	b.mu.Lock()
	b.state = Initialized
	b.mu.Unlock()
	return nil
}

// Start transitions Initialized -> Running: subscribes the configured
// (symbol, venue) set, subscribes to order/trade dispatcher events, then
// calls Hooks.OnStart. Only a Running strategy receives events, because
// these subscriptions exist only between Start and Stop.
func (b *Base) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Initialized {
		b.mu.Unlock()
		return errorsx.Wrap(errorsx.ErrInvalidTransition, fmt.Sprintf("start from %s", b.state))
	}
	b.mu.Unlock()

	for _, sv := range b.subs {
		id, err := b.core.SubscribeMarketData(ctx, sv.Symbol, sv.Venue, b.onMarketData)
		if err != nil {
			return err
		}
		b.mdSubIDs = append(b.mdSubIDs, id)
	}

	b.dispatchID = append(b.dispatchID,
		b.core.Dispatcher().Subscribe(schema.OrderUpdateEvent, b.dispatchOrderUpdate),
		b.core.Dispatcher().Subscribe(schema.TradeUpdateEvent, b.dispatchTradeUpdate),
	)

	if err := b.runHook(b.hooks.OnStart); err != nil {
		return err
	}

	b.mu.Lock()
	b.state = Running
	b.mu.Unlock()
	return nil
}

// Stop transitions Running -> Stopped: calls Hooks.OnStop, unsubscribes
// market data and dispatcher events, then cancels every order still
// locally tracked as active. Per spec §5, shutdown does not implicitly
// cancel in-flight orders — this method is that cancellation, invoked by
// the concrete strategy's own on_stop contract.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Running {
		b.mu.Unlock()
		return errorsx.Wrap(errorsx.ErrInvalidTransition, fmt.Sprintf("stop from %s", b.state))
	}
	b.mu.Unlock()

	hookErr := b.runHook(b.hooks.OnStop)

	for _, id := range b.mdSubIDs {
		_ = b.core.UnsubscribeMarketData(ctx, id)
	}
	b.mdSubIDs = nil
	for _, id := range b.dispatchID {
		b.core.Dispatcher().Unsubscribe(id)
	}
	b.dispatchID = nil

	b.ordersMu.Lock()
	toCancel := make(map[schema.OrderID]struct{}, len(b.activeOrders))
	for id := range b.activeOrders {
		toCancel[id] = struct{}{}
	}
	b.ordersMu.Unlock()
	for id := range toCancel {
		if err := b.core.CancelOrder(ctx, id); err != nil {
			b.log.Warnf("cancel on stop: order %s: %v", id, err)
		}
	}

	if hookErr != nil {
		return hookErr
	}

	b.mu.Lock()
	b.state = Stopped
	b.mu.Unlock()
	return nil
}

// Cleanup is callable from any terminal state (Stopped or Errored).
func (b *Base) Cleanup() error {
	b.mu.Lock()
	if b.state != Stopped && b.state != Errored {
		b.mu.Unlock()
		return errorsx.Wrap(errorsx.ErrInvalidTransition, fmt.Sprintf("cleanup from %s", b.state))
	}
	b.mu.Unlock()
	return nil
}

// runHook invokes fn, converting both panics and returned errors into a
// StrategyFaulted transition. It never lets a hook exception propagate
// to the caller as a panic.
func (b *Base) runHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			b.fault(err)
		}
	}()
	err = fn()
	return err
}

func (b *Base) fault(err error) {
	b.mu.Lock()
	b.state = Errored
	b.mu.Unlock()
	b.log.Errorf("strategy fault: %v", err)
	b.core.PublishStrategyFault(b.name, err.Error())
}

func (b *Base) onMarketData(md schema.MarketData) {
	if b.State() != Running {
		return
	}
	b.safeCall(func() { b.hooks.OnMarketData(md) })
}

func (b *Base) dispatchOrderUpdate(e schema.Event) {
	if b.State() != Running {
		return
	}
	u, ok := e.OrderUpdate()
	if !ok {
		return
	}
	b.ordersMu.Lock()
	_, tracked := b.activeOrders[u.OrderID]
	if tracked && u.Status.Terminal() {
		delete(b.activeOrders, u.OrderID)
		delete(b.orderVenue, u.OrderID)
	}
	b.ordersMu.Unlock()
	if !tracked {
		return
	}
	b.safeCall(func() { b.hooks.OnOrderUpdate(u) })
}

func (b *Base) dispatchTradeUpdate(e schema.Event) {
	if b.State() != Running {
		return
	}
	t, ok := e.TradeUpdate()
	if !ok {
		return
	}
	b.ordersMu.Lock()
	_, tracked := b.activeOrders[t.OrderID]
	b.ordersMu.Unlock()
	if !tracked {
		return
	}

	b.positionsMu.Lock()
	pos, ok := b.positions[t.Symbol]
	if !ok {
		pos = &schema.Position{Symbol: t.Symbol}
		b.positions[t.Symbol] = pos
	}
	pos.ApplyFill(t.Price, t.Side.Sign()*t.Volume)
	b.positionsMu.Unlock()

	b.safeCall(func() { b.hooks.OnTradeUpdate(t) })
}

// safeCall wraps a void hook call (market data / order / trade) in the
// same recover-to-fault discipline as runHook, since these run from the
// dispatcher's consumer goroutine and must never take it down.
func (b *Base) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.fault(fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// SubmitOrder submits order to venue and, on success, tracks it as a
// locally-active order for this strategy's own Stop-time cancellation
// and order/trade-update filtering.
func (b *Base) SubmitOrder(ctx context.Context, order schema.Order, venue schema.Venue) (schema.OrderID, error) {
	id, err := b.core.SubmitOrder(ctx, order, venue)
	if err != nil {
		return "", err
	}
	b.ordersMu.Lock()
	b.activeOrders[id] = order
	b.orderVenue[id] = venue
	b.ordersMu.Unlock()
	return id, nil
}

// CancelOrder cancels a locally-tracked order via the core.
func (b *Base) CancelOrder(ctx context.Context, id schema.OrderID) error {
	return b.core.CancelOrder(ctx, id)
}

// ActiveOrders returns a snapshot of orders this strategy has submitted
// and not yet seen a terminal update for.
func (b *Base) ActiveOrders() map[schema.OrderID]schema.Order {
	b.ordersMu.Lock()
	defer b.ordersMu.Unlock()
	out := make(map[schema.OrderID]schema.Order, len(b.activeOrders))
	for id, o := range b.activeOrders {
		out[id] = o
	}
	return out
}

// Positions returns a consistent snapshot copy of this strategy's local
// position bookkeeping.
func (b *Base) Positions() map[schema.Symbol]schema.Position {
	b.positionsMu.Lock()
	defer b.positionsMu.Unlock()
	out := make(map[schema.Symbol]schema.Position, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = *p
	}
	return out
}

// Position returns a snapshot copy of one symbol's local position.
func (b *Base) Position(symbol schema.Symbol) schema.Position {
	b.positionsMu.Lock()
	defer b.positionsMu.Unlock()
	if p, ok := b.positions[symbol]; ok {
		return *p
	}
	return schema.Position{Symbol: symbol}
}
