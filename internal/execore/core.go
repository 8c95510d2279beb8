// Package execore implements the Execution Core (spec §4.6): it composes
// the event dispatcher, risk engine, and order router, and is the bridge
// between venue adapter callbacks and the event pipeline strategies
// consume.
package execore

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"execore/internal/bus"
	"execore/internal/errorsx"
	"execore/internal/obs"
	"execore/internal/risk"
	"execore/internal/router"
	"execore/internal/schema"
	"execore/internal/venue"
)

// MarketDataHandler receives one market data update for a subscribed
// (symbol, venue) pair.
type MarketDataHandler func(schema.MarketData)

// SubscriptionID identifies one Core.SubscribeMarketData registration.
type SubscriptionID uint64

// Stoppable is implemented by anything Core should stop, in registration
// order, before it stops the dispatcher. Strategies satisfy this.
type Stoppable interface {
	Stop() error
}

type mdKey struct {
	symbol schema.Symbol
	venue  schema.Venue
}

type mdSubscription struct {
	id      SubscriptionID
	handler MarketDataHandler
}

// Core is the Execution Core.
type Core struct {
	dispatcher *bus.Dispatcher
	risk       *risk.Engine
	router     *router.Router
	log        *obs.Logger

	// publishMu is the single lock serializing every adapter callback's
	// path from payload to dispatcher.Publish, per spec §4.6/§5.
	publishMu sync.Mutex

	mdMu       sync.Mutex
	adapters   map[schema.Venue]venue.Adapter
	mdRefs     map[mdKey]int
	mdSubs     map[mdKey][]mdSubscription
	mdSubByID  map[SubscriptionID]mdKey
	nextSubID  atomic.Uint64
	lastPrice  map[schema.Symbol]float64

	strategiesMu sync.Mutex
	strategies   []Stoppable
}

// New constructs an Execution Core over the given dispatcher capacity.
func New(ringCapacity int, limits schema.RiskLimits, startingEquity float64) *Core {
	log := obs.NewLogger("execore")
	metrics := obs.NewMetrics()
	riskEngine := risk.NewEngine(limits, startingEquity, metrics, log.With("risk"))

	c := &Core{
		dispatcher: bus.NewDispatcher(ringCapacity, metrics, log.With("dispatcher")),
		risk:       riskEngine,
		router:     router.New(riskEngine, log.With("router")),
		log:        log,
		adapters:   make(map[schema.Venue]venue.Adapter),
		mdRefs:     make(map[mdKey]int),
		mdSubs:     make(map[mdKey][]mdSubscription),
		mdSubByID:  make(map[SubscriptionID]mdKey),
		lastPrice:  make(map[schema.Symbol]float64),
	}
	return c
}

// RegisterVenue wires adapter's callbacks into the Core's event pipeline
// and makes it available to SubscribeMarketData/SubmitOrder by name.
func (c *Core) RegisterVenue(name schema.Venue, adapter venue.Adapter) {
	c.mdMu.Lock()
	c.adapters[name] = adapter
	c.mdMu.Unlock()

	c.router.RegisterVenue(name, adapter)
	adapter.SetCallbacks(
		func(md schema.MarketData) { c.onMarketData(name, md) },
		func(u schema.OrderUpdate) { c.onOrderUpdate(name, u) },
		func(t schema.TradeUpdate) { c.onTradeUpdate(name, t) },
	)
	adapter.SetFatalCallback(func(reason string) { c.onVenueFatal(name, reason) })
}

// RegisterStrategy adds s to the set Stop()-ed, in registration order,
// before the dispatcher is stopped.
func (c *Core) RegisterStrategy(s Stoppable) {
	c.strategiesMu.Lock()
	defer c.strategiesMu.Unlock()
	c.strategies = append(c.strategies, s)
}

// connectable adapters are dialed concurrently in Start; adapters that
// don't need an explicit connect step (e.g. SimulatedAdapter) simply don't
// implement it.
type connectable interface {
	Connect(ctx context.Context) error
}

// disconnectable adapters are torn down in Stop.
type disconnectable interface {
	Disconnect()
}

// Start connects every registered adapter (concurrently, via errgroup, so
// the first connect failure is returned and the rest are cancelled), then
// starts the dispatcher. Ordering per spec §4.6: adapters connect before
// the dispatcher starts.
func (c *Core) Start(ctx context.Context) error {
	c.mdMu.Lock()
	adapters := make([]venue.Adapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		adapters = append(adapters, a)
	}
	c.mdMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		a := a
		if conn, ok := a.(connectable); ok {
			g.Go(func() error { return conn.Connect(gctx) })
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.dispatcher.Start()
	return nil
}

// Stop stops registered strategies, then the dispatcher, then disconnects
// every adapter — the exact reverse of Start's ordering, per spec §4.6.
func (c *Core) Stop() {
	c.strategiesMu.Lock()
	strategies := make([]Stoppable, len(c.strategies))
	copy(strategies, c.strategies)
	c.strategiesMu.Unlock()

	var stopErr error
	for _, s := range strategies {
		stopErr = multierr.Append(stopErr, s.Stop())
	}
	if stopErr != nil {
		c.log.Errorf("strategy stop: %v", stopErr)
	}

	c.dispatcher.Stop()

	c.mdMu.Lock()
	adapters := make([]venue.Adapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		adapters = append(adapters, a)
	}
	c.mdMu.Unlock()
	for _, a := range adapters {
		if d, ok := a.(disconnectable); ok {
			d.Disconnect()
		}
	}
}

// Dispatcher exposes the underlying dispatcher so strategies/tests can
// subscribe to event types directly.
func (c *Core) Dispatcher() *bus.Dispatcher { return c.dispatcher }

// Risk exposes the risk engine.
func (c *Core) Risk() *risk.Engine { return c.risk }

func (c *Core) publish(e schema.Event) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.dispatcher.Publish(e)
}

func (c *Core) onMarketData(v schema.Venue, md schema.MarketData) {
	c.mdMu.Lock()
	c.lastPrice[md.Symbol] = md.Mid()
	key := mdKey{symbol: md.Symbol, venue: v}
	subs := append([]mdSubscription(nil), c.mdSubs[key]...)
	c.mdMu.Unlock()

	c.publish(schema.Event{Type: schema.MarketDataEvent, SourceVenue: v, Timestamp: md.Timestamp, Payload: md})

	for _, s := range subs {
		s.handler(md)
	}
}

func (c *Core) onOrderUpdate(v schema.Venue, u schema.OrderUpdate) {
	c.router.OnOrderUpdate(u)
	c.publish(schema.Event{Type: schema.OrderUpdateEvent, SourceVenue: v, Timestamp: u.Timestamp, Payload: u})
}

func (c *Core) onTradeUpdate(v schema.Venue, t schema.TradeUpdate) {
	c.risk.OnFill(t)
	c.publish(schema.Event{Type: schema.TradeUpdateEvent, SourceVenue: v, Timestamp: t.Timestamp, Payload: t})
}

func (c *Core) onVenueFatal(v schema.Venue, reason string) {
	c.log.Errorf("venue %s fatal: %s", v, reason)
	c.router.UnregisterVenue(v)
	c.publish(schema.Event{
		Type:        schema.SystemEvent,
		SourceVenue: v,
		Payload:     schema.SystemPayload{Kind: schema.VenueFatalKind, Venue: v, Detail: reason},
	})
}

// SubscribeMarketData registers handler for (symbol, venue). The adapter's
// own SubscribeMarketData is called only the first time this pair is
// demanded; subsequent subscribers reference-count onto the existing
// adapter subscription.
func (c *Core) SubscribeMarketData(ctx context.Context, symbol schema.Symbol, v schema.Venue, handler MarketDataHandler) (SubscriptionID, error) {
	c.mdMu.Lock()
	adapter, ok := c.adapters[v]
	if !ok {
		c.mdMu.Unlock()
		return 0, errorsx.ErrUnknownVenue
	}
	key := mdKey{symbol: symbol, venue: v}
	needsAdapterSub := c.mdRefs[key] == 0
	c.mdMu.Unlock()

	if needsAdapterSub {
		if err := adapter.SubscribeMarketData(ctx, symbol); err != nil {
			return 0, err
		}
	}

	id := SubscriptionID(c.nextSubID.Add(1))
	c.mdMu.Lock()
	c.mdRefs[key]++
	c.mdSubs[key] = append(c.mdSubs[key], mdSubscription{id: id, handler: handler})
	c.mdSubByID[id] = key
	c.mdMu.Unlock()
	return id, nil
}

// UnsubscribeMarketData removes one subscription. When the last
// subscriber for a (symbol, venue) pair is removed, the adapter's
// UnsubscribeMarketData is called.
func (c *Core) UnsubscribeMarketData(ctx context.Context, id SubscriptionID) error {
	c.mdMu.Lock()
	key, ok := c.mdSubByID[id]
	if !ok {
		c.mdMu.Unlock()
		return nil
	}
	delete(c.mdSubByID, id)
	list := c.mdSubs[key]
	for i, s := range list {
		if s.id == id {
			c.mdSubs[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	c.mdRefs[key]--
	lastOne := c.mdRefs[key] <= 0
	var adapter venue.Adapter
	if lastOne {
		delete(c.mdRefs, key)
		delete(c.mdSubs, key)
		adapter = c.adapters[key.venue]
	}
	c.mdMu.Unlock()

	if lastOne && adapter != nil {
		return adapter.UnsubscribeMarketData(ctx, key.symbol)
	}
	return nil
}

// SubmitOrder delegates to the router, supplying the last observed market
// price as the reference price when order.Price is unset (market orders).
func (c *Core) SubmitOrder(ctx context.Context, order schema.Order, v schema.Venue) (schema.OrderID, error) {
	c.mdMu.Lock()
	lastPrice := c.lastPrice[order.Symbol]
	c.mdMu.Unlock()
	return c.router.Submit(ctx, order, v, lastPrice)
}

// CancelOrder delegates to the router.
func (c *Core) CancelOrder(ctx context.Context, id schema.OrderID) error {
	return c.router.Cancel(ctx, id)
}

// OrderStatus delegates to the router.
func (c *Core) OrderStatus(ctx context.Context, id schema.OrderID) (schema.OrderUpdate, error) {
	return c.router.Status(ctx, id)
}

// SetRiskLimits replaces the active risk limits.
func (c *Core) SetRiskLimits(limits schema.RiskLimits) { c.risk.SetLimits(limits) }

// EnableRisk re-enables admission checks.
func (c *Core) EnableRisk() { c.risk.Enable() }

// DisableRisk makes every submission bypass admission checks.
func (c *Core) DisableRisk() { c.risk.Disable() }

// SetAuditSink wires an audit sink into the router's admission path.
func (c *Core) SetAuditSink(sink router.AuditSink) { c.router.SetAuditSink(sink) }

// PublishStrategyFault publishes a SYSTEM event of kind StrategyFaulted
// for the named strategy, through the Core's single serialized publish
// path — a strategy in fault never gets its own producer onto the ring.
func (c *Core) PublishStrategyFault(name, detail string) {
	c.publish(schema.Event{
		Type:    schema.SystemEvent,
		Payload: schema.SystemPayload{Kind: schema.StrategyFaulted, Subject: name, Detail: detail},
	})
}
