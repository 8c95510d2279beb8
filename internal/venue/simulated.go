package venue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"execore/internal/errorsx"
	"execore/internal/obs"
	"execore/internal/schema"
)

// SimulatedAdapter fills orders against its own synthetic book instead of
// a real exchange. It accepts pushed ticks via PushTick and simulates
// transport loss with Disconnect/Reconnect: Reconnect restores the
// connection at once, without backoff, and replays the last book for every
// active subscription.
type SimulatedAdapter struct {
	venue schema.Venue
	log   *obs.Logger

	mu            sync.Mutex
	subscriptions map[schema.Symbol]struct{}
	book          map[schema.Symbol]schema.MarketData
	resting       map[schema.OrderID]*restingOrder
	updates       map[schema.OrderID]schema.OrderUpdate
	positions     map[schema.Symbol]*schema.Position
	balances      map[string]float64
	lastTs        map[schema.OrderID]time.Time

	nextID     atomic.Uint64
	connected  atomic.Bool
	fatalFired atomic.Bool

	mdCb    MarketDataCallback
	orderCb OrderCallback
	tradeCb TradeCallback
	fatalCb FatalCallback

	session *ReconnectSession
}

type restingOrder struct {
	id    schema.OrderID
	order schema.Order
}

// NewSimulatedAdapter constructs an adapter for the given venue name,
// starting with a copy of startingBalance and flat positions.
func NewSimulatedAdapter(v schema.Venue, startingBalance map[string]float64) *SimulatedAdapter {
	balances := make(map[string]float64, len(startingBalance))
	for k, val := range startingBalance {
		balances[k] = val
	}
	a := &SimulatedAdapter{
		venue:         v,
		log:           obs.NewLogger("venue.simulated").With(string(v)),
		subscriptions: make(map[schema.Symbol]struct{}),
		book:          make(map[schema.Symbol]schema.MarketData),
		resting:       make(map[schema.OrderID]*restingOrder),
		updates:       make(map[schema.OrderID]schema.OrderUpdate),
		positions:     make(map[schema.Symbol]*schema.Position),
		balances:      balances,
		lastTs:        make(map[schema.OrderID]time.Time),
	}
	a.connected.Store(true)
	return a
}

// Venue returns the adapter's venue name.
func (a *SimulatedAdapter) Venue() schema.Venue { return a.venue }

// SetCallbacks registers the market data/order/trade callbacks.
func (a *SimulatedAdapter) SetCallbacks(md MarketDataCallback, order OrderCallback, trade TradeCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mdCb, a.orderCb, a.tradeCb = md, order, trade
}

// SetFatalCallback registers the one-shot fatal notification.
func (a *SimulatedAdapter) SetFatalCallback(cb FatalCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fatalCb = cb
}

// SubscribeMarketData marks symbol as subscribed; PushTick will start
// firing the market data callback for it.
func (a *SimulatedAdapter) SubscribeMarketData(ctx context.Context, symbol schema.Symbol) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscriptions[symbol] = struct{}{}
	return nil
}

// UnsubscribeMarketData stops delivering market data callbacks for symbol.
func (a *SimulatedAdapter) UnsubscribeMarketData(ctx context.Context, symbol schema.Symbol) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subscriptions, symbol)
	return nil
}

// PushTick feeds one synthetic market data update into the adapter's book,
// firing the market data callback (if subscribed) and checking resting
// limit orders for a fill.
func (a *SimulatedAdapter) PushTick(md schema.MarketData) {
	a.mu.Lock()
	a.book[md.Symbol] = md
	_, subscribed := a.subscriptions[md.Symbol]
	cb := a.mdCb
	fills := a.matchRestingOrders(md)
	a.mu.Unlock()

	if subscribed && cb != nil {
		cb(md)
	}
	for _, f := range fills {
		a.emitFill(f.order, f.id, f.price, f.volume)
	}
}

type fillEvent struct {
	order  schema.Order
	id     schema.OrderID
	price  float64
	volume float64
}

// matchRestingOrders must be called with a.mu held; it removes and returns
// any resting orders crossed by the new book.
func (a *SimulatedAdapter) matchRestingOrders(md schema.MarketData) []fillEvent {
	var fills []fillEvent
	for id, ro := range a.resting {
		if ro.order.Symbol != md.Symbol {
			continue
		}
		crossed := false
		switch ro.order.Side {
		case schema.Buy:
			crossed = md.BestAsk > 0 && ro.order.Price >= md.BestAsk
		case schema.Sell:
			crossed = md.BestBid > 0 && ro.order.Price <= md.BestBid
		}
		if !crossed {
			continue
		}
		delete(a.resting, id)
		fills = append(fills, fillEvent{order: ro.order, id: id, price: ro.order.Price, volume: ro.order.Volume})
	}
	return fills
}

// SubmitOrder assigns an OrderID synchronously, then either fills a market
// order immediately or rests a limit order in the book.
func (a *SimulatedAdapter) SubmitOrder(ctx context.Context, order schema.Order) (schema.OrderID, error) {
	if order.Type.RequiresPrice() && order.Price <= 0 {
		return "", errorsx.ErrInvalidOrder
	}
	if order.Volume <= 0 {
		return "", errorsx.ErrInvalidOrder
	}

	id := schema.OrderID(fmt.Sprintf("%s-%d", a.venue, a.nextID.Add(1)))

	a.mu.Lock()
	if !a.connected.Load() {
		a.mu.Unlock()
		return "", errorsx.ErrTransport
	}
	switch order.Type {
	case schema.Market:
		md, ok := a.book[order.Symbol]
		if !ok {
			a.mu.Unlock()
			return "", errorsx.Wrap(errorsx.ErrTransport, "no market data for "+string(order.Symbol))
		}
		price := md.LastPrice
		if order.Side == schema.Buy && md.BestAsk > 0 {
			price = md.BestAsk
		} else if order.Side == schema.Sell && md.BestBid > 0 {
			price = md.BestBid
		}
		a.recordUpdate(id, schema.Pending)
		a.mu.Unlock()
		a.emitFill(order, id, price, order.Volume)
		return id, nil
	default:
		a.resting[id] = &restingOrder{id: id, order: order}
		a.recordUpdate(id, schema.Pending)
		a.mu.Unlock()
		return id, nil
	}
}

// recordUpdate must be called with a.mu held.
func (a *SimulatedAdapter) recordUpdate(id schema.OrderID, status schema.OrderStatus) {
	a.updates[id] = schema.OrderUpdate{OrderID: id, Status: status, Timestamp: a.nextTimestamp(id)}
}

// nextTimestamp must be called with a.mu held; it guarantees a strictly
// increasing timestamp per OrderID even across back-to-back calls within
// the same clock tick.
func (a *SimulatedAdapter) nextTimestamp(id schema.OrderID) time.Time {
	now := time.Now()
	if prev, ok := a.lastTs[id]; ok && !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	a.lastTs[id] = now
	return now
}

func (a *SimulatedAdapter) emitFill(order schema.Order, id schema.OrderID, price, volume float64) {
	a.mu.Lock()
	pos, ok := a.positions[order.Symbol]
	if !ok {
		pos = &schema.Position{Symbol: order.Symbol}
		a.positions[order.Symbol] = pos
	}
	pos.ApplyFill(price, order.Side.Sign()*volume)

	ts := a.nextTimestamp(id)
	update := schema.OrderUpdate{OrderID: id, Status: schema.Filled, FilledPrice: price, FilledVolume: volume, Timestamp: ts}
	a.updates[id] = update
	trade := schema.TradeUpdate{OrderID: id, Symbol: order.Symbol, Price: price, Volume: volume, Side: order.Side, Timestamp: ts}
	orderCb, tradeCb := a.orderCb, a.tradeCb
	a.mu.Unlock()

	if orderCb != nil {
		orderCb(update)
	}
	if tradeCb != nil {
		tradeCb(trade)
	}
}

// CancelOrder removes a resting order, if it is still live. Orders that
// have already filled, been cancelled, or were never known to the adapter
// are reported as ErrUnknownOrder.
func (a *SimulatedAdapter) CancelOrder(ctx context.Context, id schema.OrderID) error {
	a.mu.Lock()
	if _, live := a.resting[id]; !live {
		a.mu.Unlock()
		return errorsx.ErrUnknownOrder
	}
	delete(a.resting, id)
	ts := a.nextTimestamp(id)
	update := schema.OrderUpdate{OrderID: id, Status: schema.Cancelled, Timestamp: ts}
	a.updates[id] = update
	cb := a.orderCb
	a.mu.Unlock()

	if cb != nil {
		cb(update)
	}
	return nil
}

// QueryOrderStatus returns the last known update for id.
func (a *SimulatedAdapter) QueryOrderStatus(ctx context.Context, id schema.OrderID) (schema.OrderUpdate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	update, ok := a.updates[id]
	if !ok {
		return schema.OrderUpdate{}, errorsx.ErrUnknownOrder
	}
	return update, nil
}

// Balance returns a snapshot of simulated balances.
func (a *SimulatedAdapter) Balance(ctx context.Context) (map[string]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out, nil
}

// Positions returns a snapshot of simulated positions.
func (a *SimulatedAdapter) Positions(ctx context.Context) ([]schema.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out, nil
}

// Disconnect simulates a transport loss for testing reconnect behavior.
func (a *SimulatedAdapter) Disconnect() {
	a.connected.Store(false)
}

// Reconnect restores the connection and re-fires the market data callback
// for every currently subscribed symbol's last known book, standing in for
// a live adapter's resend of active subscriptions after a real reconnect.
func (a *SimulatedAdapter) Reconnect(ctx context.Context) {
	a.mu.Lock()
	a.connected.Store(true)
	type resend struct {
		md schema.MarketData
		ok bool
	}
	resends := make([]resend, 0, len(a.subscriptions))
	for sym := range a.subscriptions {
		md, ok := a.book[sym]
		resends = append(resends, resend{md: md, ok: ok})
	}
	cb := a.mdCb
	a.mu.Unlock()

	if cb == nil {
		return
	}
	for _, r := range resends {
		if r.ok {
			cb(r.md)
		}
	}
}

// Fatal fires the one-shot FatalCallback, simulating an unrecoverable auth
// failure.
func (a *SimulatedAdapter) Fatal(reason string) {
	if !a.fatalFired.CompareAndSwap(false, true) {
		return
	}
	a.connected.Store(false)
	a.mu.Lock()
	cb := a.fatalCb
	a.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}
