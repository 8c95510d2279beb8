// Package router implements the Order Router (spec §4.5): a venue
// registry plus the order_id -> (order, venue) and venue -> set<order_id>
// indices, gating every submission through the risk engine before it
// reaches an adapter.
package router

import (
	"context"
	"sync"

	"execore/internal/errorsx"
	"execore/internal/obs"
	"execore/internal/risk"
	"execore/internal/schema"
	"execore/internal/venue"
)

type activeOrder struct {
	order schema.Order
	venue schema.Venue
}

// AuditSink receives every admission decision the router makes. Nil is
// valid; Router never calls through a nil sink.
type AuditSink interface {
	RecordOrderSubmitted(order schema.Order, venue schema.Venue, id schema.OrderID)
	RecordRiskRejection(order schema.Order, venue schema.Venue, reason string)
}

// ActiveOrder is a snapshot of one order the router still considers live.
type ActiveOrder struct {
	OrderID schema.OrderID
	Order   schema.Order
	Venue   schema.Venue
}

// Router holds the venue registry and active-order indices described in
// spec §4.5.
type Router struct {
	mu sync.Mutex

	venues  map[schema.Venue]venue.Adapter
	orders  map[schema.OrderID]activeOrder
	byVenue map[schema.Venue]map[schema.OrderID]struct{}

	risk  *risk.Engine
	log   *obs.Logger
	audit AuditSink
}

// SetAuditSink wires an audit sink into the router's admission path.
func (r *Router) SetAuditSink(sink AuditSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = sink
}

// New constructs a router gating submissions through engine.
func New(engine *risk.Engine, log *obs.Logger) *Router {
	if log == nil {
		log = obs.NewLogger("router")
	}
	return &Router{
		venues:  make(map[schema.Venue]venue.Adapter),
		orders:  make(map[schema.OrderID]activeOrder),
		byVenue: make(map[schema.Venue]map[schema.OrderID]struct{}),
		risk:    engine,
		log:     log,
	}
}

// RegisterVenue adds or replaces the adapter for a venue name.
func (r *Router) RegisterVenue(name schema.Venue, adapter venue.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[name] = adapter
}

// UnregisterVenue removes a venue's adapter. Orders already recorded for
// that venue are left in the index; callers should reconcile them first
// (spec §4.3 recovery policy) if the venue is being torn down permanently.
func (r *Router) UnregisterVenue(name schema.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.venues, name)
}

// Submit computes the reference price (order.Price if set, else
// lastPrice), runs risk admission, and on acceptance forwards to the
// venue's adapter. The order is recorded in both indices only after the
// adapter call succeeds; a rejected or failed submission is never
// recorded.
func (r *Router) Submit(ctx context.Context, order schema.Order, venueName schema.Venue, lastPrice float64) (schema.OrderID, error) {
	r.mu.Lock()
	adapter, ok := r.venues[venueName]
	r.mu.Unlock()
	if !ok {
		return "", errorsx.ErrUnknownVenue
	}

	referencePrice := lastPrice
	if order.Price > 0 {
		referencePrice = order.Price
	}

	decision := r.risk.Admit(order, referencePrice)
	if !decision.Admitted {
		if r.audit != nil {
			r.audit.RecordRiskRejection(order, venueName, string(decision.Reason))
		}
		return "", risk.RejectedError(decision.Reason)
	}

	id, err := adapter.SubmitOrder(ctx, order)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.orders[id] = activeOrder{order: order, venue: venueName}
	if r.byVenue[venueName] == nil {
		r.byVenue[venueName] = make(map[schema.OrderID]struct{})
	}
	r.byVenue[venueName][id] = struct{}{}
	r.mu.Unlock()

	if r.audit != nil {
		r.audit.RecordOrderSubmitted(order, venueName, id)
	}

	return id, nil
}

// Cancel delegates to the order's venue adapter; on success the order is
// removed from the active indices.
func (r *Router) Cancel(ctx context.Context, id schema.OrderID) error {
	r.mu.Lock()
	entry, known := r.orders[id]
	var adapter venue.Adapter
	if known {
		adapter = r.venues[entry.venue]
	}
	r.mu.Unlock()

	if !known {
		return errorsx.ErrUnknownOrder
	}
	if adapter == nil {
		return errorsx.ErrUnknownVenue
	}

	if err := adapter.CancelOrder(ctx, id); err != nil {
		return err
	}

	r.removeOrder(id, entry.venue)
	return nil
}

// Status delegates to the order's venue adapter.
func (r *Router) Status(ctx context.Context, id schema.OrderID) (schema.OrderUpdate, error) {
	r.mu.Lock()
	entry, known := r.orders[id]
	var adapter venue.Adapter
	if known {
		adapter = r.venues[entry.venue]
	}
	r.mu.Unlock()

	if !known {
		return schema.OrderUpdate{}, errorsx.ErrUnknownOrder
	}
	if adapter == nil {
		return schema.OrderUpdate{}, errorsx.ErrUnknownVenue
	}
	return adapter.QueryOrderStatus(ctx, id)
}

// ActiveOrders returns a snapshot of orders the router still considers
// live, optionally filtered to one venue.
func (r *Router) ActiveOrders(venueFilter *schema.Venue) []ActiveOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ActiveOrder, 0, len(r.orders))
	for id, entry := range r.orders {
		if venueFilter != nil && entry.venue != *venueFilter {
			continue
		}
		out = append(out, ActiveOrder{OrderID: id, Order: entry.order, Venue: entry.venue})
	}
	return out
}

// OnOrderUpdate must be called by the Execution Core before re-dispatching
// an OrderUpdate to subscribers. When the update carries a terminal
// status, the order is removed from both indices first, so no subscriber
// ever observes a terminal update for an order the router still reports
// as active.
func (r *Router) OnOrderUpdate(update schema.OrderUpdate) {
	if !update.Status.Terminal() {
		return
	}
	r.mu.Lock()
	entry, ok := r.orders[update.OrderID]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.removeOrder(update.OrderID, entry.venue)
}

func (r *Router) removeOrder(id schema.OrderID, venueName schema.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	if set, ok := r.byVenue[venueName]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byVenue, venueName)
		}
	}
}
