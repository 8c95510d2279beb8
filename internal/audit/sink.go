package audit

import (
	"time"

	"execore/internal/bus"
	"execore/internal/obs"
	"execore/internal/schema"
)

// AuditRecord is one row of the audit trail: a risk decision, an order
// lifecycle transition, or a fill.
type AuditRecord struct {
	ID          uint      `gorm:"primaryKey"`
	OccurredAt  time.Time `gorm:"index"`
	Kind        string    `gorm:"index"` // RISK_DECISION, ORDER_UPDATE, TRADE_UPDATE, SYSTEM
	Venue       string
	Symbol      string
	OrderID     string
	Side        string
	Price       float64
	Volume      float64
	Admitted    bool
	RiskReason  string
	Detail      string
}

// Sink writes execution-core events to the audit database. A nil Sink
// is valid and every method becomes a no-op, so wiring it into the
// router and execution core never requires a nil check at every call
// site.
type Sink struct {
	client *Client
	log    *obs.Logger
}

// NewSink wraps an already-open Client.
func NewSink(client *Client) *Sink {
	return &Sink{client: client, log: obs.NewLogger("audit")}
}

func (s *Sink) write(r AuditRecord) {
	if s == nil || s.client == nil || s.client.DB() == nil {
		return
	}
	if err := s.client.DB().Create(&r).Error; err != nil {
		s.log.Errorf("audit write failed: %v", err)
	}
}

// RecordOrderSubmitted logs a successfully-admitted and venue-accepted
// order.
func (s *Sink) RecordOrderSubmitted(order schema.Order, venue schema.Venue, id schema.OrderID) {
	s.write(AuditRecord{
		OccurredAt: time.Now(), Kind: "RISK_DECISION",
		Venue: string(venue), Symbol: string(order.Symbol), OrderID: string(id),
		Side: order.Side.String(), Price: order.Price, Volume: order.Volume,
		Admitted: true,
	})
}

// RecordRiskRejection logs a synchronous risk-gate rejection.
func (s *Sink) RecordRiskRejection(order schema.Order, venue schema.Venue, reason string) {
	s.write(AuditRecord{
		OccurredAt: time.Now(), Kind: "RISK_DECISION",
		Venue: string(venue), Symbol: string(order.Symbol),
		Side: order.Side.String(), Price: order.Price, Volume: order.Volume,
		Admitted: false, RiskReason: reason,
	})
}

// RecordOrderUpdate logs an order lifecycle transition.
func (s *Sink) RecordOrderUpdate(venue schema.Venue, u schema.OrderUpdate) {
	s.write(AuditRecord{
		OccurredAt: u.Timestamp, Kind: "ORDER_UPDATE",
		Venue: string(venue), OrderID: string(u.OrderID),
		Price: u.FilledPrice, Volume: u.FilledVolume, Detail: u.Message,
	})
}

// RecordTradeUpdate logs a fill.
func (s *Sink) RecordTradeUpdate(venue schema.Venue, t schema.TradeUpdate) {
	s.write(AuditRecord{
		OccurredAt: t.Timestamp, Kind: "TRADE_UPDATE",
		Venue: string(venue), Symbol: string(t.Symbol), OrderID: string(t.OrderID),
		Side: t.Side.String(), Price: t.Price, Volume: t.Volume,
	})
}

// RecordSystem logs a SYSTEM event (Degraded, StrategyFaulted, VenueFatal).
func (s *Sink) RecordSystem(p schema.SystemPayload) {
	s.write(AuditRecord{
		OccurredAt: time.Now(), Kind: "SYSTEM",
		Venue: string(p.Venue), Detail: p.Detail,
	})
}

// Subscribe attaches the sink to a dispatcher's ORDER_UPDATE,
// TRADE_UPDATE, and SYSTEM event types — the audit trail's equivalent
// of RISK_DECISION is instead fed directly by the router via
// RecordOrderSubmitted/RecordRiskRejection, since admission decisions
// are synchronous and never dispatched as events (spec §7).
func (s *Sink) Subscribe(d *bus.Dispatcher) {
	d.Subscribe(schema.OrderUpdateEvent, func(e schema.Event) {
		if u, ok := e.OrderUpdate(); ok {
			s.RecordOrderUpdate(e.SourceVenue, u)
		}
	})
	d.Subscribe(schema.TradeUpdateEvent, func(e schema.Event) {
		if t, ok := e.TradeUpdate(); ok {
			s.RecordTradeUpdate(e.SourceVenue, t)
		}
	})
	d.Subscribe(schema.SystemEvent, func(e schema.Event) {
		if p, ok := e.System(); ok {
			s.RecordSystem(p)
		}
	})
}
