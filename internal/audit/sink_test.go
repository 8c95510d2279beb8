package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"execore/internal/bus"
	"execore/internal/obs"
	"execore/internal/schema"
)

func TestNilSinkMethodsNeverPanic(t *testing.T) {
	var s *Sink
	assert.NotPanics(t, func() {
		s.RecordOrderSubmitted(schema.Order{Symbol: "BTC-USD"}, "SIM", "1")
		s.RecordRiskRejection(schema.Order{Symbol: "BTC-USD"}, "SIM", "MAX_ORDER_NOTIONAL")
		s.RecordOrderUpdate("SIM", schema.OrderUpdate{OrderID: "1"})
		s.RecordTradeUpdate("SIM", schema.TradeUpdate{Symbol: "BTC-USD"})
		s.RecordSystem(schema.SystemPayload{})
	})
}

func TestSinkWithNoClientNeverPanics(t *testing.T) {
	s := NewSink(nil)
	assert.NotPanics(t, func() {
		s.RecordOrderSubmitted(schema.Order{Symbol: "BTC-USD"}, "SIM", "1")
	})
}

func TestSubscribeRoutesDispatcherEventsIntoSink(t *testing.T) {
	s := NewSink(nil)
	metrics := obs.NewMetrics()
	d := bus.NewDispatcher(16, metrics, obs.NewLogger("test"))
	s.Subscribe(d)
	d.Start()
	t.Cleanup(d.Stop)

	// These exercise the subscribed handlers end-to-end; since the sink
	// has no backing client they degrade to no-ops rather than panics.
	assert.NotPanics(t, func() {
		d.Publish(schema.Event{
			Type:      schema.OrderUpdateEvent,
			Timestamp: time.Now(),
			Payload:   schema.OrderUpdate{OrderID: "1", Status: schema.Filled},
		})
		d.Publish(schema.Event{
			Type:      schema.TradeUpdateEvent,
			Timestamp: time.Now(),
			Payload:   schema.TradeUpdate{Symbol: "BTC-USD", Side: schema.Buy, Price: 100, Volume: 1},
		})
		d.Publish(schema.Event{
			Type:    schema.SystemEvent,
			Payload: schema.SystemPayload{Kind: schema.Degraded, Detail: "buffer high watermark"},
		})
	})
}
