package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execore/internal/errorsx"
	"execore/internal/risk"
	"execore/internal/schema"
	"execore/internal/venue"
)

func newTestRouter(t *testing.T) (*Router, *venue.SimulatedAdapter) {
	t.Helper()
	engine := risk.NewEngine(schema.RiskLimits{MaxOrderNotional: 1_000_000}, 100_000, nil, nil)
	r := New(engine, nil)
	adapter := venue.NewSimulatedAdapter("SIM", nil)
	adapter.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, BestBid: 99, BestAsk: 101})
	r.RegisterVenue("SIM", adapter)
	return r, adapter
}

func TestSubmitAdmitsAndRecordsOrder(t *testing.T) {
	r, _ := newTestRouter(t)
	id, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Market, Volume: 1}, "SIM", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	active := r.ActiveOrders(nil)
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].OrderID)
}

func TestSubmitUnknownVenueErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	_, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Volume: 1}, "NOPE", 100)
	assert.ErrorIs(t, err, errorsx.ErrUnknownVenue)
}

func TestSubmitRiskRejectionNeverRecordsOrder(t *testing.T) {
	engine := risk.NewEngine(schema.RiskLimits{MaxOrderNotional: 1}, 100_000, nil, nil)
	r := New(engine, nil)
	adapter := venue.NewSimulatedAdapter("SIM", nil)
	adapter.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, BestBid: 99, BestAsk: 101})
	r.RegisterVenue("SIM", adapter)

	_, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Market, Volume: 10}, "SIM", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(risk.ReasonOrderNotional))
	assert.Empty(t, r.ActiveOrders(nil))
}

func TestCancelRemovesFromActiveIndex(t *testing.T) {
	r, _ := newTestRouter(t)
	id, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Limit, Price: 50, Volume: 1}, "SIM", 100)
	require.NoError(t, err)
	require.Len(t, r.ActiveOrders(nil), 1)

	require.NoError(t, r.Cancel(context.Background(), id))
	assert.Empty(t, r.ActiveOrders(nil))
}

func TestOnOrderUpdateRemovesTerminalOrderBeforeRedispatch(t *testing.T) {
	r, _ := newTestRouter(t)
	id, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Limit, Price: 50, Volume: 1}, "SIM", 100)
	require.NoError(t, err)

	r.OnOrderUpdate(schema.OrderUpdate{OrderID: id, Status: schema.Filled})
	assert.Empty(t, r.ActiveOrders(nil))

	// A non-terminal update for an unrelated id must be a no-op, not a
	// panic or spurious insertion.
	r.OnOrderUpdate(schema.OrderUpdate{OrderID: "other", Status: schema.Partial})
}

func TestActiveOrdersFiltersByVenue(t *testing.T) {
	r, _ := newTestRouter(t)
	second := venue.NewSimulatedAdapter("SIM2", nil)
	second.PushTick(schema.MarketData{Symbol: "ETH-USD", LastPrice: 10, BestBid: 9, BestAsk: 11})
	r.RegisterVenue("SIM2", second)

	_, err := r.Submit(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Limit, Price: 50, Volume: 1}, "SIM", 100)
	require.NoError(t, err)
	_, err = r.Submit(context.Background(), schema.Order{Symbol: "ETH-USD", Side: schema.Buy, Type: schema.Limit, Price: 5, Volume: 1}, "SIM2", 10)
	require.NoError(t, err)

	venueName := schema.Venue("SIM2")
	filtered := r.ActiveOrders(&venueName)
	require.Len(t, filtered, 1)
	assert.Equal(t, schema.Venue("SIM2"), filtered[0].Venue)
}
