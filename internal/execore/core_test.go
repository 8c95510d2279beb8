package execore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execore/internal/schema"
	"execore/internal/venue"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestCore(t *testing.T) (*Core, *venue.SimulatedAdapter) {
	t.Helper()
	core := New(64, schema.RiskLimits{MaxOrderNotional: 1_000_000}, 100_000)
	adapter := venue.NewSimulatedAdapter("SIM", nil)
	core.RegisterVenue("SIM", adapter)
	require.NoError(t, core.Start(context.Background()))
	t.Cleanup(core.Stop)
	return core, adapter
}

func TestSubscribeMarketDataRefcountsAdapterSubscription(t *testing.T) {
	core, adapter := newTestCore(t)
	ctx := context.Background()

	var calls1, calls2 int
	var mu sync.Mutex
	id1, err := core.SubscribeMarketData(ctx, "BTC-USD", "SIM", func(schema.MarketData) {
		mu.Lock()
		calls1++
		mu.Unlock()
	})
	require.NoError(t, err)
	id2, err := core.SubscribeMarketData(ctx, "BTC-USD", "SIM", func(schema.MarketData) {
		mu.Lock()
		calls2++
		mu.Unlock()
	})
	require.NoError(t, err)

	adapter.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, Timestamp: time.Now()})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls1 == 1 && calls2 == 1
	})

	require.NoError(t, core.UnsubscribeMarketData(ctx, id1))
	require.NoError(t, core.UnsubscribeMarketData(ctx, id2))
}

func TestMarketDataTickAlsoPublishesDispatcherEvent(t *testing.T) {
	core, adapter := newTestCore(t)
	ctx := context.Background()

	var got schema.MarketData
	var mu sync.Mutex
	core.Dispatcher().Subscribe(schema.MarketDataEvent, func(e schema.Event) {
		md, ok := e.MarketData()
		require.True(t, ok)
		mu.Lock()
		got = md
		mu.Unlock()
	})

	_, err := core.SubscribeMarketData(ctx, "ETH-USD", "SIM", func(schema.MarketData) {})
	require.NoError(t, err)
	adapter.PushTick(schema.MarketData{Symbol: "ETH-USD", LastPrice: 42, Timestamp: time.Now()})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got.Symbol == "ETH-USD"
	})
}

func TestSubmitOrderUsesLastMarketPriceForMarketOrders(t *testing.T) {
	core, adapter := newTestCore(t)
	ctx := context.Background()

	_, err := core.SubscribeMarketData(ctx, "BTC-USD", "SIM", func(schema.MarketData) {})
	require.NoError(t, err)
	adapter.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 200, BestBid: 199, BestAsk: 201, Timestamp: time.Now()})

	waitFor(t, time.Second, func() bool {
		// give the async market-data fan-out a moment to update lastPrice
		core.mdMu.Lock()
		defer core.mdMu.Unlock()
		_, ok := core.lastPrice["BTC-USD"]
		return ok
	})

	id, err := core.SubmitOrder(ctx, schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Market, Volume: 1}, "SIM")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestTradeUpdateAppliesToRiskBeforeRedispatch(t *testing.T) {
	core, adapter := newTestCore(t)
	ctx := context.Background()

	_, err := core.SubscribeMarketData(ctx, "BTC-USD", "SIM", func(schema.MarketData) {})
	require.NoError(t, err)
	adapter.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, BestBid: 99, BestAsk: 101, Timestamp: time.Now()})

	var sawPosition schema.Position
	var mu sync.Mutex
	core.Dispatcher().Subscribe(schema.TradeUpdateEvent, func(e schema.Event) {
		mu.Lock()
		sawPosition = core.Risk().Position("BTC-USD")
		mu.Unlock()
	})

	_, err = core.SubmitOrder(ctx, schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Market, Volume: 1}, "SIM")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sawPosition.Volume != 0
	})
	assert.Equal(t, 1.0, sawPosition.Volume, "risk.OnFill must run before the TradeUpdate is re-dispatched")
}

func TestSetRiskLimitsEnableDisable(t *testing.T) {
	core, _ := newTestCore(t)
	core.DisableRisk()
	core.SetRiskLimits(schema.RiskLimits{MaxOrderNotional: 1})

	decision := core.Risk().Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 1000}, 1000)
	assert.True(t, decision.Admitted, "disabled risk must always admit")

	core.EnableRisk()
	decision = core.Risk().Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 1000}, 1000)
	assert.False(t, decision.Admitted)
}

type stubStrategy struct {
	core                    *Core
	stopped                 bool
	dispatcherRunningAtStop bool
}

func (s *stubStrategy) Stop() error {
	s.stopped = true
	if s.core != nil {
		s.dispatcherRunningAtStop = s.core.Dispatcher().Publish(schema.Event{Type: schema.SystemEvent}).Accepted
	}
	return nil
}

type recordingAudit struct {
	mu         sync.Mutex
	submitted  int
	rejected   int
	lastReason string
}

func (a *recordingAudit) RecordOrderSubmitted(schema.Order, schema.Venue, schema.OrderID) {
	a.mu.Lock()
	a.submitted++
	a.mu.Unlock()
}

func (a *recordingAudit) RecordRiskRejection(_ schema.Order, _ schema.Venue, reason string) {
	a.mu.Lock()
	a.rejected++
	a.lastReason = reason
	a.mu.Unlock()
}

func TestSetAuditSinkRecordsAdmissionAndRejection(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()

	audit := &recordingAudit{}
	core.SetAuditSink(audit)

	_, err := core.SubmitOrder(ctx, schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Limit, Price: 100, Volume: 1}, "SIM")
	require.NoError(t, err)

	_, err = core.SubmitOrder(ctx, schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Limit, Price: 100, Volume: 1_000_000}, "SIM")
	require.Error(t, err)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	assert.Equal(t, 1, audit.submitted)
	assert.Equal(t, 1, audit.rejected)
	assert.NotEmpty(t, audit.lastReason)
}

func TestStopStopsStrategiesBeforeDispatcher(t *testing.T) {
	core := New(16, schema.RiskLimits{}, 100_000)
	adapter := venue.NewSimulatedAdapter("SIM", nil)
	core.RegisterVenue("SIM", adapter)
	require.NoError(t, core.Start(context.Background()))

	strat := &stubStrategy{core: core}
	core.RegisterStrategy(strat)

	core.Stop()
	assert.True(t, strat.stopped)
	assert.True(t, strat.dispatcherRunningAtStop, "strategies must be stopped while the dispatcher is still running")
}
