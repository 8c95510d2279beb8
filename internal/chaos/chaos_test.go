package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execore/internal/schema"
	"execore/internal/venue"
)

func TestWrapWithZeroRatesDeliversEveryTick(t *testing.T) {
	sim := venue.NewSimulatedAdapter("SIM", nil)
	adapter := Wrap(sim, Config{Seed: 1})

	var n int
	adapter.SetCallbacks(func(schema.MarketData) { n++ }, nil, nil)
	require.NoError(t, adapter.SubscribeMarketData(context.Background(), "BTC-USD"))

	sim.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, Timestamp: time.Now()})
	assert.Equal(t, 1, n)
}

func TestWrapWithFullDropRateDeliversNothing(t *testing.T) {
	sim := venue.NewSimulatedAdapter("SIM", nil)
	adapter := Wrap(sim, Config{Seed: 2, DropRate: 1})

	var n int
	adapter.SetCallbacks(func(schema.MarketData) { n++ }, nil, nil)
	require.NoError(t, adapter.SubscribeMarketData(context.Background(), "BTC-USD"))

	for i := 0; i < 5; i++ {
		sim.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, Timestamp: time.Now()})
	}
	assert.Equal(t, 0, n)
}

func TestWrapWithFullDuplicateRateFiresTwice(t *testing.T) {
	sim := venue.NewSimulatedAdapter("SIM", nil)
	adapter := Wrap(sim, Config{Seed: 3, DuplicateRate: 1})

	var n int
	adapter.SetCallbacks(func(schema.MarketData) { n++ }, nil, nil)
	require.NoError(t, adapter.SubscribeMarketData(context.Background(), "BTC-USD"))

	sim.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, Timestamp: time.Now()})
	assert.Equal(t, 2, n)
}

func TestInjectFatalFiresRegisteredCallbackOnce(t *testing.T) {
	sim := venue.NewSimulatedAdapter("SIM", nil)
	adapter := Wrap(sim, Config{Seed: 4})

	var reasons []string
	adapter.SetFatalCallback(func(reason string) { reasons = append(reasons, reason) })
	adapter.InjectFatal("auth rejected")

	assert.Equal(t, []string{"auth rejected"}, reasons)
}

func TestDisconnectAndReconnectForwardToWrappedSimulatedAdapter(t *testing.T) {
	sim := venue.NewSimulatedAdapter("SIM", nil)
	adapter := Wrap(sim, Config{Seed: 5})

	var n int
	adapter.SetCallbacks(func(schema.MarketData) { n++ }, nil, nil)
	require.NoError(t, adapter.SubscribeMarketData(context.Background(), "BTC-USD"))
	sim.PushTick(schema.MarketData{Symbol: "BTC-USD", LastPrice: 100, Timestamp: time.Now()})
	require.Equal(t, 1, n)

	adapter.Disconnect()
	_, err := sim.SubmitOrder(context.Background(), schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Type: schema.Market, Volume: 1})
	require.Error(t, err, "disconnected adapter must reject new orders")

	adapter.Reconnect(context.Background())
	assert.Equal(t, 2, n, "reconnect must re-fire the last book for subscribed symbols")
}

func TestInvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		Wrap(venue.NewSimulatedAdapter("SIM", nil), Config{DropRate: 1.5})
	})
}
