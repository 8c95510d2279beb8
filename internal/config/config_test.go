package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDecodesKnownDottedKeysIntoTypedConfig(t *testing.T) {
	cfg, err := Apply(map[string]any{
		"exchanges.SIM.rest_endpoint": "https://sim.example/api",
		"exchanges.SIM.ws_endpoint":   "wss://sim.example/ws",
		"exchanges.SIM.timeout_ms":    5000,
		"risk.max_order_notional":     1_000_000,
		"risk.max_daily_loss":         50_000,
		"strategies.trend1.symbols":   []string{"BTC-USD", "ETH-USD"},
		"strategies.trend1.venues":    []string{"SIM"},
		"dispatcher.buffer_size":      256,
	})
	require.NoError(t, err)

	require.Contains(t, cfg.Exchanges, "SIM")
	assert.Equal(t, "https://sim.example/api", cfg.Exchanges["SIM"].RESTEndpoint)
	assert.Equal(t, 5000, cfg.Exchanges["SIM"].TimeoutMS)
	assert.Equal(t, 1_000_000.0, cfg.Risk.MaxOrderNotional)
	require.Contains(t, cfg.Strategies, "trend1")
	assert.ElementsMatch(t, []string{"BTC-USD", "ETH-USD"}, cfg.Strategies["trend1"].Symbols)
	assert.Equal(t, 256, cfg.Dispatcher.BufferSize)
}

func TestApplyIgnoresUnknownTopLevelKeys(t *testing.T) {
	cfg, err := Apply(map[string]any{
		"totally.unrelated.key":  "value",
		"risk.max_order_notional": 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Risk.MaxOrderNotional)
}

func TestApplyFallsBackToDispatcherDefault(t *testing.T) {
	cfg, err := Apply(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Dispatcher.BufferSize)
}
