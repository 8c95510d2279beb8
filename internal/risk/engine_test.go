package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execore/internal/schema"
)

func TestAdmitHappyPath(t *testing.T) {
	e := NewEngine(schema.RiskLimits{
		MaxOrderNotional:    10_000,
		MaxPositionNotional: 50_000,
		MaxLeverage:         5,
		MaxDrawdown:         0.5,
		MaxDailyLoss:        5_000,
	}, 100_000, nil, nil)

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 1}, 1000)
	assert.True(t, decision.Admitted)
	assert.Equal(t, ReasonNone, decision.Reason)
}

func TestAdmitRejectsOrderNotional(t *testing.T) {
	e := NewEngine(schema.RiskLimits{MaxOrderNotional: 1_000}, 100_000, nil, nil)

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 10}, 1000)
	require.False(t, decision.Admitted)
	assert.Equal(t, ReasonOrderNotional, decision.Reason)
}

func TestAdmitRespectsCheckOrdering(t *testing.T) {
	// Both the order-notional and symbol-volume-cap checks would fail;
	// order-notional (check 1) must be reported, not the cap (check 2).
	e := NewEngine(schema.RiskLimits{
		MaxOrderNotional:   1_000,
		PerSymbolVolumeCap: map[schema.Symbol]float64{"BTC-USD": 1},
	}, 100_000, nil, nil)

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 10}, 1000)
	require.False(t, decision.Admitted)
	assert.Equal(t, ReasonOrderNotional, decision.Reason)
}

func TestAdmitRejectsSymbolVolumeCapAcrossCalls(t *testing.T) {
	e := NewEngine(schema.RiskLimits{
		MaxOrderNotional:   1_000_000,
		PerSymbolVolumeCap: map[schema.Symbol]float64{"BTC-USD": 5},
	}, 100_000, nil, nil)

	first := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 3}, 100)
	require.True(t, first.Admitted)

	second := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 3}, 100)
	assert.False(t, second.Admitted)
	assert.Equal(t, ReasonSymbolVolumeCap, second.Reason)
}

func TestAdmitRejectsPositionNotional(t *testing.T) {
	e := NewEngine(schema.RiskLimits{
		MaxOrderNotional:    1_000_000,
		MaxPositionNotional: 500,
	}, 100_000, nil, nil)

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Price: 100, Volume: 10}, 100)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonPositionNotional, decision.Reason)
}

func TestAdmitRejectsDrawdown(t *testing.T) {
	e := NewEngine(schema.RiskLimits{MaxOrderNotional: 1_000_000, MaxDrawdown: 0.1}, 100_000, nil, nil)
	e.OnEquityTick(100_000)
	e.OnEquityTick(85_000) // 15% drawdown from peak

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 1}, 100)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonDrawdown, decision.Reason)
}

func TestAdmitRejectsDailyLoss(t *testing.T) {
	e := NewEngine(schema.RiskLimits{MaxOrderNotional: 1_000_000, MaxDailyLoss: 1_000}, 100_000, nil, nil)
	e.ResetDaily(time.Now())
	e.OnEquityTick(98_000) // down 2,000 today

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 1}, 100)
	assert.False(t, decision.Admitted)
	assert.Equal(t, ReasonDailyLoss, decision.Reason)
}

func TestDisableAlwaysAdmitsButStillTracksFills(t *testing.T) {
	e := NewEngine(schema.RiskLimits{MaxOrderNotional: 1}, 100_000, nil, nil)
	e.Disable()

	decision := e.Admit(schema.Order{Symbol: "BTC-USD", Side: schema.Buy, Volume: 100}, 1000)
	assert.True(t, decision.Admitted)

	e.OnFill(schema.TradeUpdate{Symbol: "BTC-USD", Side: schema.Buy, Price: 1000, Volume: 100})
	pos := e.Position("BTC-USD")
	assert.Equal(t, 100.0, pos.Volume)
}

func TestResetDailyIsOncePerDay(t *testing.T) {
	e := NewEngine(schema.RiskLimits{}, 100_000, nil, nil)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	e.ResetDaily(now)
	e.OnEquityTick(90_000)
	e.ResetDaily(now.Add(time.Hour)) // same day, must not rebase
	assert.Equal(t, 100_000.0, e.dayOpenEquity)

	e.ResetDaily(now.Add(24 * time.Hour)) // next day
	assert.Equal(t, 90_000.0, e.dayOpenEquity)
}

func TestOnFillAccruesRealizedPnLOnReducingTrade(t *testing.T) {
	e := NewEngine(schema.RiskLimits{}, 100_000, nil, nil)
	e.OnFill(schema.TradeUpdate{Symbol: "BTC-USD", Side: schema.Buy, Price: 100, Volume: 10})
	e.OnFill(schema.TradeUpdate{Symbol: "BTC-USD", Side: schema.Sell, Price: 110, Volume: 4})

	pos := e.Position("BTC-USD")
	assert.Equal(t, 6.0, pos.Volume)
	assert.Equal(t, 100.0, pos.AveragePrice)
	assert.Equal(t, 40.0, pos.RealizedPnL)
}
