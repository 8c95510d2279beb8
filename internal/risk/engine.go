// Package risk implements the pre-trade admission gate (spec §4.4): a
// stateful, thread-safe engine that tracks positions, equity, and drawdown,
// and gates every order through six ordered checks before it ever reaches a
// venue.
package risk

import (
	"sync"
	"time"

	"github.com/yanun0323/decimal"

	"execore/internal/errorsx"
	"execore/internal/obs"
	"execore/internal/schema"
)

// Decision is the outcome of Admit.
type Decision struct {
	Admitted bool
	Reason   Reason
}

// Reason enumerates the admission check that failed. Checks run in this
// order; the first failure is the reported reason.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonOrderNotional        Reason = "order_notional_exceeded"
	ReasonSymbolVolumeCap      Reason = "symbol_volume_cap_exceeded"
	ReasonPositionNotional     Reason = "position_notional_exceeded"
	ReasonLeverage             Reason = "leverage_exceeded"
	ReasonDrawdown             Reason = "drawdown_exceeded"
	ReasonDailyLoss            Reason = "daily_loss_exceeded"
)

// Engine is the risk engine. All mutation and every read used by Admit
// happen under mu, so admission is atomic with respect to concurrent
// fills and equity ticks.
type Engine struct {
	mu sync.Mutex

	limits    schema.RiskLimits
	positions map[schema.Symbol]*schema.Position
	volumeUse map[schema.Symbol]float64 // cumulative admitted volume per symbol, today

	equity        float64
	peakEquity    float64
	dayOpenEquity float64
	lastResetDay  int

	enabled bool
	log     *obs.Logger
	metrics *obs.Metrics
}

// NewEngine constructs a risk engine with the given limits and starting
// equity. The engine starts enabled.
func NewEngine(limits schema.RiskLimits, startingEquity float64, metrics *obs.Metrics, log *obs.Logger) *Engine {
	if log == nil {
		log = obs.NewLogger("risk")
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &Engine{
		limits:        limits,
		positions:     make(map[schema.Symbol]*schema.Position),
		volumeUse:     make(map[schema.Symbol]float64),
		equity:        startingEquity,
		peakEquity:    startingEquity,
		dayOpenEquity: startingEquity,
		enabled:       true,
		log:           log,
		metrics:       metrics,
	}
}

// Admit runs the six ordered admission checks against order at
// referencePrice. When the engine is disabled, Admit admits without
// running any check and without counting the order toward the
// per-symbol volume cap; fills and equity updates are still tracked.
func (e *Engine) Admit(order schema.Order, referencePrice float64) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return Decision{Admitted: true}
	}

	orderNotional := order.Notional(referencePrice)

	// 1. order notional
	if e.limits.MaxOrderNotional > 0 && orderNotional > e.limits.MaxOrderNotional {
		return e.reject(ReasonOrderNotional)
	}

	// 2. per-symbol volume cap
	if cap, ok := e.limits.PerSymbolVolumeCap[order.Symbol]; ok && cap > 0 {
		used := e.volumeUse[order.Symbol]
		if used+order.Volume > cap {
			return e.reject(ReasonSymbolVolumeCap)
		}
	}

	// 3. projected position notional
	projected := e.projectedPosition(order)
	if e.limits.MaxPositionNotional > 0 && projected.Notional(referencePrice) > e.limits.MaxPositionNotional {
		return e.reject(ReasonPositionNotional)
	}

	// 4. projected leverage
	if e.limits.MaxLeverage > 0 && e.equity > 0 {
		grossExposure := e.projectedGrossExposure(order, referencePrice)
		leverage, _ := decimal.NewFromFloat(grossExposure).Div(decimal.NewFromFloat(e.equity)).Float64()
		if leverage > e.limits.MaxLeverage {
			return e.reject(ReasonLeverage)
		}
	}

	// 5. drawdown
	if e.limits.MaxDrawdown > 0 && e.peakEquity > 0 {
		drawdown, _ := decimal.NewFromFloat(e.peakEquity).
			Sub(decimal.NewFromFloat(e.equity)).
			Div(decimal.NewFromFloat(e.peakEquity)).
			Float64()
		if drawdown > e.limits.MaxDrawdown {
			return e.reject(ReasonDrawdown)
		}
	}

	// 6. daily loss
	if e.limits.MaxDailyLoss > 0 {
		dayLoss, _ := decimal.NewFromFloat(e.dayOpenEquity).Sub(decimal.NewFromFloat(e.equity)).Float64()
		if dayLoss > e.limits.MaxDailyLoss {
			return e.reject(ReasonDailyLoss)
		}
	}

	e.volumeUse[order.Symbol] += order.Volume
	return Decision{Admitted: true}
}

func (e *Engine) reject(reason Reason) Decision {
	e.metrics.ObserveRiskReject(string(reason))
	e.log.Warnf("rejecting order: %s", reason)
	return Decision{Admitted: false, Reason: reason}
}

// projectedPosition returns what the symbol's position would be after the
// order fills completely at its own notional basis, without mutating
// state.
func (e *Engine) projectedPosition(order schema.Order) schema.Position {
	pos := schema.Position{Symbol: order.Symbol}
	if existing, ok := e.positions[order.Symbol]; ok {
		pos = *existing
	}
	pos.ApplyFill(order.Price, order.Side.Sign()*order.Volume)
	return pos
}

// projectedGrossExposure sums the absolute notional of every position
// after hypothetically applying order, using referencePrice for the
// order's own symbol and each position's own average price elsewhere
// (the risk engine only ever has one live reference price at admission
// time).
func (e *Engine) projectedGrossExposure(order schema.Order, referencePrice float64) float64 {
	var gross float64
	for symbol, pos := range e.positions {
		if symbol == order.Symbol {
			continue
		}
		gross += pos.Notional(pos.AveragePrice)
	}
	projected := e.projectedPosition(order)
	return gross + projected.Notional(referencePrice)
}

// OnFill applies a confirmed trade to the symbol's position and to
// realized PnL. Mark-to-market equity is updated separately via
// OnEquityTick.
func (e *Engine) OnFill(trade schema.TradeUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[trade.Symbol]
	if !ok {
		pos = &schema.Position{Symbol: trade.Symbol}
		e.positions[trade.Symbol] = pos
	}
	pos.ApplyFill(trade.Price, trade.Side.Sign()*trade.Volume)
	e.equity -= trade.Fee
}

// OnEquityTick updates equity to markToMarket and tracks the running peak
// for drawdown.
func (e *Engine) OnEquityTick(markToMarket float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.equity = markToMarket
	if e.equity > e.peakEquity {
		e.peakEquity = e.equity
	}
}

// ResetDaily snapshots the current equity as the day-open baseline.
// Callable at most once per calendar day; subsequent calls on the same
// day are no-ops.
func (e *Engine) ResetDaily(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	day := now.YearDay() + now.Year()*1000
	if day == e.lastResetDay {
		return
	}
	e.lastResetDay = day
	e.dayOpenEquity = e.equity
	e.volumeUse = make(map[schema.Symbol]float64)
}

// SetLimits replaces the active risk limits.
func (e *Engine) SetLimits(limits schema.RiskLimits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits = limits
}

// GetLimits returns a copy of the active risk limits.
func (e *Engine) GetLimits() schema.RiskLimits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// Enable turns admission checks back on.
func (e *Engine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
}

// Disable makes Admit always admit; position/PnL/equity tracking is
// unaffected.
func (e *Engine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
}

// Position returns a copy of the current position for symbol.
func (e *Engine) Position(symbol schema.Symbol) schema.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pos, ok := e.positions[symbol]; ok {
		return *pos
	}
	return schema.Position{Symbol: symbol}
}

// RejectedError wraps a rejection reason into the error taxonomy for
// callers (the router) that need an error return rather than a Decision.
func RejectedError(reason Reason) error {
	return errorsx.RiskRejected(errorsx.RejectReason(reason))
}
