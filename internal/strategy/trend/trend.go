// Package trend implements the trend-following reference strategy
// (spec §4.9): short/long SMA crossover entries, ATR-scaled position
// sizing, and a stop-loss/take-profit exit evaluated on every tick.
package trend

import (
	"context"

	"execore/internal/numerics"
	"execore/internal/schema"
	"execore/internal/strategy"
)

// Config parameterizes one trend-follower instance.
type Config struct {
	Symbol   schema.Symbol
	Venue    schema.Venue
	ShortPeriod, LongPeriod, ATRPeriod int
	PositionSize, ATRMultiplier        float64
	MaxPositionSize                    float64
	StopLossPct, TakeProfitPct         float64
}

// Strategy is a single-symbol moving-average-crossover trend follower.
type Strategy struct {
	*strategy.Base
	cfg Config

	prices []float64 // rolling window, length capped at LongPeriod

	position   float64 // signed size; 0 == flat
	entryPrice float64
	stopPrice  float64
	targetPrice float64

	prevShort, prevLong float64
	haveCross           bool
}

// New constructs a trend-following strategy over cfg, wired to core.
func New(name string, core strategy.ExecutionHandle, cfg Config) *Strategy {
	s := &Strategy{cfg: cfg}
	s.Base = strategy.NewBase(name, core, []strategy.SymbolVenue{{Symbol: cfg.Symbol, Venue: cfg.Venue}}, s)
	return s
}

func (s *Strategy) OnInitialize() error {
	s.prices = nil
	s.position = 0
	s.haveCross = false
	return nil
}

func (s *Strategy) OnStart() error { return nil }
func (s *Strategy) OnStop() error  { return nil }

func (s *Strategy) OnOrderUpdate(schema.OrderUpdate) {}

func (s *Strategy) OnTradeUpdate(t schema.TradeUpdate) {
	s.position += t.Side.Sign() * t.Volume
	if s.position == 0 {
		s.entryPrice, s.stopPrice, s.targetPrice = 0, 0, 0
	}
}

func (s *Strategy) OnMarketData(md schema.MarketData) {
	last := md.LastPrice
	if last <= 0 {
		return
	}
	s.prices = append(s.prices, last)
	if len(s.prices) > s.cfg.LongPeriod {
		s.prices = s.prices[len(s.prices)-s.cfg.LongPeriod:]
	}

	s.evaluateStopAndTarget(last)

	if len(s.prices) < s.cfg.LongPeriod {
		return
	}

	short := numerics.SMA(s.prices, s.cfg.ShortPeriod)
	long := numerics.SMA(s.prices, s.cfg.LongPeriod)

	if !s.haveCross {
		// Seed the previous pair equal so the first computable short/long
		// relationship is itself evaluated as a cross, instead of being
		// silently absorbed as "no prior state" and requiring a second
		// crossover before any order is ever submitted.
		s.prevShort, s.prevLong = long, long
		s.haveCross = true
	}

	bullish := s.prevShort <= s.prevLong && short > long
	bearish := s.prevShort >= s.prevLong && short < long
	if bullish {
		s.onBullishCross(last)
	} else if bearish {
		s.onBearishCross(last)
	}
	s.prevShort, s.prevLong = short, long
}

func (s *Strategy) sizeFromATR() float64 {
	atr := numerics.ATR(s.prices, s.cfg.ATRPeriod)
	if atr <= 0 {
		return 0
	}
	size := s.cfg.PositionSize * s.cfg.ATRMultiplier / atr
	if size < 0 {
		size = 0
	}
	if size > s.cfg.MaxPositionSize {
		size = s.cfg.MaxPositionSize
	}
	return size
}

func (s *Strategy) onBullishCross(price float64) {
	if s.position < 0 {
		s.submit(schema.Buy, price, -s.position) // close short
	}
	if s.position <= 0 {
		size := s.sizeFromATR()
		if size <= 0 {
			return
		}
		s.submit(schema.Buy, price, size)
		s.entryPrice = price
		s.stopPrice = price * (1 - s.cfg.StopLossPct)
		s.targetPrice = price * (1 + s.cfg.TakeProfitPct)
	}
}

func (s *Strategy) onBearishCross(price float64) {
	if s.position > 0 {
		s.submit(schema.Sell, price, s.position) // close long
	}
	if s.position >= 0 {
		size := s.sizeFromATR()
		if size <= 0 {
			return
		}
		s.submit(schema.Sell, price, size)
		s.entryPrice = price
		s.stopPrice = price * (1 + s.cfg.StopLossPct)
		s.targetPrice = price * (1 - s.cfg.TakeProfitPct)
	}
}

func (s *Strategy) evaluateStopAndTarget(lastPrice float64) {
	if s.position == 0 || s.entryPrice == 0 {
		return
	}
	if s.position > 0 {
		if lastPrice <= s.stopPrice || lastPrice >= s.targetPrice {
			s.submit(schema.Sell, lastPrice, s.position)
		}
		return
	}
	if lastPrice >= s.stopPrice || lastPrice <= s.targetPrice {
		s.submit(schema.Buy, lastPrice, -s.position)
	}
}

func (s *Strategy) submit(side schema.Side, refPrice, volume float64) {
	if volume <= 0 {
		return
	}
	_, _ = s.SubmitOrder(context.Background(), schema.Order{
		Symbol: s.cfg.Symbol, Side: side, Type: schema.Market, Volume: volume,
	}, s.cfg.Venue)
}
