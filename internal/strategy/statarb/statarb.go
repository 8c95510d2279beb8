// Package statarb implements the cointegration-style pair-arbitrage
// reference strategy (spec §4.10): a rolling hedge ratio and spread
// Z-score drive entries and exits across two legs. Per the spec's
// REDESIGN FLAG, pair membership and both legs' symbols are parameters
// of Config, never derived from a stub lookup.
package statarb

import (
	"context"
	"math"

	"execore/internal/numerics"
	"execore/internal/schema"
	"execore/internal/strategy"
)

// Config parameterizes one pair.
type Config struct {
	SymbolA, SymbolB schema.Symbol
	Venue            schema.Venue
	LookbackPeriod   int
	MinObservations  int
	CorrThreshold    float64
	EntryZ, ExitZ    float64
	StopLossZ        float64
	PositionSize     float64
	MaxPositionSize  float64
}

// posState is which side of the spread, if any, the strategy holds.
type posState uint8

const (
	flat posState = iota
	shortSpread
	longSpread
)

// Strategy trades the spread between two symbols.
type Strategy struct {
	*strategy.Base
	cfg Config

	pricesA, pricesB []float64
	latestA, latestB float64
	haveA, haveB     bool

	spreadWindow []float64
	lastBeta     float64
	lastCorr     float64
	lastZ        float64

	state           posState
	legAID, legBID  schema.OrderID
	legAVol, legBVol float64
}

// New constructs a pair-arbitrage strategy over cfg, wired to core.
func New(name string, core strategy.ExecutionHandle, cfg Config) *Strategy {
	s := &Strategy{cfg: cfg}
	s.Base = strategy.NewBase(name, core, []strategy.SymbolVenue{
		{Symbol: cfg.SymbolA, Venue: cfg.Venue},
		{Symbol: cfg.SymbolB, Venue: cfg.Venue},
	}, s)
	return s
}

func (s *Strategy) OnInitialize() error {
	s.pricesA, s.pricesB, s.spreadWindow = nil, nil, nil
	s.haveA, s.haveB = false, false
	s.state = flat
	return nil
}

func (s *Strategy) OnStart() error { return nil }
func (s *Strategy) OnStop() error  { return nil }

func (s *Strategy) OnOrderUpdate(schema.OrderUpdate) {}

func (s *Strategy) OnTradeUpdate(schema.TradeUpdate) {}

func (s *Strategy) OnMarketData(md schema.MarketData) {
	switch md.Symbol {
	case s.cfg.SymbolA:
		s.latestA, s.haveA = md.LastPrice, true
	case s.cfg.SymbolB:
		s.latestB, s.haveB = md.LastPrice, true
	default:
		return
	}
	if !s.haveA || !s.haveB {
		return
	}

	s.pricesA = appendCapped(s.pricesA, s.latestA, s.cfg.LookbackPeriod+1)
	s.pricesB = appendCapped(s.pricesB, s.latestB, s.cfg.LookbackPeriod+1)
	if len(s.pricesA) < 3 {
		return
	}

	retA := numerics.LogReturns(s.pricesA)
	retB := numerics.LogReturns(s.pricesB)
	beta := numerics.OLSBeta(retB, retA)
	corr := numerics.Correlation(retA, retB)
	s.lastBeta, s.lastCorr = beta, corr

	spread := s.latestA - beta*s.latestB
	s.spreadWindow = appendCapped(s.spreadWindow, spread, s.cfg.LookbackPeriod)

	s.evaluate(spread, beta, corr)
}

// evaluate computes Z from spread against the current rolling window and
// drives entry/exit. Exposed at package scope (not just via
// OnMarketData) so tests can exercise it directly with a pre-seeded
// window, matching the spec's "inject spread=X" scenario phrasing.
func (s *Strategy) evaluate(spread, beta, corr float64) {
	observations := len(s.spreadWindow)
	mu := numerics.Mean(s.spreadWindow)
	sigma := numerics.StdDev(s.spreadWindow)
	if sigma == 0 {
		return
	}
	z := (spread - mu) / sigma
	s.lastZ = z

	tradable := math.Abs(corr) >= s.cfg.CorrThreshold && observations >= s.cfg.MinObservations

	switch s.state {
	case flat:
		if !tradable {
			return
		}
		if z > s.cfg.EntryZ {
			s.enter(shortSpread, beta, sigma)
		} else if z < -s.cfg.EntryZ {
			s.enter(longSpread, beta, sigma)
		}
	case shortSpread, longSpread:
		if math.Abs(z) > s.cfg.StopLossZ {
			s.exit()
			return
		}
		if (s.state == shortSpread && z <= s.cfg.ExitZ) || (s.state == longSpread && z >= -s.cfg.ExitZ) {
			s.exit()
		}
	}
}

func (s *Strategy) enter(target posState, beta, sigma float64) {
	legA := s.cfg.PositionSize / sigma
	if legA > s.cfg.MaxPositionSize {
		legA = s.cfg.MaxPositionSize
	}
	if legA < 0 {
		legA = 0
	}
	if legA == 0 {
		return
	}
	legB := legA * math.Abs(beta)

	var sideA, sideB schema.Side
	if target == shortSpread {
		sideA, sideB = schema.Sell, schema.Buy // sell A, buy β·qty of B
	} else {
		sideA, sideB = schema.Buy, schema.Sell // long spread: buy A, sell β·qty of B
	}

	idA, errA := s.SubmitOrder(context.Background(), schema.Order{Symbol: s.cfg.SymbolA, Side: sideA, Type: schema.Market, Volume: legA}, s.cfg.Venue)
	idB, errB := s.SubmitOrder(context.Background(), schema.Order{Symbol: s.cfg.SymbolB, Side: sideB, Type: schema.Market, Volume: legB}, s.cfg.Venue)
	if errA != nil || errB != nil {
		return
	}

	s.state = target
	s.legAID, s.legBID = idA, idB
	s.legAVol, s.legBVol = legA, legB
}

func (s *Strategy) exit() {
	if s.state == flat {
		return
	}
	var sideA, sideB schema.Side
	if s.state == shortSpread {
		sideA, sideB = schema.Buy, schema.Sell // unwind: buy back A, sell B
	} else {
		sideA, sideB = schema.Sell, schema.Buy
	}
	_, _ = s.SubmitOrder(context.Background(), schema.Order{Symbol: s.cfg.SymbolA, Side: sideA, Type: schema.Market, Volume: s.legAVol}, s.cfg.Venue)
	_, _ = s.SubmitOrder(context.Background(), schema.Order{Symbol: s.cfg.SymbolB, Side: sideB, Type: schema.Market, Volume: s.legBVol}, s.cfg.Venue)
	s.state = flat
	s.legAVol, s.legBVol = 0, 0
}

func appendCapped(series []float64, v float64, cap int) []float64 {
	series = append(series, v)
	if len(series) > cap {
		series = series[len(series)-cap:]
	}
	return series
}
