// Package marketmaker implements the spread-quoting market-maker
// reference strategy (spec §4.8): a rolling mid-price window drives a
// volatility-scaled spread and an inventory skew, requoting on price
// drift, inventory crossing, or a full fill.
package marketmaker

import (
	"context"

	"execore/internal/numerics"
	"execore/internal/schema"
	"execore/internal/strategy"
)

// Config parameterizes one market-maker instance.
type Config struct {
	Symbol    schema.Symbol
	Venue     schema.Venue
	PriceQueueSize int
	BaseSpread     float64 // fraction of mid, e.g. 0.001
	MinSpread      float64
	MaxSpread      float64
	VolMultiplier  float64
	SkewFactor     float64
	InventoryLimit float64
	OrderSize      float64
}

// Strategy is a single-symbol market maker.
type Strategy struct {
	*strategy.Base
	cfg Config

	window []float64 // rolling mid prices, most recent last

	inventory float64

	lastQuoteMid       float64
	lastQuoteInventory float64
	bidID, askID       schema.OrderID
}

// New constructs a market-maker strategy over cfg, wired to core.
func New(name string, core strategy.ExecutionHandle, cfg Config) *Strategy {
	s := &Strategy{cfg: cfg}
	s.Base = strategy.NewBase(name, core, []strategy.SymbolVenue{{Symbol: cfg.Symbol, Venue: cfg.Venue}}, s)
	return s
}

func (s *Strategy) OnInitialize() error {
	s.window = nil
	s.inventory = 0
	return nil
}

func (s *Strategy) OnStart() error { return nil }

func (s *Strategy) OnStop() error { return nil }

func (s *Strategy) OnOrderUpdate(u schema.OrderUpdate) {
	if !u.Status.Terminal() {
		return
	}
	if u.OrderID == s.bidID || u.OrderID == s.askID {
		if u.Status == schema.Filled {
			s.requote(s.lastMid())
		}
		if u.OrderID == s.bidID {
			s.bidID = ""
		}
		if u.OrderID == s.askID {
			s.askID = ""
		}
	}
}

func (s *Strategy) OnTradeUpdate(t schema.TradeUpdate) {
	s.inventory += t.Side.Sign() * t.Volume
}

func (s *Strategy) lastMid() float64 {
	if len(s.window) == 0 {
		return 0
	}
	return s.window[len(s.window)-1]
}

func (s *Strategy) OnMarketData(md schema.MarketData) {
	mid := md.Mid()
	if mid <= 0 {
		return
	}
	s.window = append(s.window, mid)
	if len(s.window) > s.cfg.PriceQueueSize {
		s.window = s.window[len(s.window)-s.cfg.PriceQueueSize:]
	}
	if len(s.window) < s.cfg.PriceQueueSize {
		return
	}

	if s.shouldRequote(mid) {
		s.requote(mid)
	}
}

// volatility is the population stdev of the rolling mid-price window.
func (s *Strategy) volatility() float64 {
	return numerics.StdDev(s.window)
}

// targetSpread clamps base_spread + vol*vol_multiplier to [min,max].
func (s *Strategy) targetSpread() float64 {
	sigma := s.cfg.BaseSpread + s.volatility()*s.cfg.VolMultiplier
	if sigma < s.cfg.MinSpread {
		sigma = s.cfg.MinSpread
	}
	if sigma > s.cfg.MaxSpread {
		sigma = s.cfg.MaxSpread
	}
	return sigma
}

func (s *Strategy) shouldRequote(mid float64) bool {
	if s.lastQuoteMid == 0 {
		return true
	}
	sigma := s.targetSpread()
	priceDrift := absf(mid-s.lastQuoteMid) / mid
	if priceDrift >= sigma/4 {
		return true
	}
	inventoryDrift := absf(s.inventory - s.lastQuoteInventory)
	if s.cfg.InventoryLimit > 0 && inventoryDrift >= 0.25*s.cfg.InventoryLimit {
		return true
	}
	return false
}

func (s *Strategy) requote(mid float64) {
	if mid <= 0 {
		return
	}
	sigma := s.targetSpread()
	skew := s.inventory * s.cfg.SkewFactor

	bidPrice := mid * (1 - sigma/2 + skew)
	askPrice := mid * (1 + sigma/2 + skew)

	s.cancelResting()

	if absf(s.inventory+s.cfg.OrderSize) <= s.cfg.InventoryLimit {
		id, err := s.SubmitOrder(context.Background(), schema.Order{
			Symbol: s.cfg.Symbol, Side: schema.Buy, Type: schema.Limit,
			Price: bidPrice, Volume: s.cfg.OrderSize,
		}, s.cfg.Venue)
		if err == nil {
			s.bidID = id
		}
	}
	if absf(s.inventory-s.cfg.OrderSize) <= s.cfg.InventoryLimit {
		id, err := s.SubmitOrder(context.Background(), schema.Order{
			Symbol: s.cfg.Symbol, Side: schema.Sell, Type: schema.Limit,
			Price: askPrice, Volume: s.cfg.OrderSize,
		}, s.cfg.Venue)
		if err == nil {
			s.askID = id
		}
	}

	s.lastQuoteMid = mid
	s.lastQuoteInventory = s.inventory
}

func (s *Strategy) cancelResting() {
	if s.bidID != "" {
		_ = s.CancelOrder(context.Background(), s.bidID)
		s.bidID = ""
	}
	if s.askID != "" {
		_ = s.CancelOrder(context.Background(), s.askID)
		s.askID = ""
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
