// Package marketgen produces synthetic market data ticks for the
// SimulatedAdapter and for strategy/risk tests that need a deterministic
// or randomized feed without a real exchange connection.
package marketgen

import (
	"math/rand"
	"time"

	"execore/internal/schema"
)

// Generator produces a sequence of MarketData ticks for a fixed set of
// symbols, following a simple random walk around a base price.
type Generator struct {
	rng *rand.Rand

	symbols   []schema.Symbol
	venue     schema.Venue
	price     map[schema.Symbol]float64
	spreadBps float64
	stepBps   float64
	index     int
}

// Config parameterizes a Generator.
type Config struct {
	Symbols    []schema.Symbol
	Venue      schema.Venue
	BasePrice  float64
	SpreadBps  float64 // half-spread, in basis points of price
	StepBps    float64 // per-tick random walk step size, in basis points
	Seed       int64
}

// New constructs a generator. Seed 0 uses an unseeded (time-based) source;
// pass a non-zero seed for reproducible test fixtures.
func New(cfg Config) *Generator {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []schema.Symbol{"SIM-USD"}
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = 2
	}
	if cfg.StepBps <= 0 {
		cfg.StepBps = 5
	}
	src := rand.NewSource(cfg.Seed)
	if cfg.Seed == 0 {
		src = rand.NewSource(time.Now().UnixNano())
	}

	g := &Generator{
		rng:       rand.New(src),
		symbols:   cfg.Symbols,
		venue:     cfg.Venue,
		price:     make(map[schema.Symbol]float64, len(cfg.Symbols)),
		spreadBps: cfg.SpreadBps,
		stepBps:   cfg.StepBps,
	}
	for _, s := range cfg.Symbols {
		g.price[s] = cfg.BasePrice
	}
	return g
}

// Next advances one symbol (round-robin) by a random walk step and returns
// its new top-of-book snapshot.
func (g *Generator) Next(now time.Time) schema.MarketData {
	symbol := g.symbols[g.index]
	g.index = (g.index + 1) % len(g.symbols)

	step := (g.rng.Float64()*2 - 1) * g.stepBps / 10_000
	price := g.price[symbol] * (1 + step)
	if price <= 0 {
		price = g.price[symbol]
	}
	g.price[symbol] = price

	half := price * g.spreadBps / 10_000
	return schema.MarketData{
		Symbol:    symbol,
		Venue:     g.venue,
		Timestamp: now,
		LastPrice: price,
		BestBid:   price - half,
		BestAsk:   price + half,
		BidVolume: 1,
		AskVolume: 1,
	}
}

// Symbols returns the configured symbol set.
func (g *Generator) Symbols() []schema.Symbol {
	out := make([]schema.Symbol, len(g.symbols))
	copy(out, g.symbols)
	return out
}
