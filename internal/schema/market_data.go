package schema

import "time"

// PriceLevel is a single price/size entry in an order book side.
type PriceLevel struct {
	Price float64
	Size  float64
}

// MarketData is a top-of-book (plus optional depth) snapshot for a symbol
// on a venue. Depth vectors are optional; tests must not require them.
type MarketData struct {
	Symbol    Symbol
	Venue     Venue
	Timestamp time.Time

	LastPrice float64
	BestBid   float64
	BestAsk   float64
	BidVolume float64
	AskVolume float64

	Bids []PriceLevel
	Asks []PriceLevel
}

// Mid returns the mid price from best bid/ask, falling back to LastPrice
// when either side of the book is unset.
func (m MarketData) Mid() float64 {
	if m.BestBid > 0 && m.BestAsk > 0 {
		return (m.BestBid + m.BestAsk) / 2
	}
	return m.LastPrice
}

// Valid reports whether the top-of-book invariant best_bid <= best_ask
// holds whenever both sides are present.
func (m MarketData) Valid() bool {
	if m.BestBid > 0 && m.BestAsk > 0 {
		return m.BestBid <= m.BestAsk
	}
	return true
}
