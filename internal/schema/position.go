package schema

import "github.com/yanun0323/decimal"

// Position is the signed exposure in a single symbol, with average entry
// price and accumulated PnL. Volume is signed: positive is long, negative
// is short.
type Position struct {
	Symbol        Symbol
	Volume        float64
	AveragePrice  float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// ApplyFill updates the position using the §3 averaging rule:
//   - same-side increment: avg ← (avg·|pos| + px·qty)/(|pos|+qty)
//   - reducing fill: avg unchanged, realized PnL accrues on the closed size
//   - side flip: avg resets to the fill price for the new net exposure,
//     realized PnL accrues on the portion closed at the prior average
//
// signedVolume is positive for buys, negative for sells.
func (p *Position) ApplyFill(fillPrice, signedVolume float64) {
	if signedVolume == 0 {
		return
	}

	prevVolume := p.Volume
	sameSide := prevVolume == 0 || sign(prevVolume) == sign(signedVolume)

	if sameSide {
		absPrev := absf(prevVolume)
		absNew := absf(signedVolume)
		if absPrev+absNew > 0 {
			p.AveragePrice = (p.AveragePrice*absPrev + fillPrice*absNew) / (absPrev + absNew)
		}
		p.Volume = prevVolume + signedVolume
		return
	}

	// Opposite side: first reduces, and may flip past zero.
	closingVolume := -signedVolume
	if absf(closingVolume) > absf(prevVolume) {
		closingVolume = prevVolume
	}
	p.RealizedPnL += closeRealized(prevVolume, p.AveragePrice, fillPrice, closingVolume)

	newVolume := prevVolume + signedVolume
	p.Volume = newVolume
	if sign(newVolume) != sign(prevVolume) && newVolume != 0 {
		p.AveragePrice = fillPrice
	} else if newVolume == 0 {
		p.AveragePrice = 0
	}
}

// closeRealized computes the realized PnL for closingVolume closed at
// fillPrice against avgPrice. Only the magnitude of closingVolume is used;
// the direction comes from the sign of prevVolume.
func closeRealized(prevVolume, avgPrice, fillPrice, closingVolume float64) float64 {
	// Long position closed by a sell: pnl = (fillPrice-avg)*closedQty.
	// Short position closed by a buy: pnl = (avg-fillPrice)*closedQty.
	closedQty := absf(closingVolume)
	if prevVolume > 0 {
		return (fillPrice - avgPrice) * closedQty
	}
	if prevVolume < 0 {
		return (avgPrice - fillPrice) * closedQty
	}
	return 0
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Notional returns the absolute dollar exposure at the given mark price,
// computed in decimal for the same reason as Order.Notional.
func (p Position) Notional(markPrice float64) float64 {
	notional := decimal.NewFromFloat(p.Volume).Mul(decimal.NewFromFloat(markPrice)).Abs()
	v, _ := notional.Float64()
	return v
}

// RiskLimits bounds what the risk engine will admit and tolerate.
type RiskLimits struct {
	MaxOrderNotional    float64
	MaxPositionNotional float64
	MaxLeverage         float64
	MaxDrawdown         float64 // fraction, e.g. 0.2 == 20%
	MaxDailyLoss        float64 // absolute currency units
	PerSymbolVolumeCap  map[Symbol]float64
}
