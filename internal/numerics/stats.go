package numerics

import "math"

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// LogReturns converts a price series into consecutive log returns.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// OLSBeta estimates the slope β of y on x via ordinary least squares:
// β = cov(x,y) / var(x). Used by the statistical-arbitrage strategy to
// hedge-ratio one leg against the other from log-return series.
func OLSBeta(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	mx, my := Mean(x), Mean(y)
	var cov, varX float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		varX += dx * dx
	}
	if varX == 0 {
		return 0
	}
	return cov / varX
}

// Correlation returns the Pearson correlation coefficient of x and y.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	mx, my := Mean(x), Mean(y)
	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// ATR computes the average true range over period using absolute
// differences of consecutive closes, per the trend strategy's spec: no
// high/low series is assumed available, so true range degenerates to
// |close[i]-close[i-1]|.
func ATR(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}
	window := closes[len(closes)-period-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(period)
}

// SMA returns the simple moving average of the last period values of
// values, or 0 if there are fewer than period.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	return Mean(values[len(values)-period:])
}
