// Package numerics implements the Numerics Backend contract (spec §6):
// a typed interface standing in for whatever accelerator or GPU kernel
// computes moving averages, option prices, Monte Carlo paths, and
// portfolio weights in the original system. Reference is the
// deterministic, pure-Go implementation of Backend; the reference
// strategies call the package-level helpers in stats.go directly.
package numerics

// OptionInput is one option contract priced by BlackScholes.
type OptionInput struct {
	Spot, Strike, Rate, Vol, T float64
}

// OptionPrice is one row of BlackScholes output.
type OptionPrice struct {
	Price, Delta float64
}

// MonteCarloParams configures a GBM path simulation.
type MonteCarloParams struct {
	Spot, Drift, Vol, T float64
	Seed                int64
}

// Backend is the numerics contract strategies and the risk engine may
// call into for anything beyond elementary arithmetic. A Backend
// implementation is pure and deterministic given its inputs (Monte
// Carlo included, via an explicit seed) and may return
// ErrNumericsUnavailable, which is fatal only to the calling
// strategy's current tick, never to the core.
type Backend interface {
	// MovingAverage returns the simple moving average series over period.
	// The output is len(prices)-period+1 long for period <= len(prices).
	MovingAverage(prices []float64, period int) ([]float64, error)
	// EMA returns the exponential moving average series with smoothing
	// factor implied by period (α = 2/(period+1)).
	EMA(prices []float64, period int) ([]float64, error)
	// Bollinger returns (upper, mid, lower) bands: mid is the SMA, and
	// upper/lower are mid ± k·stdev over the same window.
	Bollinger(prices []float64, period int, k float64) (upper, mid, lower []float64, err error)
	// RSI returns the relative strength index series over period.
	RSI(prices []float64, period int) ([]float64, error)
	// BlackScholes prices a batch of European options.
	BlackScholes(options []OptionInput) (calls, puts []OptionPrice, err error)
	// MonteCarlo simulates paths of geometric Brownian motion; the
	// returned matrix is paths x (steps+1), element 0 of each path being Spot.
	MonteCarlo(params MonteCarloParams, paths, steps int) ([][]float64, error)
	// PortfolioOptimize returns weights minimizing variance for a target
	// return, given per-asset return series and their covariance.
	PortfolioOptimize(returns [][]float64, cov [][]float64, riskFree, target float64) ([]float64, error)
	// ValueAtRisk returns the historical VaR of a weighted portfolio of
	// return series at the given confidence over horizon periods.
	ValueAtRisk(returns [][]float64, weights []float64, confidence float64, horizon int) (float64, error)
}
