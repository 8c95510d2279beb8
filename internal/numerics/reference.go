package numerics

import (
	"math"
	"math/rand"

	talib "github.com/markcheno/go-talib"

	"execore/internal/errorsx"
)

// Reference is the deterministic Backend implementation. Moving-average,
// EMA, Bollinger, and RSI delegate to go-talib (the technical-analysis
// library ninja0404-trades-ai's indicator calculator wires for the same
// purpose); option pricing, Monte Carlo, and portfolio math have no
// equivalent library anywhere in the retrieved examples, so they are
// plain math — see DESIGN.md.
type Reference struct{}

// NewReference constructs the reference numerics backend.
func NewReference() *Reference { return &Reference{} }

func (r *Reference) MovingAverage(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period {
		return nil, errorsx.ErrNumericsUnavailable
	}
	out := talib.Sma(prices, period)
	return trimLeadingZeros(out, period-1), nil
}

func (r *Reference) EMA(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period {
		return nil, errorsx.ErrNumericsUnavailable
	}
	out := talib.Ema(prices, period)
	return trimLeadingZeros(out, period-1), nil
}

func (r *Reference) Bollinger(prices []float64, period int, k float64) (upper, mid, lower []float64, err error) {
	if period <= 0 || len(prices) < period {
		return nil, nil, nil, errorsx.ErrNumericsUnavailable
	}
	u, m, l := talib.BBands(prices, period, k, k, talib.SMA)
	return trimLeadingZeros(u, period-1), trimLeadingZeros(m, period-1), trimLeadingZeros(l, period-1), nil
}

func (r *Reference) RSI(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return nil, errorsx.ErrNumericsUnavailable
	}
	out := talib.Rsi(prices, period)
	return trimLeadingZeros(out, period), nil
}

// trimLeadingZeros drops go-talib's n zero-filled warm-up entries so
// callers see only fully-computed values, indexed from the first window
// that had enough data.
func trimLeadingZeros(series []float64, n int) []float64 {
	if n < 0 || n > len(series) {
		return series
	}
	return series[n:]
}

func (r *Reference) BlackScholes(options []OptionInput) (calls, puts []OptionPrice, err error) {
	calls = make([]OptionPrice, len(options))
	puts = make([]OptionPrice, len(options))
	for i, o := range options {
		if o.Vol <= 0 || o.T <= 0 || o.Spot <= 0 || o.Strike <= 0 {
			return nil, nil, errorsx.ErrNumericsUnavailable
		}
		sqrtT := math.Sqrt(o.T)
		d1 := (math.Log(o.Spot/o.Strike) + (o.Rate+0.5*o.Vol*o.Vol)*o.T) / (o.Vol * sqrtT)
		d2 := d1 - o.Vol*sqrtT
		nd1 := normCDF(d1)
		nd2 := normCDF(d2)
		discount := math.Exp(-o.Rate * o.T)

		callPrice := o.Spot*nd1 - o.Strike*discount*nd2
		putPrice := o.Strike*discount*normCDF(-d2) - o.Spot*normCDF(-d1)

		calls[i] = OptionPrice{Price: callPrice, Delta: nd1}
		puts[i] = OptionPrice{Price: putPrice, Delta: nd1 - 1}
	}
	return calls, puts, nil
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func (r *Reference) MonteCarlo(params MonteCarloParams, paths, steps int) ([][]float64, error) {
	if params.Spot <= 0 || params.Vol < 0 || params.T <= 0 || paths <= 0 || steps <= 0 {
		return nil, errorsx.ErrNumericsUnavailable
	}
	rng := rand.New(rand.NewSource(params.Seed))
	dt := params.T / float64(steps)
	drift := (params.Drift - 0.5*params.Vol*params.Vol) * dt
	vol := params.Vol * math.Sqrt(dt)

	out := make([][]float64, paths)
	for p := 0; p < paths; p++ {
		row := make([]float64, steps+1)
		row[0] = params.Spot
		for s := 1; s <= steps; s++ {
			row[s] = row[s-1] * math.Exp(drift+vol*rng.NormFloat64())
		}
		out[p] = row
	}
	return out, nil
}

// PortfolioOptimize returns inverse-variance weights taken from the
// diagonal of cov, normalized to sum to 1. The return series, riskFree
// and target are not used: the weights do not aim at a target return.
func (r *Reference) PortfolioOptimize(returns [][]float64, cov [][]float64, riskFree, target float64) ([]float64, error) {
	n := len(returns)
	if n == 0 || len(cov) != n {
		return nil, errorsx.ErrNumericsUnavailable
	}
	invVar := make([]float64, n)
	var sum float64
	for i := range cov {
		if i >= len(cov[i]) || cov[i][i] <= 0 {
			return nil, errorsx.ErrNumericsUnavailable
		}
		invVar[i] = 1 / cov[i][i]
		sum += invVar[i]
	}
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = invVar[i] / sum
	}
	return weights, nil
}

// ValueAtRisk returns the historical VaR: the loss at the given
// confidence's lower tail of the weighted portfolio's period returns.
func (r *Reference) ValueAtRisk(returns [][]float64, weights []float64, confidence float64, horizon int) (float64, error) {
	if len(returns) == 0 || len(returns) != len(weights) || confidence <= 0 || confidence >= 1 {
		return 0, errorsx.ErrNumericsUnavailable
	}
	periods := len(returns[0])
	for _, series := range returns {
		if len(series) != periods {
			return 0, errorsx.ErrNumericsUnavailable
		}
	}
	portfolio := make([]float64, periods)
	for t := 0; t < periods; t++ {
		var v float64
		for i, series := range returns {
			v += weights[i] * series[t]
		}
		portfolio[t] = v
	}

	sorted := append([]float64(nil), portfolio...)
	sortFloats(sorted)
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	periodVaR := -sorted[idx]
	return periodVaR * math.Sqrt(float64(horizon)), nil
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
