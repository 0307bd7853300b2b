package market

import (
	"fmt"
	"math"

	"github.com/echopolis/market-engine/internal/model"
)

// Pattern analysis windows, in trading days.
const (
	minPatternBars = 20
	trendWindow    = 20
	momentumWindow = 5
	rangeWindow    = 60
	driftWindow    = 60
)

// PatternStats summarizes an instrument's trailing price behaviour.
type PatternStats struct {
	Volatility float64 `json:"volatility"` // std-dev of daily returns
	AvgReturn  float64 `json:"avg_return"` // mean of the last 60 returns
	Trend      float64 `json:"trend"`    // mean of the last 20 returns
	Momentum   float64 `json:"momentum"` // mean of last 5 minus mean of last 20
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// AnalyzePattern computes trailing statistics for an instrument without
// mutating any state.
func (e *Engine) AnalyzePattern(code string) (PatternStats, error) {
	if _, ok := e.index[code]; !ok {
		return PatternStats{}, fmt.Errorf("%w: instrument %s", model.ErrNotFound, code)
	}
	return e.analyze(code), nil
}

func (e *Engine) analyze(code string) PatternStats {
	inst := e.instruments[e.index[code]]
	bars := e.history[code]
	price := e.prices[code]

	if len(bars) < minPatternBars {
		return PatternStats{
			Volatility: inst.Volatility,
			Support:    price * 0.85,
			Resistance: price * 1.15,
		}
	}

	returns := dailyReturns(bars)
	vol := stdDev(returns)
	if vol == 0 {
		vol = inst.Volatility
	}
	trend := mean(tail(returns, trendWindow))

	support, resistance := math.Inf(1), math.Inf(-1)
	for _, b := range tail(bars, rangeWindow) {
		support = math.Min(support, b.Low)
		resistance = math.Max(resistance, b.High)
	}

	return PatternStats{
		Volatility: vol,
		AvgReturn:  mean(tail(returns, driftWindow)),
		Trend:      trend,
		Momentum:   mean(tail(returns, momentumWindow)) - trend,
		Support:    support,
		Resistance: resistance,
	}
}

// dailyReturns returns close-to-close simple returns, oldest first.
func dailyReturns(bars []model.PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		out = append(out, bars[i].Close/bars[i-1].Close-1)
	}
	return out
}

func tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the population standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}
