package market

import (
	"math"

	"github.com/echopolis/market-engine/internal/model"
)

// Trend state thresholds.
const (
	bullThreshold     = 0.005
	bearThreshold     = -0.005
	newTrendStrength  = 0.3
	strengthStep      = 0.1
	sidewaysDecay     = 0.9
	minVolMultiplier  = 0.8
	volMultiplierSpan = 0.4
)

// UpdateTrendState recomputes the trend from the cross-sectional average of
// the latest per-instrument returns. The index compounds by the average log
// return, so it tracks the geometric mean of the price relatives.
func (e *Engine) UpdateTrendState() {
	var sum, logSum float64
	for _, inst := range e.instruments {
		r := e.lastReturns[inst.Code]
		sum += r
		logSum += math.Log1p(r)
	}
	n := float64(len(e.instruments))
	avg := sum / n

	t := e.trend
	switch {
	case avg > bullThreshold:
		if t.Trend == model.TrendBull {
			t.DaysInTrend++
			t.Strength = math.Min(t.Strength+strengthStep, 1)
		} else {
			t.Trend = model.TrendBull
			t.DaysInTrend = 1
			t.Strength = newTrendStrength
		}
	case avg < bearThreshold:
		if t.Trend == model.TrendBear {
			t.DaysInTrend++
			t.Strength = math.Max(t.Strength-strengthStep, -1)
		} else {
			t.Trend = model.TrendBear
			t.DaysInTrend = 1
			t.Strength = -newTrendStrength
		}
	default:
		if t.Trend == model.TrendSideways {
			t.DaysInTrend++
		} else {
			t.Trend = model.TrendSideways
			t.DaysInTrend = 1
		}
		t.Strength *= sidewaysDecay
	}

	t.VolatilityMultiplier = minVolMultiplier + volMultiplierSpan*e.rng.Float64()
	t.IndexValue = round2(t.IndexValue * math.Exp(logSum/n))
	e.trend = t
}
