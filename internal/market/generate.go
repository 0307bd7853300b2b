package market

import (
	"fmt"
	"math"

	"github.com/echopolis/market-engine/internal/model"
)

// Daily price limits.
const (
	normalBand = 0.10
	highBand   = 0.20
)

// Model weights of the return components.
const (
	trendWeight     = 0.3
	momentumWeight  = 0.2
	reversionWeight = 0.1
	marketWeight    = 0.005
	wickScale       = 0.6
	gapScale        = 0.5
	volumeBlend     = 0.8
	volumeWindow    = 20
)

// Stabilizers keeping long runs near each instrument's base price and base
// volume. anchorWeight pulls on log(price/base).
const (
	driftShrink   = 0.25
	volBlend      = 0.5
	maxVolFactor  = 2.0
	anchorWeight  = 0.01
	volumeRange   = 10.0
	maxVolume     = float64(1 << 62)
	meanAbsNormal = 0.7978845608028654 // E|Z| for a standard normal Z
)

// GenerateNextBar draws the next daily bar of an instrument from its trailing
// statistics and the current trend state. It does not append the bar; only
// the engine's random source advances.
//
// The daily return is the sum of a calibrated random walk, trend
// continuation, momentum, mean reversion towards the support/resistance band,
// the fundamental anchor, the beta-scaled market trend and the macro drift,
// clamped to the instrument's price limit.
func (e *Engine) GenerateNextBar(code string) (model.PriceBar, error) {
	i, ok := e.index[code]
	if !ok {
		return model.PriceBar{}, fmt.Errorf("%w: instrument %s", model.ErrNotFound, code)
	}
	inst := e.instruments[i]
	stats := e.analyze(code)
	prev := e.prices[code]

	vol := math.Min(volBlend*stats.Volatility+(1-volBlend)*inst.Volatility, maxVolFactor*inst.Volatility)

	base := stats.AvgReturn*driftShrink + e.rng.NormFloat64()*vol*e.trend.VolatilityMultiplier
	trendCont := stats.Trend * trendWeight * (0.5 + e.rng.Float64())
	momentum := stats.Momentum * momentumWeight

	var reversion float64
	switch {
	case prev < stats.Support:
		reversion = (stats.Support - prev) / prev * reversionWeight
	case prev > stats.Resistance:
		reversion = (stats.Resistance - prev) / prev * reversionWeight
	}

	anchor := -anchorWeight * math.Log(prev/inst.BasePrice)
	marketEffect := e.trend.Strength * inst.Beta * marketWeight
	macroDrift := e.macroBias * inst.Beta / TradingDaysPerMonth

	limit := normalBand
	if inst.HighBand {
		limit = highBand
	}
	ret := base + trendCont + momentum + reversion + anchor + marketEffect + macroDrift
	ret = math.Max(-limit, math.Min(limit, ret))

	closePrice := floorPrice(round2(prev * (1 + ret)))
	openPrice := floorPrice(round2(prev * (1 + (e.rng.Float64()-0.5)*vol*gapScale)))

	top := math.Max(openPrice, closePrice)
	bottom := math.Min(openPrice, closePrice)
	high := round2(top * (1 + e.rng.Float64()*vol*wickScale))
	low := round2(bottom * (1 - e.rng.Float64()*vol*wickScale))
	if high < top {
		high = top
	}
	if low > bottom || low <= 0 {
		low = bottom
	}

	volume := e.nextVolume(inst, ret, vol)

	bar := model.PriceBar{
		Date:      nextTradingDay(e.date),
		Open:      openPrice,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		ChangePct: round2((closePrice/prev - 1) * 100),
	}
	if err := bar.Validate(); err != nil {
		return model.PriceBar{}, fmt.Errorf("instrument %s: %w", code, err)
	}
	return bar, nil
}

// nextVolume scales the trailing 20-bar average volume by the size of the
// move. The activity factor is normalized by its expected value so that
// volume has no drift of its own.
func (e *Engine) nextVolume(inst model.Instrument, ret, vol float64) int64 {
	baseVolume := float64(inst.BaseVolume)
	if baseVolume <= 0 {
		baseVolume = DefaultBaseVolume
	}
	avgVolume := baseVolume
	if bars := tail(e.history[inst.Code], volumeWindow); len(bars) > 0 {
		var sum float64
		for _, b := range bars {
			sum += float64(b.Volume)
		}
		avgVolume = volumeBlend*sum/float64(len(bars)) + (1-volumeBlend)*baseVolume
	}
	avgVolume = math.Max(baseVolume/volumeRange, math.Min(baseVolume*volumeRange, avgVolume))

	activity := (1 + 5*math.Abs(ret)) / (1 + 5*vol*meanAbsNormal)
	v := avgVolume * activity * (0.7 + 0.6*e.rng.Float64())
	return int64(math.Max(0, math.Min(v, maxVolume)))
}

// floorPrice keeps prices at or above one tick.
func floorPrice(p float64) float64 {
	return math.Max(p, 0.01)
}
