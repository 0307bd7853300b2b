// Package market maintains a pool of synthetic instruments, their OHLCV
// history and the aggregate trend state, and generates new daily bars with a
// pattern-derived stochastic model.
//
// Every random draw of the engine comes from the *rand.Rand handed to New, so
// a fixed seed reproduces the full price history bit for bit.
package market

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/echopolis/market-engine/internal/model"
)

const (
	// DefaultWindow bounds the per-instrument history.
	DefaultWindow = 365

	// TradingDaysPerMonth is the number of bars generated per tick.
	TradingDaysPerMonth = 22

	// InitialIndex is the starting value of the aggregate index.
	InitialIndex = 3000.0

	weekWindow52 = 252
)

// DefaultStartDate is the calendar date before the first generated bar.
var DefaultStartDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Engine owns the instrument catalog and price history. It is the single
// writer of both and is not safe for concurrent use.
type Engine struct {
	rng         *rand.Rand
	instruments []model.Instrument
	index       map[string]int
	history     map[string][]model.PriceBar
	prices      map[string]float64
	lastReturns map[string]float64
	trend       model.TrendState
	date        time.Time
	window      int
	macroBias   float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalog replaces the default instrument catalog.
func WithCatalog(instruments []model.Instrument) Option {
	return func(e *Engine) {
		e.instruments = append([]model.Instrument(nil), instruments...)
	}
}

// WithStartDate sets the calendar date preceding the first bar.
func WithStartDate(t time.Time) Option {
	return func(e *Engine) { e.date = t }
}

// WithWindow bounds the per-instrument history length.
func WithWindow(n int) Option {
	return func(e *Engine) { e.window = n }
}

// New creates an engine with empty history. Current prices start at each
// instrument's base price.
func New(rng *rand.Rand, opts ...Option) (*Engine, error) {
	e := &Engine{
		rng:         rng,
		instruments: DefaultCatalog(),
		date:        DefaultStartDate,
		window:      DefaultWindow,
		trend: model.TrendState{
			Trend:                model.TrendSideways,
			IndexValue:           InitialIndex,
			VolatilityMultiplier: 1.0,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.window < rangeWindow {
		return nil, fmt.Errorf("%w: history window %d shorter than %d", model.ErrInvalidArgument, e.window, rangeWindow)
	}
	if err := validateCatalog(e.instruments); err != nil {
		return nil, err
	}

	e.index = make(map[string]int, len(e.instruments))
	e.history = make(map[string][]model.PriceBar, len(e.instruments))
	e.prices = make(map[string]float64, len(e.instruments))
	e.lastReturns = make(map[string]float64, len(e.instruments))
	for i, inst := range e.instruments {
		if inst.BaseVolume <= 0 {
			e.instruments[i].BaseVolume = DefaultBaseVolume
		}
		e.index[inst.Code] = i
		e.prices[inst.Code] = inst.BasePrice
	}
	return e, nil
}

func validateCatalog(instruments []model.Instrument) error {
	if len(instruments) == 0 {
		return fmt.Errorf("%w: empty instrument catalog", model.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		switch {
		case inst.Code == "":
			return fmt.Errorf("%w: instrument without code", model.ErrInvalidArgument)
		case seen[inst.Code]:
			return fmt.Errorf("%w: duplicate instrument %s", model.ErrInvalidArgument, inst.Code)
		case inst.BasePrice <= 0:
			return fmt.Errorf("%w: instrument %s base price %v", model.ErrInvalidArgument, inst.Code, inst.BasePrice)
		case inst.Volatility <= 0:
			return fmt.Errorf("%w: instrument %s volatility %v", model.ErrInvalidArgument, inst.Code, inst.Volatility)
		}
		seen[inst.Code] = true
	}
	return nil
}

// AdvanceDay generates one bar per instrument, appends it to history, moves
// the calendar to the next business day and recomputes the trend state.
// Instruments are processed in catalog order so the draw sequence is stable.
func (e *Engine) AdvanceDay() (map[string]model.PriceBar, error) {
	bars := make(map[string]model.PriceBar, len(e.instruments))
	for _, inst := range e.instruments {
		bar, err := e.GenerateNextBar(inst.Code)
		if err != nil {
			return nil, err
		}
		bars[inst.Code] = bar
	}

	for _, inst := range e.instruments {
		bar := bars[inst.Code]
		prev := e.prices[inst.Code]
		h := append(e.history[inst.Code], bar)
		if len(h) > e.window {
			h = append([]model.PriceBar(nil), h[len(h)-e.window:]...)
		}
		e.history[inst.Code] = h
		e.prices[inst.Code] = bar.Close
		e.lastReturns[inst.Code] = bar.Close/prev - 1
	}
	e.date = nextTradingDay(e.date)
	e.UpdateTrendState()
	return bars, nil
}

// nextTradingDay returns the next weekday after t.
func nextTradingDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ApplyMacro biases subsequent bar generation by the stock multiplier of
// the current macro tick, spread over a month of trading days.
func (e *Engine) ApplyMacro(impact model.AssetImpact) {
	e.macroBias = impact.Stock - 1
}

// Quote is a point-in-time view of one instrument.
type Quote struct {
	Instrument model.Instrument `json:"instrument"`
	Date       time.Time        `json:"date"`
	Price      float64          `json:"price"`
	PrevClose  float64          `json:"prev_close"`
	Change     float64          `json:"change"`
	ChangePct  float64          `json:"change_pct"`
	High52w    float64          `json:"high_52w"`
	Low52w     float64          `json:"low_52w"`
	Volume     int64            `json:"volume"`
}

// Quote returns the current quote of an instrument.
func (e *Engine) Quote(code string) (Quote, error) {
	i, ok := e.index[code]
	if !ok {
		return Quote{}, fmt.Errorf("%w: instrument %s", model.ErrNotFound, code)
	}
	inst := e.instruments[i]
	bars := e.history[code]
	price := e.prices[code]

	q := Quote{
		Instrument: inst,
		Date:       e.date,
		Price:      price,
		PrevClose:  inst.BasePrice,
		High52w:    price,
		Low52w:     price,
	}
	if n := len(bars); n > 0 {
		q.Volume = bars[n-1].Volume
		if n > 1 {
			q.PrevClose = bars[n-2].Close
		}
		q.High52w, q.Low52w = math.Inf(-1), math.Inf(1)
		for _, b := range tail(bars, weekWindow52) {
			q.High52w = math.Max(q.High52w, b.High)
			q.Low52w = math.Min(q.Low52w, b.Low)
		}
	}
	q.Change = round2(price - q.PrevClose)
	q.ChangePct = round2((price/q.PrevClose - 1) * 100)
	return q, nil
}

// Quotes returns the quotes of every instrument in catalog order.
func (e *Engine) Quotes() []Quote {
	out := make([]Quote, 0, len(e.instruments))
	for _, inst := range e.instruments {
		q, _ := e.Quote(inst.Code)
		out = append(out, q)
	}
	return out
}

// History returns up to limit of the most recent bars, oldest first.
// A non-positive limit returns the whole retained window.
func (e *Engine) History(code string, limit int) ([]model.PriceBar, error) {
	if _, ok := e.index[code]; !ok {
		return nil, fmt.Errorf("%w: instrument %s", model.ErrNotFound, code)
	}
	bars := e.history[code]
	if limit > 0 {
		bars = tail(bars, limit)
	}
	out := make([]model.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

// Instruments returns the catalog in its fixed order.
func (e *Engine) Instruments() []model.Instrument {
	return append([]model.Instrument(nil), e.instruments...)
}

// Price returns the current price of an instrument.
func (e *Engine) Price(code string) (float64, error) {
	p, ok := e.prices[code]
	if !ok {
		return 0, fmt.Errorf("%w: instrument %s", model.ErrNotFound, code)
	}
	return p, nil
}

// Trend returns the current trend state.
func (e *Engine) Trend() model.TrendState {
	return e.trend
}

// Date returns the date of the last generated trading day.
func (e *Engine) Date() time.Time {
	return e.date
}

// Export returns the engine's state for persistence.
func (e *Engine) Export() model.EngineState {
	st := model.EngineState{
		Instruments: e.Instruments(),
		History:     make(map[string][]model.PriceBar, len(e.history)),
		Prices:      make(map[string]float64, len(e.prices)),
		Trend:       e.trend,
		Date:        e.date,
		MacroBias:   e.macroBias,
	}
	for code, bars := range e.history {
		st.History[code] = append([]model.PriceBar(nil), bars...)
	}
	for code, p := range e.prices {
		st.Prices[code] = p
	}
	return st
}

// Import replaces the engine's state after validating all of it.
func (e *Engine) Import(st model.EngineState) error {
	if err := validateCatalog(st.Instruments); err != nil {
		return err
	}
	index := make(map[string]int, len(st.Instruments))
	prices := make(map[string]float64, len(st.Instruments))
	history := make(map[string][]model.PriceBar, len(st.Instruments))
	lastReturns := make(map[string]float64, len(st.Instruments))

	for i, inst := range st.Instruments {
		index[inst.Code] = i
		p, ok := st.Prices[inst.Code]
		if !ok || p <= 0 {
			return fmt.Errorf("%w: missing price for %s", model.ErrInvalidArgument, inst.Code)
		}
		prices[inst.Code] = p

		bars := tail(st.History[inst.Code], e.window)
		for _, b := range bars {
			if err := b.Validate(); err != nil {
				return fmt.Errorf("import %s: %w", inst.Code, err)
			}
		}
		if len(bars) > 0 {
			history[inst.Code] = append([]model.PriceBar(nil), bars...)
		}
		if r := dailyReturns(tail(bars, 2)); len(r) == 1 {
			lastReturns[inst.Code] = r[0]
		}
	}
	if st.Trend.VolatilityMultiplier <= 0 {
		return fmt.Errorf("%w: volatility multiplier %v", model.ErrInvalidArgument, st.Trend.VolatilityMultiplier)
	}

	e.instruments = append([]model.Instrument(nil), st.Instruments...)
	e.index = index
	e.prices = prices
	e.history = history
	e.lastReturns = lastReturns
	e.trend = st.Trend
	e.date = st.Date
	e.macroBias = st.MacroBias
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
