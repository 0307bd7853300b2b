package market

import (
	"sort"

	"github.com/echopolis/market-engine/internal/model"
)

const (
	moversPerSide  = 3
	eventsPerMonth = 2
)

// Mover is an instrument's return over one simulated month.
type Mover struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Return    float64 `json:"return"`
	LastClose float64 `json:"last_close"`
}

// MarketEvent is flavour text describing the month, drawn with a bias that
// matches the resulting trend.
type MarketEvent struct {
	Title  string      `json:"title"`
	Bias   model.Trend `json:"bias"`
	Weight float64     `json:"weight"`
}

// MonthSummary aggregates one tick's worth of trading days.
type MonthSummary struct {
	Days           int                      `json:"days"`
	Trend          model.TrendState         `json:"trend"`
	IndexStart     float64                  `json:"index_start"`
	IndexEnd       float64                  `json:"index_end"`
	IndexChangePct float64                  `json:"index_change_pct"`
	Gainers        []Mover                  `json:"gainers"`
	Losers         []Mover                  `json:"losers"`
	SectorReturns  map[model.Sector]float64 `json:"sector_returns"`
	Events         []MarketEvent            `json:"events"`
}

var eventPool = []MarketEvent{
	{Title: "Central bank signals liquidity support", Bias: model.TrendBull, Weight: 3},
	{Title: "Foreign inflows reach a yearly high", Bias: model.TrendBull, Weight: 2},
	{Title: "Strong earnings season lifts blue chips", Bias: model.TrendBull, Weight: 3},
	{Title: "Retail account openings surge", Bias: model.TrendBull, Weight: 1},
	{Title: "Regulator tightens margin financing", Bias: model.TrendBear, Weight: 2},
	{Title: "Export data misses expectations", Bias: model.TrendBear, Weight: 3},
	{Title: "Large IPO pipeline drains liquidity", Bias: model.TrendBear, Weight: 2},
	{Title: "Property developer default rattles credit markets", Bias: model.TrendBear, Weight: 1},
	{Title: "Index rebalancing reshuffles sector weights", Bias: model.TrendSideways, Weight: 2},
	{Title: "Trading volume thins ahead of the holidays", Bias: model.TrendSideways, Weight: 2},
	{Title: "Mixed macro data keeps investors cautious", Bias: model.TrendSideways, Weight: 3},
}

// AdvanceMonth runs one tick of trading days and summarizes the month.
func (e *Engine) AdvanceMonth() (MonthSummary, error) {
	start := make(map[string]float64, len(e.prices))
	for code, p := range e.prices {
		start[code] = p
	}
	indexStart := e.trend.IndexValue

	for d := 0; d < TradingDaysPerMonth; d++ {
		if _, err := e.AdvanceDay(); err != nil {
			return MonthSummary{}, err
		}
	}

	movers := make([]Mover, 0, len(e.instruments))
	sectorSum := make(map[model.Sector]float64)
	sectorCount := make(map[model.Sector]int)
	for _, inst := range e.instruments {
		end := e.prices[inst.Code]
		r := end/start[inst.Code] - 1
		movers = append(movers, Mover{Code: inst.Code, Name: inst.Name, Return: r, LastClose: end})
		sectorSum[inst.Sector] += r
		sectorCount[inst.Sector]++
	}

	sectors := make(map[model.Sector]float64, len(sectorSum))
	for s, sum := range sectorSum {
		sectors[s] = sum / float64(sectorCount[s])
	}

	sort.SliceStable(movers, func(a, b int) bool { return movers[a].Return > movers[b].Return })
	gainers := append([]Mover(nil), movers[:min(moversPerSide, len(movers))]...)
	losers := make([]Mover, 0, moversPerSide)
	for i := len(movers) - 1; i >= 0 && len(losers) < moversPerSide; i-- {
		losers = append(losers, movers[i])
	}

	return MonthSummary{
		Days:           TradingDaysPerMonth,
		Trend:          e.trend,
		IndexStart:     indexStart,
		IndexEnd:       e.trend.IndexValue,
		IndexChangePct: round2((e.trend.IndexValue/indexStart - 1) * 100),
		Gainers:        gainers,
		Losers:         losers,
		SectorReturns:  sectors,
		Events:         e.drawEvents(e.trend.Trend, eventsPerMonth),
	}, nil
}

// drawEvents picks n distinct events by weighted draw. Events matching the
// trend carry full weight, neutral events half weight during a directional
// trend; events against the trend are never drawn.
func (e *Engine) drawEvents(trend model.Trend, n int) []MarketEvent {
	type candidate struct {
		event  MarketEvent
		weight float64
	}
	var pool []candidate
	for _, ev := range eventPool {
		switch {
		case ev.Bias == trend:
			pool = append(pool, candidate{ev, ev.Weight})
		case ev.Bias == model.TrendSideways:
			pool = append(pool, candidate{ev, ev.Weight * 0.5})
		}
	}

	out := make([]MarketEvent, 0, n)
	for len(out) < n && len(pool) > 0 {
		var total float64
		for _, c := range pool {
			total += c.weight
		}
		x := e.rng.Float64() * total
		pick := len(pool) - 1
		for i, c := range pool {
			if x < c.weight {
				pick = i
				break
			}
			x -= c.weight
		}
		out = append(out, pool[pick].event)
		pool = append(pool[:pick], pool[pick+1:]...)
	}
	return out
}
