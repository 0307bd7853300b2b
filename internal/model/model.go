// Package model defines the core domain types shared across the simulation
// engine. Ledger amounts use shopspring/decimal; simulated prices are float64
// because they are outputs of a stochastic model, not settled money.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sector groups instruments for sector-average reporting.
type Sector string

const (
	SectorTechnology Sector = "TECHNOLOGY"
	SectorFinance    Sector = "FINANCE"
	SectorConsumer   Sector = "CONSUMER"
	SectorHealthcare Sector = "HEALTHCARE"
	SectorEnergy     Sector = "ENERGY"
	SectorRealEstate Sector = "REAL_ESTATE"
	SectorIndustrial Sector = "INDUSTRIAL"
)

// Instrument is the immutable definition of a simulated security.
type Instrument struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Sector        Sector  `json:"sector"`
	BasePrice     float64 `json:"base_price"`
	Volatility    float64 `json:"volatility"` // daily std-dev as a fraction
	Beta          float64 `json:"beta"`
	DividendYield float64 `json:"dividend_yield"`
	PERatio       float64 `json:"pe_ratio"`
	BaseVolume    int64   `json:"base_volume"`
	// HighBand instruments trade with a ±20% daily limit instead of ±10%.
	HighBand bool `json:"high_band"`
}

// PriceBar is one trading day of OHLCV data for a single instrument.
type PriceBar struct {
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	ChangePct float64   `json:"change_pct"`
}

// Validate checks the OHLC ordering invariants. A failure is a programming
// error in bar generation, never a recoverable condition.
func (b PriceBar) Validate() error {
	if b.Close <= 0 || b.Open <= 0 {
		return fmt.Errorf("%w: non-positive price open=%v close=%v", ErrInternalInvariant, b.Open, b.Close)
	}
	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("%w: ohlc ordering o=%v h=%v l=%v c=%v",
			ErrInternalInvariant, b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrInternalInvariant, b.Volume)
	}
	return nil
}

// Trend is the market engine's short-memory directional bias.
type Trend string

const (
	TrendBull     Trend = "BULL"
	TrendBear     Trend = "BEAR"
	TrendSideways Trend = "SIDEWAYS"
)

// TrendState is the aggregate market regime, recomputed after every trading day.
type TrendState struct {
	Trend                Trend   `json:"trend"`
	IndexValue           float64 `json:"index_value"`
	Strength             float64 `json:"strength"` // [-1, 1]
	DaysInTrend          int     `json:"days_in_trend"`
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
}

// Phase is a stage of the macroeconomic cycle.
type Phase string

const (
	PhaseExpansion   Phase = "EXPANSION"
	PhasePeak        Phase = "PEAK"
	PhaseContraction Phase = "CONTRACTION"
	PhaseTrough      Phase = "TROUGH"
)

// Next returns the phase that follows p in the fixed cycle.
func (p Phase) Next() Phase {
	switch p {
	case PhaseExpansion:
		return PhasePeak
	case PhasePeak:
		return PhaseContraction
	case PhaseContraction:
		return PhaseTrough
	default:
		return PhaseExpansion
	}
}

// Valid reports whether p is one of the four cycle phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseExpansion, PhasePeak, PhaseContraction, PhaseTrough:
		return true
	}
	return false
}

// MacroSnapshot is the macro state as of one tick.
type MacroSnapshot struct {
	Tick         int64   `json:"tick"`
	GDPGrowth    float64 `json:"gdp_growth"`
	Inflation    float64 `json:"inflation"`
	InterestRate float64 `json:"interest_rate"`
	Sentiment    float64 `json:"sentiment"` // 0-100
	Phase        Phase   `json:"phase"`
}

// AssetClass categorizes a position for impact resolution.
type AssetClass string

const (
	AssetCash       AssetClass = "CASH"
	AssetStock      AssetClass = "STOCK"
	AssetBond       AssetClass = "BOND"
	AssetRealEstate AssetClass = "REAL_ESTATE"
	AssetOther      AssetClass = "OTHER"
)

// Valid reports whether c is a known asset class.
func (c AssetClass) Valid() bool {
	switch c {
	case AssetCash, AssetStock, AssetBond, AssetRealEstate, AssetOther:
		return true
	}
	return false
}

// AssetImpact holds the per-class return multipliers for one tick.
type AssetImpact struct {
	Cash       float64 `json:"cash"`
	Stock      float64 `json:"stock"`
	Bond       float64 `json:"bond"`
	RealEstate float64 `json:"real_estate"`
}

// For resolves the multiplier of an asset class. Unrecognized classes get 1.0.
func (a AssetImpact) For(class AssetClass) float64 {
	switch class {
	case AssetCash:
		return a.Cash
	case AssetStock:
		return a.Stock
	case AssetBond:
		return a.Bond
	case AssetRealEstate:
		return a.RealEstate
	default:
		return 1.0
	}
}

// PositionKind selects how a position pays out.
type PositionKind string

const (
	// KindMonthlyYield accrues amount*rate/12 every tick; rate is annualized.
	KindMonthlyYield PositionKind = "MONTHLY_YIELD"
	// KindMaturity pays amount*(1+rate) once, when the term ends.
	KindMaturity PositionKind = "MATURITY"
)

// Valid reports whether k is a known position kind.
func (k PositionKind) Valid() bool {
	return k == KindMonthlyYield || k == KindMaturity
}

// Position is one open investment. The ledger holds metadata only, never cash.
type Position struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Kind             PositionKind    `json:"kind" db:"kind"`
	Class            AssetClass      `json:"class" db:"class"`
	RemainingPeriods int             `json:"remaining_periods" db:"remaining_periods"`
	Rate             decimal.Decimal `json:"rate" db:"rate"`
	OriginTick       int64           `json:"origin_tick" db:"origin_tick"`
}

// Payout is a matured position's final settlement.
type Payout struct {
	PositionID string          `json:"position_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

// TickRecord is an immutable per-tick settlement row for a session.
// Once created, these are never modified or deleted.
type TickRecord struct {
	ID           string          `json:"id" db:"id"`
	SessionID    string          `json:"session_id" db:"session_id"`
	Tick         int64           `json:"tick" db:"tick"`
	Phase        Phase           `json:"phase" db:"phase"`
	Accrued      decimal.Decimal `json:"accrued" db:"accrued"`
	MaturedCount int             `json:"matured_count" db:"matured_count"`
	MaturedTotal decimal.Decimal `json:"matured_total" db:"matured_total"`
	IndexValue   float64         `json:"index_value" db:"index_value"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}
