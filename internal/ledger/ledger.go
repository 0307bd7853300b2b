// Package ledger tracks open investment positions and settles their monthly
// accruals and maturity payouts against the macro impact multipliers.
//
// All monetary values use shopspring/decimal. The ledger holds position
// metadata only; settled amounts are returned to the caller, which owns the
// player's cash.
package ledger

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/echopolis/market-engine/internal/model"
)

// MaxRate bounds the accepted rate of a new position.
var MaxRate = decimal.NewFromInt(5)

var monthsPerYear = decimal.NewFromInt(12)

// Sentiment scaling of the stock multiplier.
const (
	neutralMood     = 50.0
	moodSensitivity = 2000.0
)

// ImpactSource supplies the per-class multipliers of the current tick.
// The macro economy satisfies it.
type ImpactSource interface {
	AssetImpact() model.AssetImpact
}

// SentimentSource supplies the current market sentiment on a 0-100 scale.
type SentimentSource interface {
	Sentiment() float64
}

// SentimentFunc adapts a function to SentimentSource.
type SentimentFunc func() float64

// Sentiment implements SentimentSource.
func (f SentimentFunc) Sentiment() float64 { return f() }

// OpenRequest describes a new position.
type OpenRequest struct {
	Name     string             `json:"name"`
	Amount   decimal.Decimal    `json:"amount"`
	Kind     model.PositionKind `json:"kind"`
	Class    model.AssetClass   `json:"class"`
	Duration int                `json:"duration"` // ticks
	Rate     decimal.Decimal    `json:"rate"`     // annualized
}

// TickResult is the settlement of one processed tick.
type TickResult struct {
	Tick    int64           `json:"tick"`
	Accrued decimal.Decimal `json:"accrued"`
	Matured []model.Payout  `json:"matured"`
}

// MaturedTotal sums the matured payouts.
func (r TickResult) MaturedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Matured {
		total = total.Add(p.Amount)
	}
	return total
}

// Ledger owns the open positions of one simulation. It is not safe for
// concurrent use; the owning session serializes access.
type Ledger struct {
	impact    ImpactSource
	sentiment SentimentSource
	limiter   *ExposureLimiter
	newID     func() string

	positions []model.Position // open order
	lastTick  int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSentiment scales the stock multiplier by the market mood.
func WithSentiment(s SentimentSource) Option {
	return func(l *Ledger) { l.sentiment = s }
}

// WithLimiter enforces exposure limits on Open.
func WithLimiter(lim *ExposureLimiter) Option {
	return func(l *Ledger) { l.limiter = lim }
}

// WithIDGenerator replaces the uuid generator for position ids.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// New creates an empty ledger reading multipliers from impact.
func New(impact ImpactSource, opts ...Option) *Ledger {
	l := &Ledger{
		impact: impact,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LastTick returns the last processed tick.
func (l *Ledger) LastTick() int64 {
	return l.lastTick
}

// Open validates req and stores a new position. Nothing is stored when
// validation fails.
func (l *Ledger) Open(req OpenRequest) (string, error) {
	switch {
	case !req.Amount.IsPositive():
		return "", fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidArgument, req.Amount)
	case req.Duration <= 0:
		return "", fmt.Errorf("%w: duration must be positive, got %d", model.ErrInvalidArgument, req.Duration)
	case !validRate(req.Rate):
		return "", fmt.Errorf("%w: rate %s outside [0, %s]", model.ErrInvalidArgument, req.Rate, MaxRate)
	case !req.Kind.Valid():
		return "", fmt.Errorf("%w: unknown position kind %q", model.ErrInvalidArgument, req.Kind)
	case !req.Class.Valid():
		return "", fmt.Errorf("%w: unknown asset class %q", model.ErrInvalidArgument, req.Class)
	}
	if err := l.limiter.CheckLimit(req.Class, req.Amount, l.exposure()); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
	}

	p := model.Position{
		ID:               l.newID(),
		Name:             req.Name,
		Amount:           req.Amount,
		Kind:             req.Kind,
		Class:            req.Class,
		RemainingPeriods: req.Duration,
		Rate:             req.Rate,
		OriginTick:       l.lastTick,
	}
	l.positions = append(l.positions, p)

	slog.Debug("position opened",
		"id", p.ID,
		"kind", p.Kind,
		"class", p.Class,
		"amount", p.Amount.String(),
		"duration", p.RemainingPeriods,
	)
	return p.ID, nil
}

func (l *Ledger) exposure() map[model.AssetClass]decimal.Decimal {
	out := make(map[model.AssetClass]decimal.Decimal)
	for _, p := range l.positions {
		out[p.Class] = out[p.Class].Add(p.Amount)
	}
	return out
}

// AdvanceTick settles every open position for tick. Each tick is processed
// at most once: a tick at or before the last processed one is rejected with
// ErrStaleTick and changes nothing.
//
// Monthly yield positions accrue amount*rate/12*impact and are dropped once
// their term runs out. Maturity positions pay amount*(1+rate)*impact when
// their term ends. Amounts are rounded to whole currency units.
func (l *Ledger) AdvanceTick(tick int64) (TickResult, error) {
	if tick <= l.lastTick {
		return TickResult{}, fmt.Errorf("%w: tick %d already processed (last %d)", model.ErrStaleTick, tick, l.lastTick)
	}

	impact := l.impact.AssetImpact()
	res := TickResult{Tick: tick, Accrued: decimal.Zero, Matured: []model.Payout{}}
	kept := l.positions[:0]
	for _, p := range l.positions {
		factor := l.factor(impact, p.Class)
		p.RemainingPeriods--

		switch p.Kind {
		case model.KindMonthlyYield:
			accrual := p.Amount.Mul(p.Rate).Div(monthsPerYear).Mul(factor).Round(0)
			res.Accrued = res.Accrued.Add(accrual)
		case model.KindMaturity:
			if p.RemainingPeriods <= 0 {
				payout := p.Amount.Mul(decimal.NewFromInt(1).Add(p.Rate)).Mul(factor).Round(0)
				res.Matured = append(res.Matured, model.Payout{PositionID: p.ID, Name: p.Name, Amount: payout})
				slog.Info("position matured", "id", p.ID, "tick", tick, "payout", payout.String())
			}
		}
		if p.RemainingPeriods > 0 {
			kept = append(kept, p)
		}
	}
	clear(l.positions[len(kept):])
	l.positions = kept
	l.lastTick = tick
	return res, nil
}

// factor resolves the multiplier of a class, scaling stocks by sentiment
// when a sentiment source is configured.
func (l *Ledger) factor(impact model.AssetImpact, class model.AssetClass) decimal.Decimal {
	f := impact.For(class)
	if class == model.AssetStock && l.sentiment != nil {
		f *= 1 + (l.sentiment.Sentiment()-neutralMood)/moodSensitivity
	}
	return decimal.NewFromFloat(f)
}

// Close removes a position without accrual or payout and returns its
// principal for the caller to reconcile.
func (l *Ledger) Close(id string) (decimal.Decimal, error) {
	for i, p := range l.positions {
		if p.ID == id {
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			slog.Debug("position closed", "id", id, "principal", p.Amount.String())
			return p.Amount, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: position %s", model.ErrNotFound, id)
}

// Get returns a copy of one position.
func (l *Ledger) Get(id string) (model.Position, error) {
	for _, p := range l.positions {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Position{}, fmt.Errorf("%w: position %s", model.ErrNotFound, id)
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && !rate.GreaterThan(MaxRate)
}

// Positions returns the open positions in the order they were opened.
func (l *Ledger) Positions() []model.Position {
	return append([]model.Position{}, l.positions...)
}

// Export returns the ledger state for persistence.
func (l *Ledger) Export() model.LedgerState {
	return model.LedgerState{
		Positions: l.Positions(),
		LastTick:  l.lastTick,
	}
}

// Import replaces the ledger state after validating every position.
func (l *Ledger) Import(st model.LedgerState) error {
	seen := make(map[string]bool, len(st.Positions))
	for _, p := range st.Positions {
		switch {
		case p.ID == "" || seen[p.ID]:
			return fmt.Errorf("%w: missing or duplicate position id %q", model.ErrInvalidArgument, p.ID)
		case !p.Amount.IsPositive(), p.RemainingPeriods <= 0:
			return fmt.Errorf("%w: position %s has no principal or term", model.ErrInvalidArgument, p.ID)
		case !p.Kind.Valid(), !p.Class.Valid():
			return fmt.Errorf("%w: position %s kind %q class %q", model.ErrInvalidArgument, p.ID, p.Kind, p.Class)
		case !validRate(p.Rate):
			return fmt.Errorf("%w: position %s rate %s outside [0, %s]", model.ErrInvalidArgument, p.ID, p.Rate, MaxRate)
		}
		seen[p.ID] = true
	}
	l.positions = append([]model.Position{}, st.Positions...)
	l.lastTick = st.LastTick
	return nil
}
