package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/echopolis/market-engine/internal/model"
)

var (
	// ErrPositionLimitExceeded is returned when a single position's principal
	// is above the per-position maximum.
	ErrPositionLimitExceeded = errors.New("ledger: per-position limit exceeded")

	// ErrClassLimitExceeded is returned when opening a position would push the
	// aggregate principal of its asset class beyond the class maximum.
	ErrClassLimitExceeded = errors.New("ledger: asset class exposure limit exceeded")
)

// ExposureLimiter caps how much principal a ledger may commit, both per
// position and per asset class. A zero limit disables that check.
type ExposureLimiter struct {
	// MaxPerPosition is the maximum principal of any single position.
	MaxPerPosition decimal.Decimal

	// MaxPerClass is the maximum aggregate principal across all open
	// positions of the same asset class.
	MaxPerClass decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-position and
// per-class limits.
func NewExposureLimiter(maxPerPosition, maxPerClass decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerPosition: maxPerPosition,
		MaxPerClass:    maxPerClass,
	}
}

// CheckLimit validates whether a new position of the given class and amount
// respects the limits, given the current principal per class.
func (l *ExposureLimiter) CheckLimit(
	class model.AssetClass,
	amount decimal.Decimal,
	existing map[model.AssetClass]decimal.Decimal,
) error {
	if l == nil {
		return nil
	}
	if l.MaxPerPosition.IsPositive() && amount.GreaterThan(l.MaxPerPosition) {
		return ErrPositionLimitExceeded
	}
	if l.MaxPerClass.IsPositive() && existing[class].Add(amount).GreaterThan(l.MaxPerClass) {
		return ErrClassLimitExceeded
	}
	return nil
}
