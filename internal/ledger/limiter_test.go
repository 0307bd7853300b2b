package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/echopolis/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(d(50000), d(100000))

	err := limiter.CheckLimit(model.AssetStock, d(10000), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerPositionExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(50000), d(100000))

	err := limiter.CheckLimit(model.AssetBond, d(50001), nil)
	if err != ErrPositionLimitExceeded {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ClassExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(50000), d(100000))

	existing := map[model.AssetClass]decimal.Decimal{
		model.AssetStock: d(80000),
	}

	// 80000 + 30000 = 110000 > 100000.
	err := limiter.CheckLimit(model.AssetStock, d(30000), existing)
	if err != ErrClassLimitExceeded {
		t.Errorf("expected ErrClassLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_OtherClassesIgnored(t *testing.T) {
	limiter := NewExposureLimiter(d(50000), d(100000))

	existing := map[model.AssetClass]decimal.Decimal{
		model.AssetStock: d(95000),
		model.AssetBond:  d(20000),
	}

	// Bond total = 20000 + 30000 = 50000; stock exposure does not count.
	err := limiter.CheckLimit(model.AssetBond, d(30000), existing)
	if err != nil {
		t.Errorf("other classes should be ignored, got %v", err)
	}
}

func TestCheckLimit_ExactlyAtLimit(t *testing.T) {
	limiter := NewExposureLimiter(d(50000), d(100000))

	existing := map[model.AssetClass]decimal.Decimal{
		model.AssetRealEstate: d(50000),
	}

	err := limiter.CheckLimit(model.AssetRealEstate, d(50000), existing)
	if err != nil {
		t.Errorf("limits are inclusive, got %v", err)
	}
}

func TestCheckLimit_ZeroDisables(t *testing.T) {
	limiter := NewExposureLimiter(decimal.Zero, decimal.Zero)

	err := limiter.CheckLimit(model.AssetStock, d(1e9), map[model.AssetClass]decimal.Decimal{
		model.AssetStock: d(1e9),
	})
	if err != nil {
		t.Errorf("zero limits should disable checks, got %v", err)
	}
}

func TestCheckLimit_NilLimiter(t *testing.T) {
	var limiter *ExposureLimiter

	if err := limiter.CheckLimit(model.AssetStock, d(1e9), nil); err != nil {
		t.Errorf("nil limiter should allow everything, got %v", err)
	}
}
