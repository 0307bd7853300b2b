package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/echopolis/market-engine/internal/model"
)

// fixedImpact is an ImpactSource returning constant multipliers.
type fixedImpact model.AssetImpact

func (f fixedImpact) AssetImpact() model.AssetImpact { return model.AssetImpact(f) }

var neutral = fixedImpact{Cash: 1, Stock: 1, Bond: 1, RealEstate: 1}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("pos-%d", n)
	})
}

func newLedger(impact ImpactSource, opts ...Option) *Ledger {
	return New(impact, append([]Option{sequentialIDs()}, opts...)...)
}

func mustOpen(t *testing.T, l *Ledger, req OpenRequest) string {
	t.Helper()
	id, err := l.Open(req)
	if err != nil {
		t.Fatalf("open %+v: %v", req, err)
	}
	return id
}

func maturity(amount, rate float64, duration int) OpenRequest {
	return OpenRequest{
		Name:     "time deposit",
		Amount:   d(amount),
		Kind:     model.KindMaturity,
		Class:    model.AssetBond,
		Duration: duration,
		Rate:     d(rate),
	}
}

func monthly(amount, rate float64, duration int, class model.AssetClass) OpenRequest {
	return OpenRequest{
		Name:     "income fund",
		Amount:   d(amount),
		Kind:     model.KindMonthlyYield,
		Class:    class,
		Duration: duration,
		Rate:     d(rate),
	}
}

// --- Open tests ---

func TestOpen_Valid(t *testing.T) {
	l := newLedger(neutral)
	id := mustOpen(t, l, maturity(100000, 0.08, 3))

	p, err := l.Get(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RemainingPeriods != 3 || !p.Amount.Equal(d(100000)) || p.Kind != model.KindMaturity {
		t.Errorf("unexpected position: %+v", p)
	}
}

func TestOpen_Validation(t *testing.T) {
	cases := map[string]OpenRequest{
		"zero amount":     maturity(0, 0.05, 3),
		"negative amount": maturity(-10, 0.05, 3),
		"zero duration":   maturity(1000, 0.05, 0),
		"negative rate":   maturity(1000, -0.01, 3),
		"rate too high":   maturity(1000, 5.01, 3),
		"unknown kind":    {Amount: d(1000), Kind: "SWAP", Class: model.AssetBond, Duration: 3, Rate: d(0.05)},
		"unknown class":   {Amount: d(1000), Kind: model.KindMaturity, Class: "CRYPTO", Duration: 3, Rate: d(0.05)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			l := newLedger(neutral)
			if _, err := l.Open(req); !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if n := len(l.Positions()); n != 0 {
				t.Errorf("rejected open stored %d positions", n)
			}
		})
	}
}

func TestOpen_RateBoundsInclusive(t *testing.T) {
	l := newLedger(neutral)
	mustOpen(t, l, maturity(1000, 0, 1))
	mustOpen(t, l, maturity(1000, 5, 1))
}

func TestOpen_LimiterRejects(t *testing.T) {
	l := newLedger(neutral, WithLimiter(NewExposureLimiter(d(50000), d(80000))))
	mustOpen(t, l, monthly(50000, 0.05, 12, model.AssetStock))

	_, err := l.Open(monthly(40000, 0.05, 12, model.AssetStock))
	if !errors.Is(err, model.ErrInvalidArgument) || !errors.Is(err, ErrClassLimitExceeded) {
		t.Errorf("expected class limit as invalid argument, got %v", err)
	}
	_, err = l.Open(monthly(60000, 0.05, 12, model.AssetBond))
	if !errors.Is(err, ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
	mustOpen(t, l, monthly(40000, 0.05, 12, model.AssetBond))
}

// --- AdvanceTick tests ---

func TestAdvanceTick_MaturityConservation(t *testing.T) {
	l := newLedger(neutral)
	id := mustOpen(t, l, maturity(100000, 0.08, 3))

	for tick := int64(1); tick <= 2; tick++ {
		res, err := l.AdvanceTick(tick)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if len(res.Matured) != 0 || !res.Accrued.IsZero() {
			t.Fatalf("tick %d: unexpected settlement %+v", tick, res)
		}
	}

	res, err := l.AdvanceTick(3)
	if err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if len(res.Matured) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(res.Matured))
	}
	if res.Matured[0].PositionID != id || !res.Matured[0].Amount.Equal(decimal.NewFromInt(108000)) {
		t.Errorf("expected payout 108000 for %s, got %+v", id, res.Matured[0])
	}
	if !res.MaturedTotal().Equal(decimal.NewFromInt(108000)) {
		t.Errorf("expected matured total 108000, got %s", res.MaturedTotal())
	}
	if len(l.Positions()) != 0 {
		t.Error("matured position still open")
	}
	if _, err := l.Get(id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceTick_MonthlyAccrual(t *testing.T) {
	l := newLedger(neutral)
	mustOpen(t, l, monthly(120000, 0.06, 2, model.AssetBond))
	mustOpen(t, l, monthly(10000, 0.05, 2, model.AssetOther))

	res, err := l.AdvanceTick(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 120000*0.06/12 = 600, 10000*0.05/12 = 41.67 -> 42.
	if !res.Accrued.Equal(decimal.NewFromInt(642)) {
		t.Errorf("expected accrued 642, got %s", res.Accrued)
	}
	for _, p := range l.Positions() {
		if p.RemainingPeriods != 1 {
			t.Errorf("%s: expected 1 remaining period, got %d", p.ID, p.RemainingPeriods)
		}
	}

	if _, err := l.AdvanceTick(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(l.Positions()); n != 0 {
		t.Errorf("expected expired monthly positions to be dropped, %d left", n)
	}
}

func TestAdvanceTick_ImpactScaling(t *testing.T) {
	impact := fixedImpact{Cash: 0.995, Stock: 1.05, Bond: 0.98, RealEstate: 1.02}
	l := newLedger(impact)
	mustOpen(t, l, monthly(120000, 0.1, 6, model.AssetStock))
	mustOpen(t, l, OpenRequest{Name: "bond", Amount: d(10000), Kind: model.KindMaturity, Class: model.AssetBond, Duration: 1, Rate: d(0.1)})
	mustOpen(t, l, OpenRequest{Name: "other", Amount: d(10000), Kind: model.KindMaturity, Class: model.AssetOther, Duration: 1, Rate: d(0.1)})

	res, err := l.AdvanceTick(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 120000*0.1/12*1.05 = 1050.
	if !res.Accrued.Equal(decimal.NewFromInt(1050)) {
		t.Errorf("expected accrued 1050, got %s", res.Accrued)
	}
	want := map[string]int64{"bond": 10780, "other": 11000}
	for _, p := range res.Matured {
		if !p.Amount.Equal(decimal.NewFromInt(want[p.Name])) {
			t.Errorf("%s: expected payout %d, got %s", p.Name, want[p.Name], p.Amount)
		}
	}
}

func TestAdvanceTick_SentimentScalesStocks(t *testing.T) {
	mood := 90.0
	l := newLedger(neutral, WithSentiment(SentimentFunc(func() float64 { return mood })))
	mustOpen(t, l, monthly(120000, 0.1, 6, model.AssetStock))
	mustOpen(t, l, monthly(120000, 0.1, 6, model.AssetBond))

	res, err := l.AdvanceTick(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// stock: 1000*(1+40/2000) = 1020, bond: 1000.
	if !res.Accrued.Equal(decimal.NewFromInt(2020)) {
		t.Errorf("expected accrued 2020, got %s", res.Accrued)
	}

	mood = 50
	res, _ = l.AdvanceTick(2)
	if !res.Accrued.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected neutral mood accrued 2000, got %s", res.Accrued)
	}
}

func TestAdvanceTick_Idempotent(t *testing.T) {
	l := newLedger(neutral)
	id := mustOpen(t, l, maturity(5000, 0.1, 1))

	res, err := l.AdvanceTick(1)
	if err != nil || len(res.Matured) != 1 {
		t.Fatalf("expected 1 payout, got %+v, %v", res, err)
	}

	res, err = l.AdvanceTick(1)
	if !errors.Is(err, model.ErrStaleTick) {
		t.Fatalf("expected ErrStaleTick, got %v", err)
	}
	if len(res.Matured) != 0 {
		t.Errorf("stale tick paid out again: %+v", res)
	}
	if _, err := l.Get(id); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected matured position to stay removed, got %v", err)
	}
}

func TestAdvanceTick_StaleTickLeavesPositionsUntouched(t *testing.T) {
	l := newLedger(neutral)
	id := mustOpen(t, l, maturity(5000, 0.1, 4))
	if _, err := l.AdvanceTick(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tick := range []int64{5, 4, 0} {
		if _, err := l.AdvanceTick(tick); !errors.Is(err, model.ErrStaleTick) {
			t.Errorf("tick %d: expected ErrStaleTick, got %v", tick, err)
		}
	}
	p, _ := l.Get(id)
	if p.RemainingPeriods != 3 {
		t.Errorf("expected 3 remaining periods, got %d", p.RemainingPeriods)
	}
	if l.LastTick() != 5 {
		t.Errorf("expected last tick 5, got %d", l.LastTick())
	}
}

// --- Close tests ---

func TestClose_ReturnsPrincipal(t *testing.T) {
	l := newLedger(neutral)
	a := mustOpen(t, l, maturity(7000, 0.1, 6))
	b := mustOpen(t, l, maturity(3000, 0.1, 6))

	principal, err := l.Close(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !principal.Equal(d(7000)) {
		t.Errorf("expected principal 7000, got %s", principal)
	}
	open := l.Positions()
	if len(open) != 1 || open[0].ID != b {
		t.Errorf("expected only %s open, got %+v", b, open)
	}
}

func TestClose_Unknown(t *testing.T) {
	l := newLedger(neutral)
	if _, err := l.Close("missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPositions_OpenOrderAndCopy(t *testing.T) {
	l := newLedger(neutral)
	for i := 0; i < 5; i++ {
		mustOpen(t, l, maturity(float64(1000+i), 0.1, 6))
	}
	got := l.Positions()
	for i, p := range got {
		if p.ID != fmt.Sprintf("pos-%d", i+1) {
			t.Errorf("position %d: expected pos-%d, got %s", i, i+1, p.ID)
		}
	}
	got[0].RemainingPeriods = 99
	if p, _ := l.Get("pos-1"); p.RemainingPeriods == 99 {
		t.Error("Positions exposed internal storage")
	}
}

// --- Persistence tests ---

func TestExportImport_RoundTrip(t *testing.T) {
	src := newLedger(neutral)
	mustOpen(t, src, maturity(10000, 0.05, 3))
	mustOpen(t, src, monthly(20000, 0.04, 12, model.AssetRealEstate))
	if _, err := src.AdvanceTick(1); err != nil {
		t.Fatal(err)
	}

	dst := newLedger(neutral)
	if err := dst.Import(src.Export()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.LastTick() != 1 || len(dst.Positions()) != 2 {
		t.Fatalf("state not restored: last=%d positions=%d", dst.LastTick(), len(dst.Positions()))
	}

	a, _ := src.AdvanceTick(2)
	b, _ := dst.AdvanceTick(2)
	if !a.Accrued.Equal(b.Accrued) {
		t.Errorf("restored ledger diverged: %s vs %s", a.Accrued, b.Accrued)
	}
}

func TestImport_RejectsInvalid(t *testing.T) {
	l := newLedger(neutral)
	mustOpen(t, l, maturity(10000, 0.05, 3))

	dup := model.LedgerState{Positions: []model.Position{
		{ID: "x", Amount: d(1), Kind: model.KindMaturity, Class: model.AssetBond, RemainingPeriods: 1},
		{ID: "x", Amount: d(1), Kind: model.KindMaturity, Class: model.AssetBond, RemainingPeriods: 1},
	}}
	if err := l.Import(dup); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if len(l.Positions()) != 1 {
		t.Error("failed import replaced positions")
	}

	for _, rate := range []float64{-0.01, 5.01} {
		st := model.LedgerState{Positions: []model.Position{
			{ID: "y", Amount: d(1000), Kind: model.KindMonthlyYield, Class: model.AssetStock, RemainingPeriods: 6, Rate: d(rate)},
		}}
		if err := l.Import(st); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("rate %v: expected ErrInvalidArgument, got %v", rate, err)
		}
	}
	if len(l.Positions()) != 1 {
		t.Error("rejected rate replaced positions")
	}
}
