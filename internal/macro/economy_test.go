package macro

import (
	"math"
	"math/rand"
	"testing"

	"github.com/echopolis/market-engine/internal/model"
)

func newEconomy(seed int64) *Economy {
	return New(rand.New(rand.NewSource(seed)))
}

func TestAdvance_CycleClosesInOrder(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 2024, 99999} {
		e := newEconomy(seed)
		want := []model.Phase{
			model.PhasePeak,
			model.PhaseContraction,
			model.PhaseTrough,
			model.PhaseExpansion,
		}
		prev := e.Snapshot().Phase
		var seen []model.Phase

		for i := 0; i < 500 && len(seen) < len(want); i++ {
			s := e.Advance()
			if s.Phase == prev {
				continue
			}
			if s.Phase != prev.Next() {
				t.Fatalf("seed %d: skipped phase %s -> %s at tick %d", seed, prev, s.Phase, s.Tick)
			}
			seen = append(seen, s.Phase)
			prev = s.Phase
		}

		if len(seen) != len(want) {
			t.Fatalf("seed %d: cycle did not close within 500 ticks, saw %v", seed, seen)
		}
		for i := range want {
			if seen[i] != want[i] {
				t.Errorf("seed %d: transition %d = %s, want %s", seed, i, seen[i], want[i])
			}
		}
	}
}

func TestAdvance_BoundsAndRounding(t *testing.T) {
	e := newEconomy(3)
	for i := 0; i < 1000; i++ {
		s := e.Advance()
		if s.Sentiment < 0 || s.Sentiment > 100 {
			t.Fatalf("sentiment out of range: %v", s.Sentiment)
		}
		if s.GDPGrowth > maxGDPGrowth || s.GDPGrowth < minGDPGrowth {
			t.Fatalf("gdp out of range: %v", s.GDPGrowth)
		}
		if s.Inflation < 0 || s.InterestRate < 0 {
			t.Fatalf("negative inflation/rate: %+v", s)
		}
		for _, v := range []float64{s.GDPGrowth, s.Inflation, s.InterestRate, s.Sentiment} {
			if math.Abs(v*100-math.Round(v*100)) > 1e-6 {
				t.Fatalf("value %v not rounded to 2 decimals", v)
			}
		}
	}
}

func TestAdvance_InflationMeanReverts(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 7, 42, 100, 2024} {
		e := newEconomy(seed)
		var cycles int
		prev := e.Snapshot().Phase
		for i := 0; i < 1000; i++ {
			s := e.Advance()
			if s.Inflation >= 10 {
				t.Fatalf("seed %d tick %d: inflation %v drifting towards the %v cap", seed, s.Tick, s.Inflation, maxInflation)
			}
			if s.InterestRate >= 13.5 {
				t.Fatalf("seed %d tick %d: interest rate %v drifting towards the %v cap", seed, s.Tick, s.InterestRate, maxInterestRate)
			}
			if s.Phase != prev && s.Phase == model.PhaseExpansion {
				cycles++
			}
			prev = s.Phase
		}
		if cycles < 5 {
			t.Errorf("seed %d: expected at least 5 full cycles in 1000 ticks, got %d", seed, cycles)
		}
	}
}

func TestAdvance_DownturnPullsInflationToTarget(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)), WithInitial(model.MacroSnapshot{
		GDPGrowth:    1.5,
		Inflation:    10,
		InterestRate: 12,
		Sentiment:    50,
		Phase:        model.PhaseContraction,
	}))
	s := e.Advance()
	// 0.15 base decline plus 0.2 of the 8 points above target, +-0.05 noise.
	if math.Abs(s.Inflation-8.25) > 0.05+1e-9 {
		t.Errorf("expected inflation near 8.25, got %v", s.Inflation)
	}
	if want := 12 - 0.25 - 0.2*(12-neutralRate); math.Abs(s.InterestRate-round2(want)) > 1e-9 {
		t.Errorf("expected rate %v, got %v", round2(want), s.InterestRate)
	}
}

func TestAdvance_TickAndHistory(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)), WithHistoryCap(10))
	for i := 0; i < 25; i++ {
		e.Advance()
	}
	if got := e.Snapshot().Tick; got != 25 {
		t.Errorf("expected tick 25, got %d", got)
	}
	h := e.History()
	if len(h) != 10 {
		t.Fatalf("expected capped history of 10, got %d", len(h))
	}
	if h[len(h)-1] != e.Snapshot() {
		t.Error("last history entry should equal current snapshot")
	}
	if h[0].Tick != 16 {
		t.Errorf("expected oldest retained tick 16, got %d", h[0].Tick)
	}
}

func TestAdvance_Reproducible(t *testing.T) {
	a, b := newEconomy(11), newEconomy(11)
	for i := 0; i < 300; i++ {
		if sa, sb := a.Advance(), b.Advance(); sa != sb {
			t.Fatalf("diverged at tick %d: %+v vs %+v", i+1, sa, sb)
		}
	}
}

func TestAssetImpact_Bounded(t *testing.T) {
	e := newEconomy(5)
	for i := 0; i < 600; i++ {
		e.Advance()
		imp := e.AssetImpact()
		for _, v := range []float64{imp.Cash, imp.Stock, imp.Bond, imp.RealEstate} {
			if v < 0.90 || v > 1.10 {
				t.Fatalf("impact out of [0.90,1.10] at tick %d: %+v", i+1, imp)
			}
		}
	}
}

func TestAssetImpact_NoSustainedBias(t *testing.T) {
	var stock, bond, realEstate float64
	for _, p := range []model.Phase{model.PhaseExpansion, model.PhasePeak, model.PhaseContraction, model.PhaseTrough} {
		imp := ImpactOf(model.MacroSnapshot{Phase: p})
		stock += imp.Stock
		bond += imp.Bond
		realEstate += imp.RealEstate
	}
	for name, sum := range map[string]float64{"stock": stock, "bond": bond, "real_estate": realEstate} {
		if avg := sum / 4; math.Abs(avg-1) > 0.05 {
			t.Errorf("%s average multiplier %v biased beyond 5%%", name, avg)
		}
	}
}

func TestAssetImpact_CashErodesWithInflation(t *testing.T) {
	imp := ImpactOf(model.MacroSnapshot{Phase: model.PhaseExpansion, Inflation: 6})
	if math.Abs(imp.Cash-0.995) > 1e-12 {
		t.Errorf("expected cash impact 0.995, got %v", imp.Cash)
	}
}

func TestImport_RejectsInvalidPhase(t *testing.T) {
	e := newEconomy(1)
	before := e.Snapshot()
	err := e.Import(model.MacroState{Current: model.MacroSnapshot{Phase: "BOOM", Sentiment: 50}})
	if err == nil {
		t.Fatal("expected error for unknown phase")
	}
	if e.Snapshot() != before {
		t.Error("state should be untouched after a rejected import")
	}
}

func TestExportImport_RoundTripContinuesIdentically(t *testing.T) {
	a := newEconomy(8)
	for i := 0; i < 30; i++ {
		a.Advance()
	}
	b := New(rand.New(rand.NewSource(1)))
	if err := b.Import(a.Export()); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if b.Snapshot() != a.Snapshot() {
		t.Errorf("imported snapshot mismatch: %+v vs %+v", b.Snapshot(), a.Snapshot())
	}
	if len(b.History()) != len(a.History()) {
		t.Errorf("history length mismatch: %d vs %d", len(b.History()), len(a.History()))
	}
}
