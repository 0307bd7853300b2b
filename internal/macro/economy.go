// Package macro models a four-phase economic cycle advanced one tick (one
// in-game month) at a time, and derives per-asset-class return multipliers
// from the current phase.
//
// The cycle always runs EXPANSION → PEAK → CONTRACTION → TROUGH → EXPANSION.
// Each phase has its own drift rules and exactly one exit condition on
// gdp_growth (plus inflation for EXPANSION). Per-phase noise is always smaller
// than the drift pushing gdp towards the exit, so every phase terminates.
package macro

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/echopolis/market-engine/internal/model"
)

// DefaultHistoryCap keeps ten years of monthly snapshots.
const DefaultHistoryCap = 120

// Bounds applied after every tick.
const (
	maxGDPGrowth    = 8.0
	minGDPGrowth    = -2.0
	maxInflation    = 12.0
	maxInterestRate = 15.0
	sentimentNoise  = 2.0
)

// Downturn phases pull inflation and the interest rate back towards their
// targets in proportion to the excess, so neither ratchets up across cycles.
const (
	targetInflation = 2.0
	neutralRate     = 2.5
	disinflation    = 0.2
)

// InitialState is the macro state a fresh economy starts from.
var InitialState = model.MacroSnapshot{
	GDPGrowth:    3.0,
	Inflation:    2.0,
	InterestRate: 2.5,
	Sentiment:    55,
	Phase:        model.PhaseExpansion,
}

// Economy owns the macro state. It is not safe for concurrent use; callers
// serialize advancement per simulation.
type Economy struct {
	rng        *rand.Rand
	state      model.MacroSnapshot
	history    []model.MacroSnapshot
	historyCap int
}

// Option configures an Economy.
type Option func(*Economy)

// WithInitial overrides the starting state.
func WithInitial(s model.MacroSnapshot) Option {
	return func(e *Economy) { e.state = s }
}

// WithHistoryCap bounds the snapshot history. Non-positive means unbounded.
func WithHistoryCap(n int) Option {
	return func(e *Economy) { e.historyCap = n }
}

// New creates an economy drawing all randomness from rng.
func New(rng *rand.Rand, opts ...Option) *Economy {
	e := &Economy{
		rng:        rng,
		state:      InitialState,
		historyCap: DefaultHistoryCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot returns the current macro state.
func (e *Economy) Snapshot() model.MacroSnapshot {
	return e.state
}

// History returns a copy of the recorded snapshots, oldest first.
func (e *Economy) History() []model.MacroSnapshot {
	out := make([]model.MacroSnapshot, len(e.history))
	copy(out, e.history)
	return out
}

// Advance moves the economy forward one tick and returns the new snapshot.
func (e *Economy) Advance() model.MacroSnapshot {
	s := e.state
	s.Tick++

	switch s.Phase {
	case model.PhaseExpansion:
		s.GDPGrowth = math.Min(s.GDPGrowth+0.1+e.noise(0.05), maxGDPGrowth)
		s.Inflation += 0.08 + e.noise(0.04)
		if s.Inflation > 3.0 {
			s.InterestRate += 0.1
		}
		s.Sentiment += 1

	case model.PhasePeak:
		s.GDPGrowth -= 0.3 + e.noise(0.1)
		s.Inflation += 0.05 + e.noise(0.03)
		s.InterestRate += 0.25
		s.Sentiment -= 2

	case model.PhaseContraction:
		s.GDPGrowth = math.Max(s.GDPGrowth-0.3+e.noise(0.1), minGDPGrowth)
		s.Inflation = math.Max(s.Inflation-0.15-excess(s.Inflation, targetInflation)+e.noise(0.05), 0)
		s.InterestRate = math.Max(s.InterestRate-0.25-excess(s.InterestRate, neutralRate), 0)
		s.Sentiment -= 3

	case model.PhaseTrough:
		s.GDPGrowth += 0.2 + e.noise(0.1)
		s.Inflation = math.Max(s.Inflation-0.05-excess(s.Inflation, targetInflation)+e.noise(0.02), 0)
		s.InterestRate = math.Max(s.InterestRate-0.1-excess(s.InterestRate, neutralRate), 0)
		s.Sentiment += 0.5
	}

	s.Sentiment += e.noise(sentimentNoise)
	s.Sentiment = clamp(s.Sentiment, 0, 100)
	s.Inflation = clamp(s.Inflation, 0, maxInflation)
	s.InterestRate = clamp(s.InterestRate, 0, maxInterestRate)

	s.GDPGrowth = round2(s.GDPGrowth)
	s.Inflation = round2(s.Inflation)
	s.InterestRate = round2(s.InterestRate)
	s.Sentiment = round2(s.Sentiment)

	if exitPhase(s) {
		next := s.Phase.Next()
		slog.Info("macro phase transition",
			"tick", s.Tick,
			"from", s.Phase,
			"to", next,
			"gdp_growth", s.GDPGrowth,
			"inflation", s.Inflation,
		)
		s.Phase = next
	}

	e.state = s
	e.history = append(e.history, s)
	if e.historyCap > 0 && len(e.history) > e.historyCap {
		e.history = e.history[len(e.history)-e.historyCap:]
	}
	return s
}

// exitPhase reports whether s satisfies the exit condition of its phase.
func exitPhase(s model.MacroSnapshot) bool {
	switch s.Phase {
	case model.PhaseExpansion:
		return s.GDPGrowth > 6.0 && s.Inflation > 4.0
	case model.PhasePeak:
		return s.GDPGrowth < 2.0
	case model.PhaseContraction:
		return s.GDPGrowth < 0
	case model.PhaseTrough:
		return s.GDPGrowth > 1.0
	}
	return false
}

// Export returns the economy's state for persistence.
func (e *Economy) Export() model.MacroState {
	return model.MacroState{
		Current: e.state,
		History: e.History(),
	}
}

// Import replaces the economy's state. The state is validated before any
// field is touched.
func (e *Economy) Import(st model.MacroState) error {
	if !st.Current.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", model.ErrInvalidArgument, st.Current.Phase)
	}
	if st.Current.Sentiment < 0 || st.Current.Sentiment > 100 {
		return fmt.Errorf("%w: sentiment %v out of [0,100]", model.ErrInvalidArgument, st.Current.Sentiment)
	}
	e.state = st.Current
	e.history = append([]model.MacroSnapshot(nil), st.History...)
	return nil
}

// noise draws uniformly from [-amplitude, amplitude).
func (e *Economy) noise(amplitude float64) float64 {
	return (e.rng.Float64()*2 - 1) * amplitude
}

// excess is the share of v above target removed in one downturn tick.
func excess(v, target float64) float64 {
	return disinflation * math.Max(v-target, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
