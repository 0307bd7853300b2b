// Package sim composes one macro economy, one market engine and one
// investment ledger into an isolated simulation session.
//
// A session owns its components and their random sources. All access goes
// through the session mutex, so independent sessions advance in parallel
// while a single session is always advanced by one caller at a time.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/echopolis/market-engine/internal/ledger"
	"github.com/echopolis/market-engine/internal/macro"
	"github.com/echopolis/market-engine/internal/market"
	"github.com/echopolis/market-engine/internal/model"
)

// ErrHalted is returned by every advance of a session that hit an internal
// invariant violation.
var ErrHalted = errors.New("sim: session halted")

// Random streams of a session.
const (
	macroStream  = 0
	marketStream = 1

	restoreStride = 1 << 16
)

// Config parameterizes a new session.
type Config struct {
	Seed         int64
	StartDate    time.Time
	WarmupDays   int
	Window       int
	Catalog      []model.Instrument
	Limiter      *ledger.ExposureLimiter
	UseSentiment bool
}

// TickReport is the outcome of one simulated month.
type TickReport struct {
	Tick       int64               `json:"tick"`
	Macro      model.MacroSnapshot `json:"macro"`
	Impact     model.AssetImpact   `json:"impact"`
	Month      market.MonthSummary `json:"month"`
	Settlement ledger.TickResult   `json:"settlement"`
}

// Info is a compact description of a session.
type Info struct {
	ID            string      `json:"id"`
	Seed          int64       `json:"seed"`
	Tick          int64       `json:"tick"`
	Phase         model.Phase `json:"phase"`
	Date          time.Time   `json:"date"`
	IndexValue    float64     `json:"index_value"`
	OpenPositions int         `json:"open_positions"`
	Halted        bool        `json:"halted"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Simulation is one isolated session.
type Simulation struct {
	mu        sync.Mutex
	saveMu    sync.Mutex // orders SaveWith calls
	id        string
	cfg       Config
	createdAt time.Time

	economy *macro.Economy
	engine  *market.Engine
	ledger  *ledger.Ledger
	halt    error
}

// New builds a session and runs the configured warmup days so the pattern
// statistics have history to work from.
func New(id string, cfg Config) (*Simulation, error) {
	s := &Simulation{id: id, cfg: cfg, createdAt: time.Now().UTC()}
	if err := s.build(0); err != nil {
		return nil, err
	}
	for d := 0; d < cfg.WarmupDays; d++ {
		if _, err := s.engine.AdvanceDay(); err != nil {
			return nil, fmt.Errorf("warmup day %d: %w", d, err)
		}
	}
	return s, nil
}

// Restore builds a session from a persisted snapshot. Random sources are
// reseeded from the snapshot seed and tick.
func Restore(snap model.Snapshot, cfg Config) (*Simulation, error) {
	cfg.Seed = snap.Seed
	s := &Simulation{id: snap.SessionID, cfg: cfg, createdAt: time.Now().UTC()}
	if err := s.load(snap); err != nil {
		return nil, err
	}
	return s, nil
}

// build wires fresh components whose random streams derive from the
// session seed and tick.
func (s *Simulation) build(tick int64) error {
	economy := macro.New(newRand(s.cfg.Seed, tick, macroStream))

	var opts []market.Option
	if s.cfg.Catalog != nil {
		opts = append(opts, market.WithCatalog(s.cfg.Catalog))
	}
	if !s.cfg.StartDate.IsZero() {
		opts = append(opts, market.WithStartDate(s.cfg.StartDate))
	}
	if s.cfg.Window > 0 {
		opts = append(opts, market.WithWindow(s.cfg.Window))
	}
	engine, err := market.New(newRand(s.cfg.Seed, tick, marketStream), opts...)
	if err != nil {
		return err
	}

	lopts := []ledger.Option{ledger.WithLimiter(s.cfg.Limiter)}
	if s.cfg.UseSentiment {
		lopts = append(lopts, ledger.WithSentiment(ledger.SentimentFunc(func() float64 {
			return economy.Snapshot().Sentiment
		})))
	}

	s.economy = economy
	s.engine = engine
	s.ledger = ledger.New(economy, lopts...)
	return nil
}

func newRand(seed, tick int64, stream int64) *rand.Rand {
	return rand.New(rand.NewSource(seed + stream + tick*restoreStride))
}

// ID returns the session id.
func (s *Simulation) ID() string { return s.id }

// Info describes the session.
func (s *Simulation) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.economy.Snapshot()
	return Info{
		ID:            s.id,
		Seed:          s.cfg.Seed,
		Tick:          snap.Tick,
		Phase:         snap.Phase,
		Date:          s.engine.Date(),
		IndexValue:    s.engine.Trend().IndexValue,
		OpenPositions: len(s.ledger.Positions()),
		Halted:        s.halt != nil,
		CreatedAt:     s.createdAt,
	}
}

// AdvanceTick advances one month: the macro economy first, then the market
// under the new stock bias, then the ledger against the same tick's
// multipliers.
func (s *Simulation) AdvanceTick() (TickReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.halted(); err != nil {
		return TickReport{}, err
	}

	snap := s.economy.Advance()
	impact := s.economy.AssetImpact()
	s.engine.ApplyMacro(impact)

	month, err := s.engine.AdvanceMonth()
	if err != nil {
		return TickReport{}, s.fail(err)
	}
	settlement, err := s.ledger.AdvanceTick(snap.Tick)
	if err != nil {
		return TickReport{}, s.fail(err)
	}

	slog.Debug("tick advanced",
		"session", s.id,
		"tick", snap.Tick,
		"phase", snap.Phase,
		"index", month.IndexEnd,
		"accrued", settlement.Accrued.String(),
		"matured", len(settlement.Matured),
	)
	return TickReport{
		Tick:       snap.Tick,
		Macro:      snap,
		Impact:     impact,
		Month:      month,
		Settlement: settlement,
	}, nil
}

// AdvanceDay generates one trading day without moving the macro tick.
func (s *Simulation) AdvanceDay() (map[string]model.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.halted(); err != nil {
		return nil, err
	}
	bars, err := s.engine.AdvanceDay()
	if err != nil {
		return nil, s.fail(err)
	}
	return bars, nil
}

func (s *Simulation) halted() error {
	if s.halt != nil {
		return fmt.Errorf("%w: %v", ErrHalted, s.halt)
	}
	return nil
}

// fail records invariant violations so the session stops advancing.
func (s *Simulation) fail(err error) error {
	if errors.Is(err, model.ErrInternalInvariant) {
		s.halt = err
		slog.Error("session halted", "session", s.id, "error", err)
	}
	return err
}

// OpenPosition opens a ledger position.
func (s *Simulation) OpenPosition(req ledger.OpenRequest) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.ledger.Open(req)
	if err != nil {
		return model.Position{}, err
	}
	return s.ledger.Get(id)
}

// ClosePosition closes a ledger position and returns its principal.
func (s *Simulation) ClosePosition(id string) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ledger.Get(id)
	if err != nil {
		return model.Position{}, err
	}
	if _, err := s.ledger.Close(id); err != nil {
		return model.Position{}, err
	}
	return p, nil
}

// OpenPositions returns the open positions in open order.
func (s *Simulation) OpenPositions() []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Positions()
}

// Quote returns the current quote of an instrument.
func (s *Simulation) Quote(code string) (market.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Quote(code)
}

// Quotes returns the quotes of every instrument.
func (s *Simulation) Quotes() []market.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Quotes()
}

// History returns up to limit recent bars of an instrument.
func (s *Simulation) History(code string, limit int) ([]model.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.History(code, limit)
}

// Pattern returns the trailing statistics of an instrument.
func (s *Simulation) Pattern(code string) (market.PatternStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AnalyzePattern(code)
}

// Trend returns the market trend state.
func (s *Simulation) Trend() model.TrendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Trend()
}

// MacroSnapshot returns the current macro state.
func (s *Simulation) MacroSnapshot() model.MacroSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.Snapshot()
}

// MacroHistory returns the retained macro snapshots, oldest first.
func (s *Simulation) MacroHistory() []model.MacroSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.History()
}

// AssetImpact returns the multipliers of the current macro state.
func (s *Simulation) AssetImpact() model.AssetImpact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.AssetImpact()
}

// ExportState returns a snapshot of the whole session.
func (s *Simulation) ExportState() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Snapshot{
		SessionID: s.id,
		Seed:      s.cfg.Seed,
		Tick:      s.economy.Snapshot().Tick,
		Market:    s.engine.Export(),
		Macro:     s.economy.Export(),
		Ledger:    s.ledger.Export(),
		SavedAt:   time.Now().UTC(),
	}
}

// SaveWith exports the session and passes the snapshot to save while holding
// the session's save lock. Each call exports after the previous save
// finished, so a store never receives an older snapshot after a newer one.
func (s *Simulation) SaveWith(save func(*model.Snapshot) error) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	snap := s.ExportState()
	return save(&snap)
}

// ImportState replaces the session state with snap. Components are rebuilt
// and validated before anything is swapped in; a successful import clears a
// halt.
func (s *Simulation) ImportState(snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := &Simulation{id: s.id, cfg: s.cfg, createdAt: s.createdAt}
	next.cfg.Seed = snap.Seed
	if err := next.load(snap); err != nil {
		return err
	}
	s.cfg = next.cfg
	s.economy, s.engine, s.ledger = next.economy, next.engine, next.ledger
	s.halt = nil
	return nil
}

func (s *Simulation) load(snap model.Snapshot) error {
	if snap.Macro.Current.Tick != snap.Tick || snap.Ledger.LastTick > snap.Tick {
		return fmt.Errorf("%w: snapshot ticks disagree (tick %d, macro %d, ledger %d)",
			model.ErrInvalidArgument, snap.Tick, snap.Macro.Current.Tick, snap.Ledger.LastTick)
	}
	if err := s.build(snap.Tick); err != nil {
		return err
	}
	if err := s.economy.Import(snap.Macro); err != nil {
		return err
	}
	if err := s.engine.Import(snap.Market); err != nil {
		return err
	}
	return s.ledger.Import(snap.Ledger)
}
