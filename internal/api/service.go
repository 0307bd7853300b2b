// Package api provides the HTTP handlers for creating simulation sessions,
// advancing them and querying markets, the macro economy and positions.
//
// All monetary values use shopspring/decimal. Never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/echopolis/market-engine/internal/ledger"
	"github.com/echopolis/market-engine/internal/metrics"
	"github.com/echopolis/market-engine/internal/model"
	"github.com/echopolis/market-engine/internal/sim"
	"github.com/echopolis/market-engine/internal/store"
)

// Service handles session operations. Each session serializes its own
// mutations, so the service itself holds no lock.
type Service struct {
	registry *sim.Registry
	store    store.Store // optional; nil disables persistence
	wsHub    *WSHub      // optional WebSocket hub for real-time broadcasts
	defaults sim.Config
}

// NewService creates a new session service.
// Pass nil for st or hub if persistence or broadcasting is not needed.
func NewService(reg *sim.Registry, st store.Store, hub *WSHub, defaults sim.Config) *Service {
	return &Service{
		registry: reg,
		store:    st,
		wsHub:    hub,
		defaults: defaults,
	}
}

// Mount registers the session routes on r.
func (s *Service) Mount(r chi.Router) {
	r.Get("/sessions", s.ListSessions)
	r.Post("/sessions", s.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Delete("/", s.DeleteSession)

		// Advancement.
		r.Post("/tick", s.AdvanceTick)
		r.Post("/day", s.AdvanceDay)

		// Market queries.
		r.Get("/quotes", s.ListQuotes)
		r.Get("/quotes/{code}", s.GetQuote)
		r.Get("/quotes/{code}/history", s.GetHistory)
		r.Get("/quotes/{code}/pattern", s.GetPattern)
		r.Get("/trend", s.GetTrend)

		// Macro queries.
		r.Get("/macro", s.GetMacro)
		r.Get("/macro/history", s.GetMacroHistory)
		r.Get("/impact", s.GetImpact)

		// Positions.
		r.Get("/positions", s.ListPositions)
		r.Post("/positions", s.OpenPosition)
		r.Delete("/positions/{positionID}", s.ClosePosition)

		// Settlement records and state transfer.
		r.Get("/ticks", s.ListTickRecords)
		r.Get("/snapshot", s.ExportSnapshot)
		r.Put("/snapshot", s.ImportSnapshot)
	})
}

// --- Request types ---

// CreateSessionRequest is the JSON body for session creation. Omitted fields
// take the configured defaults.
type CreateSessionRequest struct {
	Seed         *int64 `json:"seed"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD
	WarmupDays   *int   `json:"warmup_days"`
	UseSentiment *bool  `json:"use_sentiment"`
}

// --- Session handlers ---

// CreateSession handles POST /api/v1/sessions
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	// An empty body takes every default.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := s.defaults
	switch {
	case req.Seed != nil:
		cfg.Seed = *req.Seed
	case cfg.Seed == 0:
		cfg.Seed = time.Now().UnixNano()
	}
	if req.StartDate != "" {
		start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.UTC)
		if err != nil {
			writeError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		cfg.StartDate = start
	}
	if req.WarmupDays != nil {
		if *req.WarmupDays < 0 {
			writeError(w, "warmup_days must not be negative", http.StatusBadRequest)
			return
		}
		cfg.WarmupDays = *req.WarmupDays
	}
	if req.UseSentiment != nil {
		cfg.UseSentiment = *req.UseSentiment
	}

	session, err := s.registry.Create(cfg)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	metrics.ActiveSessions.Set(float64(s.registry.Len()))
	s.persist(r.Context(), session)

	info := session.Info()
	slog.Info("session created", "id", info.ID, "seed", info.Seed, "date", info.Date)
	s.broadcast(WSMessage{Type: "session_created", SessionID: info.ID, Date: info.Date, IndexValue: info.IndexValue})

	writeJSON(w, http.StatusCreated, info)
}

// ListSessions handles GET /api/v1/sessions
func (s *Service) ListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.List()
	out := make([]sim.Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Info())
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionID}
// Drops the live session and its persisted snapshot and tick records.
func (s *Service) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.registry.Delete(id); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	metrics.ActiveSessions.Set(float64(s.registry.Len()))

	if s.store != nil {
		if err := s.store.DeleteSession(r.Context(), id); err != nil && !errors.Is(err, model.ErrNotFound) {
			slog.Error("failed to delete persisted session", "session", id, "err", err)
		}
	}
	slog.Info("session deleted", "id", id)
	s.broadcast(WSMessage{Type: "session_deleted", SessionID: id})
	w.WriteHeader(http.StatusNoContent)
}

// --- Advancement ---

// AdvanceTick handles POST /api/v1/sessions/{sessionID}/tick
// Advances one month and returns the tick report.
func (s *Service) AdvanceTick(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	report, err := s.advance(r.Context(), session)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AdvanceDay handles POST /api/v1/sessions/{sessionID}/day
// Generates one trading day without moving the macro tick.
func (s *Service) AdvanceDay(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	start := time.Now()
	bars, err := session.AdvanceDay()
	metrics.TickLatency.WithLabelValues("day").Observe(time.Since(start).Seconds())
	if err != nil {
		s.observeFailure(session.ID(), err)
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	s.persist(r.Context(), session)

	info := session.Info()
	s.broadcast(WSMessage{
		Type:       "day_advanced",
		SessionID:  info.ID,
		Tick:       info.Tick,
		Phase:      string(info.Phase),
		Date:       info.Date,
		IndexValue: info.IndexValue,
	})
	writeJSON(w, http.StatusOK, bars)
}

// AdvanceAll advances every live session by one tick and returns how many
// advanced. Halted sessions are skipped with a warning.
func (s *Service) AdvanceAll(ctx context.Context) int {
	n := 0
	for _, session := range s.registry.List() {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.advance(ctx, session); err != nil {
			slog.Warn("scheduled advance failed", "session", session.ID(), "err", err)
			continue
		}
		n++
	}
	return n
}

// advance runs one tick, then persists, records and broadcasts it.
// Persistence failures are logged; the session has already moved on.
func (s *Service) advance(ctx context.Context, session *sim.Simulation) (sim.TickReport, error) {
	start := time.Now()
	report, err := session.AdvanceTick()
	metrics.TickLatency.WithLabelValues("tick").Observe(time.Since(start).Seconds())
	if err != nil {
		s.observeFailure(session.ID(), err)
		return sim.TickReport{}, err
	}

	matured := report.Settlement.MaturedTotal()
	metrics.TicksTotal.WithLabelValues(string(report.Macro.Phase)).Inc()
	metrics.SettledAmount.WithLabelValues("accrued").Add(report.Settlement.Accrued.InexactFloat64())
	metrics.SettledAmount.WithLabelValues("matured").Add(matured.InexactFloat64())

	s.persist(ctx, session)
	if s.store != nil {
		rec := &model.TickRecord{
			ID:           uuid.New().String(),
			SessionID:    session.ID(),
			Tick:         report.Tick,
			Phase:        report.Macro.Phase,
			Accrued:      report.Settlement.Accrued,
			MaturedCount: len(report.Settlement.Matured),
			MaturedTotal: matured,
			IndexValue:   report.Month.IndexEnd,
			Timestamp:    time.Now().UTC(),
		}
		if err := s.store.InsertTickRecord(ctx, rec); err != nil {
			slog.Error("failed to record tick", "session", session.ID(), "tick", report.Tick, "err", err)
		}
	}

	slog.Info("tick advanced",
		"session", session.ID(),
		"tick", report.Tick,
		"phase", report.Macro.Phase,
		"index", report.Month.IndexEnd,
		"accrued", report.Settlement.Accrued.String(),
		"matured", matured.String(),
	)

	s.broadcast(WSMessage{
		Type:         "tick_advanced",
		SessionID:    session.ID(),
		Tick:         report.Tick,
		Phase:        string(report.Macro.Phase),
		Date:         session.Info().Date,
		IndexValue:   report.Month.IndexEnd,
		Accrued:      report.Settlement.Accrued.String(),
		MaturedTotal: matured.String(),
	})
	return report, nil
}

func (s *Service) observeFailure(id string, err error) {
	if errors.Is(err, model.ErrInternalInvariant) {
		metrics.HaltedSessions.Inc()
		slog.Error("session advance failed", "session", id, "err", err)
	}
}

// --- Market queries ---

// ListQuotes handles GET /api/v1/sessions/{sessionID}/quotes
func (s *Service) ListQuotes(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Quotes())
}

// GetQuote handles GET /api/v1/sessions/{sessionID}/quotes/{code}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	q, err := session.Quote(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetHistory handles GET /api/v1/sessions/{sessionID}/quotes/{code}/history
// Returns the most recent bars, optionally limited by ?limit=N.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	bars, err := session.History(chi.URLParam(r, "code"), limit)
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	if bars == nil {
		bars = []model.PriceBar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// GetPattern handles GET /api/v1/sessions/{sessionID}/quotes/{code}/pattern
func (s *Service) GetPattern(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	stats, err := session.Pattern(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTrend handles GET /api/v1/sessions/{sessionID}/trend
func (s *Service) GetTrend(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Trend())
}

// --- Macro queries ---

// GetMacro handles GET /api/v1/sessions/{sessionID}/macro
func (s *Service) GetMacro(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.MacroSnapshot())
}

// GetMacroHistory handles GET /api/v1/sessions/{sessionID}/macro/history
func (s *Service) GetMacroHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	history := session.MacroHistory()
	if history == nil {
		history = []model.MacroSnapshot{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GetImpact handles GET /api/v1/sessions/{sessionID}/impact
func (s *Service) GetImpact(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.AssetImpact())
}

// --- Positions ---

// ListPositions handles GET /api/v1/sessions/{sessionID}/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	positions := session.OpenPositions()
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// OpenPosition handles POST /api/v1/sessions/{sessionID}/positions
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req ledger.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, err := session.OpenPosition(req)
	if err != nil {
		metrics.PositionRejections.Inc()
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	metrics.PositionsOpened.WithLabelValues(string(pos.Kind), string(pos.Class)).Inc()
	s.persist(r.Context(), session)

	slog.Info("position opened",
		"session", session.ID(),
		"id", pos.ID,
		"kind", pos.Kind,
		"class", pos.Class,
		"amount", pos.Amount.String(),
		"rate", pos.Rate.String(),
		"periods", pos.RemainingPeriods,
	)
	writeJSON(w, http.StatusCreated, pos)
}

// ClosePosition handles DELETE /api/v1/sessions/{sessionID}/positions/{positionID}
// Returns the closed position; its principal goes back to the caller.
func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	pos, err := session.ClosePosition(chi.URLParam(r, "positionID"))
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	s.persist(r.Context(), session)
	slog.Info("position closed", "session", session.ID(), "id", pos.ID, "amount", pos.Amount.String())
	writeJSON(w, http.StatusOK, pos)
}

// --- Records and snapshots ---

// ListTickRecords handles GET /api/v1/sessions/{sessionID}/ticks
func (s *Service) ListTickRecords(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	records := []model.TickRecord{}
	if s.store != nil {
		recs, err := s.store.ListTickRecords(r.Context(), session.ID())
		if err != nil {
			writeError(w, "failed to list tick records", http.StatusInternalServerError)
			return
		}
		if recs != nil {
			records = recs
		}
	}
	writeJSON(w, http.StatusOK, records)
}

// ExportSnapshot handles GET /api/v1/sessions/{sessionID}/snapshot
func (s *Service) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.ExportState())
}

// ImportSnapshot handles PUT /api/v1/sessions/{sessionID}/snapshot
// Replaces the session state. A successful import clears a halt.
func (s *Service) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var snap model.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	snap.SessionID = session.ID()

	if err := session.ImportState(snap); err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return
	}
	s.persist(r.Context(), session)
	slog.Info("session imported", "session", session.ID(), "tick", snap.Tick)
	writeJSON(w, http.StatusOK, session.Info())
}

// --- Helpers ---

// session resolves the {sessionID} URL parameter, writing a 404 if unknown.
func (s *Service) session(w http.ResponseWriter, r *http.Request) (*sim.Simulation, bool) {
	session, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err.Error(), errorStatus(err))
		return nil, false
	}
	return session, true
}

// persist saves the session snapshot when a store is configured. Saves of
// one session are serialized so the stored snapshot is never rolled back by
// a slower concurrent request.
func (s *Service) persist(ctx context.Context, session *sim.Simulation) {
	if s.store == nil {
		return
	}
	err := session.SaveWith(func(snap *model.Snapshot) error {
		return s.store.SaveSnapshot(ctx, snap)
	})
	if err != nil {
		slog.Error("failed to save snapshot", "session", session.ID(), "err", err)
	}
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStaleTick),
		errors.Is(err, sim.ErrHalted),
		errors.Is(err, store.ErrDuplicateRecord):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
