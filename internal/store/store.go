// Package store defines the persistence interface for simulation sessions.
// Implementations include PostgreSQL (source of truth), SQLite (embedded,
// single-player), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/echopolis/market-engine/internal/model"
)

// ErrDuplicateRecord is returned when a tick record for the same session and
// tick already exists. Tick records are immutable.
var ErrDuplicateRecord = errors.New("store: duplicate tick record")

// SessionSummary is the listing view of a persisted session.
type SessionSummary struct {
	ID      string    `json:"id" gorm:"primaryKey"`
	Seed    int64     `json:"seed"`
	Tick    int64     `json:"tick"`
	SavedAt time.Time `json:"saved_at"`
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Snapshots ---

	// SaveSnapshot creates or replaces the snapshot of a session.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error

	// LoadSnapshot retrieves the latest snapshot of a session.
	LoadSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error)

	// ListSessions returns every persisted session, most recently saved first.
	ListSessions(ctx context.Context) ([]SessionSummary, error)

	// DeleteSession removes a session's snapshot and tick records.
	DeleteSession(ctx context.Context, sessionID string) error

	// --- Immutable tick records ---

	// InsertTickRecord appends an immutable settlement record.
	InsertTickRecord(ctx context.Context, rec *model.TickRecord) error

	// ListTickRecords returns a session's records ordered by tick.
	ListTickRecords(ctx context.Context, sessionID string) ([]model.TickRecord, error)
}

func notFound(sessionID string) error {
	return fmt.Errorf("%w: session %s", model.ErrNotFound, sessionID)
}

func duplicate(rec *model.TickRecord) error {
	return fmt.Errorf("%w: session %s tick %d", ErrDuplicateRecord, rec.SessionID, rec.Tick)
}

// parseAmounts decodes the text-encoded decimals of a stored tick record.
func parseAmounts(rec *model.TickRecord, accrued, maturedTotal string) error {
	var err error
	if rec.Accrued, err = decimal.NewFromString(accrued); err != nil {
		return fmt.Errorf("tick record %s: accrued %q: %w", rec.ID, accrued, err)
	}
	if rec.MaturedTotal, err = decimal.NewFromString(maturedTotal); err != nil {
		return fmt.Errorf("tick record %s: matured total %q: %w", rec.ID, maturedTotal, err)
	}
	return nil
}
