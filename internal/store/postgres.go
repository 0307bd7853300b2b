package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echopolis/market-engine/internal/model"
)

// Schema creates the tables PostgresStore expects.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id        TEXT PRIMARY KEY,
	seed      BIGINT NOT NULL,
	tick      BIGINT NOT NULL,
	state     JSONB NOT NULL,
	saved_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tick_records (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	tick           BIGINT NOT NULL,
	phase          TEXT NOT NULL,
	accrued        NUMERIC NOT NULL,
	matured_count  INTEGER NOT NULL,
	matured_total  NUMERIC NOT NULL,
	index_value    DOUBLE PRECISION NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, tick)
);`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Snapshots are stored as JSONB; monetary values of tick records as NUMERIC
// for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, seed, tick, state, saved_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET seed = EXCLUDED.seed, tick = EXCLUDED.tick,
		     state = EXCLUDED.state, saved_at = EXCLUDED.saved_at`,
		snap.SessionID, snap.Seed, snap.Tick, string(state), snap.SavedAt,
	)
	return err
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state::TEXT FROM sessions WHERE id = $1`, sessionID).
		Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(state), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seed, tick, saved_at FROM sessions ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Seed, &sum.Tick, &sum.SavedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(sessionID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tick_records WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) InsertTickRecord(ctx context.Context, r *model.TickRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tick_records (id, session_id, tick, phase, accrued, matured_count, matured_total, index_value, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8, $9)`,
		r.ID, r.SessionID, r.Tick, string(r.Phase),
		r.Accrued.String(), r.MaturedCount, r.MaturedTotal.String(),
		r.IndexValue, r.Timestamp,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return duplicate(r)
	}
	return err
}

func (s *PostgresStore) ListTickRecords(ctx context.Context, sessionID string) ([]model.TickRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, tick, phase,
		        accrued::TEXT, matured_count, matured_total::TEXT,
		        index_value, timestamp
		 FROM tick_records WHERE session_id = $1 ORDER BY tick`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTickRecords(rows)
}

// pgxRows is the subset of pgx.Rows read by scanTickRecords.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTickRecords(rows pgxRows) ([]model.TickRecord, error) {
	var records []model.TickRecord
	for rows.Next() {
		var r model.TickRecord
		var phase, accruedS, maturedS string

		if err := rows.Scan(&r.ID, &r.SessionID, &r.Tick, &phase,
			&accruedS, &r.MaturedCount, &maturedS,
			&r.IndexValue, &r.Timestamp); err != nil {
			return nil, err
		}

		r.Phase = model.Phase(phase)
		if err := parseAmounts(&r, accruedS, maturedS); err != nil {
			return nil, err
		}

		records = append(records, r)
	}
	return records, rows.Err()
}
