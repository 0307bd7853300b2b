package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/echopolis/market-engine/internal/model"
)

// sessionRow is the SQLite row of one session snapshot.
type sessionRow struct {
	ID      string `gorm:"primaryKey"`
	Seed    int64
	Tick    int64
	State   string    // JSON-encoded model.Snapshot
	SavedAt time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

// tickRecordRow is the SQLite row of one tick record. Decimals are stored as
// text for exact precision.
type tickRecordRow struct {
	ID           string `gorm:"primaryKey"`
	SessionID    string `gorm:"uniqueIndex:idx_session_tick"`
	Tick         int64  `gorm:"uniqueIndex:idx_session_tick"`
	Phase        string
	Accrued      string
	MaturedCount int
	MaturedTotal string
	IndexValue   float64
	Timestamp    time.Time
}

func (tickRecordRow) TableName() string { return "tick_records" }

// SQLiteStore implements Store on an embedded SQLite file (pure Go driver).
// It is the default for single-player deployments without PostgreSQL.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if err := db.AutoMigrate(&sessionRow{}, &tickRecordRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := sessionRow{
		ID:      snap.SessionID,
		Seed:    snap.Seed,
		Tick:    snap.Tick,
		State:   string(state),
		SavedAt: snap.SavedAt,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(sessionID)
	}
	if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(row.State), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Select("id", "seed", "tick", "saved_at").
		Order("saved_at DESC").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionSummary{ID: r.ID, Seed: r.Seed, Tick: r.Tick, SavedAt: r.SavedAt})
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", sessionID).Delete(&sessionRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(sessionID)
		}
		return tx.Where("session_id = ?", sessionID).Delete(&tickRecordRow{}).Error
	})
}

func (s *SQLiteStore) InsertTickRecord(ctx context.Context, rec *model.TickRecord) error {
	row := tickRecordRow{
		ID:           rec.ID,
		SessionID:    rec.SessionID,
		Tick:         rec.Tick,
		Phase:        string(rec.Phase),
		Accrued:      rec.Accrued.String(),
		MaturedCount: rec.MaturedCount,
		MaturedTotal: rec.MaturedTotal.String(),
		IndexValue:   rec.IndexValue,
		Timestamp:    rec.Timestamp,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicate(rec)
	}
	return err
}

func (s *SQLiteStore) ListTickRecords(ctx context.Context, sessionID string) ([]model.TickRecord, error) {
	var rows []tickRecordRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("tick").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]model.TickRecord, 0, len(rows))
	for _, r := range rows {
		rec := model.TickRecord{
			ID:           r.ID,
			SessionID:    r.SessionID,
			Tick:         r.Tick,
			Phase:        model.Phase(r.Phase),
			MaturedCount: r.MaturedCount,
			IndexValue:   r.IndexValue,
			Timestamp:    r.Timestamp,
		}
		if err := parseAmounts(&rec, r.Accrued, r.MaturedTotal); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
