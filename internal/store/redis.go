package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echopolis/market-engine/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache. Writes
// go to the primary store and refresh or invalidate the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	return nil
}

func (s *CachedStore) InsertTickRecord(ctx context.Context, rec *model.TickRecord) error {
	if err := s.primary.InsertTickRecord(ctx, rec); err != nil {
		return err
	}
	// Invalidate the record list; next read will re-populate.
	s.rdb.Del(ctx, ticksKey(rec.SessionID))
	return nil
}

func (s *CachedStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.primary.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.rdb.Del(ctx, snapshotKey(sessionID), ticksKey(sessionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == nil {
		var snap model.Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

func (s *CachedStore) ListTickRecords(ctx context.Context, sessionID string) ([]model.TickRecord, error) {
	data, err := s.rdb.Get(ctx, ticksKey(sessionID)).Bytes()
	if err == nil {
		var records []model.TickRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.ListTickRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, ticksKey(sessionID), data, s.ttl)
	}
	return records, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	return s.primary.ListSessions(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSnapshot(ctx context.Context, snap *model.Snapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, snapshotKey(snap.SessionID), data, s.ttl)
	}
}

func snapshotKey(id string) string { return fmt.Sprintf("snapshot:%s", id) }
func ticksKey(id string) string    { return fmt.Sprintf("ticks:%s", id) }
