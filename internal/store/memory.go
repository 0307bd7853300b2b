package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/echopolis/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte // encoded, so callers never share state
	summaries map[string]SessionSummary
	records   []model.TickRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
		summaries: make(map[string]SessionSummary),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.SessionID] = data
	s.summaries[snap.SessionID] = SessionSummary{
		ID:      snap.SessionID,
		Seed:    snap.Seed,
		Tick:    snap.Tick,
		SavedAt: snap.SavedAt,
	}
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, sessionID string) (*model.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.snapshots[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(sessionID)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionSummary, 0, len(s.summaries))
	for _, sum := range s.summaries {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.After(out[j].SavedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[sessionID]; !ok {
		return notFound(sessionID)
	}
	delete(s.snapshots, sessionID)
	delete(s.summaries, sessionID)

	kept := s.records[:0]
	for _, r := range s.records {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func (s *MemoryStore) InsertTickRecord(_ context.Context, rec *model.TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.SessionID == rec.SessionID && r.Tick == rec.Tick {
			return duplicate(rec)
		}
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) ListTickRecords(_ context.Context, sessionID string) ([]model.TickRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TickRecord
	for _, r := range s.records {
		if r.SessionID == sessionID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Tick < result[j].Tick })
	return result, nil
}
