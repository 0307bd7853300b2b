package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/echopolis/market-engine/internal/model"
)

// Registry holds the live sessions of a process, keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Simulation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Simulation)}
}

// Create starts a new session under a fresh uuid.
func (r *Registry) Create(cfg Config) (*Simulation, error) {
	s, err := New(uuid.New().String(), cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s, nil
}

// Restore rebuilds a session from a snapshot and registers it, replacing a
// live session with the same id.
func (r *Registry) Restore(snap model.Snapshot, cfg Config) (*Simulation, error) {
	if snap.SessionID == "" {
		return nil, fmt.Errorf("%w: snapshot without session id", model.ErrInvalidArgument)
	}
	s, err := Restore(snap, cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Simulation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", model.ErrNotFound, id)
	}
	return s, nil
}

// List returns every live session, oldest first.
func (r *Registry) List() []*Simulation {
	r.mu.RLock()
	out := make([]*Simulation, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].createdAt.Before(out[j].createdAt)
		}
		return out[i].id < out[j].id
	})
	return out
}

// Delete drops a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", model.ErrNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
