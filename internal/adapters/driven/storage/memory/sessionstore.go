package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of driven.SessionStore.
//
// Sessions are stored by pointer: the stop token inside a BatchState must be
// shared between the controller and whoever requests the stop.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.BatchState
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.BatchState),
	}
}

// Save stores or replaces a session.
func (s *SessionStore) Save(_ context.Context, state *domain.BatchState) error {
	if state == nil || state.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = state
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(_ context.Context, id string) (*domain.BatchState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return state, nil
}

// List returns every session ordered by ID.
func (s *SessionStore) List(_ context.Context) ([]*domain.BatchState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.BatchState, 0, len(s.sessions))
	for _, state := range s.sessions {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
