package session

import (
	"context"
	"sync"
	"time"

	"libreria/internal/auth"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// InMemory keeps sessions in a mutex-guarded map with lazy expiry.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*auth.Session
	now      func() time.Time
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[domain.SessionID]*auth.Session),
		now:      time.Now,
	}
}

// WithClock overrides time for tests.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

// Create stores the session.
func (s *InMemory) Create(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// FindByID returns sentinel.ErrNotFound for unknown IDs and
// sentinel.ErrExpired for sessions past their TTL (and drops them).
func (s *InMemory) FindByID(_ context.Context, id domain.SessionID) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, id)
		return nil, sentinel.ErrExpired
	}
	cp := *sess
	return &cp, nil
}

// Delete is idempotent.
func (s *InMemory) Delete(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
