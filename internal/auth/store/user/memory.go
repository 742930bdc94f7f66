package user

import (
	"context"
	"strings"
	"sync"

	"libreria/internal/auth"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// InMemory keeps users in a mutex-guarded map. Username uniqueness is
// case-insensitive, matching the Postgres store.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[domain.UserID]*auth.User
	byName map[string]domain.UserID
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[domain.UserID]*auth.User),
		byName: make(map[string]domain.UserID),
	}
}

// CreateIfUsernameAvailable inserts the user unless the username is taken.
func (s *InMemory) CreateIfUsernameAvailable(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, exists := s.byName[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byName[key] = u.ID
	return nil
}

// FindByID returns the user or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.UserID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// SetStaff flips the staff flag. Promotion has no HTTP surface; it happens
// through seeding or operator tooling.
func (s *InMemory) SetStaff(_ context.Context, id domain.UserID, isStaff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.IsStaff = isStaff
	return nil
}

// FindByUsername is case-insensitive.
func (s *InMemory) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}
