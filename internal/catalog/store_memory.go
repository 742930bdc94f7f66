package catalog

import (
	"context"
	"sync"

	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// InMemory keeps books in a mutex-guarded map.
type InMemory struct {
	mu    sync.RWMutex
	books map[domain.BookID]*Book
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{books: make(map[domain.BookID]*Book)}
}

// Put inserts or replaces a book. Used by seeding and tests.
func (s *InMemory) Put(_ context.Context, b *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.books[b.ID] = &cp
	return nil
}

// FindByID returns the book or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.BookID) (*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// AddSales bumps the book's running sales counter.
func (s *InMemory) AddSales(_ context.Context, id domain.BookID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	b.SalesCount += int64(quantity)
	return nil
}
