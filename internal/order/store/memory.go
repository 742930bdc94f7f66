package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"libreria/internal/order"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// InMemory keeps orders in mutex-guarded maps. drafts indexes the single
// DRAFT order per owner; GetOrCreateDraft holds the write lock across the
// check-and-insert, which is the whole atomicity story here.
type InMemory struct {
	mu     sync.Mutex
	orders map[domain.OrderID]*order.Order
	drafts map[domain.UserID]domain.OrderID
	now    func() time.Time
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		orders: make(map[domain.OrderID]*order.Order),
		drafts: make(map[domain.UserID]domain.OrderID),
		now:    time.Now,
	}
}

// WithClock overrides time for tests.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

// GetOrCreateDraft returns the owner's draft, creating it if absent.
func (s *InMemory) GetOrCreateDraft(_ context.Context, userID domain.UserID) (*order.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.drafts[userID]; ok {
		if o, ok := s.orders[id]; ok && o.Status == order.StatusDraft {
			return cloneOrder(o), false, nil
		}
	}

	now := s.now()
	o := &order.Order{
		ID:        domain.OrderID(uuid.New()),
		UserID:    userID,
		Status:    order.StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orders[o.ID] = o
	s.drafts[userID] = o.ID
	return cloneOrder(o), true, nil
}

// FindByID returns the order or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.OrderID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneOrder(o), nil
}

// Update overwrites the stored order. A caller holding a stale version gets
// sentinel.ErrConflict and must reload before retrying; this is what keeps
// two clients on one cart from erasing each other's items. Leaving DRAFT
// releases the owner's draft slot so the next GetOrCreateDraft starts a
// fresh cart.
func (s *InMemory) Update(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != o.Version {
		return sentinel.ErrConflict
	}
	if stored.Status == order.StatusDraft && o.Status != order.StatusDraft {
		if s.drafts[o.UserID] == o.ID {
			delete(s.drafts, o.UserID)
		}
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

// ListByOwner returns the owner's orders, newest first.
func (s *InMemory) ListByOwner(_ context.Context, userID domain.UserID) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListSubmitted returns all orders awaiting resolution, oldest first.
func (s *InMemory) ListSubmitted(_ context.Context) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*order.Order
	for _, o := range s.orders {
		if o.Status == order.StatusSubmitted {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func sortNewestFirst(orders []*order.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = make([]order.Item, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
