package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"libreria/internal/audit"
	"libreria/internal/catalog"
	"libreria/internal/order"
	"libreria/internal/platform/metrics"
	"libreria/internal/platform/middleware"
	"libreria/pkg/attrs"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
	"libreria/pkg/platform/sentinel"
)

// Store persists orders. GetOrCreateDraft must be atomic: under concurrent
// calls for one owner, every caller sees the same draft. The whole
// one-draft-per-owner invariant rests on that guarantee.
type Store interface {
	// GetOrCreateDraft returns the owner's draft, creating one if absent.
	// The boolean reports whether a new draft was created.
	GetOrCreateDraft(ctx context.Context, userID domain.UserID) (*order.Order, bool, error)
	FindByID(ctx context.Context, id domain.OrderID) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
	ListByOwner(ctx context.Context, userID domain.UserID) ([]*order.Order, error)
	ListSubmitted(ctx context.Context) ([]*order.Order, error)
}

// PriceLookup resolves a book to its current price for capture onto items.
type PriceLookup interface {
	FindByID(ctx context.Context, id domain.BookID) (*catalog.Book, error)
}

// AuditPublisher fans audit events out to the configured sink.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SalesRecorder bumps a book's running sales counter when an order holding
// it is accepted.
type SalesRecorder interface {
	AddSales(ctx context.Context, id domain.BookID, quantity int) error
}

// AddItem is one requested addition to a draft.
type AddItem struct {
	BookID   domain.BookID
	Quantity int
}

// Actor identifies the caller for ownership and privilege checks.
type Actor struct {
	UserID  domain.UserID
	IsStaff bool
}

// Service owns the order state machine and its mutation contract.
type Service struct {
	orders         Store
	prices         PriceLookup
	sales          SalesRecorder
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSalesRecorder sets the catalog hook that tallies sales on acceptance.
func WithSalesRecorder(r SalesRecorder) Option {
	return func(s *Service) { s.sales = r }
}

// New constructs a Service.
func New(orders Store, prices PriceLookup, opts ...Option) *Service {
	s := &Service{orders: orders, prices: prices, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft returns the actor's current draft, creating it if absent.
func (s *Service) Draft(ctx context.Context, actor Actor) (*order.Order, error) {
	o, created, err := s.orders.GetOrCreateDraft(ctx, actor.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	if created && s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	return o, nil
}

// AddItems appends items to a draft, capturing unit prices at add time.
// A book already present on the draft has its quantity merged; the client
// is expected to have rejected the duplicate before calling, so a merge
// here only happens on racing adds.
func (s *Service) AddItems(ctx context.Context, actor Actor, orderID domain.OrderID, adds []AddItem) (*order.Order, error) {
	if len(adds) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "items are required")
	}
	for _, add := range adds {
		if add.BookID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "book id is required")
		}
		if add.Quantity <= 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "quantity must be positive")
		}
	}

	return s.mutateOwned(ctx, actor, orderID, "failed to update draft", func(o *order.Order) error {
		if o.Status != order.StatusDraft {
			return dErrors.New(dErrors.CodeInvariantViolation, "items can only be added to an active cart; this order was already submitted")
		}
		for _, add := range adds {
			book, err := s.prices.FindByID(ctx, add.BookID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeValidation, "book "+add.BookID.String()+" does not exist")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up book")
			}
			if existing := o.ItemByBook(add.BookID); existing != nil {
				existing.Quantity += add.Quantity
				continue
			}
			o.Items = append(o.Items, order.Item{
				ID:        domain.ItemID(uuid.New()),
				BookID:    add.BookID,
				UnitPrice: book.Price,
				Quantity:  add.Quantity,
			})
		}
		o.RecomputeTotal()
		return nil
	})
}

// RemoveItem deletes a single item from a draft.
func (s *Service) RemoveItem(ctx context.Context, actor Actor, orderID domain.OrderID, itemID domain.ItemID) (*order.Order, error) {
	return s.mutateOwned(ctx, actor, orderID, "failed to update draft", func(o *order.Order) error {
		if o.Status != order.StatusDraft {
			return dErrors.New(dErrors.CodeInvariantViolation, "items can only be removed from an active cart")
		}
		if !o.RemoveItemByID(itemID) {
			return dErrors.New(dErrors.CodeNotFound, "item not found")
		}
		o.RecomputeTotal()
		return nil
	})
}

// AttachProof transitions DRAFT -> SUBMITTED. The only legal exit from
// DRAFT, and only for a non-empty draft.
func (s *Service) AttachProof(ctx context.Context, actor Actor, orderID domain.OrderID, proofRef string) (*order.Order, error) {
	if proofRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "proof of payment is required")
	}
	o, err := s.mutateOwned(ctx, actor, orderID, "failed to submit order", func(o *order.Order) error {
		if o.Status != order.StatusDraft {
			return dErrors.New(dErrors.CodeInvariantViolation, "proof can only be attached to an active cart")
		}
		if len(o.Items) == 0 {
			return dErrors.New(dErrors.CodeValidation, "cannot submit an empty cart")
		}
		o.ProofRef = proofRef
		o.Status = order.StatusSubmitted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersSubmitted.Inc()
	}
	s.logAudit(ctx, audit.EventOrderSubmitted,
		"user_id", o.UserID.String(),
		"order_id", o.ID.String(),
	)
	return o, nil
}

// Resolve transitions SUBMITTED -> ACCEPTED/REJECTED. Privileged only; both
// targets are terminal, so a second resolution attempt fails.
func (s *Service) Resolve(ctx context.Context, actor Actor, orderID domain.OrderID, target order.Status) (*order.Order, error) {
	if !actor.IsStaff {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators can change order status")
	}
	if target != order.StatusAccepted && target != order.StatusRejected {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be ACCEPTED or REJECTED")
	}

	o, err := s.mutateOwned(ctx, actor, orderID, "failed to resolve order", func(o *order.Order) error {
		if o.Status == order.StatusDraft {
			return dErrors.New(dErrors.CodeInvariantViolation, "an active cart cannot be resolved; it must be submitted first")
		}
		if o.Status.Terminal() {
			return dErrors.New(dErrors.CodeInvariantViolation, "order is already resolved")
		}
		o.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	if target == order.StatusAccepted {
		s.recordSales(ctx, o)
	}
	if s.metrics != nil {
		s.metrics.OrdersResolved.WithLabelValues(string(target)).Inc()
	}
	event := audit.EventOrderAccepted
	if target == order.StatusRejected {
		event = audit.EventOrderRejected
	}
	s.logAudit(ctx, event,
		"user_id", o.UserID.String(),
		"order_id", o.ID.String(),
		"actor_id", actor.UserID.String(),
	)
	return o, nil
}

// ListForActor returns the caller's orders; staff see the review queue of
// all submitted orders instead.
func (s *Service) ListForActor(ctx context.Context, actor Actor) ([]*order.Order, error) {
	var (
		orders []*order.Order
		err    error
	)
	if actor.IsStaff {
		orders, err = s.orders.ListSubmitted(ctx)
	} else {
		orders, err = s.orders.ListByOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list orders")
	}
	return orders, nil
}

// maxUpdateAttempts bounds the reloads a mutation gets when racing another
// writer on the same order.
const maxUpdateAttempts = 3

// mutateOwned runs the load-mutate-update cycle under optimistic locking:
// a version conflict from the store means another client committed first,
// so the order is reloaded and the mutation reapplied against fresh state.
// Concurrent adds of different books therefore both survive instead of the
// later writer erasing the earlier one's item.
func (s *Service) mutateOwned(ctx context.Context, actor Actor, orderID domain.OrderID, failMsg string, mutate func(o *order.Order) error) (*order.Order, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		o, err := s.loadOwned(ctx, actor, orderID)
		if err != nil {
			return nil, err
		}
		if err := mutate(o); err != nil {
			return nil, err
		}
		o.UpdatedAt = s.now()
		err = s.orders.Update(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, failMsg)
		}
	}
	return nil, dErrors.New(dErrors.CodeConflict, "order was modified concurrently; please retry")
}

// recordSales tallies accepted items onto the catalog. Best effort: the
// resolution already committed, so a tally failure is logged, not surfaced.
func (s *Service) recordSales(ctx context.Context, o *order.Order) {
	if s.sales == nil {
		return
	}
	for i := range o.Items {
		item := &o.Items[i]
		if err := s.sales.AddSales(ctx, item.BookID, item.Quantity); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to record sales",
				"error", err,
				"book_id", item.BookID.String(),
				"order_id", o.ID.String(),
			)
		}
	}
}

// loadOwned fetches the order and enforces ownership: a foreign order is an
// authorization error for everyone but staff.
func (s *Service) loadOwned(ctx context.Context, actor Actor, orderID domain.OrderID) (*order.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order")
	}
	if o.UserID != actor.UserID && !actor.IsStaff {
		return nil, dErrors.New(dErrors.CodeForbidden, "not authorized")
	}
	return o, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	userID := attrs.ExtractString(attributes, "user_id")
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   attrs.ExtractString(attributes, "order_id"),
		Action:    event,
		RequestID: middleware.GetRequestID(ctx),
	})
}
