package audit

import (
	"context"
	"time"
)

// Store is the append-only sink behind the publisher. The Postgres
// implementation writes an outbox row; the memory one collects events for
// tests and single-process setups.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. Emitting is best effort from
// the caller's point of view: services log publish failures but never fail
// the business operation over them.
type Publisher struct {
	store Store
}

// NewPublisher builds a publisher over the given sink.
func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends the event, stamping the time if the caller did not.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}
