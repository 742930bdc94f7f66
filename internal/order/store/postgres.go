package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libreria/internal/order"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// Postgres persists orders across the orders and order_items tables. The
// one-draft-per-owner invariant is a partial unique index on (user_id)
// WHERE status = 'DRAFT'; GetOrCreateDraft races resolve through
// ON CONFLICT DO NOTHING plus a re-select.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// GetOrCreateDraft returns the owner's draft, creating it if absent.
func (s *Postgres) GetOrCreateDraft(ctx context.Context, userID domain.UserID) (*order.Order, bool, error) {
	insert := `
		INSERT INTO orders (id, user_id, status, total_cents, proof_ref, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, '', 1, $4, $4)
		ON CONFLICT (user_id) WHERE status = 'DRAFT' DO NOTHING
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	o := &order.Order{UserID: userID, Status: order.StatusDraft, Version: 1}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, insert, uuid.New(), uuid.UUID(userID), string(order.StatusDraft), now).
		Scan(&id, &o.CreatedAt, &o.UpdatedAt)
	if err == nil {
		o.ID = domain.OrderID(id)
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert draft: %w", err)
	}

	// Lost the race or the draft already existed; load it.
	query := `
		SELECT id, user_id, status, total_cents, proof_ref, version, created_at, updated_at
		FROM orders
		WHERE user_id = $1 AND status = 'DRAFT'`
	existing, err := s.scanOrder(ctx, s.pool.QueryRow(ctx, query, uuid.UUID(userID)))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByID returns the order with its items, or sentinel.ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, id domain.OrderID) (*order.Order, error) {
	query := `
		SELECT id, user_id, status, total_cents, proof_ref, version, created_at, updated_at
		FROM orders
		WHERE id = $1`
	return s.scanOrder(ctx, s.pool.QueryRow(ctx, query, uuid.UUID(id)))
}

// Update rewrites the order row and replaces its items in one transaction.
// The version gate makes the replace safe: a writer holding a stale version
// touches zero rows and gets sentinel.ErrConflict, so concurrent mutations
// of one cart serialize through reload-and-retry instead of overwriting
// each other's items.
func (s *Postgres) Update(ctx context.Context, o *order.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	update := `
		UPDATE orders
		SET status = $2, total_cents = $3, proof_ref = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $6`
	tag, err := tx.Exec(ctx, update,
		uuid.UUID(o.ID), string(o.Status), o.Total, o.ProofRef, o.UpdatedAt.UTC(), o.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, uuid.UUID(o.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if exists {
			return sentinel.ErrConflict
		}
		return sentinel.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, uuid.UUID(o.ID)); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for i := range o.Items {
		item := &o.Items[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, book_id, unit_price_cents, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.UUID(item.ID), uuid.UUID(o.ID), uuid.UUID(item.BookID), item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	o.Version++
	return nil
}

// ListByOwner returns the owner's orders, newest first.
func (s *Postgres) ListByOwner(ctx context.Context, userID domain.UserID) ([]*order.Order, error) {
	query := `
		SELECT id, user_id, status, total_cents, proof_ref, version, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`
	return s.listOrders(ctx, query, uuid.UUID(userID))
}

// ListSubmitted returns all orders awaiting resolution, oldest first.
func (s *Postgres) ListSubmitted(ctx context.Context) ([]*order.Order, error) {
	query := `
		SELECT id, user_id, status, total_cents, proof_ref, version, created_at, updated_at
		FROM orders
		WHERE status = 'SUBMITTED'
		ORDER BY updated_at ASC`
	return s.listOrders(ctx, query)
}

func (s *Postgres) listOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	for _, o := range out {
		if err := s.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Postgres) scanOrder(ctx context.Context, row pgx.Row) (*order.Order, error) {
	o, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Postgres) loadItems(ctx context.Context, o *order.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, book_id, unit_price_cents, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, uuid.UUID(o.ID))
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item         order.Item
			itemID, book uuid.UUID
		)
		if err := rows.Scan(&itemID, &book, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		item.ID = domain.ItemID(itemID)
		item.BookID = domain.BookID(book)
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func scanOrderRow(row pgx.Row) (*order.Order, error) {
	var (
		o        order.Order
		oid, uid uuid.UUID
		status   string
	)
	err := row.Scan(&oid, &uid, &status, &o.Total, &o.ProofRef, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.ID = domain.OrderID(oid)
	o.UserID = domain.UserID(uid)
	o.Status = order.Status(status)
	return &o, nil
}
