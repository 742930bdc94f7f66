package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// Postgres reads books from the books table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// FindByID returns the book or sentinel.ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, id domain.BookID) (*Book, error) {
	query := `SELECT id, title, author, isbn, price_cents, sales_count FROM books WHERE id = $1`

	var (
		b   Book
		bid uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, uuid.UUID(id)).Scan(&bid, &b.Title, &b.Author, &b.ISBN, &b.Price, &b.SalesCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query book: %w", err)
	}
	b.ID = domain.BookID(bid)
	return &b, nil
}

// AddSales bumps the book's running sales counter.
func (s *Postgres) AddSales(ctx context.Context, id domain.BookID, quantity int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE books SET sales_count = sales_count + $2 WHERE id = $1`,
		uuid.UUID(id), quantity)
	if err != nil {
		return fmt.Errorf("update sales count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
