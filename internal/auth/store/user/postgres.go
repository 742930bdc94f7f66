package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"libreria/internal/auth"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
)

// Postgres persists users in the users table. Username uniqueness is
// enforced by a unique index on lower(username).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateIfUsernameAvailable inserts the user, mapping unique violations to
// sentinel.ErrConflict.
func (s *Postgres) CreateIfUsernameAvailable(ctx context.Context, u *auth.User) error {
	query := `
		INSERT INTO users (id, username, email, first_name, last_name, is_staff, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(u.ID), u.Username, u.Email, u.FirstName, u.LastName, u.IsStaff, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetStaff flips the staff flag. Promotion has no HTTP surface; it happens
// through seeding or operator tooling.
func (s *Postgres) SetStaff(ctx context.Context, id domain.UserID, isStaff bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_staff = $2 WHERE id = $1`, uuid.UUID(id), isStaff)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID returns the user or sentinel.ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, id domain.UserID) (*auth.User, error) {
	return s.findBy(ctx, `WHERE id = $1`, uuid.UUID(id))
}

// FindByUsername is case-insensitive.
func (s *Postgres) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.findBy(ctx, `WHERE lower(username) = lower($1)`, username)
}

func (s *Postgres) findBy(ctx context.Context, where string, arg any) (*auth.User, error) {
	query := `
		SELECT id, username, email, first_name, last_name, is_staff, password_hash, created_at
		FROM users ` + where

	var (
		u  auth.User
		id uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&id, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.IsStaff, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.ID = domain.UserID(id)
	return &u, nil
}
