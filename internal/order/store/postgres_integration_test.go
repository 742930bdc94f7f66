//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"libreria/internal/order"
	"libreria/pkg/domain"
	"libreria/pkg/platform/sentinel"
	"libreria/pkg/testutil/containers"
)

func seedUser(t *testing.T, pg *containers.PostgresContainer) domain.UserID {
	t.Helper()
	id := uuid.New()
	_, err := pg.Pool.Exec(context.Background(), `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, '', now())`,
		id, "user-"+id.String()[:8], id.String()[:8]+"@example.com")
	require.NoError(t, err)
	return domain.UserID(id)
}

func seedBookRow(t *testing.T, pg *containers.PostgresContainer) domain.BookID {
	t.Helper()
	id := uuid.New()
	_, err := pg.Pool.Exec(context.Background(), `
		INSERT INTO books (id, title, author, price_cents) VALUES ($1, 'Ficciones', 'Borges', 1500)`, id)
	require.NoError(t, err)
	return domain.BookID(id)
}

func TestPostgres_DraftInvariantUnderConcurrency(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations/0001_init.sql")
	s := NewPostgres(pg.Pool)
	ctx := context.Background()
	owner := seedUser(t, pg)

	const callers = 8
	ids := make([]domain.OrderID, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			o, _, err := s.GetOrCreateDraft(ctx, owner)
			if err != nil {
				return err
			}
			ids[i] = o.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "partial unique index must collapse racing creates to one draft")
	}
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations/0001_init.sql")
	s := NewPostgres(pg.Pool)
	ctx := context.Background()
	owner := seedUser(t, pg)
	book := seedBookRow(t, pg)

	draft, created, err := s.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	require.True(t, created)

	draft.Items = []order.Item{{
		ID:        domain.ItemID(uuid.New()),
		BookID:    book,
		UnitPrice: 1500,
		Quantity:  2,
	}}
	draft.Total = 3000
	draft.UpdatedAt = time.Now()
	require.NoError(t, s.Update(ctx, draft))

	loaded, err := s.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, int64(3000), loaded.Total)
	assert.Equal(t, book, loaded.Items[0].BookID)

	// Submit and verify the draft slot frees up.
	loaded.Status = order.StatusSubmitted
	loaded.ProofRef = "proof-1"
	loaded.UpdatedAt = time.Now()
	require.NoError(t, s.Update(ctx, loaded))

	fresh, created, err := s.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, draft.ID, fresh.ID)

	queue, err := s.ListSubmitted(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, draft.ID, queue[0].ID)

	mine, err := s.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestPostgres_Update_StaleVersionConflict(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations/0001_init.sql")
	s := NewPostgres(pg.Pool)
	ctx := context.Background()
	owner := seedUser(t, pg)
	bookA := seedBookRow(t, pg)
	bookB := seedBookRow(t, pg)

	// Two clients load the same draft.
	first, _, err := s.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	second, _, err := s.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)

	first.Items = []order.Item{{ID: domain.ItemID(uuid.New()), BookID: bookA, UnitPrice: 1500, Quantity: 1}}
	first.Total = 1500
	first.UpdatedAt = time.Now()
	require.NoError(t, s.Update(ctx, first))

	// The stale writer touches zero rows and must not replace the items.
	second.Items = []order.Item{{ID: domain.ItemID(uuid.New()), BookID: bookB, UnitPrice: 2500, Quantity: 1}}
	second.Total = 2500
	second.UpdatedAt = time.Now()
	assert.ErrorIs(t, s.Update(ctx, second), sentinel.ErrConflict)

	stored, err := s.FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, bookA, stored.Items[0].BookID)

	// The winner got the bumped version back and can keep writing.
	first.UpdatedAt = time.Now()
	require.NoError(t, s.Update(ctx, first))
}

func TestPostgres_FindByID_NotFound(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations/0001_init.sql")
	s := NewPostgres(pg.Pool)

	_, err := s.FindByID(context.Background(), domain.OrderID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
