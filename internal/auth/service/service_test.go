package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libreria/internal/audit"
	sessionstore "libreria/internal/auth/store/session"
	userstore "libreria/internal/auth/store/user"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newTestService(t *testing.T, opts ...Option) (*Service, *audit.InMemoryStore) {
	t.Helper()
	sink := audit.NewInMemoryStore()
	base := []Option{WithAuditPublisher(audit.NewPublisher(sink))}
	svc := New(userstore.NewInMemory(), sessionstore.NewInMemory(), time.Hour, append(base, opts...)...)
	return svc, sink
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		username  string
		email     string
		password  string
		password2 string
	}{
		{"short username", "ab", "ana@example.com", "password123", "password123"},
		{"bad email", "ana", "not-an-email", "password123", "password123"},
		{"short password", "ana", "ana@example.com", "short", "short"},
		{"mismatched confirmation", "ana", "ana@example.com", "password123", "password456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.email, tt.password, tt.password2)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ana", "ana@example.com", "password123", "password123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "ANA", "other@example.com", "password123", "password123")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestLogin_Success(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "ana", "ana@example.com", "password123", "password123")
	require.NoError(t, err)

	sess, got, err := svc.Login(ctx, "ana", "password123", chromeUA)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.ID, sess.UserID)
	assert.False(t, sess.ID.IsNil())
	assert.Contains(t, sess.DeviceDisplayName, "Chrome")

	events := sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventUserLoggedIn, events[len(events)-1].Action)
}

func TestLogin_IdenticalFailureMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ana", "ana@example.com", "password123", "password123")
	require.NoError(t, err)

	_, _, errUnknownUser := svc.Login(ctx, "nobody", "password123", chromeUA)
	_, _, errWrongPassword := svc.Login(ctx, "ana", "wrong-password", chromeUA)

	require.Error(t, errUnknownUser)
	require.Error(t, errWrongPassword)
	// Unknown user and bad password must be indistinguishable to the caller.
	assert.Equal(t, dErrors.MessageOf(errUnknownUser), dErrors.MessageOf(errWrongPassword))
	assert.True(t, dErrors.HasCode(errUnknownUser, dErrors.CodeUnauthorized))
	assert.True(t, dErrors.HasCode(errWrongPassword, dErrors.CodeUnauthorized))
}

func TestLogout_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ana", "ana@example.com", "password123", "password123")
	require.NoError(t, err)
	sess, _, err := svc.Login(ctx, "ana", "password123", chromeUA)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.ID))
	require.NoError(t, svc.Logout(ctx, sess.ID))
	require.NoError(t, svc.Logout(ctx, domain.SessionID{}))
}

func TestResolveSession_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }

	sessions := sessionstore.NewInMemory().WithClock(tick)
	svc := New(userstore.NewInMemory(), sessions, time.Hour, WithClock(tick))
	ctx := context.Background()

	_, err := svc.Register(ctx, "ana", "ana@example.com", "password123", "password123")
	require.NoError(t, err)
	sess, _, err := svc.Login(ctx, "ana", "password123", chromeUA)
	require.NoError(t, err)

	_, user, err := svc.ResolveSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)

	later := now.Add(2 * time.Hour)
	*clock = later
	_, _, err = svc.ResolveSession(ctx, sess.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
