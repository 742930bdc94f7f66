package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "libreria/pkg/domain-errors"
)

func TestCSRFManager_IssueAndVerify(t *testing.T) {
	m := NewCSRFManager("test-signing-key", time.Hour)

	token, err := m.Issue()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, m.Verify(token, token))
}

func TestCSRFManager_Verify_Missing(t *testing.T) {
	m := NewCSRFManager("test-signing-key", time.Hour)
	token, err := m.Issue()
	require.NoError(t, err)

	assert.Error(t, m.Verify("", token))
	assert.Error(t, m.Verify(token, ""))
	assert.Error(t, m.Verify("", ""))
}

func TestCSRFManager_Verify_Mismatch(t *testing.T) {
	m := NewCSRFManager("test-signing-key", time.Hour)

	a, err := m.Issue()
	require.NoError(t, err)
	b, err := m.Issue()
	require.NoError(t, err)

	err = m.Verify(a, b)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCSRFManager_Verify_WrongKey(t *testing.T) {
	m := NewCSRFManager("test-signing-key", time.Hour)
	other := NewCSRFManager("different-key", time.Hour)

	token, err := other.Issue()
	require.NoError(t, err)

	err = m.Verify(token, token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCSRFManager_Verify_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &CSRFManager{
		key: []byte("test-signing-key"),
		ttl: time.Hour,
		now: func() time.Time { return issued },
	}

	token, err := m.Issue()
	require.NoError(t, err)
	require.NoError(t, m.Verify(token, token))

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	err = m.Verify(token, token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}
