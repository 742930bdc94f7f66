package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "libreria/pkg/domain-errors"
)

// CSRFManager mints and verifies anti-forgery tokens. Tokens are HMAC-signed
// JWTs carried in the csrftoken cookie and echoed back in the X-CSRFToken
// header (double submit). Signing keeps the origin stateless: no token store,
// a token is valid iff the signature checks out and it has not expired.
type CSRFManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewCSRFManager builds a manager with the given signing key and token TTL.
func NewCSRFManager(key string, ttl time.Duration) *CSRFManager {
	return &CSRFManager{key: []byte(key), ttl: ttl, now: time.Now}
}

// Issue returns a fresh signed token.
func (m *CSRFManager) Issue() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign csrf token")
	}
	return signed, nil
}

// Verify checks signature and expiry. The header and cookie values must both
// be present and identical; a mismatch means the header was forged or stale.
func (m *CSRFManager) Verify(headerToken, cookieToken string) error {
	if headerToken == "" || cookieToken == "" {
		return dErrors.New(dErrors.CodeForbidden, "csrf token missing")
	}
	if headerToken != cookieToken {
		return dErrors.New(dErrors.CodeForbidden, "csrf token mismatch")
	}
	parsed, err := jwt.ParseWithClaims(headerToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeForbidden, "unexpected signing method")
		}
		return m.key, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !parsed.Valid {
		return dErrors.New(dErrors.CodeForbidden, "csrf token invalid or expired")
	}
	return nil
}
