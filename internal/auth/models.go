package auth

import (
	"time"

	"libreria/pkg/domain"
)

// User is the stored account record. The bcrypt hash never leaves this
// package; transport sees Identity snapshots only.
type User struct {
	ID           domain.UserID
	Username     string
	Email        string
	FirstName    string
	LastName     string
	IsStaff      bool
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the value snapshot of an authenticated user returned to
// clients. It is replaced wholesale on (re)authentication, never mutated.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

// Identity returns the transport snapshot for a user.
func (u *User) Identity() Identity {
	return Identity{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsStaff:   u.IsStaff,
	}
}

// Session is an opaque server-side session addressed by the sessionid cookie.
type Session struct {
	ID                domain.SessionID
	UserID            domain.UserID
	DeviceDisplayName string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Cookie names shared between origin, relay and client. They match the
// upstream framework defaults the rest of the system expects.
const (
	SessionCookieName = "sessionid"
	CSRFCookieName    = "csrftoken"
	CSRFHeaderName    = "X-CSRFToken"
)
