package testutil

import (
	"context"
	"net/http"

	"libreria/internal/auth"
	authmw "libreria/internal/auth/middleware"
)

// WithUser primes the request context with an authenticated user, simulating
// what the session middleware does for a resolved cookie.
func WithUser(req *http.Request, user *auth.User) *http.Request {
	ctx := context.WithValue(req.Context(), authmw.ContextKeyUser, user)
	return req.WithContext(ctx)
}
