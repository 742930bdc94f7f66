// Package middleware carries the session and CSRF gates every protected
// route sits behind. It only reads session state; refresh and teardown stay
// with the auth service.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"libreria/internal/auth"
	"libreria/internal/platform/metrics"
	platmw "libreria/internal/platform/middleware"
	"libreria/internal/transport/shared"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
)

// SessionResolver maps a session ID to its session and user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, id domain.SessionID) (*auth.Session, *auth.User, error)
}

// CSRFVerifier validates header/cookie token pairs.
type CSRFVerifier interface {
	Verify(headerToken, cookieToken string) error
}

type contextKeyUser struct{}

// ContextKeyUser is exported for tests that prime contexts directly.
var ContextKeyUser = contextKeyUser{}

// GetUser retrieves the authenticated user from the context.
func GetUser(ctx context.Context) *auth.User {
	u, ok := ctx.Value(ContextKeyUser).(*auth.User)
	if !ok {
		return nil
	}
	return u
}

// RequireSession resolves the sessionid cookie to a user and stores it in
// the request context. Missing or expired sessions get 401.
func RequireSession(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil {
				unauthorized(w, "authentication required")
				return
			}
			sessionID, err := domain.ParseSessionID(cookie.Value)
			if err != nil {
				unauthorized(w, "invalid session")
				return
			}
			_, user, err := resolver.ResolveSession(ctx, sessionID)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.ErrorContext(ctx, "session resolution failed",
						"error", err,
						"request_id", platmw.GetRequestID(ctx),
					)
					shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to resolve session"))
					return
				}
				unauthorized(w, "session expired or unknown")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ContextKeyUser, user)))
		})
	}
}

// RequireStaff gates admin-only routes. Must run after RequireSession.
func RequireStaff(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil || !user.IsStaff {
				logger.WarnContext(r.Context(), "staff-only route denied",
					"request_id", platmw.GetRequestID(r.Context()),
				)
				shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator privileges required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCSRF enforces the double-submit check on mutating verbs. Safe verbs
// pass through untouched.
func RequireCSRF(verifier CSRFVerifier, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get(auth.CSRFHeaderName)
			cookieVal := ""
			if c, err := r.Cookie(auth.CSRFCookieName); err == nil {
				cookieVal = c.Value
			}
			if err := verifier.Verify(header, cookieVal); err != nil {
				if m != nil {
					m.CSRFRejected.Inc()
				}
				logger.WarnContext(r.Context(), "csrf validation failed",
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", platmw.GetRequestID(r.Context()),
				)
				shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "csrf_failed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, detail))
}
