package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"libreria/internal/auth"
	authmw "libreria/internal/auth/middleware"
	"libreria/internal/platform/config"
	"libreria/internal/platform/metrics"
	platmw "libreria/internal/platform/middleware"
	"libreria/internal/transport/shared"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
)

// Service is the slice of the auth service the handler consumes.
type Service interface {
	Register(ctx context.Context, username, email, password, password2 string) (*auth.User, error)
	Login(ctx context.Context, username, password, userAgent string) (*auth.Session, *auth.User, error)
	Logout(ctx context.Context, sessionID domain.SessionID) error
	ResolveSession(ctx context.Context, id domain.SessionID) (*auth.Session, *auth.User, error)
}

// CSRFIssuer mints tokens for the csrf endpoint and login rotation.
type CSRFIssuer interface {
	Issue() (string, error)
	Verify(headerToken, cookieToken string) error
}

// Handler exposes the credential endpoints.
type Handler struct {
	service Service
	csrf    CSRFIssuer
	cfg     config.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates the auth Handler.
func New(service Service, csrf CSRFIssuer, cfg config.Server, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, csrf: csrf, cfg: cfg, logger: logger, metrics: m}
}

// Register mounts the auth routes. Login and logout sit behind the CSRF
// gate like every other mutating route; the csrf and register endpoints do
// not, since a fresh client has no token yet.
func (h *Handler) Register(r chi.Router) {
	csrfGate := authmw.RequireCSRF(h.csrf, h.metrics, h.logger)

	r.Get("/auth/csrf", h.handleCSRF)
	r.Post("/auth/register", h.handleRegister)
	r.With(csrfGate).Post("/auth/login", h.handleLogin)
	r.With(csrfGate).Post("/auth/logout", h.handleLogout)
	r.With(authmw.RequireSession(h.service, h.logger)).Get("/auth/user", h.handleUser)
}

// handleCSRF issues a fresh token and sets the csrftoken cookie. The cookie
// is intentionally not HttpOnly: clients echo it back in the X-CSRFToken
// header, which is the whole point of the double-submit scheme.
func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Issue()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "csrf issue failed",
			"error", err,
			"request_id", platmw.GetRequestID(r.Context()),
		)
		shared.WriteError(w, err)
		return
	}
	http.SetCookie(w, h.csrfCookie(token))
	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"detail":     "CSRF cookie set",
		"csrf_token": token,
	})
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if _, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password, req.Password2); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"detail": "user created"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sess, _, err := h.service.Login(r.Context(), req.Username, req.Password, r.UserAgent())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(sess.ID.String(), sess.ExpiresAt))
	// Rotate the CSRF token on privilege change. The rotated token rides
	// along in the body so clients can replace their cached copy without
	// burning a request on a csrf_failed rejection.
	payload := map[string]string{"detail": "login successful"}
	if token, err := h.csrf.Issue(); err == nil {
		http.SetCookie(w, h.csrfCookie(token))
		payload["csrf_token"] = token
	}
	shared.WriteJSON(w, http.StatusOK, payload)
}

// handleLogout is deliberately lenient: it succeeds whether or not a live
// session came with the request, and always expires both cookies.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	detail := "no active session"
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		if sessionID, err := domain.ParseSessionID(cookie.Value); err == nil {
			if err := h.service.Logout(r.Context(), sessionID); err != nil {
				h.logger.ErrorContext(r.Context(), "logout failed",
					"error", err,
					"request_id", platmw.GetRequestID(r.Context()),
				)
				shared.WriteError(w, err)
				return
			}
			detail = "logged out"
		}
	}
	http.SetCookie(w, h.expiredCookie(auth.SessionCookieName, true))
	http.SetCookie(w, h.expiredCookie(auth.CSRFCookieName, false))
	shared.WriteJSON(w, http.StatusOK, map[string]string{"detail": detail})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	user := authmw.GetUser(r.Context())
	if user == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, user.Identity())
}

func (h *Handler) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) csrfCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Now().Add(h.cfg.CSRFTTL),
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) expiredCookie(name string, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
