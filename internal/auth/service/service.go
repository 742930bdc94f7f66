package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"libreria/internal/audit"
	"libreria/internal/auth"
	"libreria/internal/platform/metrics"
	"libreria/internal/platform/middleware"
	"libreria/pkg/attrs"
	"libreria/pkg/domain"
	dErrors "libreria/pkg/domain-errors"
	"libreria/pkg/platform/sentinel"
)

// UserStore persists accounts.
type UserStore interface {
	CreateIfUsernameAvailable(ctx context.Context, u *auth.User) error
	FindByID(ctx context.Context, id domain.UserID) (*auth.User, error)
	FindByUsername(ctx context.Context, username string) (*auth.User, error)
}

// SessionStore persists opaque sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *auth.Session) error
	FindByID(ctx context.Context, id domain.SessionID) (*auth.Session, error)
	Delete(ctx context.Context, id domain.SessionID) error
}

// AuditPublisher fans audit events out to the configured sink.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns credential exchange and session lifecycle for the origin.
// Write access to session state goes through here exclusively; everything
// else only resolves sessions read-only via the middleware.
type Service struct {
	users          UserStore
	sessions       SessionStore
	sessionTTL     time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a Service.
func New(users UserStore, sessions SessionStore, sessionTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. The password confirmation must match; the
// hash is computed here so stores never see cleartext.
func (s *Service) Register(ctx context.Context, username, email, password, password2 string) (*auth.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if len(username) < 3 || len(username) > 150 {
		return nil, dErrors.New(dErrors.CodeValidation, "username must be between 3 and 150 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	if len(password) < 8 {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if password != password2 {
		return nil, dErrors.New(dErrors.CodeValidation, "passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user := &auth.User{
		ID:           domain.UserID(uuid.New()),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateIfUsernameAvailable(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.EventUserRegistered, "user_id", user.ID.String())
	return user, nil
}

// Login verifies credentials and creates a session. The failure message is
// identical for unknown user and wrong password.
func (s *Service) Login(ctx context.Context, username, password, userAgent string) (*auth.Session, *auth.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.observeLogin("failure")
			s.logAudit(ctx, audit.EventLoginFailed, "username", username)
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.observeLogin("failure")
		s.logAudit(ctx, audit.EventLoginFailed, "user_id", user.ID.String())
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	now := s.now()
	sess := &auth.Session{
		ID:                domain.SessionID(uuid.New()),
		UserID:            user.ID,
		DeviceDisplayName: deviceDisplayName(userAgent),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	s.observeLogin("success")
	s.logAudit(ctx, audit.EventUserLoggedIn, "user_id", user.ID.String(), "device", sess.DeviceDisplayName)
	return sess, user, nil
}

// Logout destroys the session. Idempotent: unknown or already-destroyed
// sessions are not an error.
func (s *Service) Logout(ctx context.Context, sessionID domain.SessionID) error {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	s.logAudit(ctx, audit.EventUserLoggedOut, "user_id", sess.UserID.String())
	return nil
}

// ResolveSession maps a session cookie value to the session and its user.
func (s *Service) ResolveSession(ctx context.Context, sessionID domain.SessionID) (*auth.Session, *auth.User, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "session expired or unknown")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "session user no longer exists")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return sess, user, nil
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	userID := attrs.ExtractString(attributes, "user_id")
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   userID,
		Action:    event,
		RequestID: middleware.GetRequestID(ctx),
	})
}

// deviceDisplayName derives a short human-readable label from the
// User-Agent, recorded on the session for admin visibility.
func deviceDisplayName(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	default:
		return os
	}
}
