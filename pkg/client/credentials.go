package client

import (
	"context"
	"log/slog"
	"net/http"
)

// CredentialStore owns the login state: the session cookie in the jar, the
// cached CSRF token, and the durable identity snapshot. Its rule is
// fail-closed: any doubt about the session resolves to logged-out, with all
// cached state cleared.
type CredentialStore struct {
	client *Client
	cache  IdentityCache
	logger *slog.Logger
}

// NewCredentialStore builds a store over the given client and cache.
func NewCredentialStore(c *Client, cache IdentityCache, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{client: c, cache: cache, logger: logger}
}

// Bootstrap restores the login state at startup. A cached identity is
// trusted without a network roundtrip; otherwise the origin is asked who we
// are. Anonymous (401) is a normal outcome: (nil, nil) with state cleared.
func (s *CredentialStore) Bootstrap(ctx context.Context) (*Identity, error) {
	cached, err := s.cache.Load()
	if err != nil {
		s.logger.WarnContext(ctx, "identity cache unreadable, discarding", "error", err)
		s.clear(ctx)
	} else if cached != nil {
		return cached, nil
	}

	if err := s.client.EnsureCSRF(ctx); err != nil {
		s.clear(ctx)
		return nil, err
	}

	identity, err := s.fetchIdentity(ctx)
	if err != nil {
		s.clear(ctx)
		if IsUnauthorized(err) {
			return nil, nil
		}
		return nil, err
	}

	if err := s.cache.Save(identity); err != nil {
		s.logger.WarnContext(ctx, "failed to persist identity", "error", err)
	}
	return identity, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates and caches the resulting identity. The origin rotates
// the CSRF token at login; the rotated token from the response body replaces
// the cached one so the next mutation does not eat a csrf_failed round trip.
func (s *CredentialStore) Login(ctx context.Context, username, password string) (*Identity, error) {
	req := loginRequest{Username: username, Password: password}
	var resp struct {
		Detail    string `json:"detail"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := s.client.do(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.CSRFToken != "" {
		s.client.setCSRF(resp.CSRFToken)
	} else {
		// Origin did not hand back the rotated token; drop the stale one
		// so the next mutation fetches a fresh token up front.
		s.client.clearCSRF()
	}

	identity, err := s.fetchIdentity(ctx)
	if err != nil {
		// Login succeeded but the identity fetch did not; without a
		// snapshot the session is unusable, so drop it.
		s.clear(ctx)
		return nil, err
	}
	if err := s.cache.Save(identity); err != nil {
		s.logger.WarnContext(ctx, "failed to persist identity", "error", err)
	}
	return identity, nil
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Register creates an account. It does not log in.
func (s *CredentialStore) Register(ctx context.Context, username, email, password, password2 string) error {
	req := registerRequest{Username: username, Email: email, Password: password, Password2: password2}
	return s.client.do(ctx, http.MethodPost, "/api/auth/register", req, nil)
}

// Logout tells the origin best-effort and then unconditionally clears every
// piece of local state: identity cache, session and CSRF cookies in both
// host-scoped and domain-scoped form, and the cached CSRF token. Network
// failure during the call changes nothing about the cleanup.
func (s *CredentialStore) Logout(ctx context.Context) {
	if err := s.client.do(ctx, http.MethodPost, "/api/auth/logout", struct{}{}, nil); err != nil {
		s.logger.WarnContext(ctx, "logout call failed, clearing local state anyway", "error", err)
	}
	s.clear(ctx)
}

// Identity returns the cached snapshot without touching the network.
func (s *CredentialStore) Identity() (*Identity, error) {
	return s.cache.Load()
}

func (s *CredentialStore) fetchIdentity(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := s.client.do(ctx, http.MethodGet, "/api/auth/user", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *CredentialStore) clear(ctx context.Context) {
	if err := s.cache.Clear(); err != nil {
		s.logger.WarnContext(ctx, "failed to clear identity cache", "error", err)
	}
	s.client.expireCookies(sessionCookieName, csrfCookieName)
	s.client.clearCSRF()
}
