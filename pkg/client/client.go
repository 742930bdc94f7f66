// Package client is the storefront SDK. It talks to the origin API through
// the session relay, carrying the session cookie in a jar and the CSRF token
// in the X-CSRFToken header the way a browser frontend would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

const (
	sessionCookieName = "sessionid"
	csrfCookieName    = "csrftoken"
	csrfHeaderName    = "X-CSRFToken"
)

// Client is the HTTP core shared by the credential store and the draft
// manager. It caches one CSRF token and refreshes it at most once per
// rejected request; it never loops.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger

	mu   sync.Mutex
	csrf string
}

// Option configures a Client.
type Option func(c *Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient swaps the underlying http.Client. A cookie jar is installed
// if the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a Client pointed at the relay base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{base: base}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

type csrfResponse struct {
	Detail    string `json:"detail"`
	CSRFToken string `json:"csrf_token"`
}

// EnsureCSRF makes sure a token is cached, fetching one if needed.
func (c *Client) EnsureCSRF(ctx context.Context) error {
	c.mu.Lock()
	cached := c.csrf
	c.mu.Unlock()
	if cached != "" {
		return nil
	}
	return c.RefreshCSRF(ctx)
}

// RefreshCSRF unconditionally fetches a fresh token, replacing the cache.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	var resp csrfResponse
	if err := c.doOnce(ctx, http.MethodGet, "/api/auth/csrf", nil, &resp, ""); err != nil {
		return err
	}
	if resp.CSRFToken == "" {
		return &APIError{Status: http.StatusBadGateway, Code: "protocol_error", Detail: "csrf endpoint returned no token"}
	}
	c.mu.Lock()
	c.csrf = resp.CSRFToken
	c.mu.Unlock()
	return nil
}

// clearCSRF drops the cached token.
func (c *Client) clearCSRF() {
	c.mu.Lock()
	c.csrf = ""
	c.mu.Unlock()
}

// setCSRF replaces the cached token, e.g. after the origin rotates it at
// login.
func (c *Client) setCSRF(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

// do performs one API call. Mutating verbs get a CSRF token attached; a 403
// csrf rejection triggers exactly one forced refresh and retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	mutating := method != http.MethodGet && method != http.MethodHead

	token := ""
	if mutating {
		if err := c.EnsureCSRF(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		token = c.csrf
		c.mu.Unlock()
	}

	err := c.doOnce(ctx, method, path, body, out, token)
	if !mutating || !isCSRFRejection(err) {
		return err
	}

	// Stale token: refresh once and retry once.
	c.clearCSRF()
	if err := c.RefreshCSRF(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	token = c.csrf
	c.mu.Unlock()
	return c.doOnce(ctx, method, path, body, out, token)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, csrfToken string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		req.Header.Set(csrfHeaderName, csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// expireCookies plants expired cookies in the jar for the given names, both
// host-scoped and domain-scoped, so a later request sends neither variant.
func (c *Client) expireCookies(names ...string) {
	if c.http.Jar == nil {
		return
	}
	expired := make([]*http.Cookie, 0, len(names)*2)
	for _, name := range names {
		expired = append(expired,
			&http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1},
			&http.Cookie{Name: name, Value: "", Path: "/", Domain: c.base.Hostname(), MaxAge: -1},
		)
	}
	c.http.Jar.SetCookies(c.base, expired)
}
