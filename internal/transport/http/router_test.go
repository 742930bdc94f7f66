package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libreria/internal/auth"
	authhandler "libreria/internal/auth/handler"
	authsvc "libreria/internal/auth/service"
	sessionstore "libreria/internal/auth/store/session"
	userstore "libreria/internal/auth/store/user"
	"libreria/internal/catalog"
	orderhandler "libreria/internal/order/handler"
	ordersvc "libreria/internal/order/service"
	orderstore "libreria/internal/order/store"
	"libreria/internal/platform/config"
	transporthttp "libreria/internal/transport/http"
	"libreria/pkg/domain"
)

type env struct {
	server *httptest.Server
	books  *catalog.InMemory
	users  *userstore.InMemory
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := userstore.NewInMemory()
	sessions := sessionstore.NewInMemory()
	books := catalog.NewInMemory()

	cfg := config.Server{
		SessionTTL:     time.Hour,
		CSRFSigningKey: "router-test-key",
		CSRFTTL:        time.Hour,
	}
	csrf := auth.NewCSRFManager(cfg.CSRFSigningKey, cfg.CSRFTTL)
	authService := authsvc.New(users, sessions, cfg.SessionTTL, authsvc.WithLogger(log))
	orderService := ordersvc.New(orderstore.NewInMemory(), books, ordersvc.WithLogger(log))

	router := transporthttp.New(transporthttp.Deps{
		Auth:    authhandler.New(authService, csrf, cfg, log, nil),
		Orders:  orderhandler.New(orderService, log),
		Session: authService,
		CSRF:    csrf,
		Logger:  log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, books: books, users: users}
}

// browser is a test client that behaves like the frontend: cookie jar plus
// the X-CSRFToken header echoing the csrftoken cookie.
type browser struct {
	t    *testing.T
	http *http.Client
	base string
	csrf string
}

func newBrowser(t *testing.T, e *env) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, http: &http.Client{Jar: jar}, base: e.server.URL}
}

func (b *browser) do(method, path string, body any) (*http.Response, []byte) {
	b.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, b.base+path, reader)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.csrf != "" {
		req.Header.Set(auth.CSRFHeaderName, b.csrf)
	}

	resp, err := b.http.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, data
}

func (b *browser) fetchCSRF() {
	b.t.Helper()
	resp, body := b.do(http.MethodGet, "/api/auth/csrf", nil)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)

	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(b.t, json.Unmarshal(body, &out))
	require.NotEmpty(b.t, out.CSRFToken)
	b.csrf = out.CSRFToken
}

func (b *browser) register(username string) {
	b.t.Helper()
	resp, _ := b.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "password123",
		"password2": "password123",
	})
	require.Equal(b.t, http.StatusCreated, resp.StatusCode)
}

func (b *browser) login(username string) {
	b.t.Helper()
	resp, body := b.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(b.t, http.StatusOK, resp.StatusCode)

	// Login rotates the CSRF cookie and echoes the new token in the body
	// so clients can adopt it without an extra round trip.
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(b.t, json.Unmarshal(body, &out))
	require.NotEmpty(b.t, out.CSRFToken)

	b.syncCSRFFromJar()
	require.Equal(b.t, out.CSRFToken, b.csrf, "body token and cookie must match")
}

func (b *browser) syncCSRFFromJar() {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+"/", nil)
	require.NoError(b.t, err)
	for _, c := range b.http.Jar.Cookies(req.URL) {
		if c.Name == auth.CSRFCookieName {
			b.csrf = c.Value
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e)

	// Anonymous identity check fails closed.
	resp, _ := b.do(http.MethodGet, "/api/auth/user", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	b.fetchCSRF()
	b.register("ana")
	b.login("ana")

	resp, body := b.do(http.MethodGet, "/api/auth/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var identity auth.Identity
	require.NoError(t, json.Unmarshal(body, &identity))
	assert.Equal(t, "ana", identity.Username)
	assert.False(t, identity.IsStaff)

	resp, _ = b.do(http.MethodPost, "/api/auth/logout", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = b.do(http.MethodGet, "/api/auth/user", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logout twice is fine.
	b.fetchCSRF()
	resp, _ = b.do(http.MethodPost, "/api/auth/logout", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCSRFGate(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e)

	b.fetchCSRF()
	b.register("ana")
	b.login("ana")

	// Mutation without the header is rejected with the csrf marker.
	saved := b.csrf
	b.csrf = ""
	resp, body := b.do(http.MethodPost, "/api/orders/"+uuid.NewString()+"/items", map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), "csrf_failed")

	// Reads are not gated.
	resp, _ = b.do(http.MethodGet, "/api/orders/my-draft", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	b.csrf = saved
}

func seedBook(t *testing.T, e *env, priceCents int64) string {
	t.Helper()
	id := domain.BookID(uuid.New())
	require.NoError(t, e.books.Put(context.Background(), &catalog.Book{
		ID:    id,
		Title: "Rayuela",
		Price: priceCents,
	}))
	return id.String()
}

func makeStaff(t *testing.T, e *env, username string) {
	t.Helper()
	u, err := e.users.FindByUsername(context.Background(), username)
	require.NoError(t, err)
	require.NoError(t, e.users.SetStaff(context.Background(), u.ID, true))
}

type orderDTO struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int64  `json:"total"`
	Items  []struct {
		ID       string `json:"id"`
		BookID   string `json:"book_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	bookID := seedBook(t, e, 2500)

	buyer := newBrowser(t, e)
	buyer.fetchCSRF()
	buyer.register("ana")
	buyer.login("ana")

	// Get-or-create the draft.
	resp, body := buyer.do(http.MethodGet, "/api/orders/my-draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var draft orderDTO
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.Equal(t, "DRAFT", draft.Status)

	// Add an item.
	resp, body = buyer.do(http.MethodPost, "/api/orders/"+draft.ID+"/items", map[string]any{
		"items": []map[string]any{{"book_id": bookID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated orderDTO
	require.NoError(t, json.Unmarshal(body, &updated))
	require.Len(t, updated.Items, 1)
	assert.Equal(t, int64(5000), updated.Total)

	// Remove it again.
	resp, body = buyer.do(http.MethodDelete, "/api/orders/"+draft.ID+"/items/"+updated.Items[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Empty(t, updated.Items)

	// Empty draft cannot be submitted.
	resp, _ = buyer.do(http.MethodPost, "/api/orders/"+draft.ID+"/proof", map[string]string{"proof_ref": "t-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Refill and submit.
	resp, _ = buyer.do(http.MethodPost, "/api/orders/"+draft.ID+"/items", map[string]any{
		"items": []map[string]any{{"book_id": bookID, "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = buyer.do(http.MethodPost, "/api/orders/"+draft.ID+"/proof", map[string]string{"proof_ref": "t-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "SUBMITTED", updated.Status)

	// Owner cannot resolve their own order.
	resp, _ = buyer.do(http.MethodPatch, "/api/orders/"+draft.ID, map[string]string{"status": "ACCEPTED"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Staff review queue and resolution.
	admin := newBrowser(t, e)
	admin.fetchCSRF()
	admin.register("admin")
	makeStaff(t, e, "admin")
	admin.login("admin")

	resp, body = admin.do(http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queue []orderDTO
	require.NoError(t, json.Unmarshal(body, &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, draft.ID, queue[0].ID)

	resp, body = admin.do(http.MethodPatch, "/api/orders/"+draft.ID, map[string]string{"status": "ACCEPTED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "ACCEPTED", updated.Status)

	// Terminal: second resolution fails.
	resp, _ = admin.do(http.MethodPatch, "/api/orders/"+draft.ID, map[string]string{"status": "REJECTED"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForeignDraftIsForbidden(t *testing.T) {
	e := newEnv(t)
	bookID := seedBook(t, e, 1000)

	ana := newBrowser(t, e)
	ana.fetchCSRF()
	ana.register("ana")
	ana.login("ana")
	resp, body := ana.do(http.MethodGet, "/api/orders/my-draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var draft orderDTO
	require.NoError(t, json.Unmarshal(body, &draft))

	eve := newBrowser(t, e)
	eve.fetchCSRF()
	eve.register("eve")
	eve.login("eve")

	resp, _ = eve.do(http.MethodPost, "/api/orders/"+draft.ID+"/items", map[string]any{
		"items": []map[string]any{{"book_id": bookID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
