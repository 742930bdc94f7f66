package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrigin is a scripted origin for exercising the client's CSRF and
// retry behavior with exact call counts.
type fakeOrigin struct {
	csrfCalls   atomic.Int64
	postCalls   atomic.Int64
	rejectFirst bool
}

func (f *fakeOrigin) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/csrf", func(w http.ResponseWriter, r *http.Request) {
		token := fmt.Sprintf("token-%d", f.csrfCalls.Add(1))
		http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: token, Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "CSRF cookie set", "csrf_token": token})
	})
	mux.HandleFunc("POST /api/echo", func(w http.ResponseWriter, r *http.Request) {
		n := f.postCalls.Add(1)
		if f.rejectFirst && n == 1 {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden", "detail": "csrf_failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": r.Header.Get(csrfHeaderName)})
	})
	return mux
}

func newFakeClient(t *testing.T, f *fakeOrigin) *Client {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	c, err := New(server.URL)
	require.NoError(t, err)
	return c
}

func TestEnsureCSRF_CachesToken(t *testing.T) {
	f := &fakeOrigin{}
	c := newFakeClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.EnsureCSRF(ctx))
	require.NoError(t, c.EnsureCSRF(ctx))
	require.NoError(t, c.EnsureCSRF(ctx))

	assert.Equal(t, int64(1), f.csrfCalls.Load(), "cached token must be reused")
}

func TestDo_AttachesCSRFHeader(t *testing.T) {
	f := &fakeOrigin{}
	c := newFakeClient(t, f)

	var out map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodPost, "/api/echo", struct{}{}, &out))
	assert.Equal(t, "token-1", out["token"])
}

func TestDo_RetriesOnceOnCSRFRejection(t *testing.T) {
	f := &fakeOrigin{rejectFirst: true}
	c := newFakeClient(t, f)

	var out map[string]string
	require.NoError(t, c.do(context.Background(), http.MethodPost, "/api/echo", struct{}{}, &out))

	assert.Equal(t, int64(2), f.postCalls.Load(), "exactly one retry")
	assert.Equal(t, int64(2), f.csrfCalls.Load(), "retry carries a freshly fetched token")
	assert.Equal(t, "token-2", out["token"])
}

func TestDo_NoRetryLoopOnPersistentRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/csrf" {
			_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": "tok"})
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden", "detail": "csrf_failed"})
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	err = c.do(context.Background(), http.MethodPost, "/api/echo", struct{}{}, nil)
	require.Error(t, err)
	assert.True(t, isCSRFRejection(err), "persistent rejection surfaces after the single retry")
}

func TestDo_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	c, err := New(serverURL)
	require.NoError(t, err)

	err = c.do(context.Background(), http.MethodGet, "/api/orders", nil, nil)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestDo_DecodesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "detail": "order not found"})
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	err = c.do(context.Background(), http.MethodGet, "/api/orders/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "not_found", ae.Code)
	assert.Equal(t, "order not found", ae.Detail)
}
