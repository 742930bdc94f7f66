package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libreria/internal/platform/config"
)

func newTestProxy(t *testing.T, originURL string, insecure bool) http.Handler {
	t.Helper()
	p, err := New(config.Relay{
		Addr:              ":0",
		OriginURL:         originURL,
		InsecureTransport: insecure,
	})
	require.NoError(t, err)
	return p.Handler()
}

func TestProxy_ForwardsRequestAndRewritesCookies(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sessionid=abc", r.Header.Get("Cookie"), "inbound cookies must reach the origin")
		assert.Equal(t, "/api/auth/user", r.URL.Path)

		w.Header().Add("Set-Cookie", "sessionid=xyz; Path=/; HttpOnly; Secure; SameSite=Lax")
		w.Header().Add("Set-Cookie", "csrftoken=tok; Path=/")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"username":"ana"}`))
	}))
	defer origin.Close()

	handler := newTestProxy(t, origin.URL, true)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Cookie", "sessionid=abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.JSONEq(t, `{"username":"ana"}`, string(body))

	cookies := rec.Header().Values("Set-Cookie")
	require.Len(t, cookies, 2)
	assert.Equal(t, "sessionid=xyz; Path=/; HttpOnly; SameSite=None", cookies[0])
	assert.Equal(t, "csrftoken=tok; Path=/; SameSite=None", cookies[1])
}

func TestProxy_SecureTransportKeepsSecure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Set-Cookie", "sessionid=xyz; Path=/; Secure; SameSite=Lax")
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	handler := newTestProxy(t, origin.URL, false)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	cookies := rec.Header().Values("Set-Cookie")
	require.Len(t, cookies, 1)
	assert.Equal(t, "sessionid=xyz; Path=/; Secure; SameSite=Lax", cookies[0])
}

func TestProxy_UnreachableOriginAnswers502(t *testing.T) {
	// A closed port: nothing listens there once the server is stopped.
	origin := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	originURL := origin.URL
	origin.Close()

	handler := newTestProxy(t, originURL, false)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "bad_gateway")
}

func TestProxy_HealthAndErrorStatusPassThrough(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer origin.Close()

	handler := newTestProxy(t, origin.URL, false)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "healthz is answered by the relay itself")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "origin status codes pass through untouched")
}
