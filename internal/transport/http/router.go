// Package http assembles the origin API router. Route policy lives here:
// which surfaces sit behind the session gate, which mutations sit behind the
// CSRF gate, and what stays public.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "libreria/internal/auth/handler"
	authmw "libreria/internal/auth/middleware"
	orderhandler "libreria/internal/order/handler"
	"libreria/internal/platform/metrics"
	platmw "libreria/internal/platform/middleware"
	"libreria/internal/transport/shared"
)

// Deps carries everything the router mounts.
type Deps struct {
	Auth    *authhandler.Handler
	Orders  *orderhandler.Handler
	Session authmw.SessionResolver
	CSRF    authmw.CSRFVerifier
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
}

// New builds the origin router.
func New(deps Deps) http.Handler {
	timeout := deps.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(platmw.Recovery(deps.Logger))
	r.Use(platmw.RequestID)
	r.Use(platmw.Logger(deps.Logger))
	r.Use(platmw.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(platmw.ContentTypeJSON)

		deps.Auth.Register(api)

		api.Group(func(protected chi.Router) {
			protected.Use(authmw.RequireSession(deps.Session, deps.Logger))
			protected.Use(authmw.RequireCSRF(deps.CSRF, deps.Metrics, deps.Logger))
			deps.Orders.Register(protected)
		})
	})
	return r
}
