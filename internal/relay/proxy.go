// Package relay is the session relay: a reverse proxy in front of the origin
// API that rewrites Set-Cookie headers so browser (and SDK) cookie handling
// works across the relay/origin split. It holds no state of its own; the
// origin stays authoritative for sessions, CSRF, and orders.
package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libreria/internal/platform/config"
	"libreria/internal/platform/metrics"
	platmw "libreria/internal/platform/middleware"
	"libreria/internal/transport/shared"
)

// Proxy forwards everything to the origin and rewrites cookies on the way
// back.
type Proxy struct {
	origin   *url.URL
	rewriter *CookieRewriter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	rp       *httputil.ReverseProxy
}

// Option configures a Proxy.
type Option func(p *Proxy)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) { p.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// New builds the relay proxy for the configured origin.
func New(cfg config.Relay, opts ...Option) (*Proxy, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", cfg.OriginURL)
	}

	p := &Proxy{
		origin: origin,
		rewriter: &CookieRewriter{
			InsecureShim: cfg.InsecureTransport,
			Domain:       cfg.RewriteDomain,
		},
		tracer: otel.Tracer("libreria/relay"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
			// SetURL drops nothing from the inbound request, so the Cookie
			// header crosses as-is; Host must follow the origin for vhosts.
			pr.Out.Host = origin.Host
		},
		ModifyResponse: p.rewriteCookies,
		ErrorHandler:   p.handleProxyError,
	}
	return p, nil
}

// Handler returns the relay's full HTTP surface: health and metrics on the
// relay itself, everything else proxied.
func (p *Proxy) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(platmw.RequestID)
	r.Use(p.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", p)
	return r
}

// ServeHTTP proxies one request inside a span.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tracer.Start(r.Context(), "relay.proxy",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		),
	)
	defer span.End()
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

func (p *Proxy) rewriteCookies(resp *http.Response) error {
	cookies := resp.Header.Values("Set-Cookie")
	if len(cookies) == 0 {
		return nil
	}
	resp.Header.Del("Set-Cookie")
	for _, c := range cookies {
		resp.Header.Add("Set-Cookie", p.rewriter.Rewrite(c))
	}
	return nil
}

// handleProxyError answers 502 when the origin is unreachable. No retry;
// the client decides what to do with a gateway failure.
func (p *Proxy) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	if p.logger != nil {
		p.logger.ErrorContext(r.Context(), "origin unreachable",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", platmw.GetRequestID(r.Context()),
		)
	}
	shared.WriteJSON(w, http.StatusBadGateway, map[string]string{
		"error":  "bad_gateway",
		"detail": "origin unreachable",
	})
}

// observe logs and measures every request through the relay.
func (p *Proxy) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if p.metrics != nil {
			p.metrics.ObserveRelay(r.Method, rec.status, start)
		}
		if p.logger != nil {
			p.logger.InfoContext(r.Context(), "relayed request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", platmw.GetRequestID(r.Context()),
			)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
