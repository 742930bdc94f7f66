// Command relay runs the session relay in front of the origin API. It owns
// no state: it forwards requests, rewrites Set-Cookie headers for the
// browser's benefit, and exposes its own health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"libreria/internal/platform/config"
	"libreria/internal/platform/httpserver"
	"libreria/internal/platform/logger"
	"libreria/internal/platform/metrics"
	"libreria/internal/relay"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("relay exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.RelayFromEnv()
	if cfg.InsecureTransport {
		log.Warn("insecure transport shim enabled; do not run this posture in production")
	}

	proxy, err := relay.New(cfg,
		relay.WithLogger(log),
		relay.WithMetrics(metrics.New()),
	)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Addr, proxy.Handler())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", "addr", cfg.Addr, "origin", cfg.OriginURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
