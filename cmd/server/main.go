// Command server runs the origin API: sessions, CSRF, catalog pricing and
// the order lifecycle. Stores are selected from the environment; with no
// POSTGRES_DSN or REDIS_URL it runs fully in memory, which is the dev and
// test posture.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"libreria/internal/audit"
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
	"libreria/internal/platform/httpserver"
	"libreria/internal/platform/logger"
	"libreria/internal/platform/metrics"
	"libreria/internal/platform/postgres"
	platredis "libreria/internal/platform/redis"
	transporthttp "libreria/internal/transport/http"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverCfg := config.ServerFromEnv()
	pgCfg := config.PostgresFromEnv()
	redisCfg := config.RedisFromEnv()
	kafkaCfg := config.KafkaFromEnv()

	m := metrics.New()

	// Stores: postgres/redis when configured, memory otherwise.
	var (
		users    authsvc.UserStore
		sessions authsvc.SessionStore
		orders   ordersvc.Store
		books    ordersvc.PriceLookup
		sales    ordersvc.SalesRecorder
	)
	pool, err := postgres.NewPool(ctx, pgCfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		users = userstore.NewPostgres(pool)
		orders = orderstore.NewPostgres(pool)
		pgBooks := catalog.NewPostgres(pool)
		books, sales = pgBooks, pgBooks
		log.Info("using postgres stores")
	} else {
		users = userstore.NewInMemory()
		orders = orderstore.NewInMemory()
		memBooks := catalog.NewInMemory()
		books, sales = memBooks, memBooks
		log.Info("using in-memory stores")
	}

	rdb, err := platredis.New(redisCfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		sessions = sessionstore.NewRedis(rdb.Client)
		log.Info("using redis session store")
	} else {
		sessions = sessionstore.NewInMemory()
	}

	// Audit: postgres outbox + kafka worker when both are configured,
	// in-memory sink otherwise.
	var (
		auditStore audit.Store
		worker     *audit.OutboxWorker
	)
	if pgCfg.DSN != "" && len(kafkaCfg.Brokers) > 0 {
		db, err := sql.Open("postgres", pgCfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		outbox := audit.NewPostgresStore(db)
		auditStore = outbox

		producer, err := audit.NewKafkaPublisher(kafkaCfg.Brokers, kafkaCfg.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		worker = audit.NewOutboxWorker(outbox, producer, log, 2*time.Second)
		log.Info("audit outbox enabled", "topic", kafkaCfg.Topic)
	} else {
		auditStore = audit.NewInMemoryStore()
	}
	publisher := audit.NewPublisher(auditStore)

	csrf := auth.NewCSRFManager(serverCfg.CSRFSigningKey, serverCfg.CSRFTTL)

	authService := authsvc.New(users, sessions, serverCfg.SessionTTL,
		authsvc.WithLogger(log),
		authsvc.WithAuditPublisher(publisher),
		authsvc.WithMetrics(m),
	)
	orderService := ordersvc.New(orders, books,
		ordersvc.WithLogger(log),
		ordersvc.WithAuditPublisher(publisher),
		ordersvc.WithMetrics(m),
		ordersvc.WithSalesRecorder(sales),
	)

	router := transporthttp.New(transporthttp.Deps{
		Auth:    authhandler.New(authService, csrf, serverCfg, log, m),
		Orders:  orderhandler.New(orderService, log),
		Session: authService,
		CSRF:    csrf,
		Logger:  log,
		Metrics: m,
	})
	srv := httpserver.New(serverCfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("origin listening", "addr", serverCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
