// Command gorotate-server serves refresh-token rotation over HTTP.
//
// Configuration comes from the environment (and an optional .env file):
//
//	AUTH_JWT_SECRET=... AUTH_REFRESH_SECRET=... go run ./cmd/gorotate-server
//
// Users log in elsewhere. The login service that checks their credentials
// mints the first pair through POST /auth/session, presenting ISSUER_KEY in
// the X-Issuer-Key header; without ISSUER_KEY the endpoint is not mounted
// and refresh only works for pairs issued by another engine on the same
// store.
//
// Endpoints:
//
//	POST /auth/session  issue a pair for {"owner": ...} (ISSUER_KEY)
//	POST /auth/refresh  rotate the pair (Bearer access token + refresh cookie)
//	POST /auth/logout   revoke the refresh token and clear the cookie
//	GET  /auth/me       current owner; rotates an expired access token
//	GET  /healthz       store health
//	GET  /metrics       Prometheus text format (METRICS_ENABLED)
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/httpapi"
	"github.com/MrEthical07/goRotate/internal/config"
	"github.com/MrEthical07/goRotate/internal/logging"
	"github.com/MrEthical07/goRotate/internal/server"
	"github.com/MrEthical07/goRotate/metrics/export/prometheus"
	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/boltstore"
	"github.com/MrEthical07/goRotate/store/memory"
	"github.com/MrEthical07/goRotate/store/postgres"
	"github.com/MrEthical07/goRotate/store/redisstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	tokens, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	builder := goRotate.New().
		WithConfig(cfg.Engine()).
		WithStore(tokens).
		WithLogger(logger).
		WithAuditSink(goRotate.NewSlogSink(logger.With(slog.String("component", "audit"))))
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	mux := server.NewMux(server.MuxConfig{
		Engine: engine,
		Cookie: httpapi.CookieOptions{
			Path:     cfg.CookiePath,
			Domain:   cfg.CookieDomain,
			Insecure: cfg.CookieInsecure,
		},
		Metrics:   metricsHandler(cfg, engine),
		Issuer:    engine,
		IssuerKey: cfg.IssuerKey,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("engine ready",
		slog.String("store", cfg.StoreBackend),
		slog.Bool("redis", rdb != nil),
		slog.Duration("access_ttl", time.Duration(cfg.AccessExpire)),
		slog.Duration("refresh_ttl", time.Duration(cfg.RefreshExpire)),
	)

	return server.Run(ctx, srv, engine, cfg.SweepInterval, cfg.ShutdownTimeout, logger)
}

func openStore(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return postgres.New(db), closer(db), nil
	case config.BackendRedis:
		return redisstore.New(rdb, redisstore.WithPrefix(cfg.KeyPrefix+":rt")), noop, nil
	case config.BackendBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.New(), noop, nil
	}
}

func closer(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func metricsHandler(cfg *config.Config, engine *goRotate.Engine) http.Handler {
	if !cfg.MetricsEnabled {
		return nil
	}
	return prometheus.New(engine).Handler()
}
