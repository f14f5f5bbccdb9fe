package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/api"
	"github.com/hackgods/telehealth-booking/internal/appointment"
	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/config"
	"github.com/hackgods/telehealth-booking/internal/db"
	"github.com/hackgods/telehealth-booking/internal/logger"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	redisclient "github.com/hackgods/telehealth-booking/internal/redis"
	"github.com/hackgods/telehealth-booking/internal/reminder"
	"github.com/hackgods/telehealth-booking/internal/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.RequirePostgres(); err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "api-server")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	logg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", cfg.Version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logg.Info("connected to Postgres")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		logg.Fatal("schema migration error", zap.Error(err))
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logg.Warn("error closing redis", zap.Error(err))
		}
	}()
	logg.Info("connected to Redis")

	m := metrics.NewCollector("telehealth", prometheus.DefaultRegisterer)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	statuses := status.NewRegistry(status.NewPgStore(pgPool), cfg.StatusCacheTTL, logg, m)
	primeCtx, cancelPrime := context.WithTimeout(rootCtx, 5*time.Second)
	if err := statuses.Prime(primeCtx); err != nil {
		// lookups fall through to Postgres on a cold cache
		logg.Warn("status cache prime failed", zap.Error(err))
	}
	cancelPrime()

	slots := availability.NewService(availability.NewPgRepository(pgPool), locker, logg, m)
	appts := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		statuses,
		locker,
		reminder.NewQueue(rdb),
		logg,
		m,
	)

	handler := api.NewRouter(api.RouterConfig{
		Appointments: appts,
		Availability: slots,
		Statuses:     statuses,
		Verifier:     auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Health: api.NewHealthHandler(
			pgPool,
			api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			cfg.Env,
			cfg.Version,
		),
		Metrics:        m,
		MetricsHandler: metrics.Handler(),
		Log:            logg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logg.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logg.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("graceful shutdown failed", zap.Error(err))
	}

	logg.Info("api-server stopped")
}
