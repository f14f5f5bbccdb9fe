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

	"github.com/hackgods/telehealth-booking/internal/config"
	"github.com/hackgods/telehealth-booking/internal/logger"
	"github.com/hackgods/telehealth-booking/internal/metrics"
	redisclient "github.com/hackgods/telehealth-booking/internal/redis"
	"github.com/hackgods/telehealth-booking/internal/reminder"
)

// outboxMaxLen caps the stream so an absent consumer cannot grow it forever.
const outboxMaxLen = 100_000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "reminder-worker")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	logg.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.ReminderPollInterval),
		zap.String("metrics_port", cfg.WorkerMetricsPort),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// metrics only; the worker has no other HTTP surface
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("metrics server error", zap.Error(err))
		}
	}()

	worker := reminder.NewWorker(
		reminder.NewQueue(rdb),
		reminder.NewStreamPublisher(rdb, reminder.OutboxStream, outboxMaxLen),
		reminder.WorkerOptions{
			PollInterval: cfg.ReminderPollInterval,
			RetryDelay:   cfg.ReminderRetryDelay,
			BatchSize:    cfg.ReminderBatchSize,
			OrphanGrace:  cfg.ReminderOrphanGrace,
		},
		logg,
		m,
	)

	if err := worker.Run(rootCtx); err != nil {
		logg.Error("reminder worker stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logg.Info("reminder-worker stopped")
}
