package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/analytics"
	"github.com/Wuchinator/deal-pipeline/internal/api"
	"github.com/Wuchinator/deal-pipeline/internal/config"
	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/internal/health"
	"github.com/Wuchinator/deal-pipeline/internal/notification"
	"github.com/Wuchinator/deal-pipeline/internal/report"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
	"github.com/Wuchinator/deal-pipeline/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "deal-api")
	log.Info("Starting Deal API",
		zap.String("environment", cfg.Environment),
		zap.String("http_port", cfg.HTTPPort),
	)
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, every /api/v1 request will be rejected")
	}

	loc, err := cfg.Pipeline.Location()
	if err != nil {
		log.Fatal("Invalid bucket timezone", zap.Error(err))
	}

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		TxRetry: postgres.TxRetryConfig{
			MaxRetries:  uint64(cfg.Postgres.TxMaxRetries),
			BaseBackoff: cfg.Postgres.TxBaseBackoff,
			MaxBackoff:  cfg.Postgres.TxMaxBackoff,
		},
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPipeline(registry)

	checks := health.NewChecker(cfg.Health.Timeout, log)
	checks.Add("postgres", db.HealthCheck)
	if cfg.Redis.Addr != "" {
		startCtx, startCancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := redis.New(startCtx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		startCancel()
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		checks.Add("redis", client.Ping)
	}

	dealRepo := deal.NewRepository(db, log)
	notificationRepo := notification.NewRepository(db.DB, log)

	handler := api.NewHandler(
		report.NewGenerator(report.NewRepository(db, log), cfg.Report.PageSize, m, log),
		notification.NewSweeper(notificationRepo, cfg.Notification.Retention, m, log),
		analytics.NewService(analytics.NewRepository(db.DB, log), log),
		analytics.NewTracker(dealRepo, loc, log, analytics.WithTrackerMetrics(m)),
		notificationRepo,
		dealRepo,
		checks,
		log,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(handler, cfg.JWTSecret, registry, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown timed out", zap.Error(err))
		_ = server.Close()
	}
	log.Info("Deal API stopped")
}
