package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Wuchinator/deal-pipeline/internal/analytics"
	"github.com/Wuchinator/deal-pipeline/internal/config"
	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/internal/health"
	"github.com/Wuchinator/deal-pipeline/internal/lifecycle"
	"github.com/Wuchinator/deal-pipeline/internal/notification"
	"github.com/Wuchinator/deal-pipeline/internal/pipeline"
	"github.com/Wuchinator/deal-pipeline/internal/report"
	"github.com/Wuchinator/deal-pipeline/pkg/kafka"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
	"github.com/Wuchinator/deal-pipeline/pkg/redis"
)

const serviceName = "analytics-worker"

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

	log = logger.WithService(log, serviceName)
	log.Info("Starting Analytics Worker",
		zap.String("environment", cfg.Environment),
		zap.String("consumer_group", cfg.Kafka.ConsumerGroup),
		zap.String("topic", cfg.Kafka.Topic),
	)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := health.NewChecker(cfg.Health.Timeout, log)
	checks.Add("postgres", db.HealthCheck)

	var store redis.Store
	if cfg.Redis.Addr != "" {
		client, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		store = client
		checks.Add("redis", client.Ping)
	} else {
		log.Warn("REDIS_ADDR not set, idempotency keys and notification dedup disabled")
	}

	dlq, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.DLQTopic,
		Retries:          cfg.Kafka.ProducerRetries,
		Timeout:          cfg.Kafka.ProducerTimeout,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.CompressionType,
		IdempotentWrites: cfg.Kafka.IdempotentWrites,
		MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
	}, log)
	if err != nil {
		log.Fatal("Failed to create dead-letter producer", zap.Error(err))
	}
	defer dlq.Close()

	dealRepo := deal.NewRepository(db, log)
	notificationRepo := notification.NewRepository(db.DB, log)

	trackerOpts := []analytics.TrackerOption{analytics.WithTrackerMetrics(m)}
	emitterOpts := []notification.EmitterOption{notification.WithEmitterMetrics(m)}
	if store != nil {
		trackerOpts = append(trackerOpts, analytics.WithIdempotency(store, cfg.Redis.IdempotencyTTL))
		emitterOpts = append(emitterOpts, notification.WithDedup(store, cfg.Notification.DedupWindow))
	}

	tracker := analytics.NewTracker(dealRepo, loc, log, trackerOpts...)
	monitor := lifecycle.NewMonitor(dealRepo, m, log)
	emitter := notification.NewEmitter(notificationRepo, notification.Thresholds{
		ExpiryWindow:  cfg.Notification.ExpiryWarningWindow,
		ClaimsPercent: cfg.Notification.ClaimsWarningPercent,
	}, log, emitterOpts...)

	dispatcher := pipeline.NewDispatcher(tracker, monitor, emitter, dlq, pipeline.Config{
		DLQTopic:   cfg.Kafka.DLQTopic,
		MaxRetries: uint64(cfg.Pipeline.HandlerMaxRetries),
		Backoff:    cfg.Pipeline.HandlerBackoff,
	}, m, log)

	generator := report.NewGenerator(report.NewRepository(db, log), cfg.Report.PageSize, m, log)
	sweeper := notification.NewSweeper(notificationRepo, cfg.Notification.Retention, m, log)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.Topic},
		GroupID:           cfg.Kafka.ConsumerGroup,
		AutoCommit:        true,
		CommitInterval:    1 * time.Second,
		SessionTimeout:    cfg.Kafka.SessionTimeout,
		RebalanceStrategy: cfg.Kafka.Rebalance,
	}, dispatcher.CreateMessageHandler(), log)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(log),
		recoveryInterceptor(log)),
	)
	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		log.Info("Starting gRPC health server", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(listener); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting metrics server", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	<-consumer.WaitReady()
	log.Info("Kafka consumer is ready and consuming messages")

	go checks.Watch(ctx, cfg.Health.Interval, func(healthy bool) {
		status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
		if healthy {
			status = grpc_health_v1.HealthCheckResponse_SERVING
		}
		healthServer.SetServingStatus(serviceName, status)
	})
	if cfg.Health.Interval <= 0 {
		healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	go runEvery(ctx, log, "weekly_report", cfg.Report.Interval, func(ctx context.Context) error {
		_, err := generator.Generate(ctx)
		return err
	})
	go runEvery(ctx, log, "notification_sweep", cfg.Notification.SweepInterval, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")
	// Shutdown pins NOT_SERVING so a late health watch result cannot flip it back
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Metrics server shutdown failed", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("gRPC shutdown timed out")
		grpcServer.Stop()
	}

	log.Info("Analytics Worker stopped")
}

// runEvery runs job on every tick until ctx is cancelled. A non-positive interval disables the job.
func runEvery(ctx context.Context, log *zap.Logger, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		log.Info("Scheduled job disabled", zap.String("job", name))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := job(ctx); err != nil {
				log.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			log.Error("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

func recoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered in gRPC handler",
					zap.Any("panic", r),
					zap.String("method", info.FullMethod),
				)
				err = fmt.Errorf("internal error")
			}
		}()
		return handler(ctx, req)
	}
}
