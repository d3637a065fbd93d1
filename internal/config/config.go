package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
	JWTSecret   string

	Postgres     PostgresConfig
	Kafka        KafkaConfig
	Redis        RedisConfig
	Pipeline     PipelineConfig
	Notification NotificationConfig
	Report       ReportConfig
	Outbox       OutboxConfig
	Health       HealthConfig
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
	TxMaxRetries    int
	TxBaseBackoff   time.Duration
	TxMaxBackoff    time.Duration
}

type KafkaConfig struct {
	Brokers          []string
	Topic            string
	DLQTopic         string
	ConsumerGroup    string
	ProducerRetries  int
	ProducerTimeout  time.Duration
	RequiredAcks     int
	CompressionType  string
	MaxMessageBytes  int
	IdempotentWrites bool
	SessionTimeout   time.Duration
	Rebalance        string
}

// RedisConfig is optional; an empty Addr disables idempotency keys and notification dedup.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	IdempotencyTTL time.Duration
}

type PipelineConfig struct {
	BucketTimezone    string
	HandlerMaxRetries int
	HandlerBackoff    time.Duration
}

type NotificationConfig struct {
	Retention            time.Duration
	DedupWindow          time.Duration
	ExpiryWarningWindow  time.Duration
	ClaimsWarningPercent int
	SweepInterval        time.Duration
}

type ReportConfig struct {
	Interval time.Duration
	PageSize int
}

type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	Retention    time.Duration
}

// HealthConfig drives dependency checks behind /health and the worker's gRPC status.
type HealthConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50053"),
		MetricsPort: getEnv("METRICS_PORT", "9102"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "deals"),
		Username:        getEnv("POSTGRES_USER", "admin"),
		Password:        getEnv("POSTGRES_PASSWORD", "password"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
		TxMaxRetries:    getEnvAsInt("POSTGRES_TX_MAX_RETRIES", 5),
		TxBaseBackoff:   getEnvAsDuration("POSTGRES_TX_BASE_BACKOFF", 20*time.Millisecond),
		TxMaxBackoff:    getEnvAsDuration("POSTGRES_TX_MAX_BACKOFF", time.Second),
	}

	brokers := getEnv("KAFKA_BROKERS", "localhost:9092")
	cfg.Kafka = KafkaConfig{
		Brokers:          splitList(brokers),
		Topic:            getEnv("KAFKA_TOPIC_DEAL_EVENTS", "deal-events"),
		DLQTopic:         getEnv("KAFKA_TOPIC_DLQ", "deal-events-dlq"),
		ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "deal-analytics-worker"),
		ProducerRetries:  getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout:  getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:     getEnvAsInt("KAFKA_REQUIRED_ACKS", -1), // -1 = all in-sync replicas
		CompressionType:  getEnv("KAFKA_COMPRESSION", "snappy"),
		IdempotentWrites: getEnvAsBool("KAFKA_IDEMPOTENT", true),
		MaxMessageBytes:  getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
		SessionTimeout:   getEnvAsDuration("KAFKA_SESSION_TIMEOUT", 10*time.Second),
		Rebalance:        getEnv("KAFKA_REBALANCE_STRATEGY", "sticky"),
	}

	cfg.Redis = RedisConfig{
		Addr:           getEnv("REDIS_ADDR", ""),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             getEnvAsInt("REDIS_DB", 0),
		PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 10),
		IdempotencyTTL: getEnvAsDuration("REDIS_IDEMPOTENCY_TTL", 72*time.Hour),
	}

	cfg.Pipeline = PipelineConfig{
		BucketTimezone:    getEnv("BUCKET_TIMEZONE", "Local"),
		HandlerMaxRetries: getEnvAsInt("HANDLER_MAX_RETRIES", 3),
		HandlerBackoff:    getEnvAsDuration("HANDLER_BACKOFF", 200*time.Millisecond),
	}

	cfg.Notification = NotificationConfig{
		Retention:            getEnvAsDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		DedupWindow:          getEnvAsDuration("NOTIFICATION_DEDUP_WINDOW", 0),
		ExpiryWarningWindow:  getEnvAsDuration("EXPIRY_WARNING_WINDOW", 24*time.Hour),
		ClaimsWarningPercent: getEnvAsInt("CLAIMS_WARNING_PERCENT", 90),
		SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 24*time.Hour),
	}

	cfg.Report = ReportConfig{
		Interval: getEnvAsDuration("REPORT_INTERVAL", 7*24*time.Hour),
		PageSize: getEnvAsInt("REPORT_PAGE_SIZE", 500),
	}

	cfg.Outbox = OutboxConfig{
		BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 100),
		PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		MaxAttempts:  getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		Retention:    getEnvAsDuration("OUTBOX_RETENTION", 72*time.Hour),
	}

	cfg.Health = HealthConfig{
		Interval: getEnvAsDuration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		Timeout:  getEnvAsDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}
	if _, err := c.Pipeline.Location(); err != nil {
		return err
	}
	if c.Notification.ClaimsWarningPercent <= 0 || c.Notification.ClaimsWarningPercent > 100 {
		return fmt.Errorf("CLAIMS_WARNING_PERCENT must be in (0, 100], got %d", c.Notification.ClaimsWarningPercent)
	}
	if c.Report.PageSize <= 0 {
		return fmt.Errorf("REPORT_PAGE_SIZE must be positive, got %d", c.Report.PageSize)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.Outbox.BatchSize)
	}
	return nil
}

// Location resolves BUCKET_TIMEZONE; "Local" (or empty) keeps the server's zone.
func (p PipelineConfig) Location() (*time.Location, error) {
	if p.BucketTimezone == "" || strings.EqualFold(p.BucketTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.BucketTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUCKET_TIMEZONE %q: %w", p.BucketTimezone, err)
	}
	return loc, nil
}

func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
