package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 30*24*time.Hour, cfg.Notification.Retention)
	require.Equal(t, 24*time.Hour, cfg.Notification.ExpiryWarningWindow)
	require.Equal(t, 90, cfg.Notification.ClaimsWarningPercent)
	require.Zero(t, cfg.Notification.DedupWindow)
	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, 500, cfg.Report.PageSize)
	require.Equal(t, 15*time.Second, cfg.Health.Interval)
	require.Equal(t, 2*time.Second, cfg.Health.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("BUCKET_TIMEZONE", "UTC")
	t.Setenv("NOTIFICATION_DEDUP_WINDOW", "6h")
	t.Setenv("REPORT_PAGE_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 6*time.Hour, cfg.Notification.DedupWindow)
	require.Equal(t, 50, cfg.Report.PageSize)

	loc, err := cfg.Pipeline.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("BUCKET_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("percent", func(t *testing.T) {
		t.Setenv("CLAIMS_WARNING_PERCENT", "0")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLocalTimezone(t *testing.T) {
	loc, err := PipelineConfig{BucketTimezone: "local"}.Location()
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "deals", SSLMode: "disable"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=deals sslmode=disable", pg.PostgresDSN())
}
