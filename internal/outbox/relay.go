package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
)

const (
	defaultBatchSize   = 100
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxIdleBackoff     = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn postgres.TxFunc) error
}

// Publisher sends one encoded record, keyed for partitioning.
type Publisher interface {
	SendRaw(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type RelayConfig struct {
	Topic        string
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	Retention    time.Duration
}

// Relay moves trigger-written change events from Postgres to Kafka, at least once.
type Relay struct {
	db      txRunner
	repo    Repository
	pub     Publisher
	cfg     RelayConfig
	metrics *metrics.Pipeline
	logger  *zap.Logger
	now     func() time.Time
}

func NewRelay(db txRunner, repo Repository, pub Publisher, cfg RelayConfig, m *metrics.Pipeline, logger *zap.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPoll
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Relay{
		db:      db,
		repo:    repo,
		pub:     pub,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled. Full batches are followed immediately by the next
// poll; batch errors back off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.newBackoff()
	for {
		if ctx.Err() != nil {
			r.logger.Info("Outbox relay stopped")
			return nil
		}

		published, err := r.ProcessBatch(ctx)
		if err != nil {
			wait, _ := backoff.Next()
			r.logger.Error("Outbox batch failed", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		backoff = r.newBackoff()

		if published >= r.cfg.BatchSize {
			continue
		}
		if !sleep(ctx, r.cfg.PollInterval) {
			return nil
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.PollInterval)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(maxIdleBackoff, b)
}

// ProcessBatch publishes one batch and returns how many rows it handled.
// After a failure, later events of the same deal wait for the next batch so
// per-deal order is kept.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		handled = 0
		events, err := r.repo.FetchForPublish(ctx, tx, r.cfg.BatchSize, r.cfg.MaxAttempts)
		if err != nil {
			return err
		}

		blocked := make(map[uuid.UUID]bool)
		for i := range events {
			event := &events[i]
			if blocked[event.DealID] {
				continue
			}
			handled++

			log := r.logger.With(
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.String("deal_id", event.DealID.String()),
				zap.Int("attempt_count", event.AttemptCount),
			)

			if err := r.publish(ctx, event); err != nil {
				blocked[event.DealID] = true
				r.metrics.IncOutboxFailed()
				if event.AttemptCount+1 >= r.cfg.MaxAttempts {
					log.Error("Outbox event reached max attempts, leaving for operators", zap.Error(err))
				} else {
					log.Warn("Outbox publish failed", zap.Error(err))
				}
				if markErr := r.repo.MarkFailed(ctx, tx, event.ID, err); markErr != nil {
					return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
				}
				continue
			}

			if err := r.repo.MarkPublished(ctx, tx, event.ID, r.now()); err != nil {
				return fmt.Errorf("mark published %s: %w", event.ID, err)
			}
			r.metrics.IncOutboxPublished()
			log.Debug("Outbox event published")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return handled, nil
}

func (r *Relay) publish(ctx context.Context, event *Event) error {
	value, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	headers := map[string]string{
		"event_id":   event.ID.String(),
		"event_type": event.EventType,
	}
	return r.pub.SendRaw(ctx, r.cfg.Topic, event.DealID.String(), value, headers)
}

// Cleanup deletes rows published before the retention window.
func (r *Relay) Cleanup(ctx context.Context) (int64, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}
	start := r.now()
	deleted, err := r.repo.DeletePublishedBefore(ctx, start.Add(-r.cfg.Retention))
	r.metrics.ObserveJob("outbox_cleanup", r.now().Sub(start), err)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("Published outbox events deleted", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
