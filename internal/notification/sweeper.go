package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
)

const DefaultRetention = 30 * 24 * time.Hour

// Sweeper deletes notifications past the retention window.
type Sweeper struct {
	repo      Repository
	retention time.Duration
	metrics   *metrics.Pipeline
	logger    *zap.Logger
	now       func() time.Time
}

func NewSweeper(repo Repository, retention time.Duration, m *metrics.Pipeline, logger *zap.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		repo:      repo,
		retention: retention,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep removes notifications created before now minus the retention window and returns the count.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	start := s.now()
	cutoff := start.Add(-s.retention)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	s.metrics.ObserveJob("notification_sweep", s.now().Sub(start), err)
	if err != nil {
		s.logger.Error("Failed to sweep notifications", zap.Error(err), zap.Time("cutoff", cutoff))
		return 0, fmt.Errorf("failed to sweep notifications: %w", err)
	}

	if deleted == 0 {
		s.logger.Debug("No notifications to sweep", zap.Time("cutoff", cutoff))
		return 0, nil
	}
	s.logger.Info("Old notifications deleted",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return deleted, nil
}
