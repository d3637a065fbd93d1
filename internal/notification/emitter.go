package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
	"github.com/Wuchinator/deal-pipeline/pkg/redis"
)

// ExpiryNotification returns a notification when the deal ends within the window.
// A deal ending exactly at the window edge, or already ended, does not qualify.
func ExpiryNotification(d *deal.Deal, now time.Time, th Thresholds) *Notification {
	end := d.Validity.EndDate
	if end == nil {
		return nil
	}
	remaining := end.Sub(now)
	if remaining <= 0 || remaining >= th.ExpiryWindow {
		return nil
	}
	expiration := *end
	return &Notification{
		Type:           TypeExpiration,
		DealID:         d.ID,
		DealTitle:      d.Title,
		Priority:       PriorityMedium,
		Created:        now,
		ExpirationTime: &expiration,
	}
}

// ClaimsLimitNotification returns a notification once claims reach the configured share of capacity.
// The comparison is done on integers so the boundary is exact.
func ClaimsLimitNotification(d *deal.Deal, now time.Time, th Thresholds) *Notification {
	capacity := d.MaxClaimsValue()
	current := d.Analytics.CurrentlyClaimed
	if capacity == 0 || current == 0 {
		return nil
	}
	if current*100 < th.ClaimsPercent*capacity {
		return nil
	}
	percentage := float64(current*100) / float64(capacity)
	return &Notification{
		Type:             TypeClaimsLimit,
		DealID:           d.ID,
		DealTitle:        d.Title,
		Priority:         PriorityHigh,
		Created:          now,
		ClaimsPercentage: &percentage,
		CurrentClaims:    &current,
		MaxClaims:        &capacity,
	}
}

type Emitter struct {
	repo        Repository
	thresholds  Thresholds
	dedup       redis.Store
	dedupWindow time.Duration
	metrics     *metrics.Pipeline
	logger      *zap.Logger
	now         func() time.Time
}

type EmitterOption func(*Emitter)

// WithDedup suppresses a repeat of the same notification bucket for window.
func WithDedup(store redis.Store, window time.Duration) EmitterOption {
	return func(e *Emitter) {
		if window > 0 {
			e.dedup = store
			e.dedupWindow = window
		}
	}
}

func WithEmitterMetrics(m *metrics.Pipeline) EmitterOption {
	return func(e *Emitter) {
		e.metrics = m
	}
}

func NewEmitter(repo Repository, th Thresholds, logger *zap.Logger, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		repo:       repo,
		thresholds: th,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleDealWritten evaluates both predicates against the written state and inserts
// a notification for each one that holds. A deleted or inactive deal is ignored.
func (e *Emitter) HandleDealWritten(ctx context.Context, after *deal.Deal) error {
	if after == nil || !after.Status.IsActive {
		return nil
	}

	now := e.now()
	var errs error
	for _, n := range []*Notification{
		ExpiryNotification(after, now, e.thresholds),
		ClaimsLimitNotification(after, now, e.thresholds),
	} {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, e.emit(ctx, n))
	}
	return errs
}

func (e *Emitter) emit(ctx context.Context, n *Notification) error {
	log := logger.WithDeal(e.logger, n.DealID.String()).With(zap.String("type", string(n.Type)))

	var key string
	if e.dedup != nil {
		key = e.dedup.DedupKey(n.DealID.String(), string(n.Type), dedupBucket(n))
		fresh, err := e.dedup.SetNX(ctx, key, n.Created.Unix(), e.dedupWindow)
		switch {
		case err != nil:
			log.Warn("Dedup key unavailable, emitting anyway", zap.Error(err))
			key = ""
		case !fresh:
			e.metrics.IncDuplicate("notification")
			log.Debug("Notification suppressed as duplicate")
			return nil
		}
	}

	if err := e.repo.Insert(ctx, n); err != nil {
		if key != "" {
			if delErr := e.dedup.Del(ctx, key); delErr != nil {
				log.Warn("Failed to release dedup key", zap.Error(delErr))
			}
		}
		log.Error("Failed to create notification", zap.Error(err))
		return fmt.Errorf("failed to create %s notification: %w", n.Type, err)
	}

	e.metrics.IncNotification(string(n.Type))
	log.Info("Notification created", zap.String("priority", string(n.Priority)))
	return nil
}

// dedupBucket is the expiry instant for expiration alerts and the claims decile for limit alerts.
func dedupBucket(n *Notification) string {
	switch n.Type {
	case TypeExpiration:
		if n.ExpirationTime != nil {
			return strconv.FormatInt(n.ExpirationTime.Unix(), 10)
		}
	case TypeClaimsLimit:
		if n.ClaimsPercentage != nil {
			return strconv.Itoa(int(*n.ClaimsPercentage) / 10)
		}
	}
	return ""
}
