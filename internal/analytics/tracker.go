package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
	"github.com/Wuchinator/deal-pipeline/pkg/redis"
)

const (
	stepCounter   = "claim-counter"
	stepHistogram = "claim-histogram"
)

// Tracker applies claim events to the owning deal's aggregates.
type Tracker struct {
	deals   deal.Repository
	guard   redis.Store
	ttl     time.Duration
	metrics *metrics.Pipeline
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

type TrackerOption func(*Tracker)

// WithIdempotency guards each step with a redis key so a redelivered claim is applied once.
func WithIdempotency(store redis.Store, ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.guard = store
		t.ttl = ttl
	}
}

func WithTrackerMetrics(m *metrics.Pipeline) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func NewTracker(deals deal.Repository, loc *time.Location, logger *zap.Logger, opts ...TrackerOption) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	t := &Tracker{
		deals:  deals,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleClaimCreated bumps the counter and history, then the peak-time bucket.
// The counter update stays applied when the histogram step fails.
func (t *Tracker) HandleClaimCreated(ctx context.Context, claim *deal.Claim) error {
	log := logger.WithDeal(t.logger, claim.DealID.String()).With(
		zap.String("claim_id", claim.ID.String()),
		zap.String("user_id", claim.UserID),
	)

	ts := t.now()
	if claim.Timestamp != nil {
		ts = *claim.Timestamp
	}
	entry := deal.ClaimEntry{Timestamp: ts, UserID: claim.UserID}

	err := t.once(ctx, log, stepCounter, claim.ID, func() error {
		return t.deals.RecordClaim(ctx, claim.DealID, entry, t.now())
	})
	if err != nil {
		log.Error("Failed to record claim", zap.Error(err))
		return fmt.Errorf("failed to record claim: %w", err)
	}

	day, timeOfDay := deal.BucketFor(ts, t.loc)
	err = t.once(ctx, log, stepHistogram, claim.ID, func() error {
		return t.deals.IncrementPeakTime(ctx, claim.DealID, day, timeOfDay, t.now())
	})
	if err != nil {
		log.Error("Failed to update peak times, claim counter already applied",
			zap.Error(err),
			zap.Int("day_of_week", day),
			zap.String("time_of_day", timeOfDay),
		)
		if t.guard == nil {
			return fmt.Errorf("failed to update peak times: %w: %w", ErrPartiallyApplied, err)
		}
		return fmt.Errorf("failed to update peak times: %w", err)
	}

	t.metrics.IncClaimsTracked()
	log.Debug("Claim tracked",
		zap.Int("day_of_week", day),
		zap.String("time_of_day", timeOfDay),
	)
	return nil
}

// Reconcile recomputes the counter and histogram from the claim rows.
func (t *Tracker) Reconcile(ctx context.Context, dealID uuid.UUID) (*deal.Analytics, error) {
	start := t.now()
	a, err := t.deals.Rebuild(ctx, dealID, t.loc, start)
	t.metrics.ObserveJob("reconcile", t.now().Sub(start), err)
	if err != nil {
		t.logger.Error("Failed to reconcile deal", zap.String("deal_id", dealID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to reconcile deal: %w", err)
	}

	t.logger.Info("Deal reconciled",
		zap.String("deal_id", dealID.String()),
		zap.Int("currently_claimed", a.CurrentlyClaimed),
		zap.Int("peak_buckets", len(a.PeakTimes)),
	)
	return a, nil
}

// once runs fn unless the step was already applied for this claim. A failed step
// releases its key so the redelivery retries it.
func (t *Tracker) once(ctx context.Context, log *zap.Logger, step string, claimID uuid.UUID, fn func() error) error {
	if t.guard == nil || claimID == uuid.Nil {
		return fn()
	}

	key := t.guard.IdempotencyKey(step, claimID.String())
	acquired, err := t.guard.SetNX(ctx, key, t.now().Unix(), t.ttl)
	if err != nil {
		log.Warn("Idempotency key unavailable, applying without guard", zap.String("step", step), zap.Error(err))
		return fn()
	}
	if !acquired {
		t.metrics.IncDuplicate(step)
		log.Info("Duplicate claim delivery skipped", zap.String("step", step))
		return nil
	}

	if err := fn(); err != nil {
		if delErr := t.guard.Del(ctx, key); delErr != nil {
			log.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(delErr))
		}
		return err
	}
	return nil
}
