package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
)

type Reason string

const (
	ReasonExpired      Reason = "expired"
	ReasonQuotaReached Reason = "quota_reached"
)

// ShouldEvaluate reports whether an update needs lifecycle checks. Updates on inactive
// deals and updates that flip isActive themselves are skipped, which keeps the
// monitor's own deactivation write from retriggering it.
func ShouldEvaluate(before, after *deal.Deal) bool {
	if after == nil || !after.Status.IsActive {
		return false
	}
	if before != nil && before.Status.IsActive != after.Status.IsActive {
		return false
	}
	return true
}

// Evaluate lists every reason the deal must be deactivated at now.
// A deal without an end date or with a zero capacity skips that check.
func Evaluate(after *deal.Deal, now time.Time) []Reason {
	var reasons []Reason
	if end := after.Validity.EndDate; end != nil && end.Before(now) {
		reasons = append(reasons, ReasonExpired)
	}
	if capacity := after.MaxClaimsValue(); capacity != 0 && after.Analytics.CurrentlyClaimed >= capacity {
		reasons = append(reasons, ReasonQuotaReached)
	}
	return reasons
}

type Monitor struct {
	deals   deal.Repository
	metrics *metrics.Pipeline
	logger  *zap.Logger
	now     func() time.Time
}

func NewMonitor(deals deal.Repository, m *metrics.Pipeline, logger *zap.Logger) *Monitor {
	return &Monitor{
		deals:   deals,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleDealUpdated deactivates the deal when it expired or ran out of claims.
// Both reasons together still produce a single write.
func (m *Monitor) HandleDealUpdated(ctx context.Context, before, after *deal.Deal) error {
	if !ShouldEvaluate(before, after) {
		return nil
	}

	now := m.now()
	reasons := Evaluate(after, now)
	if len(reasons) == 0 {
		return nil
	}

	log := logger.WithDeal(m.logger, after.ID.String())
	changed, err := m.deals.Deactivate(ctx, after.ID, now)
	if err != nil {
		log.Error("Failed to deactivate deal", zap.Error(err), zap.Any("reasons", reasons))
		return fmt.Errorf("failed to deactivate deal: %w", err)
	}
	if !changed {
		log.Debug("Deal already inactive", zap.Any("reasons", reasons))
		return nil
	}

	for _, r := range reasons {
		m.metrics.IncDeactivation(string(r))
		log.Info("Deal deactivated", zap.String("reason", string(r)))
	}
	return nil
}
