package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTopDealsLimit = 10
	maxTopDealsLimit     = 100
)

// Service is the read side of deal analytics.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) GetDealAnalytics(ctx context.Context, id uuid.UUID) (*DealAnalytics, error) {
	return s.repo.GetDealAnalytics(ctx, id)
}

// GetTopDeals defaults to the trailing seven days and clamps the limit.
func (s *Service) GetTopDeals(ctx context.Context, filter TopDealsFilter) ([]*DealStats, error) {
	if filter.To.IsZero() {
		filter.To = s.now()
	}
	if filter.From.IsZero() {
		filter.From = filter.To.Add(-7 * 24 * time.Hour)
	}
	if !filter.From.Before(filter.To) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultTopDealsLimit
	case filter.Limit > maxTopDealsLimit:
		filter.Limit = maxTopDealsLimit
	}
	return s.repo.GetTopDeals(ctx, filter)
}
