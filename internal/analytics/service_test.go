package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
)

type stubRepository struct {
	analytics *DealAnalytics
	filter    TopDealsFilter
}

func (r *stubRepository) GetDealAnalytics(_ context.Context, _ uuid.UUID) (*DealAnalytics, error) {
	if r.analytics == nil {
		return nil, deal.ErrDealNotFound
	}
	return r.analytics, nil
}

func (r *stubRepository) GetTopDeals(_ context.Context, filter TopDealsFilter) ([]*DealStats, error) {
	r.filter = filter
	return []*DealStats{}, nil
}

func TestGetTopDealsDefaults(t *testing.T) {
	repo := &stubRepository{}
	svc := NewService(repo, zap.NewNop())
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.GetTopDeals(context.Background(), TopDealsFilter{Limit: 1000})
	require.NoError(t, err)

	require.Equal(t, now, repo.filter.To)
	require.Equal(t, now.Add(-7*24*time.Hour), repo.filter.From)
	require.Equal(t, maxTopDealsLimit, repo.filter.Limit)
}

func TestGetTopDealsRejectsInvertedRange(t *testing.T) {
	svc := NewService(&stubRepository{}, zap.NewNop())
	now := time.Now()

	_, err := svc.GetTopDeals(context.Background(), TopDealsFilter{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetDealAnalyticsNotFound(t *testing.T) {
	svc := NewService(&stubRepository{}, zap.NewNop())

	_, err := svc.GetDealAnalytics(context.Background(), uuid.New())
	require.ErrorIs(t, err, deal.ErrDealNotFound)
}

func TestComputeClaimRate(t *testing.T) {
	a := &DealAnalytics{TotalAvailable: 8, CurrentlyClaimed: 2}
	a.ComputeClaimRate()
	require.InDelta(t, 0.25, a.ClaimRate, 1e-9)
	require.NotNil(t, a.PeakTimes)

	unlimited := &DealAnalytics{CurrentlyClaimed: 5}
	unlimited.ComputeClaimRate()
	require.Zero(t, unlimited.ClaimRate)
}
