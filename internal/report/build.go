package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
)

const Week = 7 * 24 * time.Hour

// Build assembles a report from one consistent read of the deals and the
// independently counted claims of the trailing week.
func Build(deals []*deal.Deal, newClaims int64, now time.Time) *Report {
	weekAgo := now.Add(-Week)
	r := &Report{
		ID:                uuid.New(),
		GeneratedAt:       now,
		TotalDeals:        len(deals),
		DealsByPopularity: make(Popularity, 0, len(deals)),
		WeeklyStats:       WeeklyStats{NewClaims: newClaims},
	}

	for _, d := range deals {
		if d.Status.IsActive {
			r.ActiveDeals++
		}

		claimCount := d.Analytics.CurrentlyClaimed
		r.TotalClaims += int64(claimCount)

		var rate float64
		if capacity := d.MaxClaimsValue(); capacity != 0 {
			rate = float64(claimCount) / float64(capacity)
		}
		r.DealsByPopularity = append(r.DealsByPopularity, PopularDeal{
			DealID:     d.ID,
			Title:      d.Title,
			ClaimCount: claimCount,
			ClaimRate:  rate,
		})

		if !d.Status.CreatedAt.IsZero() && !d.Status.CreatedAt.Before(weekAgo) {
			r.WeeklyStats.NewDeals++
		}
		// counts any deactivation in the window, not only expiry
		if !d.Status.IsActive && !d.Status.LastUpdated.IsZero() && !d.Status.LastUpdated.Before(weekAgo) {
			r.WeeklyStats.ExpiredDeals++
		}
	}

	sort.SliceStable(r.DealsByPopularity, func(i, j int) bool {
		return r.DealsByPopularity[i].ClaimCount > r.DealsByPopularity[j].ClaimCount
	})
	return r
}
