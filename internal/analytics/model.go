package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
)

// DealAnalytics is the per-deal view served to authenticated callers.
type DealAnalytics struct {
	DealID           uuid.UUID      `db:"id" json:"dealId"`
	TotalAvailable   int            `db:"total_available" json:"totalAvailable"`
	CurrentlyClaimed int            `db:"currently_claimed" json:"currentlyClaimed"`
	ClaimRate        float64        `db:"-" json:"claimRate"`
	PeakTimes        deal.PeakTimes `db:"peak_times" json:"peakTimes"`
	IsActive         bool           `db:"is_active" json:"isActive"`
}

// ComputeClaimRate sets ClaimRate to claimed/available, 0 without a capacity.
func (a *DealAnalytics) ComputeClaimRate() {
	if a.PeakTimes == nil {
		a.PeakTimes = deal.PeakTimes{}
	}
	if a.TotalAvailable == 0 {
		a.ClaimRate = 0
		return
	}
	a.ClaimRate = float64(a.CurrentlyClaimed) / float64(a.TotalAvailable)
}

// DealStats ranks deals by claims received inside a time window.
type DealStats struct {
	DealID      uuid.UUID `db:"deal_id" json:"dealId"`
	Title       string    `db:"title" json:"title"`
	ClaimCount  int64     `db:"claim_count" json:"claimCount"`
	UniqueUsers int64     `db:"unique_users" json:"uniqueUsers"`
}

type TopDealsFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}
