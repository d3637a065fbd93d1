package report

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report is an immutable rollup of every deal at generation time.
type Report struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	GeneratedAt       time.Time   `db:"generated_at" json:"generatedAt"`
	TotalDeals        int         `db:"total_deals" json:"totalDeals"`
	ActiveDeals       int         `db:"active_deals" json:"activeDeals"`
	TotalClaims       int64       `db:"total_claims" json:"totalClaims"`
	DealsByPopularity Popularity  `db:"deals_by_popularity" json:"dealsByPopularity"`
	WeeklyStats       WeeklyStats `db:"weekly_stats" json:"weeklyStats"`
}

type PopularDeal struct {
	DealID     uuid.UUID `json:"dealId"`
	Title      string    `json:"title"`
	ClaimCount int       `json:"claimCount"`
	ClaimRate  float64   `json:"claimRate"`
}

type WeeklyStats struct {
	NewDeals     int   `json:"newDeals"`
	NewClaims    int64 `json:"newClaims"`
	ExpiredDeals int   `json:"expiredDeals"`
}

type Popularity []PopularDeal

func (p *Popularity) Scan(src any) error {
	return scanJSON(src, p)
}

func (p Popularity) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]PopularDeal(p))
}

func (w *WeeklyStats) Scan(src any) error {
	return scanJSON(src, w)
}

func (w WeeklyStats) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source %T", src)
	}
}
