package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeExpiration  Type = "deal_expiration"
	TypeClaimsLimit Type = "deal_claims_limit"
)

type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is an operator alert. Type-specific fields are nil for the other type.
type Notification struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Type             Type       `db:"type" json:"type"`
	DealID           uuid.UUID  `db:"deal_id" json:"dealId"`
	DealTitle        string     `db:"deal_title" json:"dealTitle"`
	Priority         Priority   `db:"priority" json:"priority"`
	Read             bool       `db:"read" json:"read"`
	Created          time.Time  `db:"created" json:"created"`
	ExpirationTime   *time.Time `db:"expiration_time" json:"expirationTime,omitempty"`
	ClaimsPercentage *float64   `db:"claims_percentage" json:"claimsPercentage,omitempty"`
	CurrentClaims    *int       `db:"current_claims" json:"currentClaims,omitempty"`
	MaxClaims        *int       `db:"max_claims" json:"maxClaims,omitempty"`
}

type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

// Thresholds tune when the emitter fires.
type Thresholds struct {
	ExpiryWindow  time.Duration
	ClaimsPercent int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ExpiryWindow:  24 * time.Hour,
		ClaimsPercent: 90,
	}
}
