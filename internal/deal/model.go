package deal

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Deal is the nested document shape served over the API.
type Deal struct {
	ID          uuid.UUID `json:"id"`
	ItemID      string    `json:"itemId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Terms       string    `json:"terms"`
	Validity    Validity  `json:"validity"`
	Limits      Limits    `json:"limits"`
	Analytics   Analytics `json:"analytics"`
	Status      Status    `json:"status"`
}

type Validity struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type Limits struct {
	MaxClaims    *int `json:"maxClaims,omitempty"`
	PerUserLimit *int `json:"perUserLimit,omitempty"`
}

type Analytics struct {
	CurrentlyClaimed int          `json:"currentlyClaimed"`
	ClaimHistory     ClaimHistory `json:"claimHistory,omitempty"`
	PeakTimes        PeakTimes    `json:"peakTimes"`
}

type Status struct {
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type ClaimEntry struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
}

type PeakTime struct {
	DayOfWeek  int    `json:"dayOfWeek"`
	TimeOfDay  string `json:"timeOfDay"`
	ClaimCount int    `json:"claimCount"`
}

// MaxClaimsValue returns the configured capacity, 0 when unset.
func (d *Deal) MaxClaimsValue() int {
	if d.Limits.MaxClaims == nil {
		return 0
	}
	return *d.Limits.MaxClaims
}

// Row is the flat deals table row. Its json tags match the change payloads written by the
// deals trigger, so outbox events decode straight into it.
type Row struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	ItemID           string       `db:"item_id" json:"item_id"`
	Title            string       `db:"title" json:"title"`
	Description      string       `db:"description" json:"description"`
	Terms            string       `db:"terms" json:"terms"`
	StartDate        *time.Time   `db:"start_date" json:"start_date"`
	EndDate          *time.Time   `db:"end_date" json:"end_date"`
	MaxClaims        *int         `db:"max_claims" json:"max_claims"`
	PerUserLimit     *int         `db:"per_user_limit" json:"per_user_limit"`
	CurrentlyClaimed int          `db:"currently_claimed" json:"currently_claimed"`
	ClaimHistory     ClaimHistory `db:"claim_history" json:"claim_history,omitempty"`
	PeakTimes        PeakTimes    `db:"peak_times" json:"peak_times"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	LastUpdated      time.Time    `db:"last_updated" json:"last_updated"`
}

func (r *Row) Deal() *Deal {
	return &Deal{
		ID:          r.ID,
		ItemID:      r.ItemID,
		Title:       r.Title,
		Description: r.Description,
		Terms:       r.Terms,
		Validity:    Validity{StartDate: r.StartDate, EndDate: r.EndDate},
		Limits:      Limits{MaxClaims: r.MaxClaims, PerUserLimit: r.PerUserLimit},
		Analytics: Analytics{
			CurrentlyClaimed: r.CurrentlyClaimed,
			ClaimHistory:     r.ClaimHistory,
			PeakTimes:        r.PeakTimes,
		},
		Status: Status{
			IsActive:    r.IsActive,
			CreatedAt:   r.CreatedAt,
			LastUpdated: r.LastUpdated,
		},
	}
}

// DecodeRow parses a change payload; null or empty input yields nil.
func DecodeRow(payload json.RawMessage) (*Deal, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var row Row
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return row.Deal(), nil
}

// Claim is one redemption row under a deal. Timestamp may be absent.
type Claim struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DealID    uuid.UUID  `db:"deal_id" json:"deal_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Timestamp *time.Time `db:"claimed_at" json:"claimed_at"`
}

func NewClaim(dealID uuid.UUID, userID string, at time.Time) *Claim {
	ts := at
	return &Claim{
		ID:        uuid.New(),
		DealID:    dealID,
		UserID:    userID,
		Timestamp: &ts,
	}
}

func DecodeClaim(payload json.RawMessage) (*Claim, error) {
	var c Claim
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if c.DealID == uuid.Nil {
		return nil, fmt.Errorf("%w: claim without deal id", ErrInvalidPayload)
	}
	return &c, nil
}

type ClaimHistory []ClaimEntry

func (h *ClaimHistory) Scan(src any) error {
	return scanJSON(src, h)
}

func (h ClaimHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ClaimEntry(h))
}

type PeakTimes []PeakTime

func (p *PeakTimes) Scan(src any) error {
	return scanJSON(src, p)
}

func (p PeakTimes) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]PeakTime(p))
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
