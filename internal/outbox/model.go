package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one deal_events row written by the table triggers.
type Event struct {
	ID           uuid.UUID  `db:"id"`
	Seq          int64      `db:"seq"`
	EventType    string     `db:"event_type"`
	DealID       uuid.UUID  `db:"deal_id"`
	BeforeState  []byte     `db:"before_state"`
	AfterState   []byte     `db:"after_state"`
	CreatedAt    time.Time  `db:"created_at"`
	PublishedAt  *time.Time `db:"published_at"`
	AttemptCount int        `db:"attempt_count"`
	LastError    *string    `db:"last_error"`
}

func (e *Event) Envelope() Envelope {
	return Envelope{
		EventID:    e.ID,
		EventType:  e.EventType,
		DealID:     e.DealID,
		Before:     json.RawMessage(e.BeforeState),
		After:      json.RawMessage(e.AfterState),
		OccurredAt: e.CreatedAt,
	}
}
