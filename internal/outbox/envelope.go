package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventDealCreated  = "deal.created"
	EventDealUpdated  = "deal.updated"
	EventDealDeleted  = "deal.deleted"
	EventClaimCreated = "claim.created"
)

// Envelope is the Kafka record value for one change event.
type Envelope struct {
	EventID    uuid.UUID       `json:"eventId"`
	EventType  string          `json:"eventType"`
	DealID     uuid.UUID       `json:"dealId"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func DecodeEnvelope(value []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrInvalidEnvelope)
	}
	return &env, nil
}
