package analytics

import "errors"

var (
	ErrInvalidRange = errors.New("invalid time range")

	// ErrPartiallyApplied marks a claim whose counter was applied but whose histogram
	// update failed with no idempotency guard; redelivering it would double count.
	ErrPartiallyApplied = errors.New("claim partially applied")
)
