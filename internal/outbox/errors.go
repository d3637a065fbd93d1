package outbox

import "errors"

var ErrInvalidEnvelope = errors.New("invalid event envelope")
