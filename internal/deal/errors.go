package deal

import "errors"

var (
	ErrDealNotFound = errors.New("deal not found")

	ErrInvalidPayload = errors.New("invalid deal payload")

	ErrInvalidUserID = errors.New("invalid user id")
)
