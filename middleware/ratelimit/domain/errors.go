package domain

import "errors"

var (
	ErrInvalidPolicy   = errors.New("invalid rate limit policy")
	ErrEmptyIdentifier = errors.New("identifier is required")
	ErrUnknownPolicy   = errors.New("unknown rate limit policy")
)
