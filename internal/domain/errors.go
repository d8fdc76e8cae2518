package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrInvalidPair      = errors.New("invalid currency pair")
	ErrInvalidPosition  = errors.New("invalid position parameters")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
)
