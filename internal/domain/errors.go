package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrOrderRejected    = errors.New("order rejected")
	ErrSigningFailed    = errors.New("signing failed")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
	ErrLockLost         = errors.New("lock lost")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvariant        = errors.New("ledger invariant violated")
	ErrPositionExists   = errors.New("position already open")
	ErrNoPosition       = errors.New("no open position")
)
