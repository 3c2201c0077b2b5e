package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrLoad            = errors.New("match load failed")
	ErrInvalidSnapshot = errors.New("invalid order book snapshot")
	ErrInvalidPair     = errors.New("invalid matched pair")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrRejected        = errors.New("order rejected")
	ErrSigningFailed   = errors.New("signing failed")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrLockHeld        = errors.New("lock already held")
	ErrNoPlacer        = errors.New("no order placer for platform")
)
