package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoMarket      = errors.New("no active market")
	ErrStaleUpdate   = errors.New("stale book update")
	ErrIlliquid      = errors.New("insufficient book depth")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
)
