package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrUnparseable      = errors.New("unparseable message")
	ErrNotListed        = errors.New("asset not listed")
	ErrStaleSequence    = errors.New("stale sequence")
	ErrImplausibleSweep = errors.New("implausible sweep price")
	ErrSweepBelowFloor  = errors.New("sweep below minimum value")
	ErrNoMedia          = errors.New("no media available")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrNoConversion     = errors.New("no quote conversion available")
)
