package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SignalBus provides pub/sub for alert and availability events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StateCache mirrors process state for external readers.
type StateCache interface {
	SetThreshold(ctx context.Context, st ThresholdState) error
	GetThreshold(ctx context.Context) (ThresholdState, error)
	SetAvailability(ctx context.Context, st AvailabilityState) error
	GetAvailability(ctx context.Context) ([]AvailabilityState, error)
}

// AlertSink receives every alert that is handed to the dispatcher.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert Alert) error
	Name() string
}
