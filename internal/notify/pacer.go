package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RatePacer allows one delivery per interval per key, in process.
type RatePacer struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRatePacer creates a RatePacer.
func NewRatePacer(interval time.Duration) *RatePacer {
	return &RatePacer{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until key may send again or ctx is done.
func (p *RatePacer) Wait(ctx context.Context, key string) error {
	if p.interval <= 0 {
		return nil
	}
	p.mu.Lock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[key] = l
	}
	p.mu.Unlock()
	return l.Wait(ctx)
}
