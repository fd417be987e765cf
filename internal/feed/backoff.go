package feed

import "time"

// ReconnectPolicy holds reconnect and keep-alive timings.
type ReconnectPolicy struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitedMax time.Duration
	// ReadTimeout is the quiet period after which a ping is sent. A
	// connection that stays silent for idleFactor read timeouts is dropped.
	ReadTimeout time.Duration
}

const idleFactor = 6

func (p ReconnectPolicy) idleTimeout() time.Duration {
	return p.ReadTimeout * idleFactor
}

// Backoff yields exponentially growing reconnect delays.
type Backoff struct {
	policy  ReconnectPolicy
	current time.Duration
}

// NewBackoff creates a Backoff starting at policy.InitialDelay.
func NewBackoff(policy ReconnectPolicy) *Backoff {
	if policy.RateLimitedMax < policy.MaxDelay {
		policy.RateLimitedMax = policy.MaxDelay
	}
	return &Backoff{policy: policy, current: policy.InitialDelay}
}

// Next returns the delay to wait before the coming attempt and doubles the
// following one up to MaxDelay. A rate-limited failure waits three times
// longer, capped at RateLimitedMax.
func (b *Backoff) Next(rateLimited bool) time.Duration {
	delay := b.current
	if rateLimited {
		delay = min(b.current*3, b.policy.RateLimitedMax)
	}
	b.current = min(b.current*2, b.policy.MaxDelay)
	return delay
}

// Reset returns to the initial delay after a successful connect.
func (b *Backoff) Reset() {
	b.current = b.policy.InitialDelay
}
