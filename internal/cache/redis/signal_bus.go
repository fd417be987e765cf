package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub. Channel names
// are namespaced under the client prefix.
type SignalBus struct {
	rdb   *redis.Client
	keyFn func(...string) string
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying(), keyFn: c.Key}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, sb.keyFn(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel that emits raw byte payloads. The subscription is automatically
// closed when the context is cancelled; the returned channel is closed at
// that point as well.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, sb.keyFn(channel))
	} else {
		pubsub = sb.rdb.Subscribe(ctx, sb.keyFn(channel))
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends a payload to a Redis stream using XADD with an
// approximate MAXLEN of 10,000 entries for automatic trimming.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: sb.keyFn("stream", stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// AlertEvent is the JSON shape of an alert on the bus and in event topics.
type AlertEvent struct {
	ID         string    `json:"id"`
	Exchange   string    `json:"exchange"`
	Pair       string    `json:"pair"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	TradeCount int       `json:"trade_count"`
	Sweep      bool      `json:"sweep"`
	Timestamp  time.Time `json:"timestamp"`
	MarketURL  string    `json:"market_url"`
}

// NewAlertEvent converts an alert into its event form.
func NewAlertEvent(a domain.Alert) AlertEvent {
	return AlertEvent{
		ID:         a.ID,
		Exchange:   a.Exchange,
		Pair:       a.Pair,
		Price:      a.Price,
		Quantity:   a.Quantity,
		Value:      a.Value,
		Threshold:  a.Threshold,
		TradeCount: a.TradeCount,
		Sweep:      a.Sweep,
		Timestamp:  a.Timestamp,
		MarketURL:  a.MarketURL,
	}
}

// AlertSink publishes alerts on the "alerts" channel and appends them to
// the "alerts" stream so late readers can catch up.
type AlertSink struct {
	bus *SignalBus
}

// NewAlertSink creates an AlertSink on bus.
func NewAlertSink(bus *SignalBus) *AlertSink {
	return &AlertSink{bus: bus}
}

// Name returns the sink identifier.
func (s *AlertSink) Name() string { return "redis" }

// PublishAlert implements domain.AlertSink.
func (s *AlertSink) PublishAlert(ctx context.Context, a domain.Alert) error {
	payload, err := json.Marshal(NewAlertEvent(a))
	if err != nil {
		return fmt.Errorf("redis: marshal alert %s: %w", a.ID, err)
	}
	if err := s.bus.Publish(ctx, "alerts", payload); err != nil {
		return err
	}
	return s.bus.StreamAppend(ctx, "alerts", payload)
}

var (
	_ domain.SignalBus = (*SignalBus)(nil)
	_ domain.AlertSink = (*AlertSink)(nil)
)
