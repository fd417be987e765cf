package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// Connector streams one venue's trades for a set of pairs and forwards the
// buy-side (and side-unknown) executions to out.
type Connector struct {
	venue  Venue
	pairs  []string
	out    chan<- domain.Trade
	stream streamer
	logger *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]domain.Trade
}

// NewConnector creates a Connector. Run must be called to start streaming.
func NewConnector(venue Venue, pairs []string, gate Gate, policy ReconnectPolicy, out chan<- domain.Trade, logger *slog.Logger) *Connector {
	logger = logger.With(slog.String("component", "connector"), slog.String("exchange", venue.Name()))
	return &Connector{
		venue:    venue,
		pairs:    pairs,
		out:      out,
		stream:   newStreamer(venue.Name(), "trades", gate, policy, logger),
		logger:   logger,
		lastSeen: make(map[string]domain.Trade),
	}
}

// Name returns the exchange name.
func (c *Connector) Name() string { return c.venue.Name() }

// Run blocks until ctx is cancelled, reconnecting as needed.
func (c *Connector) Run(ctx context.Context) error {
	if len(c.pairs) == 0 {
		c.logger.InfoContext(ctx, "no pairs configured, exiting")
		return nil
	}

	var frames [][]byte
	for _, p := range c.pairs {
		f, err := c.venue.TradeSubscriptions(p)
		if err != nil {
			return err
		}
		frames = append(frames, f...)
	}

	return c.stream.loop(ctx, func(ctx context.Context) (bool, error) {
		return c.stream.session(ctx, c.venue.StreamURL(), frames, c.handle)
	})
}

func (c *Connector) handle(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	msg, err := c.venue.Decode(raw)
	if err != nil {
		metrics.MessagesSkipped.WithLabelValues(c.venue.Name()).Inc()
		c.logger.WarnContext(ctx, "skipping unparseable message",
			slog.String("error", err.Error()),
			slog.String("raw", truncate(raw, 256)),
		)
		return nil
	}

	switch m := msg.(type) {
	case TradesMessage:
		for _, t := range m.Trades {
			metrics.TradesReceived.WithLabelValues(t.Exchange, string(t.Side)).Inc()
			c.remember(t)
			if !t.Side.Qualifies() {
				continue
			}
			select {
			case c.out <- t:
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
	case ControlMessage:
		if err := reply(conn, m.Reply); err != nil {
			return fmt.Errorf("%s: control reply: %w", c.venue.Name(), err)
		}
	case IgnoredMessage:
		c.logger.DebugContext(ctx, "ignored message", slog.String("reason", m.Reason))
	default:
		c.logger.DebugContext(ctx, "unexpected message type on trade stream")
	}
	return nil
}

func (c *Connector) remember(t domain.Trade) {
	c.mu.Lock()
	c.lastSeen[t.Pair] = t
	c.mu.Unlock()
}

// LastSeen returns the most recent execution seen for pair, of any side.
func (c *Connector) LastSeen(pair string) (domain.Trade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastSeen[pair]
	return t, ok
}

// LastSeenAt returns the timestamp of the newest execution on any pair.
func (c *Connector) LastSeenAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var latest time.Time
	for _, t := range c.lastSeen {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}
	return latest
}
