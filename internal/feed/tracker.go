package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
	"github.com/alanyoungcy/buyalert/internal/orderbook"
)

// BookStatus is a read-only view of a tracker for status endpoints.
type BookStatus struct {
	Exchange string  `json:"exchange"`
	Pair     string  `json:"pair"`
	State    string  `json:"state"`
	Sequence int64   `json:"sequence"`
	Levels   int     `json:"levels"`
	BestAsk  float64 `json:"best_ask,omitempty"`
}

// OrderBookTracker mirrors one pair's ask side and forwards detected sweeps
// as synthetic buy trades.
type OrderBookTracker struct {
	venue    BookVenue
	pair     string
	depth    int
	detector *orderbook.SweepDetector
	out      chan<- domain.Trade
	stream   streamer
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	book *orderbook.Book
}

// NewOrderBookTracker creates a tracker for pair on venue.
func NewOrderBookTracker(venue BookVenue, pair string, depth int, detector *orderbook.SweepDetector, gate Gate, policy ReconnectPolicy, out chan<- domain.Trade, logger *slog.Logger) *OrderBookTracker {
	logger = logger.With(
		slog.String("component", "orderbook_tracker"),
		slog.String("exchange", venue.Name()),
		slog.String("pair", pair),
	)
	return &OrderBookTracker{
		venue:    venue,
		pair:     pair,
		depth:    depth,
		detector: detector,
		out:      out,
		stream:   newStreamer(venue.Name(), "orderbook", gate, policy, logger),
		logger:   logger,
		now:      time.Now,
		book:     orderbook.New(),
	}
}

// Run blocks until ctx is cancelled. Every new connection starts from
// AwaitingSnapshot.
func (t *OrderBookTracker) Run(ctx context.Context) error {
	frames, err := t.venue.BookSubscriptions(t.pair, t.depth)
	if err != nil {
		return err
	}

	return t.stream.loop(ctx, func(ctx context.Context) (bool, error) {
		t.withBook(func(b *orderbook.Book) { b.Connected() })
		defer t.withBook(func(b *orderbook.Book) { b.Disconnect() })
		return t.stream.session(ctx, t.venue.StreamURL(), frames, t.handle)
	})
}

func (t *OrderBookTracker) withBook(fn func(b *orderbook.Book)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.book)
}

func (t *OrderBookTracker) handle(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	msg, err := t.venue.Decode(raw)
	if err != nil {
		metrics.MessagesSkipped.WithLabelValues(t.venue.Name()).Inc()
		t.logger.WarnContext(ctx, "skipping unparseable message",
			slog.String("error", err.Error()),
			slog.String("raw", truncate(raw, 256)),
		)
		return nil
	}

	switch m := msg.(type) {
	case SnapshotMessage:
		if m.Pair != "" && m.Pair != t.pair {
			return nil
		}
		t.withBook(func(b *orderbook.Book) { b.ApplySnapshot(m.Asks, m.Sequence) })
		t.logger.DebugContext(ctx, "orderbook snapshot applied",
			slog.Int("levels", len(m.Asks)),
			slog.Int64("sequence", m.Sequence),
		)
	case DiffMessage:
		if m.Pair != "" && m.Pair != t.pair {
			return nil
		}
		return t.applyDiff(ctx, m)
	case ControlMessage:
		return reply(conn, m.Reply)
	case IgnoredMessage:
		t.logger.DebugContext(ctx, "ignored message", slog.String("reason", m.Reason))
	}
	return nil
}

func (t *OrderBookTracker) applyDiff(ctx context.Context, m DiffMessage) error {
	var (
		sw  orderbook.Sweep
		err error
	)
	t.withBook(func(b *orderbook.Book) { sw, err = b.ApplyDiff(m.Asks, m.Sequence) })
	if err != nil {
		t.logger.DebugContext(ctx, "diff dropped", slog.String("error", err.Error()))
		return nil
	}
	if sw.IsZero() {
		return nil
	}

	trade, err := t.detector.Evaluate(t.pair, sw, t.now())
	switch {
	case errors.Is(err, domain.ErrImplausibleSweep):
		metrics.SweepsRejected.WithLabelValues("implausible_price").Inc()
		t.logger.WarnContext(ctx, "discarding implausible sweep",
			slog.String("avg_price", sw.AvgPrice().String()),
			slog.String("quantity", sw.Quantity.String()),
			slog.Int("levels", sw.Levels),
		)
		return nil
	case errors.Is(err, domain.ErrSweepBelowFloor):
		metrics.SweepsRejected.WithLabelValues("below_floor").Inc()
		t.logger.DebugContext(ctx, "sweep below floor", slog.String("value", sw.Value.String()))
		return nil
	case err != nil:
		return err
	}

	metrics.SweepsDetected.Inc()
	t.logger.InfoContext(ctx, "orderbook sweep detected",
		slog.Float64("avg_price", trade.Price),
		slog.Float64("quantity", trade.Quantity),
		slog.Float64("value", trade.Value),
		slog.Int("levels", sw.Levels),
	)
	select {
	case t.out <- trade:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	return nil
}

// Status reports the mirror's current state.
func (t *OrderBookTracker) Status() BookStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := BookStatus{
		Exchange: t.venue.Name(),
		Pair:     t.pair,
		State:    t.book.State().String(),
		Sequence: t.book.Sequence(),
		Levels:   t.book.Len(),
	}
	if best, ok := t.book.BestAsk(); ok {
		st.BestAsk = best.Price.InexactFloat64()
	}
	return st
}
