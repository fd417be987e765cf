package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// ThresholdReader exposes the threshold in force.
type ThresholdReader interface {
	Current() float64
}

// Converter turns a quote-currency value into the alerting currency.
type Converter interface {
	ToUSDT(ctx context.Context, quote string, value float64) (float64, error)
}

// AggregatorConfig controls bucketing.
type AggregatorConfig struct {
	Enabled bool
	Window  time.Duration
}

type bucketKey struct {
	exchange string
	pair     string
}

// bucket is the single open window for one exchange+pair. Concurrent
// unrelated buyers on the same pair share it.
type bucket struct {
	trades   []domain.Trade
	values   []float64 // alerting-currency value per trade
	openedAt time.Time
}

// TradeAggregator buckets qualifying trades per exchange and pair and
// decides when a bucket fires.
type TradeAggregator struct {
	cfg       AggregatorConfig
	threshold ThresholdReader
	converter Converter
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// NewTradeAggregator creates an aggregator.
func NewTradeAggregator(cfg AggregatorConfig, threshold ThresholdReader, converter Converter, logger *slog.Logger) *TradeAggregator {
	return &TradeAggregator{
		cfg:       cfg,
		threshold: threshold,
		converter: converter,
		logger:    logger.With(slog.String("component", "aggregator")),
		now:       time.Now,
		buckets:   make(map[bucketKey]*bucket),
	}
}

// Ingest adds t to its bucket and returns the fired aggregation, if any.
// Sell-side trades and trades whose value cannot be converted are dropped.
func (a *TradeAggregator) Ingest(ctx context.Context, t domain.Trade) (domain.FiredAggregation, bool) {
	if !t.Side.Qualifies() {
		a.logger.WarnContext(ctx, "aggregator: sell-side trade rejected",
			slog.String("exchange", t.Exchange),
			slog.String("pair", t.Pair),
			slog.Float64("value", t.Value),
		)
		return domain.FiredAggregation{}, false
	}

	reported := t.Value
	if t.NormalizeValue() {
		metrics.ValueCorrections.WithLabelValues(t.Exchange).Inc()
		a.logger.WarnContext(ctx, "aggregator: trade value corrected",
			slog.String("exchange", t.Exchange),
			slog.Float64("reported", reported),
			slog.Float64("computed", t.Value),
		)
	}

	value, err := a.converter.ToUSDT(ctx, t.QuoteCurrency(), t.Value)
	if err != nil {
		a.logger.WarnContext(ctx, "aggregator: quote conversion failed, skipping trade",
			slog.String("exchange", t.Exchange),
			slog.String("pair", t.Pair),
			slog.String("error", err.Error()),
		)
		return domain.FiredAggregation{}, false
	}

	threshold := a.threshold.Current()
	now := a.now()

	if !a.cfg.Enabled {
		b := &bucket{trades: []domain.Trade{t}, values: []float64{value}, openedAt: now}
		return a.fire(ctx, b, domain.FireImmediate, threshold), true
	}

	a.mu.Lock()
	key := bucketKey{exchange: t.Exchange, pair: t.Pair}
	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{openedAt: now}
		a.buckets[key] = b
	}
	b.trades = append(b.trades, t)
	b.values = append(b.values, value)

	var reason domain.FireReason
	switch {
	case b.total() >= threshold:
		reason = domain.FireThreshold
	case now.Sub(b.openedAt) >= a.cfg.Window:
		reason = domain.FireExpired
	default:
		a.mu.Unlock()
		return domain.FiredAggregation{}, false
	}
	delete(a.buckets, key)
	a.mu.Unlock()

	return a.fire(ctx, b, reason, threshold), true
}

// FlushExpired removes and fires every bucket whose window has elapsed.
func (a *TradeAggregator) FlushExpired(ctx context.Context) []domain.FiredAggregation {
	now := a.now()
	threshold := a.threshold.Current()

	var expired []*bucket
	a.mu.Lock()
	for key, b := range a.buckets {
		if now.Sub(b.openedAt) >= a.cfg.Window {
			expired = append(expired, b)
			delete(a.buckets, key)
		}
	}
	a.mu.Unlock()

	fired := make([]domain.FiredAggregation, 0, len(expired))
	for _, b := range expired {
		fired = append(fired, a.fire(ctx, b, domain.FireExpired, threshold))
	}
	return fired
}

// RunExpirySweep flushes expired buckets every interval and sends them to
// out until ctx is done.
func (a *TradeAggregator) RunExpirySweep(ctx context.Context, interval time.Duration, out chan<- domain.FiredAggregation) error {
	if !a.cfg.Enabled {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, f := range a.FlushExpired(ctx) {
			select {
			case out <- f:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Open returns the number of open buckets.
func (a *TradeAggregator) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

func (b *bucket) total() float64 {
	var sum float64
	for i, t := range b.trades {
		if t.Side.Qualifies() {
			sum += b.values[i]
		}
	}
	return sum
}

func (a *TradeAggregator) fire(ctx context.Context, b *bucket, reason domain.FireReason, threshold float64) domain.FiredAggregation {
	f := domain.FiredAggregation{
		Reason:    reason,
		Threshold: threshold,
		Trades:    make([]domain.Trade, 0, len(b.trades)),
	}

	var notional float64
	var excluded int
	for i, t := range b.trades {
		if !t.Side.Qualifies() {
			excluded++
			continue
		}
		f.Exchange, f.Pair, f.MarketURL = t.Exchange, t.Pair, t.MarketURL
		f.Sweep = f.Sweep || t.Sweep
		f.TotalQty += t.Quantity
		f.QuoteValue += t.Value
		f.TotalValue += b.values[i]
		notional += t.Price * t.Quantity
		if t.Timestamp.After(f.LatestTimestamp) {
			f.LatestTimestamp = t.Timestamp
		}
		f.Trades = append(f.Trades, t)
	}
	if excluded > 0 {
		a.logger.WarnContext(ctx, "aggregator: sell-side volume excluded from bucket",
			slog.String("exchange", f.Exchange),
			slog.Int("excluded", excluded),
		)
	}
	f.TradeCount = len(f.Trades)
	if f.TotalQty > 0 {
		f.AvgPrice = notional / f.TotalQty
	}

	metrics.AggregationsFired.WithLabelValues(string(reason), strconv.FormatBool(f.MeetsThreshold())).Inc()
	return f
}
