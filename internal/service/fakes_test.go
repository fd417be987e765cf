package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fixedThreshold float64

func (f fixedThreshold) Current() float64 { return float64(f) }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeRates struct {
	rate  float64
	err   error
	calls int
}

func (f *fakeRates) QuoteRate(ctx context.Context, quote string) (float64, error) {
	f.calls++
	return f.rate, f.err
}

type fakeVolume struct {
	vol   float64
	err   error
	calls int
}

func (f *fakeVolume) RecentVolume(ctx context.Context) (float64, error) {
	f.calls++
	return f.vol, f.err
}

type fakeThresholdStore struct {
	saved  []float64
	err    error
	onSave func(v float64)
}

func (f *fakeThresholdStore) SaveThreshold(ctx context.Context, v float64) error {
	if f.onSave != nil {
		f.onSave(v)
	}
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, v)
	return nil
}

// durable returns the last value the store accepted.
func (f *fakeThresholdStore) durable() float64 {
	if len(f.saved) == 0 {
		return 0
	}
	return f.saved[len(f.saved)-1]
}

type fakeProber struct {
	mu       sync.Mutex
	exchange string
	listed   bool
	err      error
}

func (f *fakeProber) Exchange() string { return f.exchange }

func (f *fakeProber) Probe(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed, f.err
}

func (f *fakeProber) set(listed bool, err error) {
	f.mu.Lock()
	f.listed, f.err = listed, err
	f.mu.Unlock()
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, published{channel, payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, a domain.Alert) domain.DispatchReport {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
	return domain.DispatchReport{
		AlertID:   a.ID,
		Exchange:  a.Exchange,
		Value:     a.Value,
		Succeeded: 1,
		Results:   []domain.DeliveryResult{{Platform: "telegram", Target: "1", Mode: domain.DeliveryRichMedia}},
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeSink struct {
	alerts []domain.Alert
}

func (f *fakeSink) PublishAlert(ctx context.Context, a domain.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeSink) Name() string { return "fake" }

type fakeBlob struct {
	puts map[string][]byte
}

func (f *fakeBlob) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[path] = b
	return nil
}

type fakeMarket struct {
	mc  domain.MarketContext
	err error
}

func (f fakeMarket) MarketContext(ctx context.Context) (domain.MarketContext, error) {
	return f.mc, f.err
}

func buy(exchange string, price, qty float64) domain.Trade {
	return domain.Trade{
		Exchange:  exchange,
		Pair:      "JKC/USDT",
		Price:     price,
		Quantity:  qty,
		Value:     price * qty,
		Side:      domain.SideBuy,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MarketURL: "https://example.test/market",
	}
}
