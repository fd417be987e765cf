package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// Prober checks whether the monitored asset is listed on one exchange.
type Prober interface {
	Exchange() string
	Probe(ctx context.Context) (bool, error)
}

// AnyPairProber probes every configured pair of one exchange. The asset
// counts as listed when at least one of its markets exists there.
type AnyPairProber struct {
	probers []Prober
}

// NewAnyPairProber combines per-pair probers that all report the same
// exchange. probers must not be empty.
func NewAnyPairProber(probers ...Prober) *AnyPairProber {
	return &AnyPairProber{probers: probers}
}

// Exchange returns the exchange shared by the pair probers.
func (p *AnyPairProber) Exchange() string { return p.probers[0].Exchange() }

// Probe stops at the first listed pair. When no pair is listed and some
// probes failed, the state is unknown and the joined errors are returned.
func (p *AnyPairProber) Probe(ctx context.Context) (bool, error) {
	var errs []error
	for _, pp := range p.probers {
		listed, err := pp.Probe(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if listed {
			return true, nil
		}
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("%s: %d of %d pair probes failed: %w",
			p.Exchange(), len(errs), len(p.probers), errors.Join(errs...))
	}
	return false, nil
}

// AvailabilityHooks are optional observers of listing transitions.
type AvailabilityHooks struct {
	Cache domain.StateCache
	Bus   domain.SignalBus
	Audit domain.AuditStore
}

// AvailabilityMonitor periodically probes every exchange and gates the
// stream connectors until the asset is listed.
type AvailabilityMonitor struct {
	probers       []Prober
	checkInterval time.Duration
	pollInterval  time.Duration
	hooks         AvailabilityHooks
	logger        *slog.Logger
	now           func() time.Time

	mu     sync.RWMutex
	states map[string]domain.AvailabilityState
}

// NewAvailabilityMonitor creates a monitor for the given probers. Exchanges
// start unlisted until their first successful probe.
func NewAvailabilityMonitor(
	probers []Prober,
	checkInterval, pollInterval time.Duration,
	hooks AvailabilityHooks,
	logger *slog.Logger,
) *AvailabilityMonitor {
	states := make(map[string]domain.AvailabilityState, len(probers))
	for _, p := range probers {
		states[p.Exchange()] = domain.AvailabilityState{Exchange: p.Exchange()}
	}
	return &AvailabilityMonitor{
		probers:       probers,
		checkInterval: checkInterval,
		pollInterval:  pollInterval,
		hooks:         hooks,
		logger:        logger.With(slog.String("component", "availability")),
		now:           time.Now,
		states:        states,
	}
}

// Run probes immediately and then every check interval until ctx is done.
func (m *AvailabilityMonitor) Run(ctx context.Context) error {
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every exchange once. A failed probe leaves the previous
// state untouched.
func (m *AvailabilityMonitor) CheckAll(ctx context.Context) {
	for _, p := range m.probers {
		listed, err := p.Probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.DebugContext(ctx, "availability: probe failed",
				slog.String("exchange", p.Exchange()),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.record(ctx, p.Exchange(), listed)
	}
}

func (m *AvailabilityMonitor) record(ctx context.Context, exchange string, listed bool) {
	m.mu.Lock()
	prev := m.states[exchange]
	st := domain.AvailabilityState{
		Exchange:      exchange,
		Listed:        listed,
		Checked:       true,
		LastCheckedAt: m.now(),
	}
	m.states[exchange] = st
	m.mu.Unlock()

	if listed {
		metrics.ExchangeListed.WithLabelValues(exchange).Set(1)
	} else {
		metrics.ExchangeListed.WithLabelValues(exchange).Set(0)
	}

	if m.hooks.Cache != nil {
		if err := m.hooks.Cache.SetAvailability(ctx, st); err != nil {
			m.logger.WarnContext(ctx, "availability: cache state failed",
				slog.String("exchange", exchange),
				slog.String("error", err.Error()),
			)
		}
	}

	if prev.Checked && prev.Listed == listed {
		return
	}
	if !prev.Checked && !listed {
		m.logger.InfoContext(ctx, "availability: not listed yet", slog.String("exchange", exchange))
		return
	}

	event := "listed"
	if !listed {
		event = "delisted"
	}
	if listed {
		m.logger.InfoContext(ctx, "availability: asset listed", slog.String("exchange", exchange))
	} else {
		m.logger.WarnContext(ctx, "availability: asset delisted", slog.String("exchange", exchange))
	}
	m.announce(ctx, event, st)
}

func (m *AvailabilityMonitor) announce(ctx context.Context, event string, st domain.AvailabilityState) {
	if m.hooks.Bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":      event,
			"exchange":   st.Exchange,
			"checked_at": st.LastCheckedAt.Format(time.RFC3339Nano),
		})
		if err := m.hooks.Bus.Publish(ctx, "availability", payload); err != nil {
			m.logger.WarnContext(ctx, "availability: publish transition failed",
				slog.String("exchange", st.Exchange),
				slog.String("error", err.Error()),
			)
		}
	}
	if m.hooks.Audit != nil {
		if err := m.hooks.Audit.Log(ctx, "availability_"+event, map[string]any{"exchange": st.Exchange}); err != nil {
			m.logger.WarnContext(ctx, "availability: audit transition failed",
				slog.String("exchange", st.Exchange),
				slog.String("error", err.Error()),
			)
		}
	}
}

// IsListed reports the last known state. Exchanges without a prober are
// never gated.
func (m *AvailabilityMonitor) IsListed(exchange string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[exchange]
	if !ok {
		return true
	}
	return st.Listed
}

// WaitListed blocks until exchange is listed or ctx is done.
func (m *AvailabilityMonitor) WaitListed(ctx context.Context, exchange string) error {
	if m.IsListed(exchange) {
		return nil
	}
	m.logger.InfoContext(ctx, "availability: waiting for listing", slog.String("exchange", exchange))

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.IsListed(exchange) {
				return nil
			}
		}
	}
}

// Snapshot returns the state of every probed exchange sorted by name.
func (m *AvailabilityMonitor) Snapshot() []domain.AvailabilityState {
	m.mu.RLock()
	out := make([]domain.AvailabilityState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

// Listed returns the names of the exchanges currently listed.
func (m *AvailabilityMonitor) Listed() []string {
	var names []string
	for _, st := range m.Snapshot() {
		if st.Listed {
			names = append(names, st.Exchange)
		}
	}
	return names
}
