package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// SweepConfig bounds what counts as a believable sweep.
type SweepConfig struct {
	// MinValue is the smallest swept value, in quote currency, worth reporting.
	MinValue float64
	// MaxAvgPrice caps the average fill price per quote currency. Quotes
	// without an entry are only required to be positive.
	MaxAvgPrice map[string]float64
	Exchange    string
	MarketURL   func(pair string) string
}

// SweepDetector turns measured sweeps into buy trades.
type SweepDetector struct {
	cfg SweepConfig
}

// NewSweepDetector creates a SweepDetector.
func NewSweepDetector(cfg SweepConfig) *SweepDetector {
	if cfg.Exchange == "" {
		cfg.Exchange = domain.ExchangeNonKYCSweep
	}
	return &SweepDetector{cfg: cfg}
}

// Evaluate validates a non-empty sweep and synthesizes the equivalent buy.
// It returns domain.ErrImplausibleSweep when the average price is outside
// the bound for the pair's quote currency and domain.ErrSweepBelowFloor for
// noise below MinValue.
func (d *SweepDetector) Evaluate(pair string, sw Sweep, ts time.Time) (domain.Trade, error) {
	if sw.IsZero() {
		return domain.Trade{}, fmt.Errorf("orderbook: empty sweep: %w", domain.ErrSweepBelowFloor)
	}

	avg := sw.AvgPrice().InexactFloat64()
	qty := sw.Quantity.InexactFloat64()
	value := sw.Value.InexactFloat64()
	quote := domain.QuoteOf(pair)

	if avg <= 0 {
		return domain.Trade{}, fmt.Errorf("orderbook: avg price %g: %w", avg, domain.ErrImplausibleSweep)
	}
	if limit, ok := d.cfg.MaxAvgPrice[strings.ToUpper(quote)]; ok && avg > limit {
		return domain.Trade{}, fmt.Errorf("orderbook: avg price %g above %g %s: %w", avg, limit, quote, domain.ErrImplausibleSweep)
	}
	if value < d.cfg.MinValue {
		return domain.Trade{}, fmt.Errorf("orderbook: value %g below %g: %w", value, d.cfg.MinValue, domain.ErrSweepBelowFloor)
	}

	t := domain.Trade{
		Exchange:  d.cfg.Exchange,
		Pair:      pair,
		Price:     avg,
		Quantity:  qty,
		Value:     value,
		Side:      domain.SideBuy,
		Timestamp: ts,
		Sweep:     true,
	}
	if d.cfg.MarketURL != nil {
		t.MarketURL = d.cfg.MarketURL(pair)
	}
	return t, nil
}
