package domain

import "time"

// FireReason records why an aggregation bucket was emitted.
type FireReason string

const (
	FireThreshold FireReason = "threshold"
	FireExpired   FireReason = "window_expired"
	FireImmediate FireReason = "immediate"
)

// FiredAggregation is the result of flushing one aggregation bucket.
// TotalValue is expressed in the alerting currency; QuoteValue keeps the
// pair's native quote value.
type FiredAggregation struct {
	Exchange        string
	Pair            string
	AvgPrice        float64
	TotalQty        float64
	TotalValue      float64
	QuoteValue      float64
	TradeCount      int
	LatestTimestamp time.Time
	Trades          []Trade
	Reason          FireReason
	Threshold       float64
	MarketURL       string
	Sweep           bool
}

// MeetsThreshold reports whether the fired value is alert-worthy.
func (f FiredAggregation) MeetsThreshold() bool {
	return f.TotalValue >= f.Threshold
}

// MarketContext carries optional market figures appended to an alert.
type MarketContext struct {
	LastPrice float64
	Volume24h float64
}

// Alert is a fully-assembled notification derived from a FiredAggregation.
type Alert struct {
	ID         string
	Exchange   string
	Pair       string
	Price      float64
	Quantity   float64
	Value      float64
	QuoteValue float64
	Threshold  float64
	TradeCount int
	Timestamp  time.Time
	MarketURL  string
	Trades     []Trade
	Sweep      bool
	Context    *MarketContext
}

// Ratio is the alert value relative to the threshold in force when it fired.
func (a Alert) Ratio() float64 {
	if a.Threshold <= 0 {
		return 1
	}
	return a.Value / a.Threshold
}
