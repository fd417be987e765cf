package domain

import (
	"math"
	"strings"
	"time"
)

// Exchange display names. These also key aggregation buckets and
// availability state.
const (
	ExchangeNonKYC      = "NonKYC"
	ExchangeNonKYCSweep = "NonKYC (Orderbook Sweep)"
	ExchangeCoinEx      = "CoinEx"
	ExchangeAscendEX    = "AscendEX"
)

// Quote currencies understood by the value checks and the converter.
const (
	QuoteUSDT = "USDT"
	QuoteBTC  = "BTC"
)

// Side is the taker side of an execution as reported by the venue.
type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideUnknown Side = "unknown"
)

// ParseSide maps a venue side string onto a Side. Anything that is not
// clearly buy or sell is SideUnknown.
func ParseSide(s string) Side {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid", "b":
		return SideBuy
	case "sell", "ask", "s":
		return SideSell
	default:
		return SideUnknown
	}
}

// Qualifies reports whether trades on this side take part in alerting.
// Unknown sides are treated permissively.
func (s Side) Qualifies() bool {
	return s != SideSell
}

// Trade is one executed transaction normalized across venues.
type Trade struct {
	Exchange  string
	Pair      string // "ASSET/QUOTE"
	Price     float64
	Quantity  float64
	Value     float64 // in the pair's quote currency
	Side      Side
	Timestamp time.Time
	MarketURL string
	Sweep     bool
}

// QuoteCurrency returns the part of the pair after the slash, upper-cased.
func (t Trade) QuoteCurrency() string {
	return QuoteOf(t.Pair)
}

// QuoteOf returns the quote currency of a "BASE/QUOTE" pair.
func QuoteOf(pair string) string {
	if i := strings.LastIndexAny(pair, "/_-"); i >= 0 {
		return strings.ToUpper(pair[i+1:])
	}
	return QuoteUSDT
}

// ValueTolerance is the accepted absolute difference between a reported value
// and price*quantity for the given quote currency.
func ValueTolerance(quote string, expected float64) float64 {
	expected = math.Abs(expected)
	if strings.EqualFold(quote, QuoteBTC) {
		return math.Max(1e-8, expected*0.0001)
	}
	return math.Max(0.01, expected*0.001)
}

// NormalizeValue recomputes Value from Price*Quantity when the reported value
// is outside tolerance. It reports whether a correction was made.
func (t *Trade) NormalizeValue() bool {
	expected := t.Price * t.Quantity
	if math.Abs(t.Value-expected) <= ValueTolerance(t.QuoteCurrency(), expected) {
		return false
	}
	t.Value = expected
	return true
}
