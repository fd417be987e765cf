// Package nonkyc adapts the NonKYC exchange: trade and order-book streams
// plus the REST ticker used for availability, volume, and market context.
package nonkyc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/feed"
	"github.com/alanyoungcy/buyalert/internal/orderbook"
	"github.com/alanyoungcy/buyalert/internal/platform/wire"
)

// DefaultStreamURL is the public websocket endpoint.
const DefaultStreamURL = "wss://ws.nonkyc.io"

// Venue implements feed.BookVenue for NonKYC.
type Venue struct {
	wsURL       string
	defaultPair string
}

// NewVenue creates a Venue streaming from wsURL. defaultPair labels frames
// that omit their symbol.
func NewVenue(wsURL string, defaultPair string) *Venue {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	return &Venue{wsURL: wsURL, defaultPair: strings.ToUpper(defaultPair)}
}

func (v *Venue) pairOf(symbol string) string {
	if symbol == "" {
		return v.defaultPair
	}
	return strings.ToUpper(symbol)
}

func (v *Venue) Name() string      { return domain.ExchangeNonKYC }
func (v *Venue) StreamURL() string { return v.wsURL }

// MarketURL links the exchange's market page for pair.
func (v *Venue) MarketURL(pair string) string {
	return "https://nonkyc.io/market/" + wire.Symbol(pair, "_")
}

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     int    `json:"id"`
}

// TradeSubscriptions implements feed.Venue.
func (v *Venue) TradeSubscriptions(pair string) ([][]byte, error) {
	f, err := wire.Frame(request{
		Method: "subscribeTrades",
		Params: map[string]any{"symbol": strings.ToUpper(pair)},
		ID:     1,
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

// BookSubscriptions implements feed.BookVenue.
func (v *Venue) BookSubscriptions(pair string, depth int) ([][]byte, error) {
	if depth <= 0 {
		depth = 20
	}
	f, err := wire.Frame(request{
		Method: "subscribeOrderbook",
		Params: map[string]any{"symbol": strings.ToUpper(pair), "limit": depth},
		ID:     2,
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type tradeEntry struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      string          `json:"side"`
	Timestamp wire.Millis     `json:"timestampms"`
	TimeAlt   wire.Millis     `json:"timestamp"`
}

type tradesParams struct {
	Symbol string       `json:"symbol"`
	Data   []tradeEntry `json:"data"`
}

type bookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type bookParams struct {
	Symbol   string      `json:"symbol"`
	Asks     []bookLevel `json:"asks"`
	Sequence wire.Int64  `json:"sequence"`
}

// Decode implements feed.Venue.
func (v *Venue) Decode(raw []byte) (feed.Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("nonkyc: %w: %v", domain.ErrUnparseable, err)
	}

	switch env.Method {
	case "updateTrades":
		return v.decodeTrades(env.Params)
	case "snapshotTrades":
		return feed.IgnoredMessage{Reason: "trade history snapshot"}, nil
	case "snapshotOrderbook":
		p, asks, err := decodeBook(env.Params)
		if err != nil {
			return nil, err
		}
		return feed.SnapshotMessage{Pair: v.pairOf(p.Symbol), Asks: asks, Sequence: int64(p.Sequence)}, nil
	case "updateOrderbook":
		p, asks, err := decodeBook(env.Params)
		if err != nil {
			return nil, err
		}
		return feed.DiffMessage{Pair: v.pairOf(p.Symbol), Asks: asks, Sequence: int64(p.Sequence)}, nil
	case "":
		if len(env.Error) > 0 && string(env.Error) != "null" {
			return feed.IgnoredMessage{Reason: "error response: " + string(env.Error)}, nil
		}
		if env.ID != nil {
			return feed.IgnoredMessage{Reason: "subscription response"}, nil
		}
		return nil, fmt.Errorf("nonkyc: %w: no method", domain.ErrUnparseable)
	default:
		return feed.IgnoredMessage{Reason: "method " + env.Method}, nil
	}
}

func (v *Venue) decodeTrades(params json.RawMessage) (feed.Message, error) {
	var p tradesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("nonkyc: trades: %w: %v", domain.ErrUnparseable, err)
	}
	pair := v.pairOf(p.Symbol)

	trades := make([]domain.Trade, 0, len(p.Data))
	for _, e := range p.Data {
		if !e.Price.IsPositive() || !e.Quantity.IsPositive() {
			return nil, fmt.Errorf("nonkyc: trade price %s qty %s: %w", e.Price, e.Quantity, domain.ErrUnparseable)
		}
		ts := e.Timestamp
		if ts == 0 {
			ts = e.TimeAlt
		}
		price, qty := e.Price.InexactFloat64(), e.Quantity.InexactFloat64()
		trades = append(trades, domain.Trade{
			Exchange:  domain.ExchangeNonKYC,
			Pair:      pair,
			Price:     price,
			Quantity:  qty,
			Value:     e.Price.Mul(e.Quantity).InexactFloat64(),
			Side:      domain.ParseSide(e.Side),
			Timestamp: ts.Time(),
			MarketURL: v.MarketURL(pair),
		})
	}
	return feed.TradesMessage{Trades: trades}, nil
}

func decodeBook(params json.RawMessage) (bookParams, []orderbook.Level, error) {
	var p bookParams
	if err := json.Unmarshal(params, &p); err != nil {
		return p, nil, fmt.Errorf("nonkyc: orderbook: %w: %v", domain.ErrUnparseable, err)
	}
	asks := make([]orderbook.Level, 0, len(p.Asks))
	for _, a := range p.Asks {
		if a.Price.IsNegative() || a.Quantity.IsNegative() {
			return p, nil, fmt.Errorf("nonkyc: orderbook level %s@%s: %w", a.Quantity, a.Price, domain.ErrUnparseable)
		}
		asks = append(asks, orderbook.Level{Price: a.Price, Quantity: a.Quantity})
	}
	return p, asks, nil
}

var _ feed.BookVenue = (*Venue)(nil)
