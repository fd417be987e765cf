// Package coinex adapts the CoinEx v1 deals stream and market ticker.
package coinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/feed"
	"github.com/alanyoungcy/buyalert/internal/platform/wire"
)

const (
	DefaultStreamURL = "wss://socket.coinex.com/"
	DefaultRestURL   = "https://api.coinex.com/v1"
)

// Venue implements feed.Venue for CoinEx.
type Venue struct {
	wsURL   string
	markets map[string]string // "JKCUSDT" -> "JKC/USDT"
}

// NewVenue creates a Venue for the given pairs.
func NewVenue(wsURL string, pairs []string) *Venue {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	markets := make(map[string]string, len(pairs))
	for _, p := range pairs {
		markets[wire.Symbol(p, "")] = strings.ToUpper(p)
	}
	return &Venue{wsURL: wsURL, markets: markets}
}

func (v *Venue) Name() string      { return domain.ExchangeCoinEx }
func (v *Venue) StreamURL() string { return v.wsURL }

// MarketURL links the exchange's market page for pair.
func (v *Venue) MarketURL(pair string) string {
	return "https://www.coinex.com/exchange/" + wire.Symbol(pair, "-")
}

// TradeSubscriptions implements feed.Venue.
func (v *Venue) TradeSubscriptions(pair string) ([][]byte, error) {
	f, err := wire.Frame(map[string]any{
		"method": "deals.subscribe",
		"params": []string{wire.Symbol(pair, "")},
		"id":     2,
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

type envelope struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     *int64            `json:"id"`
	Error  json.RawMessage   `json:"error"`
}

type deal struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
	DateMs wire.Millis     `json:"date_ms"`
}

// Decode implements feed.Venue.
func (v *Venue) Decode(raw []byte) (feed.Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("coinex: %w: %v", domain.ErrUnparseable, err)
	}

	switch env.Method {
	case "deals.update":
		return v.decodeDeals(env.Params)
	case "":
		if env.ID == nil {
			return nil, fmt.Errorf("coinex: %w: no method", domain.ErrUnparseable)
		}
		if len(env.Error) > 0 && string(env.Error) != "null" {
			return feed.IgnoredMessage{Reason: "error response: " + string(env.Error)}, nil
		}
		return feed.IgnoredMessage{Reason: "response"}, nil
	default:
		return feed.IgnoredMessage{Reason: "method " + env.Method}, nil
	}
}

func (v *Venue) decodeDeals(params []json.RawMessage) (feed.Message, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("coinex: deals.update with %d params: %w", len(params), domain.ErrUnparseable)
	}
	var market string
	if err := json.Unmarshal(params[0], &market); err != nil {
		return nil, fmt.Errorf("coinex: market: %w: %v", domain.ErrUnparseable, err)
	}
	pair, ok := v.markets[strings.ToUpper(market)]
	if !ok {
		return feed.IgnoredMessage{Reason: "unsubscribed market " + market}, nil
	}
	var deals []deal
	if err := json.Unmarshal(params[1], &deals); err != nil {
		return nil, fmt.Errorf("coinex: deals: %w: %v", domain.ErrUnparseable, err)
	}

	trades := make([]domain.Trade, 0, len(deals))
	for _, d := range deals {
		if !d.Price.IsPositive() || !d.Amount.IsPositive() {
			return nil, fmt.Errorf("coinex: deal price %s amount %s: %w", d.Price, d.Amount, domain.ErrUnparseable)
		}
		trades = append(trades, domain.Trade{
			Exchange:  domain.ExchangeCoinEx,
			Pair:      pair,
			Price:     d.Price.InexactFloat64(),
			Quantity:  d.Amount.InexactFloat64(),
			Value:     d.Price.Mul(d.Amount).InexactFloat64(),
			Side:      domain.ParseSide(d.Type),
			Timestamp: d.DateMs.Time(),
			MarketURL: v.MarketURL(pair),
		})
	}
	return feed.TradesMessage{Trades: trades}, nil
}

// Client probes CoinEx market availability.
type Client struct {
	baseURL string
	pair    string
	http    *http.Client
}

// NewClient creates a Client for pair.
func NewClient(baseURL, pair string) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		pair:    pair,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Exchange names the probed exchange.
func (c *Client) Exchange() string { return domain.ExchangeCoinEx }

// Probe reports whether the market exists. CoinEx answers unknown markets
// with HTTP 200 and a non-zero code.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	url := c.baseURL + "/market/ticker?market=" + wire.Symbol(c.pair, "")
	err := wire.GetJSON(ctx, c.http, url, &resp)
	switch {
	case wire.IsStatus(err, http.StatusNotFound, http.StatusBadRequest):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("coinex: probe: %w", err)
	}
	return resp.Code == 0, nil
}

var _ feed.Venue = (*Venue)(nil)
