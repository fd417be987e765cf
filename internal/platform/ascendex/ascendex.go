// Package ascendex adapts the AscendEX pro trade stream and ticker.
package ascendex

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
	DefaultStreamURL = "wss://ascendex.com/0/api/pro/v1/stream"
	DefaultRestURL   = "https://ascendex.com/api/pro/v1"
)

var pongFrame = []byte(`{"op":"pong"}`)

// Venue implements feed.Venue for AscendEX.
type Venue struct {
	wsURL string
}

// NewVenue creates a Venue streaming from wsURL.
func NewVenue(wsURL string) *Venue {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	return &Venue{wsURL: wsURL}
}

func (v *Venue) Name() string      { return domain.ExchangeAscendEX }
func (v *Venue) StreamURL() string { return v.wsURL }

// MarketURL links the spot trading page, keyed by quote then base.
func (v *Venue) MarketURL(pair string) string {
	base, quote, _ := strings.Cut(strings.ToLower(pair), "/")
	return "https://ascendex.com/en/cashtrade-spottrading/" + quote + "/" + base
}

// TradeSubscriptions implements feed.Venue.
func (v *Venue) TradeSubscriptions(pair string) ([][]byte, error) {
	f, err := wire.Frame(map[string]string{
		"op": "sub",
		"ch": "trades:" + strings.ToUpper(pair),
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

type message struct {
	M      string  `json:"m"`
	Symbol string  `json:"symbol"`
	Data   []trade `json:"data"`
	Reason string  `json:"reason"`
}

type trade struct {
	Price    decimal.Decimal `json:"p"`
	Quantity decimal.Decimal `json:"q"`
	TS       wire.Millis     `json:"ts"`
	// BuyerMaker is set when the resting order was the bid, so the
	// aggressor sold.
	BuyerMaker bool `json:"bm"`
}

// Decode implements feed.Venue.
func (v *Venue) Decode(raw []byte) (feed.Message, error) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("ascendex: %w: %v", domain.ErrUnparseable, err)
	}

	switch msg.M {
	case "trades":
		return v.decodeTrades(msg)
	case "ping":
		return feed.ControlMessage{Reply: pongFrame}, nil
	case "error":
		return feed.IgnoredMessage{Reason: "error: " + msg.Reason}, nil
	case "":
		return nil, fmt.Errorf("ascendex: %w: no message type", domain.ErrUnparseable)
	default:
		return feed.IgnoredMessage{Reason: "type " + msg.M}, nil
	}
}

func (v *Venue) decodeTrades(msg message) (feed.Message, error) {
	pair := strings.ToUpper(msg.Symbol)
	if pair == "" {
		return nil, fmt.Errorf("ascendex: trades without symbol: %w", domain.ErrUnparseable)
	}
	trades := make([]domain.Trade, 0, len(msg.Data))
	for _, t := range msg.Data {
		if !t.Price.IsPositive() || !t.Quantity.IsPositive() {
			return nil, fmt.Errorf("ascendex: trade price %s qty %s: %w", t.Price, t.Quantity, domain.ErrUnparseable)
		}
		side := domain.SideBuy
		if t.BuyerMaker {
			side = domain.SideSell
		}
		trades = append(trades, domain.Trade{
			Exchange:  domain.ExchangeAscendEX,
			Pair:      pair,
			Price:     t.Price.InexactFloat64(),
			Quantity:  t.Quantity.InexactFloat64(),
			Value:     t.Price.Mul(t.Quantity).InexactFloat64(),
			Side:      side,
			Timestamp: t.TS.Time(),
			MarketURL: v.MarketURL(pair),
		})
	}
	return feed.TradesMessage{Trades: trades}, nil
}

// Client probes AscendEX market availability.
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
		pair:    strings.ToUpper(pair),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Exchange names the probed exchange.
func (c *Client) Exchange() string { return domain.ExchangeAscendEX }

// Probe reports whether the symbol is listed. AscendEX reports unknown
// symbols with a non-zero code.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	var resp struct {
		Code int `json:"code"`
	}
	url := c.baseURL + "/ticker?symbol=" + c.pair
	err := wire.GetJSON(ctx, c.http, url, &resp)
	switch {
	case wire.IsStatus(err, http.StatusNotFound, http.StatusBadRequest):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("ascendex: probe: %w", err)
	}
	return resp.Code == 0, nil
}

var _ feed.Venue = (*Venue)(nil)
