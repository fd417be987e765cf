package nonkyc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/platform/wire"
)

// DefaultRestURL is the public REST API base.
const DefaultRestURL = "https://api.nonkyc.io/api/v2"

// Ticker is the subset of the market ticker this service reads.
type Ticker struct {
	LastPrice     float64 `json:"lastPriceNumber"`
	Volume        float64 `json:"volumeNumber"`
	ChangePercent float64 `json:"changePercentNumber"`
	MarketCap     float64 `json:"marketcapNumber"`
	Error         any     `json:"error"`
}

// Client is a NonKYC REST client bound to the monitored pair.
type Client struct {
	baseURL string
	pair    string
	http    *http.Client
}

// NewClient creates a Client for pair against baseURL.
func NewClient(baseURL, pair string) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		pair:    pair,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Ticker fetches the ticker for pair.
func (c *Client) Ticker(ctx context.Context, pair string) (Ticker, error) {
	var t Ticker
	url := c.baseURL + "/market/ticker/" + wire.Symbol(pair, "_")
	if err := wire.GetJSON(ctx, c.http, url, &t); err != nil {
		return Ticker{}, fmt.Errorf("nonkyc: ticker %s: %w", pair, err)
	}
	if t.Error != nil {
		return Ticker{}, fmt.Errorf("nonkyc: ticker %s: %v: %w", pair, t.Error, domain.ErrNotFound)
	}
	return t, nil
}

// Exchange names the probed exchange.
func (c *Client) Exchange() string { return domain.ExchangeNonKYC }

// Probe reports whether the pair is listed. 400/404 responses and error
// payloads mean "not listed"; other failures are returned as errors.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	_, err := c.Ticker(ctx, c.pair)
	switch {
	case err == nil:
		return true, nil
	case wire.IsStatus(err, http.StatusNotFound, http.StatusBadRequest):
		return false, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RecentVolume returns the 24h traded volume of the pair.
func (c *Client) RecentVolume(ctx context.Context) (float64, error) {
	t, err := c.Ticker(ctx, c.pair)
	if err != nil {
		return 0, err
	}
	return t.Volume, nil
}

// MarketContext returns the last price and 24h volume of the pair.
func (c *Client) MarketContext(ctx context.Context) (domain.MarketContext, error) {
	t, err := c.Ticker(ctx, c.pair)
	if err != nil {
		return domain.MarketContext{}, err
	}
	return domain.MarketContext{LastPrice: t.LastPrice, Volume24h: t.Volume}, nil
}

// QuoteRate returns the USDT price of one unit of quote, using the
// "<quote>/USDT" ticker.
func (c *Client) QuoteRate(ctx context.Context, quote string) (float64, error) {
	if strings.EqualFold(quote, domain.QuoteUSDT) {
		return 1, nil
	}
	t, err := c.Ticker(ctx, strings.ToUpper(quote)+"/"+domain.QuoteUSDT)
	if err != nil {
		return 0, err
	}
	if t.LastPrice <= 0 {
		return 0, fmt.Errorf("nonkyc: %s/USDT last price %g: %w", quote, t.LastPrice, domain.ErrNoConversion)
	}
	return t.LastPrice, nil
}
