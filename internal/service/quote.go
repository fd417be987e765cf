package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// QuoteRateSource returns how many USDT one unit of quote is worth.
type QuoteRateSource interface {
	QuoteRate(ctx context.Context, quote string) (float64, error)
}

type cachedRate struct {
	rate      float64
	fetchedAt time.Time
}

// QuoteConverter converts quote-currency values into USDT, caching rates.
type QuoteConverter struct {
	src QuoteRateSource
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	rates map[string]cachedRate
}

// NewQuoteConverter creates a converter. A nil src only supports USDT.
func NewQuoteConverter(src QuoteRateSource, ttl time.Duration) *QuoteConverter {
	return &QuoteConverter{
		src:   src,
		ttl:   ttl,
		now:   time.Now,
		rates: make(map[string]cachedRate),
	}
}

// ToUSDT converts value denominated in quote.
func (c *QuoteConverter) ToUSDT(ctx context.Context, quote string, value float64) (float64, error) {
	quote = strings.ToUpper(quote)
	if quote == domain.QuoteUSDT {
		return value, nil
	}
	rate, err := c.rate(ctx, quote)
	if err != nil {
		return 0, err
	}
	return value * rate, nil
}

func (c *QuoteConverter) rate(ctx context.Context, quote string) (float64, error) {
	c.mu.Lock()
	cached, ok := c.rates[quote]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.rate, nil
	}
	if c.src == nil {
		return 0, fmt.Errorf("quote: %s: %w", quote, domain.ErrNoConversion)
	}

	rate, err := c.src.QuoteRate(ctx, quote)
	if err != nil {
		return 0, fmt.Errorf("quote: %s rate: %w", quote, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("quote: %s rate %v: %w", quote, rate, domain.ErrNoConversion)
	}

	c.mu.Lock()
	c.rates[quote] = cachedRate{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()
	return rate, nil
}
