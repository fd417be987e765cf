package notify

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// Tier is a magnitude class of an alert relative to the threshold.
type Tier struct {
	Name     string
	MinRatio float64
	Headline string
	Emoji    string
}

// Tiers ordered from largest to smallest ratio.
var Tiers = []Tier{
	{Name: "whale", MinRatio: 10, Headline: "MASSIVE WHALE TRANSACTION DETECTED!!!", Emoji: "🐋🐋🐋"},
	{Name: "huge", MinRatio: 5, Headline: "HUGE Transaction LFG!!!", Emoji: "🔥🔥"},
	{Name: "major", MinRatio: 3, Headline: "MAJOR Buy Ahoy Junkies!", Emoji: "🔥"},
	{Name: "significant", MinRatio: 2, Headline: "SIGNIFICANT Transaction Alert!", Emoji: "💥"},
	{Name: "baseline", MinRatio: 0, Headline: "Buy Transaction Detected", Emoji: "🚨"},
}

// ClassifyTier returns the first tier whose MinRatio ratio reaches.
func ClassifyTier(ratio float64) Tier {
	for _, t := range Tiers {
		if ratio >= t.MinRatio {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// MagnitudeBar renders one square per tenth of the ratio, between 1 and 100
// squares, ten per row. NaN renders as the minimum.
func MagnitudeBar(ratio float64) string {
	switch {
	case math.IsNaN(ratio) || ratio < 0.1:
		ratio = 0.1
	case ratio > 10:
		ratio = 10
	}
	n := max(1, min(100, int(ratio*10)))
	rows := make([]string, 0, (n+9)/10)
	for i := 0; i < n; i += 10 {
		rows = append(rows, strings.Repeat("🟩", min(10, n-i)))
	}
	return strings.Join(rows, "\n")
}

// FormatOptions controls alert rendering.
type FormatOptions struct {
	Asset        string
	MaxBreakdown int
	Location     *time.Location
}

// Message is an alert rendered once per dispatch.
type Message struct {
	Tier       Tier
	HTML       string // Telegram parse_mode=HTML
	Markdown   string // Discord
	ButtonText string
	ButtonURL  string
}

// FormatAlert renders a.
func FormatAlert(a domain.Alert, opts FormatOptions) Message {
	if opts.MaxBreakdown <= 0 {
		opts.MaxBreakdown = 5
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	tier := ClassifyTier(a.Ratio())
	return Message{
		Tier:       tier,
		HTML:       render(a, tier, opts, htmlStyle),
		Markdown:   render(a, tier, opts, markdownStyle),
		ButtonText: "Trade on " + venueName(a.Exchange),
		ButtonURL:  a.MarketURL,
	}
}

type style struct {
	bold   func(string) string
	escape func(string) string
}

var (
	htmlStyle = style{
		bold:   func(s string) string { return "<b>" + s + "</b>" },
		escape: html.EscapeString,
	}
	markdownStyle = style{
		bold:   func(s string) string { return "**" + s + "**" },
		escape: func(s string) string { return s },
	}
)

func render(a domain.Alert, tier Tier, opts FormatOptions, st style) string {
	quote := domain.QuoteOf(a.Pair)
	asset := opts.Asset
	if asset == "" {
		asset, _, _ = strings.Cut(a.Pair, "/")
	}
	headline := tier.Headline
	if a.Sweep {
		headline = strings.NewReplacer("TRANSACTION", "SWEEP BUY", "Transaction", "Sweep Buy").Replace(headline)
	}

	var b strings.Builder
	field := func(emoji, label, value string) {
		fmt.Fprintf(&b, "%s %s %s\n", emoji, st.bold(label+":"), value)
	}

	b.WriteString(MagnitudeBar(a.Ratio()))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s %s\n\n", tier.Emoji, st.bold(headline), tier.Emoji)

	field("💰", "Amount", fmt.Sprintf("%.2f %s", a.Quantity, st.escape(asset)))
	field("💵", "Price", fmt.Sprintf("%s %s", formatPrice(a.Price, quote), quote))
	if quote != domain.QuoteUSDT {
		field("💲", "Total Value", fmt.Sprintf("%.2f USDT (%.8f %s)", a.Value, a.QuoteValue, quote))
	} else {
		field("💲", "Total Value", fmt.Sprintf("%.2f USDT", a.Value))
	}
	field("🏦", "Exchange", st.escape(a.Exchange))
	if a.TradeCount > 1 {
		field("🔄", "Trades", fmt.Sprintf("%d", a.TradeCount))
	}
	field("⏰", "Time", a.Timestamp.In(opts.Location).Format("15:04:05 02/01/2006"))

	if a.TradeCount > 1 && len(a.Trades) > 1 {
		fmt.Fprintf(&b, "\n📋 %s\n", st.bold("Individual Orders:"))
		for i, t := range a.Trades {
			if i == opts.MaxBreakdown {
				fmt.Fprintf(&b, "... and %d more orders\n", len(a.Trades)-opts.MaxBreakdown)
				break
			}
			fmt.Fprintf(&b, "Order %d: %.2f %s at %s %s\n", i+1, t.Quantity, st.escape(asset), formatPrice(t.Price, quote), quote)
		}
	}

	if a.Context != nil {
		fmt.Fprintf(&b, "\n📈 %s\n", st.bold("Current Market:"))
		field("💲", "Last Price", fmt.Sprintf("%.6f USDT", a.Context.LastPrice))
		field("📊", "24h Volume", fmt.Sprintf("%.2f %s", a.Context.Volume24h, st.escape(asset)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPrice(p float64, quote string) string {
	if quote == domain.QuoteBTC {
		return fmt.Sprintf("%.8f", p)
	}
	return fmt.Sprintf("%.6f", p)
}

// venueName drops qualifiers such as "(Orderbook Sweep)".
func venueName(exchange string) string {
	name, _, _ := strings.Cut(exchange, " ")
	return name
}
