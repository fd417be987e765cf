package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

func TestBackoffDoublesToMax(t *testing.T) {
	b := NewBackoff(ReconnectPolicy{InitialDelay: 5 * time.Second, MaxDelay: 60 * time.Second, RateLimitedMax: 300 * time.Second})

	var got []time.Duration
	for range 6 {
		got = append(got, b.Next(false))
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}, got)

	b.Reset()
	assert.Equal(t, 5*time.Second, b.Next(false))
}

func TestBackoffRateLimited(t *testing.T) {
	b := NewBackoff(ReconnectPolicy{InitialDelay: 5 * time.Second, MaxDelay: 60 * time.Second, RateLimitedMax: 300 * time.Second})
	assert.Equal(t, 15*time.Second, b.Next(true))

	for range 5 {
		b.Next(false)
	}
	// current is capped at 60s, so a rate-limited wait is 180s.
	assert.Equal(t, 180*time.Second, b.Next(true))

	capped := NewBackoff(ReconnectPolicy{InitialDelay: 200 * time.Second, MaxDelay: 200 * time.Second, RateLimitedMax: 300 * time.Second})
	assert.Equal(t, 300*time.Second, capped.Next(true))
}

func TestIdleTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, ReconnectPolicy{ReadTimeout: 5 * time.Second}.idleTimeout())
}

type openGate struct{}

func (openGate) WaitListed(ctx context.Context, _ string) error { return ctx.Err() }
func (openGate) IsListed(string) bool                           { return true }

// lineVenue speaks a toy protocol: {"p":..,"q":..,"s":..} trades, "ping"
// control frames and anything else is unparseable.
type lineVenue struct{ url string }

func (v lineVenue) Name() string                 { return "Test" }
func (v lineVenue) StreamURL() string            { return v.url }
func (v lineVenue) MarketURL(pair string) string { return "https://example.com/" + pair }

func (v lineVenue) TradeSubscriptions(pair string) ([][]byte, error) {
	return [][]byte{[]byte(`{"sub":"` + pair + `"}`)}, nil
}

func (v lineVenue) Decode(raw []byte) (Message, error) {
	if string(raw) == "ping" {
		return ControlMessage{Reply: []byte("pong")}, nil
	}
	var f struct {
		P float64 `json:"p"`
		Q float64 `json:"q"`
		S string  `json:"s"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("test: %w", domain.ErrUnparseable)
	}
	return TradesMessage{Trades: []domain.Trade{{
		Exchange: v.Name(),
		Pair:     "JKC/USDT",
		Price:    f.P,
		Quantity: f.Q,
		Value:    f.P * f.Q,
		Side:     domain.ParseSide(f.S),
	}}}, nil
}

func TestConnectorForwardsBuysAndRepliesToControl(t *testing.T) {
	subscribed := make(chan string, 1)
	ponged := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(sub)

		for _, f := range []string{`{"p":0.5,"q":100,"s":"buy"}`, `{"p":0.6,"q":10,"s":"sell"}`, `garbage`, `ping`} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_, reply, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ponged <- string(reply)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	out := make(chan domain.Trade, 4)
	venue := lineVenue{url: "ws" + strings.TrimPrefix(srv.URL, "http")}
	policy := ReconnectPolicy{InitialDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond, ReadTimeout: time.Second}
	conn := NewConnector(venue, []string{"JKC/USDT"}, openGate{}, policy, out, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	select {
	case s := <-subscribed:
		assert.Equal(t, `{"sub":"JKC/USDT"}`, s)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription frame")
	}
	select {
	case r := <-ponged:
		assert.Equal(t, "pong", r)
	case <-time.After(5 * time.Second):
		t.Fatal("no control reply")
	}

	require.Len(t, out, 1)
	trade := <-out
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.Equal(t, 50.0, trade.Value)

	last, ok := conn.LastSeen("JKC/USDT")
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, last.Side)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop")
	}
}

func TestConnectorWithoutPairsExits(t *testing.T) {
	conn := NewConnector(lineVenue{}, nil, openGate{}, ReconnectPolicy{}, make(chan domain.Trade), slog.New(slog.DiscardHandler))
	assert.NoError(t, conn.Run(context.Background()))
}
