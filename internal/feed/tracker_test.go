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
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/orderbook"
)

// bookVenue extends lineVenue with snapshot and diff frames of the form
// {"type":"snapshot"|"diff","seq":n,"asks":[["price","qty"],...]}.
type bookVenue struct{ lineVenue }

func (v bookVenue) BookSubscriptions(pair string, depth int) ([][]byte, error) {
	return [][]byte{[]byte(fmt.Sprintf(`{"book":%q,"depth":%d}`, pair, depth))}, nil
}

func (v bookVenue) Decode(raw []byte) (Message, error) {
	var f struct {
		Type string      `json:"type"`
		Seq  int64       `json:"seq"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("test: %w", domain.ErrUnparseable)
	}
	levels := make([]orderbook.Level, 0, len(f.Asks))
	for _, a := range f.Asks {
		levels = append(levels, orderbook.Level{
			Price:    decimal.RequireFromString(a[0]),
			Quantity: decimal.RequireFromString(a[1]),
		})
	}
	switch f.Type {
	case "snapshot":
		return SnapshotMessage{Asks: levels, Sequence: f.Seq}, nil
	case "diff":
		return DiffMessage{Asks: levels, Sequence: f.Seq}, nil
	default:
		return IgnoredMessage{Reason: f.Type}, nil
	}
}

// scriptedBookServer plays scripts[i] on the i-th connection after reading
// the subscription frame. Every script but the last ends with a close
// frame; the last connection stays open until the client leaves.
func scriptedBookServer(t *testing.T, scripts [][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := int(dials.Add(1)) - 1
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if n < len(scripts) {
			for _, f := range scripts[n] {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			}
		}
		if n < len(scripts)-1 {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &dials
}

func runTracker(t *testing.T, srv *httptest.Server, cfg orderbook.SweepConfig) (*OrderBookTracker, <-chan domain.Trade, func() error) {
	t.Helper()
	out := make(chan domain.Trade, 8)
	venue := bookVenue{lineVenue{url: "ws" + strings.TrimPrefix(srv.URL, "http")}}
	policy := ReconnectPolicy{InitialDelay: 20 * time.Millisecond, MaxDelay: 50 * time.Millisecond, ReadTimeout: time.Second}
	tr := NewOrderBookTracker(venue, "JKC/USDT", 50, orderbook.NewSweepDetector(cfg), openGate{}, policy, out, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("tracker did not stop")
			return nil
		}
	}
	return tr, out, stop
}

func nextTrade(t *testing.T, out <-chan domain.Trade) domain.Trade {
	t.Helper()
	select {
	case tr := <-out:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("no sweep forwarded")
		return domain.Trade{}
	}
}

func TestTrackerResyncsAfterReconnect(t *testing.T) {
	srv, dials := scriptedBookServer(t, [][]string{
		{
			`{"type":"snapshot","seq":1,"asks":[["10","5"],["11","2"],["12","4"]]}`,
			`{"type":"diff","seq":2,"asks":[["10","0"],["11","0"]]}`,
			// Replay of seq 2 with different content; would sweep 3 at 12.
			`{"type":"diff","seq":2,"asks":[["12","1"]]}`,
		},
		{
			// Arrives before the new snapshot; would sweep 4 at 12 on the old book.
			`{"type":"diff","seq":9,"asks":[["12","0"]]}`,
			`{"type":"snapshot","seq":10,"asks":[["11","3"],["12","4"]]}`,
			`{"type":"diff","seq":11,"asks":[["11","0"]]}`,
		},
	})
	tr, out, stop := runTracker(t, srv, orderbook.SweepConfig{})

	first := nextTrade(t, out)
	assert.True(t, first.Sweep)
	assert.Equal(t, domain.SideBuy, first.Side)
	assert.Equal(t, domain.ExchangeNonKYCSweep, first.Exchange)
	assert.Equal(t, 7.0, first.Quantity)
	assert.Equal(t, 72.0, first.Value)
	assert.InDelta(t, 10.2857, first.Price, 1e-4)

	second := nextTrade(t, out)
	assert.Equal(t, 3.0, second.Quantity)
	assert.Equal(t, 33.0, second.Value)
	assert.Equal(t, 11.0, second.Price)

	select {
	case extra := <-out:
		t.Fatalf("unexpected sweep %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, int32(2), dials.Load())
	st := tr.Status()
	assert.Equal(t, "tracking", st.State)
	assert.Equal(t, int64(11), st.Sequence)
	assert.Equal(t, 1, st.Levels)
	assert.Equal(t, 12.0, st.BestAsk)

	assert.True(t, errors.Is(stop(), context.Canceled))
	assert.Equal(t, "disconnected", tr.Status().State)
}

func TestTrackerDropsImplausibleAndSmallSweeps(t *testing.T) {
	srv, _ := scriptedBookServer(t, [][]string{{
		`{"type":"snapshot","seq":1,"asks":[["10","1"],["11","5"],["500","2"]]}`,
		`{"type":"diff","seq":2,"asks":[["10","0"]]}`,
		`{"type":"diff","seq":3,"asks":[["500","0"]]}`,
		`{"type":"diff","seq":4,"asks":[["11","0"]]}`,
	}})
	_, out, stop := runTracker(t, srv, orderbook.SweepConfig{
		MinValue:    20,
		MaxAvgPrice: map[string]float64{"USDT": 100},
	})

	got := nextTrade(t, out)
	assert.Equal(t, 5.0, got.Quantity)
	assert.Equal(t, 55.0, got.Value)

	select {
	case extra := <-out:
		t.Fatalf("unexpected sweep %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, errors.Is(stop(), context.Canceled))
}
