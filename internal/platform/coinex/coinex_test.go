package coinex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/feed"
)

func TestTradeSubscriptions(t *testing.T) {
	v := NewVenue("", []string{"JKC/USDT"})
	frames, err := v.TradeSubscriptions("JKC/USDT")
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"deals.subscribe","params":["JKCUSDT"],"id":2}`, string(frames[0]))
	assert.Equal(t, "https://www.coinex.com/exchange/JKC-USDT", v.MarketURL("JKC/USDT"))
}

func TestDecodeDeals(t *testing.T) {
	v := NewVenue("", []string{"JKC/USDT"})
	msg, err := v.Decode([]byte(`{"method":"deals.update","params":["JKCUSDT",[
		{"id":1,"time":1704164645.1,"price":"0.2","amount":"1000","type":"buy","date_ms":1704164645100},
		{"id":2,"time":1704164646.1,"price":"0.19","amount":"5","type":"sell","date_ms":1704164646100}
	]],"id":null}`))
	require.NoError(t, err)

	tm := msg.(feed.TradesMessage)
	require.Len(t, tm.Trades, 2)
	assert.Equal(t, domain.ExchangeCoinEx, tm.Trades[0].Exchange)
	assert.Equal(t, "JKC/USDT", tm.Trades[0].Pair)
	assert.Equal(t, 200.0, tm.Trades[0].Value)
	assert.Equal(t, domain.SideBuy, tm.Trades[0].Side)
	assert.Equal(t, int64(1704164645100), tm.Trades[0].Timestamp.UnixMilli())
	assert.Equal(t, domain.SideSell, tm.Trades[1].Side)
}

func TestDecodeOther(t *testing.T) {
	v := NewVenue("", []string{"JKC/USDT"})

	msg, err := v.Decode([]byte(`{"error":null,"result":{"status":"success"},"id":2}`))
	require.NoError(t, err)
	assert.IsType(t, feed.IgnoredMessage{}, msg)

	msg, err = v.Decode([]byte(`{"method":"deals.update","params":["BTCUSDT",[]]}`))
	require.NoError(t, err)
	assert.IsType(t, feed.IgnoredMessage{}, msg)

	_, err = v.Decode([]byte(`{"method":"deals.update","params":["JKCUSDT"]}`))
	assert.ErrorIs(t, err, domain.ErrUnparseable)

	_, err = v.Decode([]byte(`{"method":"deals.update","params":["JKCUSDT",[{"price":"x"}]]}`))
	assert.ErrorIs(t, err, domain.ErrUnparseable)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("market") {
		case "JKCUSDT":
			w.Write([]byte(`{"code":0,"data":{"ticker":{"last":"0.2"}},"message":"OK"}`))
		case "ERRUSDT":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{"code":2,"data":{},"message":"Invalid argument"}`))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	ok, err := NewClient(srv.URL, "JKC/USDT").Probe(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewClient(srv.URL, "NOPE/USDT").Probe(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewClient(srv.URL, "ERR/USDT").Probe(ctx)
	assert.Error(t, err)
}
