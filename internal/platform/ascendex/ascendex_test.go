package ascendex

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

func TestSubscriptionAndURL(t *testing.T) {
	v := NewVenue("")
	frames, err := v.TradeSubscriptions("JKC/USDT")
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"sub","ch":"trades:JKC/USDT"}`, string(frames[0]))
	assert.Equal(t, "https://ascendex.com/en/cashtrade-spottrading/usdt/jkc", v.MarketURL("JKC/USDT"))
}

func TestDecodeTrades(t *testing.T) {
	v := NewVenue("")
	msg, err := v.Decode([]byte(`{"m":"trades","symbol":"JKC/USDT","data":[
		{"p":"0.25","q":"400","ts":1704164645100,"bm":false,"seqnum":1},
		{"p":"0.24","q":"10","ts":1704164645200,"bm":true,"seqnum":2}
	]}`))
	require.NoError(t, err)

	tm := msg.(feed.TradesMessage)
	require.Len(t, tm.Trades, 2)
	assert.Equal(t, 100.0, tm.Trades[0].Value)
	assert.Equal(t, domain.SideBuy, tm.Trades[0].Side)
	assert.Equal(t, domain.SideSell, tm.Trades[1].Side)
	assert.Equal(t, "JKC/USDT", tm.Trades[1].Pair)
	assert.Equal(t, domain.ExchangeAscendEX, tm.Trades[1].Exchange)
}

func TestDecodeControl(t *testing.T) {
	v := NewVenue("")

	msg, err := v.Decode([]byte(`{"m":"ping","hp":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"pong"}`, string(msg.(feed.ControlMessage).Reply))

	msg, err = v.Decode([]byte(`{"m":"connected","type":"unauth"}`))
	require.NoError(t, err)
	assert.IsType(t, feed.IgnoredMessage{}, msg)

	_, err = v.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrUnparseable)

	_, err = v.Decode([]byte(`{"m":"trades","data":[]}`))
	assert.ErrorIs(t, err, domain.ErrUnparseable)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "JKC/USDT" {
			w.Write([]byte(`{"code":0,"data":{"symbol":"JKC/USDT","close":"0.25"}}`))
			return
		}
		w.Write([]byte(`{"code":100002,"reason":"DATA_NOT_AVAILABLE"}`))
	}))
	defer srv.Close()

	ok, err := NewClient(srv.URL, "JKC/USDT").Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewClient(srv.URL, "XYZ/USDT").Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
