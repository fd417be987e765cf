package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

func TestMessageKeyedByExchange(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := message(domain.Alert{
		ID:         "a-1",
		Exchange:   "CoinEx",
		Pair:       "JKC/USDT",
		Price:      0.5,
		Quantity:   1000,
		Value:      500,
		Threshold:  300,
		TradeCount: 3,
		Timestamp:  ts,
	})
	require.NoError(t, err)

	assert.Equal(t, "CoinEx", string(msg.Key))
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "a-1", string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "JKC/USDT", body["pair"])
	assert.Equal(t, 500.0, body["value"])
	assert.Equal(t, 3.0, body["trade_count"])
}

func TestPublisherName(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "buyalert.alerts")
	defer p.Close()
	assert.Equal(t, "kafka", p.Name())
}
