package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// newTestClient connects to BUYALERT_TEST_REDIS_ADDR under a unique prefix,
// skipping when the variable is unset.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("BUYALERT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BUYALERT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, Prefix: "buyalert-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKey(t *testing.T) {
	c := &Client{prefix: "buyalert"}
	assert.Equal(t, "buyalert:state:threshold", c.Key("state", "threshold"))
	assert.True(t, hasPattern("alerts:*"))
	assert.False(t, hasPattern("alerts"))
}

func TestStateCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sc := NewStateCache(c)

	_, err := sc.GetThreshold(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st := domain.ThresholdState{CurrentValue: 450, Min: 100, Max: 1000, Dynamic: true}
	require.NoError(t, sc.SetThreshold(ctx, st))
	got, err := sc.GetThreshold(ctx)
	require.NoError(t, err)
	assert.Equal(t, 450.0, got.CurrentValue)

	require.NoError(t, sc.SetAvailability(ctx, domain.AvailabilityState{Exchange: "NonKYC", Listed: true, Checked: true}))
	require.NoError(t, sc.SetAvailability(ctx, domain.AvailabilityState{Exchange: "CoinEx", Checked: true}))
	states, err := sc.GetAvailability(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "CoinEx", states[0].Exchange)
	assert.True(t, states[1].Listed)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, "alerts")
	require.NoError(t, err)

	sink := NewAlertSink(bus)
	require.NoError(t, sink.PublishAlert(ctx, domain.Alert{ID: "a-1", Exchange: "NonKYC", Value: 500}))

	select {
	case msg := <-ch:
		assert.Contains(t, string(msg), `"id":"a-1"`)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestRateLimiterWait(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 200*time.Millisecond)

	ok, err := rl.Allow(ctx, "telegram:-1", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rl.Allow(ctx, "telegram:-1", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "discord:webhook-1"))
	require.NoError(t, rl.Wait(ctx, "discord:webhook-1"))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
