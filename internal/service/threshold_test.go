package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Initial:          300,
		Dynamic:          true,
		BaseValue:        300,
		VolumeMultiplier: 0.05,
		Interval:         time.Hour,
		Min:              100,
		Max:              1000,
	}
}

func newController(cfg ThresholdConfig, vol VolumeSource, store *fakeThresholdStore) (*ThresholdController, *clock) {
	clk := newClock()
	c := NewThresholdController(cfg, vol, nil, nil, nil, testLogger())
	if store != nil {
		c.stores = append(c.stores, store)
	}
	c.now = clk.Now
	return c, clk
}

func TestThresholdRecompute(t *testing.T) {
	store := &fakeThresholdStore{}
	c, _ := newController(thresholdConfig(), &fakeVolume{vol: 4000}, store)

	changed, err := c.MaybeRecompute(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 500.0, c.Current())
	assert.Equal(t, []float64{500}, store.saved)
	assert.False(t, c.State().LastRecomputedAt.IsZero())
}

func TestThresholdCooldown(t *testing.T) {
	vol := &fakeVolume{vol: 4000}
	c, clk := newController(thresholdConfig(), vol, nil)
	ctx := context.Background()

	changed, _ := c.MaybeRecompute(ctx)
	require.True(t, changed)

	vol.vol = 8000
	changed, _ = c.MaybeRecompute(ctx)
	assert.False(t, changed)
	assert.Equal(t, 500.0, c.Current())
	assert.Equal(t, 1, vol.calls)

	clk.Advance(time.Hour)
	changed, _ = c.MaybeRecompute(ctx)
	assert.True(t, changed)
	assert.Equal(t, 700.0, c.Current())
}

func TestThresholdClamped(t *testing.T) {
	ctx := context.Background()

	c, _ := newController(thresholdConfig(), &fakeVolume{vol: 1e9}, nil)
	_, err := c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, c.Current())

	cfg := thresholdConfig()
	cfg.BaseValue = 0
	c, _ = newController(cfg, &fakeVolume{vol: 10}, nil)
	_, err = c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, c.Current())
}

func TestThresholdInitialClamped(t *testing.T) {
	cfg := thresholdConfig()
	cfg.Initial = 5000
	c, _ := newController(cfg, nil, nil)
	assert.Equal(t, 1000.0, c.Current())

	cfg.Initial = 1
	c, _ = newController(cfg, nil, nil)
	assert.Equal(t, 100.0, c.Current())
}

func TestThresholdDisabledIsNoop(t *testing.T) {
	cfg := thresholdConfig()
	cfg.Dynamic = false
	vol := &fakeVolume{vol: 4000}
	c, _ := newController(cfg, vol, nil)

	changed, err := c.MaybeRecompute(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, vol.calls)
	assert.Equal(t, 300.0, c.Current())
}

func TestThresholdVolumeFailureRetriedNextTime(t *testing.T) {
	vol := &fakeVolume{err: errors.New("timeout")}
	c, _ := newController(thresholdConfig(), vol, nil)
	ctx := context.Background()

	changed, err := c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 300.0, c.Current())

	vol.err, vol.vol = nil, 2000
	changed, err = c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 400.0, c.Current())
	assert.Equal(t, 2, vol.calls)
}

func TestThresholdPersistFailureKeepsPreviousValue(t *testing.T) {
	store := &fakeThresholdStore{err: errors.New("read-only filesystem")}
	vol := &fakeVolume{vol: 4000}
	c, clk := newController(thresholdConfig(), vol, store)
	ctx := context.Background()

	changed, err := c.MaybeRecompute(ctx)
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, 300.0, c.Current())

	// The failed attempt still starts a cooldown.
	changed, err = c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, vol.calls)

	store.err = nil
	clk.Advance(time.Hour)
	changed, err = c.MaybeRecompute(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 500.0, c.Current())
}

func TestThresholdPartialPersistFailureRestoresEarlierStores(t *testing.T) {
	file := &fakeThresholdStore{saved: []float64{300}}
	db := &fakeThresholdStore{saved: []float64{300}, err: errors.New("pg down")}
	c, _ := newController(thresholdConfig(), &fakeVolume{vol: 10000}, nil)
	c.stores = append(c.stores, file, db)

	var seen []float64
	file.onSave = func(float64) { seen = append(seen, c.Current()) }
	db.onSave = func(float64) { seen = append(seen, c.Current()) }

	changed, err := c.MaybeRecompute(context.Background())
	require.Error(t, err)
	assert.False(t, changed)

	// Readers never observe the unsaved 800.
	assert.Equal(t, []float64{300, 300, 300}, seen)
	assert.Equal(t, 300.0, c.Current())
	assert.Equal(t, 300.0, file.durable())
	assert.Equal(t, 300.0, db.durable())
	assert.Equal(t, []float64{300, 800, 300}, file.saved)
}

func TestThresholdReadersSeeOnlySavedValue(t *testing.T) {
	store := &fakeThresholdStore{}
	c, _ := newController(thresholdConfig(), &fakeVolume{vol: 4000}, store)

	var during float64
	store.onSave = func(float64) { during = c.Current() }

	changed, err := c.MaybeRecompute(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 300.0, during)
	assert.Equal(t, 500.0, c.Current())
	assert.Equal(t, 500.0, store.durable())
}
