package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

func lvl(price, qty string) Level {
	return Level{Price: decimal.RequireFromString(price), Quantity: decimal.RequireFromString(qty)}
}

func trackingBook(t *testing.T, seq int64, levels ...Level) *Book {
	t.Helper()
	b := New()
	b.Connected()
	b.ApplySnapshot(levels, seq)
	require.Equal(t, Tracking, b.State())
	return b
}

func TestApplyDiffSweepsRemovedAndReducedLevels(t *testing.T) {
	b := trackingBook(t, 1, lvl("10", "5"), lvl("11", "3"))

	sw, err := b.ApplyDiff([]Level{lvl("10", "0"), lvl("11", "1")}, 2)
	require.NoError(t, err)

	assert.True(t, sw.Quantity.Equal(decimal.NewFromInt(7)))
	assert.True(t, sw.Value.Equal(decimal.NewFromInt(72)))
	assert.Equal(t, 2, sw.Levels)
	assert.InDelta(t, 72.0/7.0, sw.AvgPrice().InexactFloat64(), 1e-9)

	levels := b.Levels()
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Price.Equal(decimal.NewFromInt(11)))
	assert.True(t, levels[0].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestApplyDiffGrowthAndInsertAreNotSweeps(t *testing.T) {
	b := trackingBook(t, 5, lvl("1.00", "10"))

	sw, err := b.ApplyDiff([]Level{lvl("1.00", "12"), lvl("0.98", "4"), lvl("1.50", "0")}, 6)
	require.NoError(t, err)
	assert.True(t, sw.IsZero())

	levels := b.Levels()
	require.Len(t, levels, 2)
	assert.Equal(t, "0.98", levels[0].Price.String(), "levels stay sorted by price")
	assert.Equal(t, "12", levels[1].Quantity.String())
}

func TestReplayedDiffIsNoOp(t *testing.T) {
	b := trackingBook(t, 1, lvl("10", "5"), lvl("11", "3"))
	diff := []Level{lvl("10", "2")}

	first, err := b.ApplyDiff(diff, 2)
	require.NoError(t, err)
	assert.Equal(t, "3", first.Quantity.String())
	before := b.Levels()

	second, err := b.ApplyDiff(diff, 2)
	require.ErrorIs(t, err, domain.ErrStaleSequence)
	assert.True(t, second.IsZero())
	assert.Equal(t, before, b.Levels())
	assert.Equal(t, int64(2), b.Sequence())
}

func TestOlderDiffIsDropped(t *testing.T) {
	b := trackingBook(t, 10, lvl("10", "5"))

	_, err := b.ApplyDiff([]Level{lvl("10", "0")}, 9)
	require.ErrorIs(t, err, domain.ErrStaleSequence)
	assert.Equal(t, 1, b.Len())
}

func TestDiffBeforeSnapshotIsRejected(t *testing.T) {
	b := New()
	b.Connected()
	assert.Equal(t, AwaitingSnapshot, b.State())

	_, err := b.ApplyDiff([]Level{lvl("10", "1")}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestSnapshotReplacesLevels(t *testing.T) {
	b := trackingBook(t, 1, lvl("10", "5"), lvl("11", "3"))
	b.ApplySnapshot([]Level{lvl("12", "1"), lvl("13", "0")}, 40)

	assert.Equal(t, int64(40), b.Sequence())
	require.Equal(t, 1, b.Len())
	best, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "12", best.Price.String())

	b.Disconnect()
	assert.Equal(t, Disconnected, b.State())
	assert.Equal(t, 0, b.Len())
}

func TestSweepDetectorEvaluate(t *testing.T) {
	d := NewSweepDetector(SweepConfig{
		MinValue:    80,
		MaxAvgPrice: map[string]float64{"USDT": 10},
		MarketURL:   func(string) string { return "https://nonkyc.io/market/JKC_USDT" },
	})
	ts := time.UnixMilli(1_700_000_000_000)

	sw := Sweep{Quantity: decimal.NewFromInt(300), Value: decimal.NewFromInt(120), Levels: 3}
	tr, err := d.Evaluate("JKC/USDT", sw, ts)
	require.NoError(t, err)
	assert.Equal(t, domain.ExchangeNonKYCSweep, tr.Exchange)
	assert.Equal(t, domain.SideBuy, tr.Side)
	assert.True(t, tr.Sweep)
	assert.InDelta(t, 0.4, tr.Price, 1e-12)
	assert.InDelta(t, 120, tr.Value, 1e-9)
	assert.InDelta(t, tr.Value, tr.Price*tr.Quantity, 1e-9)
	assert.Equal(t, ts, tr.Timestamp)
	assert.Equal(t, "https://nonkyc.io/market/JKC_USDT", tr.MarketURL)
}

func TestSweepDetectorRejects(t *testing.T) {
	d := NewSweepDetector(SweepConfig{MinValue: 80, MaxAvgPrice: map[string]float64{"USDT": 10}})

	_, err := d.Evaluate("JKC/USDT", Sweep{Quantity: decimal.NewFromInt(7), Value: decimal.NewFromInt(72)}, time.Now())
	assert.ErrorIs(t, err, domain.ErrSweepBelowFloor)

	_, err = d.Evaluate("JKC/USDT", Sweep{Quantity: decimal.NewFromInt(1), Value: decimal.NewFromInt(500)}, time.Now())
	assert.ErrorIs(t, err, domain.ErrImplausibleSweep)

	_, err = d.Evaluate("JKC/USDT", Sweep{}, time.Now())
	assert.ErrorIs(t, err, domain.ErrSweepBelowFloor)
}
