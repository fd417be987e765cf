package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// VolumeSource returns the recent traded volume of the monitored pair.
type VolumeSource interface {
	RecentVolume(ctx context.Context) (float64, error)
}

// ThresholdConfig holds the dynamic threshold parameters.
type ThresholdConfig struct {
	Initial          float64
	Dynamic          bool
	BaseValue        float64
	VolumeMultiplier float64
	Interval         time.Duration
	Min              float64
	Max              float64
}

// ThresholdController owns the alert threshold and recomputes it from
// recent volume.
type ThresholdController struct {
	cfg    ThresholdConfig
	volume VolumeSource
	stores []domain.ThresholdStore
	cache  domain.StateCache
	audit  domain.AuditStore
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	state       domain.ThresholdState
	recomputing bool
}

// NewThresholdController creates a controller starting at cfg.Initial,
// clamped into [Min, Max]. cache and audit may be nil.
func NewThresholdController(
	cfg ThresholdConfig,
	volume VolumeSource,
	stores []domain.ThresholdStore,
	cache domain.StateCache,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ThresholdController {
	c := &ThresholdController{
		cfg:    cfg,
		volume: volume,
		stores: stores,
		cache:  cache,
		audit:  audit,
		logger: logger.With(slog.String("component", "threshold")),
		now:    time.Now,
	}
	c.state = domain.ThresholdState{
		CurrentValue: c.clamp(cfg.Initial),
		Min:          cfg.Min,
		Max:          cfg.Max,
		Dynamic:      cfg.Dynamic,
	}
	metrics.Threshold.Set(c.state.CurrentValue)
	return c
}

// Current returns the threshold in force.
func (c *ThresholdController) Current() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.CurrentValue
}

// State returns a copy of the threshold state.
func (c *ThresholdController) State() domain.ThresholdState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// MaybeRecompute recomputes the threshold when dynamic thresholding is on
// and the interval has elapsed. It reports whether a new value was
// committed. Volume lookup failures are logged and retried on the next call.
// A new value is saved to every store before readers see it; if any store
// fails, the stores that already accepted it are given the previous value
// back and the in-memory value is left unchanged until the next interval.
func (c *ThresholdController) MaybeRecompute(ctx context.Context) (bool, error) {
	if !c.cfg.Dynamic || c.volume == nil {
		return false, nil
	}

	c.mu.Lock()
	if c.recomputing || c.now().Sub(c.state.LastRecomputedAt) < c.cfg.Interval {
		c.mu.Unlock()
		return false, nil
	}
	c.recomputing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.recomputing = false
		c.mu.Unlock()
	}()

	vol, err := c.volume.RecentVolume(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "threshold: volume lookup failed, keeping current value",
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	prev := c.Current()
	next := c.clamp(math.Round(c.cfg.BaseValue + vol*c.cfg.VolumeMultiplier))

	if err := c.persist(ctx, prev, next); err != nil {
		c.mu.Lock()
		c.state.LastRecomputedAt = c.now()
		c.mu.Unlock()
		return false, fmt.Errorf("threshold: persist %.2f: %w", next, err)
	}

	c.mu.Lock()
	c.state.CurrentValue = next
	c.state.LastRecomputedAt = c.now()
	st := c.state
	c.mu.Unlock()

	metrics.Threshold.Set(st.CurrentValue)
	c.logger.InfoContext(ctx, "threshold: recomputed",
		slog.Float64("volume", vol),
		slog.Float64("previous", prev),
		slog.Float64("current", st.CurrentValue),
	)

	if c.cache != nil {
		if err := c.cache.SetThreshold(ctx, st); err != nil {
			c.logger.WarnContext(ctx, "threshold: cache state failed", slog.String("error", err.Error()))
		}
	}
	if c.audit != nil && st.CurrentValue != prev {
		detail := map[string]any{"previous": prev, "current": st.CurrentValue, "volume": vol}
		if err := c.audit.Log(ctx, "threshold_changed", detail); err != nil {
			c.logger.WarnContext(ctx, "threshold: audit failed", slog.String("error", err.Error()))
		}
	}
	return true, nil
}

// persist saves next to every store in order. On the first failure it
// restores prev in the stores that had already saved next.
func (c *ThresholdController) persist(ctx context.Context, prev, next float64) error {
	for i, s := range c.stores {
		err := s.SaveThreshold(ctx, next)
		if err == nil {
			continue
		}
		for _, done := range c.stores[:i] {
			if rerr := done.SaveThreshold(ctx, prev); rerr != nil {
				c.logger.ErrorContext(ctx, "threshold: restore previous value failed, stores disagree",
					slog.Float64("previous", prev),
					slog.Float64("stranded", next),
					slog.String("error", rerr.Error()),
				)
			}
		}
		c.logger.ErrorContext(ctx, "threshold: persist failed, keeping previous value",
			slog.Float64("attempted", next),
			slog.Float64("kept", prev),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (c *ThresholdController) clamp(v float64) float64 {
	if c.cfg.Max > 0 && v > c.cfg.Max {
		v = c.cfg.Max
	}
	if v < c.cfg.Min {
		v = c.cfg.Min
	}
	return v
}
