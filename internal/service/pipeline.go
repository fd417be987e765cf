package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// AlertDispatcher delivers an alert to every notification target.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert domain.Alert) domain.DispatchReport
}

// MarketContextSource supplies optional market figures for alerts.
type MarketContextSource interface {
	MarketContext(ctx context.Context) (domain.MarketContext, error)
}

// PipelineDeps wires a Pipeline. Market, Sinks, Audit and Archive are
// optional.
type PipelineDeps struct {
	Aggregator    *TradeAggregator
	Threshold     *ThresholdController
	Dispatcher    AlertDispatcher
	Market        MarketContextSource
	Sinks         []domain.AlertSink
	Audit         domain.AuditStore
	Archive       domain.BlobWriter
	ArchivePrefix string
	SweepInterval time.Duration
}

// Pipeline turns trades into alerts: threshold upkeep, aggregation, alert
// assembly, fan-out to sinks and dispatch.
type Pipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps, logger *slog.Logger) *Pipeline {
	if deps.SweepInterval <= 0 {
		deps.SweepInterval = 2 * time.Second
	}
	return &Pipeline{deps: deps, logger: logger.With(slog.String("component", "pipeline"))}
}

// Run consumes trades until ctx is done or trades is closed.
func (p *Pipeline) Run(ctx context.Context, trades <-chan domain.Trade) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fired := make(chan domain.FiredAggregation, 16)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.deps.Aggregator.RunExpirySweep(gctx, p.deps.SweepInterval, fired)
	})
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case t, ok := <-trades:
				if !ok {
					return nil
				}
				p.HandleTrade(gctx, t)
			case f := <-fired:
				p.HandleFired(gctx, f)
			}
		}
	})
	return g.Wait()
}

// HandleTrade runs one trade through threshold upkeep and aggregation.
func (p *Pipeline) HandleTrade(ctx context.Context, t domain.Trade) {
	// Persist failures are logged by the controller.
	_, _ = p.deps.Threshold.MaybeRecompute(ctx)

	if f, ok := p.deps.Aggregator.Ingest(ctx, t); ok {
		p.HandleFired(ctx, f)
	}
}

// HandleFired assembles and dispatches an alert for f when it meets its
// threshold. It returns the alert and whether it was dispatched.
func (p *Pipeline) HandleFired(ctx context.Context, f domain.FiredAggregation) (domain.Alert, bool) {
	if !f.MeetsThreshold() {
		p.logger.DebugContext(ctx, "pipeline: bucket below threshold discarded",
			slog.String("exchange", f.Exchange),
			slog.String("reason", string(f.Reason)),
			slog.Float64("value", f.TotalValue),
			slog.Float64("threshold", f.Threshold),
			slog.Int("trades", f.TradeCount),
		)
		return domain.Alert{}, false
	}

	alert := p.buildAlert(ctx, f)
	p.logger.InfoContext(ctx, "pipeline: alert",
		slog.String("alert_id", alert.ID),
		slog.String("exchange", alert.Exchange),
		slog.String("pair", alert.Pair),
		slog.Float64("value", alert.Value),
		slog.Float64("threshold", alert.Threshold),
		slog.Int("trades", alert.TradeCount),
		slog.String("reason", string(f.Reason)),
	)

	for _, s := range p.deps.Sinks {
		if err := s.PublishAlert(ctx, alert); err != nil {
			p.logger.WarnContext(ctx, "pipeline: publish alert failed",
				slog.String("sink", s.Name()),
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	report := p.deps.Dispatcher.Dispatch(ctx, alert)
	p.record(ctx, report)
	return alert, true
}

func (p *Pipeline) buildAlert(ctx context.Context, f domain.FiredAggregation) domain.Alert {
	alert := domain.Alert{
		ID:         uuid.NewString(),
		Exchange:   f.Exchange,
		Pair:       f.Pair,
		Price:      f.AvgPrice,
		Quantity:   f.TotalQty,
		Value:      f.TotalValue,
		QuoteValue: f.QuoteValue,
		Threshold:  f.Threshold,
		TradeCount: f.TradeCount,
		Timestamp:  f.LatestTimestamp,
		MarketURL:  f.MarketURL,
		Trades:     f.Trades,
		Sweep:      f.Sweep,
	}
	if p.deps.Market != nil {
		mc, err := p.deps.Market.MarketContext(ctx)
		if err != nil {
			p.logger.DebugContext(ctx, "pipeline: market context unavailable", slog.String("error", err.Error()))
		} else {
			alert.Context = &mc
		}
	}
	return alert
}

func (p *Pipeline) record(ctx context.Context, r domain.DispatchReport) {
	if p.deps.Audit != nil {
		detail := map[string]any{
			"alert_id":  r.AlertID,
			"exchange":  r.Exchange,
			"value":     r.Value,
			"tier":      r.Tier,
			"succeeded": r.Succeeded,
			"failed":    r.Failed,
		}
		if err := p.deps.Audit.Log(ctx, "alert_dispatched", detail); err != nil {
			p.logger.WarnContext(ctx, "pipeline: audit dispatch failed", slog.String("error", err.Error()))
		}
	}
	if p.deps.Archive != nil {
		if err := p.archive(ctx, r); err != nil {
			p.logger.WarnContext(ctx, "pipeline: archive dispatch report failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) archive(ctx context.Context, r domain.DispatchReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pipeline: marshal report: %w", err)
	}
	key := path.Join(p.deps.ArchivePrefix, r.StartedAt.UTC().Format("2006/01/02"), r.AlertID+".json")
	return p.deps.Archive.Put(ctx, key, bytes.NewReader(body), "application/json")
}
