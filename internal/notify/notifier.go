// Package notify formats alerts and delivers them to every configured
// notification target. Each target gets a rich-media attempt first and a
// plain-text fallback; a failing target never blocks the others.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/metrics"
)

// Pacer spaces out deliveries to the same target.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// Dispatcher delivers alerts to all targets of all platforms.
type Dispatcher struct {
	platforms []Platform
	media     domain.MediaSource
	pacer     Pacer
	opts      FormatOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. media and pacer may be nil.
func NewDispatcher(platforms []Platform, media domain.MediaSource, pacer Pacer, opts FormatOptions, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		platforms: platforms,
		media:     media,
		pacer:     pacer,
		opts:      opts,
		logger:    logger.With(slog.String("component", "dispatcher")),
		now:       time.Now,
	}
}

// Dispatch renders the alert once and delivers it to every target. It never
// retries; an alert that reaches no target is logged as lost.
func (d *Dispatcher) Dispatch(ctx context.Context, alert domain.Alert) domain.DispatchReport {
	msg := FormatAlert(alert, d.opts)
	report := domain.DispatchReport{
		AlertID:   alert.ID,
		Exchange:  alert.Exchange,
		Value:     alert.Value,
		Tier:      msg.Tier.Name,
		StartedAt: d.now(),
	}

	media, hasMedia := d.pickMedia(ctx)

	for _, p := range d.platforms {
		for _, target := range p.Targets() {
			res := d.deliver(ctx, p, target, media, hasMedia, msg)
			if res.OK() {
				report.Succeeded++
				metrics.Deliveries.WithLabelValues(p.Name(), string(res.Mode), "ok").Inc()
			} else {
				report.Failed++
				metrics.Deliveries.WithLabelValues(p.Name(), string(res.Mode), "failed").Inc()
			}
			report.Results = append(report.Results, res)
		}
	}
	report.FinishedAt = d.now()

	switch {
	case len(report.Results) == 0:
		d.logger.WarnContext(ctx, "no notification targets configured",
			slog.String("alert_id", alert.ID),
		)
	case report.Lost():
		metrics.AlertsLost.Inc()
		d.logger.ErrorContext(ctx, "alert lost: no target received it",
			slog.Bool("critical", true),
			slog.String("alert_id", alert.ID),
			slog.Int("failed", report.Failed),
		)
	default:
		d.logger.InfoContext(ctx, "alert dispatched",
			slog.String("alert_id", alert.ID),
			slog.String("tier", report.Tier),
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
		)
	}
	return report
}

func (d *Dispatcher) pickMedia(ctx context.Context) (domain.Media, bool) {
	if d.media == nil {
		return domain.Media{}, false
	}
	m, err := d.media.Pick(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoMedia) {
			d.logger.WarnContext(ctx, "media unavailable, sending text only",
				slog.String("error", err.Error()),
			)
		}
		return domain.Media{}, false
	}
	return m, true
}

func (d *Dispatcher) deliver(ctx context.Context, p Platform, target string, media domain.Media, hasMedia bool, msg Message) domain.DeliveryResult {
	res := domain.DeliveryResult{Platform: p.Name(), Target: target, Mode: domain.DeliveryNone}

	if d.pacer != nil {
		if err := d.pacer.Wait(ctx, p.Name()+":"+target); err != nil {
			res.Err = err.Error()
			return res
		}
	}

	if hasMedia {
		res.Attempts++
		err := p.SendRichMedia(ctx, target, media, msg)
		if err == nil {
			res.Mode = domain.DeliveryRichMedia
			return res
		}
		d.logger.WarnContext(ctx, "rich media delivery failed, falling back to text",
			slog.String("platform", p.Name()),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
	}

	res.Attempts++
	if err := p.SendText(ctx, target, msg); err != nil {
		res.Err = err.Error()
		d.logger.ErrorContext(ctx, "delivery failed",
			slog.String("platform", p.Name()),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return res
	}
	res.Mode = domain.DeliveryText
	return res
}

// DryRun renders alerts and logs them instead of delivering.
type DryRun struct {
	opts   FormatOptions
	logger *slog.Logger
}

// NewDryRun creates a DryRun dispatcher.
func NewDryRun(opts FormatOptions, logger *slog.Logger) *DryRun {
	return &DryRun{opts: opts, logger: logger.With(slog.String("component", "dispatcher"))}
}

// Dispatch logs the rendered alert.
func (d *DryRun) Dispatch(ctx context.Context, alert domain.Alert) domain.DispatchReport {
	msg := FormatAlert(alert, d.opts)
	d.logger.InfoContext(ctx, "dry-run alert",
		slog.String("alert_id", alert.ID),
		slog.String("tier", msg.Tier.Name),
		slog.String("text", msg.Markdown),
	)
	now := time.Now()
	return domain.DispatchReport{
		AlertID:    alert.ID,
		Exchange:   alert.Exchange,
		Value:      alert.Value,
		Tier:       msg.Tier.Name,
		StartedAt:  now,
		FinishedAt: now,
	}
}
