package service

import (
	"context"
	"log/slog"
	"time"
)

// StreamActivity reports when a trade stream last delivered an execution.
type StreamActivity interface {
	Name() string
	LastSeenAt() time.Time
}

// RunHeartbeat logs a liveness line every interval until ctx is done.
func RunHeartbeat(ctx context.Context, interval time.Duration, monitor *AvailabilityMonitor, threshold *ThresholdController, streams []StreamActivity, logger *slog.Logger) error {
	logger = logger.With(slog.String("component", "heartbeat"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logger.InfoContext(ctx, "heartbeat", heartbeatAttrs(monitor, threshold, streams)...)
		}
	}
}

func heartbeatAttrs(monitor *AvailabilityMonitor, threshold *ThresholdController, streams []StreamActivity) []any {
	attrs := []any{slog.Any("listed", monitor.Listed())}
	if threshold != nil {
		attrs = append(attrs, slog.Float64("threshold", threshold.Current()))
	}
	if len(streams) > 0 {
		last := make(map[string]string, len(streams))
		for _, s := range streams {
			if at := s.LastSeenAt(); !at.IsZero() {
				last[s.Name()] = at.UTC().Format(time.RFC3339)
			} else {
				last[s.Name()] = "never"
			}
		}
		attrs = append(attrs, slog.Any("last_trade", last))
	}
	return attrs
}
