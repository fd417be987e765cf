package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ThresholdStore is the durable home of the alert threshold.
type ThresholdStore interface {
	SaveThreshold(ctx context.Context, value float64) error
}

// Setting is a named, JSON-encoded configuration value.
type Setting struct {
	Key       string
	Value     map[string]any
	UpdatedAt time.Time
}

// SettingsStore persists runtime settings.
type SettingsStore interface {
	Get(ctx context.Context, key string) (Setting, error)
	Upsert(ctx context.Context, s Setting) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
