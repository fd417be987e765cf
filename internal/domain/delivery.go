package domain

import "time"

// DeliveryMode is how an alert reached (or failed to reach) a target.
type DeliveryMode string

const (
	DeliveryRichMedia DeliveryMode = "rich_media"
	DeliveryText      DeliveryMode = "text"
	DeliveryNone      DeliveryMode = "none"
)

// DeliveryResult is the outcome for one notification target.
type DeliveryResult struct {
	Platform string       `json:"platform"`
	Target   string       `json:"target"`
	Mode     DeliveryMode `json:"mode"`
	Attempts int          `json:"attempts"`
	Err      string       `json:"error,omitempty"`
}

// OK reports whether the target received the alert.
func (r DeliveryResult) OK() bool { return r.Mode != DeliveryNone }

// DispatchReport aggregates the per-target results of one dispatch.
type DispatchReport struct {
	AlertID    string           `json:"alert_id"`
	Exchange   string           `json:"exchange"`
	Value      float64          `json:"value"`
	Tier       string           `json:"tier"`
	Results    []DeliveryResult `json:"results"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Lost reports whether targets were configured but none received the alert.
func (r DispatchReport) Lost() bool {
	return len(r.Results) > 0 && r.Succeeded == 0
}
