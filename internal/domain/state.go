package domain

import "time"

// AvailabilityState is the listing status of the monitored asset on one
// exchange. Checked is false until the first successful probe.
type AvailabilityState struct {
	Exchange      string    `json:"exchange"`
	Listed        bool      `json:"listed"`
	Checked       bool      `json:"checked"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// ThresholdState is the alert threshold in force.
type ThresholdState struct {
	CurrentValue     float64   `json:"current_value"`
	LastRecomputedAt time.Time `json:"last_recomputed_at"`
	Min              float64   `json:"min"`
	Max              float64   `json:"max"`
	Dynamic          bool      `json:"dynamic"`
}
