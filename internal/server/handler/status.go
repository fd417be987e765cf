package handler

import (
	"net/http"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// ThresholdView exposes the threshold in force.
type ThresholdView interface {
	State() domain.ThresholdState
}

// AvailabilityView exposes per-exchange listing status.
type AvailabilityView interface {
	Snapshot() []domain.AvailabilityState
}

// StatusHandler reports the run mode, threshold and exchange availability.
type StatusHandler struct {
	mode         string
	threshold    ThresholdView
	availability AvailabilityView
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, threshold ThresholdView, availability AvailabilityView) *StatusHandler {
	return &StatusHandler{mode: mode, threshold: threshold, availability: availability}
}

// GetStatus responds with the current process state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"mode": h.mode}
	if h.threshold != nil {
		body["threshold"] = h.threshold.State()
	}
	if h.availability != nil {
		body["exchanges"] = h.availability.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}
