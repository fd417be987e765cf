package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/server/handler"
)

type stubThreshold struct{ st domain.ThresholdState }

func (s stubThreshold) State() domain.ThresholdState { return s.st }

type stubAvailability struct{ states []domain.AvailabilityState }

func (s stubAvailability) Snapshot() []domain.AvailabilityState { return s.states }

type stubAudit struct {
	entries []domain.AuditEntry
	err     error
	opts    domain.ListOpts
}

func (s *stubAudit) Log(context.Context, string, map[string]any) error { return nil }

func (s *stubAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.opts = opts
	return s.entries, s.err
}

// denyAfter admits the first n requests.
type denyAfter struct{ n int }

func (d *denyAfter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.n--
	return d.n >= 0, nil
}

func (d *denyAfter) Wait(context.Context, string) error { return nil }

func newTestServer(audit *stubAudit, limiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	h := Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler("alert",
			stubThreshold{domain.ThresholdState{CurrentValue: 300, Min: 100, Max: 1000}},
			stubAvailability{[]domain.AvailabilityState{{Exchange: "CoinEx", Listed: true, Checked: true}}},
		),
	}
	if audit != nil {
		h.Audit = handler.NewAuditHandler(audit, logger)
	}
	return NewServer(Config{Port: 0, RequestsPerMinute: 10}, h, limiter, logger).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReportsThresholdAndExchanges(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mode      string                     `json:"mode"`
		Threshold domain.ThresholdState      `json:"threshold"`
		Exchanges []domain.AvailabilityState `json:"exchanges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alert", body.Mode)
	assert.Equal(t, 300.0, body.Threshold.CurrentValue)
	require.Len(t, body.Exchanges, 1)
	assert.True(t, body.Exchanges[0].Listed)
}

func TestAuditRouteOnlyWithStore(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/audit")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	audit := &stubAudit{entries: []domain.AuditEntry{{ID: 1, Event: "threshold_changed"}}}
	rec = get(t, newTestServer(audit, nil), "/api/audit?limit=900&offset=2&since=2026-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, audit.opts.Limit)
	assert.Equal(t, 2, audit.opts.Offset)
	require.NotNil(t, audit.opts.Since)
	assert.Contains(t, rec.Body.String(), `"event":"threshold_changed"`)
}

func TestAuditErrors(t *testing.T) {
	rec := get(t, newTestServer(&stubAudit{}, nil), "/api/audit?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, newTestServer(&stubAudit{err: errors.New("db down")}, nil), "/api/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(nil, &denyAfter{n: 1})
	assert.Equal(t, http.StatusOK, get(t, h, "/api/health").Code)

	rec := get(t, h, "/api/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
