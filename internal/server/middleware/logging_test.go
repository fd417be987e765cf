package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggingRecordsStatus(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    float64
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, 200},
		{"explicit", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, 404},
		{"first header wins", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.WriteHeader(http.StatusInternalServerError)
		}, 418},
		{"write before header", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("body"))
			w.WriteHeader(http.StatusBadGateway)
		}, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			h := Logging(logger)(tc.handler)

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, "http request", lines[0]["msg"])
			assert.Equal(t, "/api/status", lines[0]["path"])
			assert.Equal(t, tc.want, lines[0]["status"])
		})
	}
}

func TestLoggingMetricsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, buf.String())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Len(t, logLines(t, &buf), 1)
}
