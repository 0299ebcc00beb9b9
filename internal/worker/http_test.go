package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestStatusRouter(t *testing.T) {
	m := metrics.New("test")
	job := NewRefreshJob(RefreshJobConfig{
		Refresher: &recordingRefresher{},
		Users:     listUsers{"usr_a"},
		Logger:    zerolog.Nop(),
	})
	_, err := job.RunAll(t.Context())
	require.NoError(t, err)

	tests := []struct {
		name     string
		cfg      StatusConfig
		path     string
		wantCode int
		contains string
	}{
		{name: "health", path: "/health", wantCode: http.StatusOK, contains: `"version":"1.2.3"`},
		{name: "ready without database", path: "/ready", wantCode: http.StatusOK},
		{name: "ready database up", cfg: StatusConfig{DB: stubPinger{}}, path: "/ready", wantCode: http.StatusOK},
		{
			name:     "ready database down",
			cfg:      StatusConfig{DB: stubPinger{err: errors.New("connection refused")}},
			path:     "/ready",
			wantCode: http.StatusServiceUnavailable,
			contains: "connection refused",
		},
		{name: "metrics disabled", path: "/metrics", wantCode: http.StatusNotFound},
		{name: "metrics", cfg: StatusConfig{Metrics: m.Handler()}, path: "/metrics", wantCode: http.StatusOK, contains: "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Version = "1.2.3"
			rec := httptest.NewRecorder()
			NewStatusRouter(tt.cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewStatusRouter(StatusConfig{Version: "1.2.3", Job: job}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Version string         `json:"version"`
			Refresh map[string]any `json:"refresh"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "1.2.3", body.Version)
		assert.InDelta(t, 1, body.Refresh["total_runs"], 1e-9)
		assert.InDelta(t, 1, body.Refresh["users_refreshed"], 1e-9)
	})
}
