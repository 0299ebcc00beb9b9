package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type flagReporter []string

func (f flagReporter) DegradationFlags(context.Context) []string { return f }

func tripOnFirstFailure(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 1
	}
	return &cfg
}

func getStatus(t *testing.T, h *OpsHandler) models.SystemStatus {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	resilience.NewExecutor(resilience.ExecutorConfig{Name: "job-publisher", Registry: registry})
	store := resilience.NewExecutor(resilience.ExecutorConfig{
		Name:           "snapshot-store",
		CircuitBreaker: tripOnFirstFailure("snapshot-store"),
		Registry:       registry,
	})

	h := NewOpsHandler(OpsHandlerConfig{Registry: registry})
	status := getStatus(t, h)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	require.NotNil(t, status.Subsystems[0].Detail)
	assert.Equal(t, "in-memory store", *status.Subsystems[0].Detail)
	require.Len(t, status.Dependencies, 2)
	assert.Equal(t, "job-publisher", status.Dependencies[0].Name)
	assert.Equal(t, "closed", status.Dependencies[1].CircuitState)

	err := store.Do(t.Context(), func(context.Context) error {
		return resilience.Permanent(errors.New("connection refused"))
	})
	require.Error(t, err)

	status = getStatus(t, h)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	dep := status.Dependencies[1]
	assert.Equal(t, "snapshot-store", dep.Name)
	assert.Equal(t, models.HealthStatusFail, dep.Status)
	assert.Equal(t, "open", dep.CircuitState)
	require.NotNil(t, dep.Message)
	assert.Contains(t, *dep.Message, "connection refused")
	assert.NotNil(t, dep.LastFailureAt)
	assert.Nil(t, dep.LastSuccessAt)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name string
		cfg  OpsHandlerConfig
		want models.HealthStatus
	}{
		{
			name: "healthy database",
			cfg:  OpsHandlerConfig{DB: pinger{}},
			want: models.HealthStatusOK,
		},
		{
			name: "database down",
			cfg:  OpsHandlerConfig{DB: pinger{err: errors.New("timeout")}, Flags: flagReporter{"disable_patch_route"}},
			want: models.HealthStatusFail,
		},
		{
			name: "degradation flag",
			cfg:  OpsHandlerConfig{Flags: flagReporter{"level_snapshots_enabled"}},
			want: models.HealthStatusDegraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Registry = resilience.NewRegistry()
			status := getStatus(t, NewOpsHandler(tt.cfg))
			assert.Equal(t, tt.want, status.Status)
		})
	}
}

func TestDependencyStatus(t *testing.T) {
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := dependencyStatus(&resilience.DependencyHealth{
		Name:          "snapshot-store",
		CircuitState:  gobreaker.StateHalfOpen,
		LastFailureAt: &failedAt,
		LastError:     "deadline exceeded",
	})

	assert.Equal(t, models.HealthStatusDegraded, out.Status)
	assert.Equal(t, "half-open", out.CircuitState)
	require.NotNil(t, out.LastFailureAt)
	assert.True(t, failedAt.Equal(time.Time(*out.LastFailureAt)))
	require.NotNil(t, out.Message)
	assert.Equal(t, "deadline exceeded", *out.Message)
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{name: "memory store", want: http.StatusOK},
		{name: "database up", db: pinger{}, want: http.StatusOK},
		{name: "database down", db: pinger{err: errors.New("refused")}, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOpsHandler(OpsHandlerConfig{DB: tt.db, Registry: resilience.NewRegistry()})
			rec := httptest.NewRecorder()
			h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
