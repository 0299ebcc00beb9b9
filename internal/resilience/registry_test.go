package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/resilience"
)

func newRegistered(registry *resilience.Registry, name string) *resilience.Executor {
	cfg := resilience.DefaultExecutorConfig(name)
	cfg.Registry = registry
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return resilience.NewExecutor(cfg)
}

func TestRegistry_RegisterAndGetHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	executor := newRegistered(registry, "snapshot-store")

	assert.Equal(t, 1, registry.DependencyCount())
	assert.Equal(t, "snapshot-store", executor.Name())

	health := registry.GetHealth("snapshot-store")
	require.NotNil(t, health)
	assert.Equal(t, "snapshot-store", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.False(t, health.IsDegraded())
	assert.False(t, health.IsUnhealthy())
}

func TestRegistry_Unregister(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegistered(registry, "snapshot-store")

	registry.Unregister("snapshot-store")

	assert.Equal(t, 0, registry.DependencyCount())
	assert.Nil(t, registry.GetHealth("snapshot-store"))
}

func TestRegistry_RecordsExecutorOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	executor := newRegistered(registry, "job-publisher")

	health := registry.GetHealth("job-publisher")
	require.NotNil(t, health)
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	require.NoError(t, executor.Do(context.Background(), func(context.Context) error { return nil }))

	health = registry.GetHealth("job-publisher")
	require.NotNil(t, health.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)

	err := executor.Do(context.Background(), func(context.Context) error {
		return resilience.Permanent(errors.New("topic not found"))
	})
	require.Error(t, err)

	health = registry.GetHealth("job-publisher")
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, "topic not found", health.LastError)
}

func TestRegistry_RecordFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegistered(registry, "snapshot-store")

	registry.RecordFailure("snapshot-store", assert.AnError)

	health := registry.GetHealth("snapshot-store")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"snapshot-store", "job-publisher", "database"} {
		_ = newRegistered(registry, name)
	}

	healthList := registry.GetAllHealth()
	require.Len(t, healthList, 3)
	assert.Equal(t, "database", healthList[0].Name)
	assert.Equal(t, "job-publisher", healthList[1].Name)
	assert.Equal(t, "snapshot-store", healthList[2].Name)

	assert.Equal(t, []string{"database", "job-publisher", "snapshot-store"}, registry.GetDependencyNames())
}

func TestRegistry_UnknownNames(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.Empty(t, registry.GetDependencyNames())
	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
	assert.NotNil(t, resilience.GlobalRegistry)
}

func TestDependencyHealth_States(t *testing.T) {
	tests := []struct {
		state      gobreaker.State
		isHealthy  bool
		isDegraded bool
		isUnhealth bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.DependencyHealth{CircuitState: tt.state}
			assert.Equal(t, tt.isHealthy, h.IsHealthy())
			assert.Equal(t, tt.isDegraded, h.IsDegraded())
			assert.Equal(t, tt.isUnhealth, h.IsUnhealthy())
		})
	}
}
