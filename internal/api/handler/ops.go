package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
)

// readyTimeout bounds the database ping of the readiness probe.
const readyTimeout = 2 * time.Second

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DegradationReporter lists feature flags that currently reduce
// functionality.
type DegradationReporter interface {
	DegradationFlags(ctx context.Context) []string
}

// OpsHandlerConfig holds the dependencies of OpsHandler. DB is nil when
// the in-memory store is used.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	DB        Pinger
	Registry  *resilience.Registry
	Flags     DegradationReporter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsHandlerConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	if cfg.Registry == nil {
		cfg.Registry = resilience.GlobalRegistry
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Fails with
// 503 when the database does not answer.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	if err := h.pingDB(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"database": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and dependency status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	db := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if h.cfg.DB == nil {
		detail := "in-memory store"
		db.Detail = &detail
	} else if err := h.pingDB(ctx); err != nil {
		detail := err.Error()
		db.Status = models.HealthStatusFail
		db.Detail = &detail
	}
	status.Subsystems = append(status.Subsystems, db)

	for _, dep := range h.cfg.Registry.GetAllHealth() {
		status.Dependencies = append(status.Dependencies, dependencyStatus(dep))
	}

	if h.cfg.Flags != nil {
		status.ActiveDegradationFlags = h.cfg.Flags.DegradationFlags(ctx)
	}

	status.Status = overallStatus(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingDB(ctx context.Context) error {
	if h.cfg.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return h.cfg.DB.Ping(ctx)
}

func dependencyStatus(dep *resilience.DependencyHealth) models.DependencyStatus {
	out := models.DependencyStatus{
		Name:         dep.Name,
		Status:       models.HealthStatusOK,
		CircuitState: dep.CircuitState.String(),
	}
	switch {
	case dep.IsUnhealthy():
		out.Status = models.HealthStatusFail
	case dep.IsDegraded():
		out.Status = models.HealthStatusDegraded
	}
	if dep.LastSuccessAt != nil {
		out.LastSuccessAt = models.TimestampPtr(*dep.LastSuccessAt)
	}
	if dep.LastFailureAt != nil {
		out.LastFailureAt = models.TimestampPtr(*dep.LastFailureAt)
	}
	if dep.LastError != "" {
		msg := dep.LastError
		out.Message = &msg
	}
	return out
}

// overallStatus is FAIL when the database is down, DEGRADED when any
// dependency or flag reduces service, OK otherwise.
func overallStatus(s models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, sub := range s.Subsystems {
		if sub.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
	}
	for _, dep := range s.Dependencies {
		if dep.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	if len(s.ActiveDegradationFlags) > 0 {
		result = models.HealthStatusDegraded
	}
	return result
}
