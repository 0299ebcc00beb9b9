package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
)

// Pinger checks connectivity to the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusConfig holds the dependencies of the worker's HTTP endpoints.
type StatusConfig struct {
	Version   string
	Job       *RefreshJob
	Scheduler *Scheduler
	DB        Pinger
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewStatusRouter serves /health, /ready, /status and /metrics for the
// worker process.
func NewStatusRouter(cfg StatusConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{
			Status:  models.HealthStatusOK,
			Time:    models.Timestamp(time.Now()),
			Details: map[string]interface{}{"version": cfg.Version},
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		health := models.Health{
			Status: models.HealthStatusOK,
			Time:   models.Timestamp(time.Now()),
		}
		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.DB.Ping(ctx); err != nil {
				health.Status = models.HealthStatusFail
				health.Details = map[string]interface{}{"database": err.Error()}
				response.JSON(w, r, http.StatusServiceUnavailable, health)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, health)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"version": cfg.Version}
		if cfg.Job != nil {
			status["refresh"] = cfg.Job.StatsSnapshot()
		}
		if cfg.Scheduler != nil {
			status["next_run"] = cfg.Scheduler.NextRun().UTC().Format(time.RFC3339)
		}
		response.JSON(w, r, http.StatusOK, status)
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	return r
}
