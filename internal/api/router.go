// Package api assembles the HTTP API of hrtlevels.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/handler"
	"github.com/hrtlevels/hrtlevels/internal/api/middleware"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/auth"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/export"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// DefaultServiceName is the tracing service name used when none is set.
const DefaultServiceName = "hrtlevels-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	// Metrics records OpenTelemetry HTTP metrics when set.
	Metrics *middleware.Metrics
	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler

	// RateLimits defaults to middleware.DefaultRateLimits.
	RateLimits *middleware.RateLimits
	AdminToken string
	RequireTLS bool

	// DB is pinged by the readiness probe. Nil for in-memory storage.
	DB       handler.Pinger
	Registry *resilience.Registry

	AuthService        *auth.Service
	UserService        *user.Service
	DoseService        *dosing.Service
	LevelsService      *levels.Service
	ExportService      *export.Service
	FeatureFlagService *featureflags.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	limits := middleware.DefaultRateLimits()
	if cfg.RateLimits != nil {
		limits = *cfg.RateLimits
	}

	// Global middleware, outermost first.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		DB:        cfg.DB,
		Registry:  cfg.Registry,
		Flags:     cfg.FeatureFlagService,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	meHandler := handler.NewMeHandler(handler.MeHandlerConfig{
		Users:  cfg.UserService,
		Doses:  cfg.DoseService,
		Levels: cfg.LevelsService,
		Auth:   cfg.AuthService,
	})
	doseHandler := handler.NewDoseHandler(cfg.DoseService)
	levelsHandler := handler.NewLevelsHandler(cfg.LevelsService)
	exportHandler := handler.NewExportHandler(cfg.ExportService)
	calcHandler := handler.NewCalcHandler()
	metadataHandler := handler.NewMetadataHandler(cfg.FeatureFlagService)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	authMiddleware := middleware.Auth(cfg.AuthService)
	adminMiddleware := middleware.AdminToken(cfg.AdminToken)

	authRateLimit := middleware.RateLimitByIP(limits.Auth)
	computeRateLimit := middleware.RateLimitByUser(limits.Compute)
	standardRateLimit := middleware.RateLimitByIP(limits.Standard)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "resource not found")
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/anonymous", authHandler.Register)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
			r.With(authMiddleware).Post("/logout-all", authHandler.LogoutAll)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(adminMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Stateless helpers.
		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/metadata/enums", metadataHandler.GetEnums)
			r.Get("/metadata/field-policies", metadataHandler.ListFieldPolicies)
			r.Get("/conversions/e2", calcHandler.ConvertE2)
			r.Get("/sublingual/tiers", calcHandler.ListSublingualTiers)
			r.Get("/sublingual/theta", calcHandler.ConvertTheta)
		})
		r.With(computeRateLimit, middleware.RequireJSON).Post("/simulations", levelsHandler.Simulate)

		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(limits.Standard))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireJSON)

				r.Get("/", meHandler.GetMe)
				r.Put("/", meHandler.UpdateMe)
				r.Delete("/", meHandler.DeleteMe)

				r.Get("/profile", meHandler.GetProfile)
				r.Put("/profile", meHandler.UpsertProfile)

				r.Get("/doses", doseHandler.ListDoses)
				r.Post("/doses", doseHandler.CreateDose)
				r.Route("/doses/{doseID}", func(r chi.Router) {
					r.Get("/", doseHandler.GetDose)
					r.Put("/", doseHandler.UpdateDose)
					r.Delete("/", doseHandler.DeleteDose)
				})

				r.Get("/levels", levelsHandler.GetLevels)
				r.Get("/levels/snapshot", levelsHandler.GetSnapshot)

				r.With(computeRateLimit).Post("/export", exportHandler.Export)
				r.With(computeRateLimit).Post("/import", exportHandler.Import)
			})

			r.With(computeRateLimit, middleware.RequireContentType("application/json", "text/csv")).
				Post("/doses:import", doseHandler.ImportDoses)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Use(standardRateLimit)
			r.Use(middleware.RequireJSON)

			r.Route("/flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
			})
		})
	})

	return r
}
