// Package main provides the entrypoint for the hrtlevels API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api"
	"github.com/hrtlevels/hrtlevels/internal/api/handler"
	"github.com/hrtlevels/hrtlevels/internal/api/middleware"
	"github.com/hrtlevels/hrtlevels/internal/auth"
	"github.com/hrtlevels/hrtlevels/internal/config"
	"github.com/hrtlevels/hrtlevels/internal/database"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/export"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
	"github.com/hrtlevels/hrtlevels/internal/telemetry"
	"github.com/hrtlevels/hrtlevels/internal/user"
	"github.com/hrtlevels/hrtlevels/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "hrtlevels-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Str("storage", cfg.Storage).
		Msg("starting hrtlevels API")
	if cfg.UsesDevSigningKey() {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	m := metrics.New("hrtlevels")

	var (
		pool         *pgxpool.Pool
		accountRepo  auth.AccountRepository
		refreshRepo  auth.RefreshTokenRepository
		userRepo     user.Repository
		doseRepo     dosing.Repository
		snapshotRepo levels.SnapshotRepository
		flagRepo     featureflags.Repository
	)
	switch cfg.Storage {
	case config.StorageMemory:
		accountRepo = auth.NewInMemoryAccountRepository()
		refreshRepo = auth.NewInMemoryRefreshTokenRepository()
		userRepo = user.NewInMemoryRepository()
		doseRepo = dosing.NewInMemoryRepository()
		snapshotRepo = levels.NewInMemorySnapshotRepository()
		flagRepo = featureflags.NewInMemoryRepository()
		log.Warn().Msg("using in-memory storage - data is lost on restart")
	default:
		pool, err = database.ConnectURL(ctx, cfg.ConnectionString(), cfg.Database())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", cfg.DBHost).
			Int("port", cfg.DBPort).
			Str("database", cfg.DBName).
			Msg("database connected")

		if cfg.DBMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("failed to apply migrations")
			}
			log.Info().Msg("migrations applied")
		}

		accountRepo = auth.NewPostgresAccountRepository(pool)
		refreshRepo = auth.NewPostgresRefreshTokenRepository(pool)
		userRepo = user.NewPostgresRepository(pool)
		doseRepo = dosing.NewPostgresRepository(pool)
		snapshotRepo = levels.NewPostgresSnapshotRepository(pool)
		flagRepo = featureflags.NewPostgresRepository(pool)
	}

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     log,
		CacheTTL:   cfg.FlagCacheTTL,
	})

	userService := user.NewService(userRepo)

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
		}),
		AccountRepo: accountRepo,
		RefreshRepo: refreshRepo,
		OnRegister: func(ctx context.Context, accountID, locale string) error {
			_, err := userService.CreateUser(ctx, accountID, locale)
			return err
		},
		DefaultLocale: cfg.DefaultLocale,
	})

	snapshotExecutor := resilience.NewExecutor(resilience.ExecutorConfig{
		Name:     "snapshot-store",
		Registry: resilience.GlobalRegistry,
	})
	levelsService := levels.NewService(levels.ServiceConfig{
		Doses:     doseRepo,
		Profiles:  userService,
		Snapshots: snapshotRepo,
		Flags:     ffService,
		Executor:  snapshotExecutor,
		Metrics:   m,
		Logger:    log,
	})

	publisher, err := newPublisher(ctx, cfg, levelsService, userService, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close job publisher")
		}
	}()

	doseService := dosing.NewService(dosing.ServiceConfig{
		Repository: doseRepo,
		Routes:     ffService,
		Notifier:   publisher,
		Logger:     log,
	})

	exportService := export.NewService(export.ServiceConfig{
		Doses:   doseService,
		Users:   userService,
		Metrics: m,
		Logger:  log,
	})
	log.Info().Msg("services initialized")

	var db handler.Pinger
	if pool != nil {
		db = pool
	}

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		ServiceName:        serviceName,
		Logger:             log,
		Metrics:            httpMetrics,
		MetricsHandler:     m.Handler(),
		AdminToken:         cfg.AdminToken,
		RequireTLS:         cfg.RequireTLS,
		DB:                 db,
		Registry:           resilience.GlobalRegistry,
		AuthService:        authService,
		UserService:        userService,
		DoseService:        doseService,
		LevelsService:      levelsService,
		ExportService:      exportService,
		FeatureFlagService: ffService,
	})
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set - admin endpoints are disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// newPublisher returns a Pub/Sub publisher when a project is configured.
// Otherwise snapshot refreshes run in process.
func newPublisher(
	ctx context.Context,
	cfg *config.Config,
	levelsService *levels.Service,
	users worker.UserLister,
	m *metrics.Metrics,
	log zerolog.Logger,
) (*worker.Publisher, error) {
	pubCfg := worker.PublisherConfig{
		Executor: resilience.NewExecutor(resilience.ExecutorConfig{
			Name:       "job-publisher",
			MaxRetries: 2,
			Registry:   resilience.GlobalRegistry,
		}),
		Logger: log,
	}

	if cfg.PubSubEnabled() {
		log.Info().
			Str("project", cfg.PubSubProjectID).
			Str("topic", cfg.PubSubTopic).
			Msg("publishing snapshot jobs to pubsub")
		return worker.NewPubSubPublisher(ctx, cfg.PubSubProjectID, cfg.PubSubTopic, pubCfg)
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency:   cfg.RefreshConcurrency,
			Timeout:       cfg.RefreshTimeout,
			RatePerSecond: cfg.RefreshRatePerSecond,
		},
		Refresher: levelsService,
		Users:     users,
		Metrics:   m,
		Logger:    log,
	})
	pubCfg.Sender = worker.NewDispatcher(job, m, log)
	log.Info().Msg("PUBSUB_PROJECT_ID not set - refreshing snapshots in process")
	return worker.NewPublisher(pubCfg), nil
}
