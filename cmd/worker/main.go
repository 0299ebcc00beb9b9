// Package main provides the entrypoint for the hrtlevels snapshot worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/config"
	"github.com/hrtlevels/hrtlevels/internal/database"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
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

const serviceName = "hrtlevels-worker"

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
		Msg("starting hrtlevels worker")

	if cfg.Storage != config.StoragePostgres {
		log.Fatal().Str("storage", cfg.Storage).Msg("worker requires STORAGE=postgres")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pool, err := database.ConnectURL(ctx, cfg.ConnectionString(), cfg.Database())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", cfg.DBHost).
		Int("port", cfg.DBPort).
		Str("database", cfg.DBName).
		Msg("database connected")

	m := metrics.New("hrtlevels")

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   cfg.FlagCacheTTL,
	})
	users := user.NewService(user.NewPostgresRepository(pool))

	levelsService := levels.NewService(levels.ServiceConfig{
		Doses:     dosing.NewPostgresRepository(pool),
		Profiles:  users,
		Snapshots: levels.NewPostgresSnapshotRepository(pool),
		Flags:     flags,
		Executor: resilience.NewExecutor(resilience.ExecutorConfig{
			Name:     "snapshot-store",
			Registry: resilience.GlobalRegistry,
		}),
		Metrics: m,
		Logger:  log,
	})

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
	dispatcher := worker.NewDispatcher(job, m, log)

	scheduler := worker.NewScheduler(dispatcher, worker.SchedulerConfig{
		Interval:   cfg.SnapshotInterval,
		RunOnStart: true,
	}, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	errCh := make(chan error, 2)

	if cfg.PubSubEnabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - only scheduled refreshes will run")
	}

	server := &http.Server{
		Addr: ":" + cfg.WorkerPort,
		Handler: worker.NewStatusRouter(worker.StatusConfig{
			Version:   Version,
			Job:       job,
			Scheduler: scheduler,
			DB:        pool,
			Metrics:   m.Handler(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down worker")
	case err := <-errCh:
		log.Error().Err(err).Msg("worker failed")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
