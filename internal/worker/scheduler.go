package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// DefaultSchedulerInterval is the period between full snapshot refreshes.
const DefaultSchedulerInterval = 15 * time.Minute

// Scheduler periodically enqueues full snapshot refreshes.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	dispatcher *Dispatcher
	config     SchedulerConfig
	logger     zerolog.Logger
}

// NewScheduler creates a scheduler that dispatches full refreshes.
func NewScheduler(dispatcher *Dispatcher, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerInterval
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// Start schedules the refresh and returns immediately. Runs stop when ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	job := s.scheduler.Every(s.config.Interval).SingletonMode()
	if !s.config.RunOnStart {
		job = job.WaitForSchedule()
	}

	_, err := job.Do(func() {
		if ctx.Err() != nil {
			return
		}
		err := s.dispatcher.Dispatch(ctx, JobMessage{JobType: JobSnapshotRefreshAll})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduled snapshot refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling snapshot refresh: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("snapshot refresh scheduled")
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// NextRun returns the time of the next scheduled refresh.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}
