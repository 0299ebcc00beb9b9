package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// ErrRefreshInProgress is returned when a full refresh is already running.
var ErrRefreshInProgress = errors.New("snapshot refresh already in progress")

// SnapshotRefresher recomputes and stores one user's level snapshot.
type SnapshotRefresher interface {
	RefreshSnapshot(ctx context.Context, userID string) (*levels.Snapshot, error)
}

// UserLister lists the users whose snapshots are kept fresh.
type UserLister interface {
	ListProfiledUserIDs(ctx context.Context) ([]string, error)
}

// RefreshJob refreshes level snapshots with a bounded worker pool.
type RefreshJob struct {
	config    RefreshConfig
	refresher SnapshotRefresher
	users     UserLister
	bucket    *ratelimit.Bucket
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	running atomic.Bool
	stats   *RefreshStats
}

// RefreshStats tracks refresh job statistics for the status endpoint.
type RefreshStats struct {
	mu sync.RWMutex

	TotalRuns       int64
	UsersRefreshed  int64
	UsersSkipped    int64
	UsersFailed     int64
	SingleRefreshes int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Refresher SnapshotRefresher
	Users     UserLister
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config.withDefaults()

	var bucket *ratelimit.Bucket
	if config.RatePerSecond > 0 {
		bucket = ratelimit.NewBucketWithRate(config.RatePerSecond, config.Burst)
	}

	return &RefreshJob{
		config:    config,
		refresher: cfg.Refresher,
		users:     cfg.Users,
		bucket:    bucket,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		stats:     &RefreshStats{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalUsers int
	Successful int
	Skipped    int
	Failed     int
	Errors     []RefreshError
}

// RefreshError records a failed user refresh.
type RefreshError struct {
	UserID string
	Error  string
}

// RunAll refreshes every profiled user. Only one RunAll executes at a time.
func (j *RefreshJob) RunAll(ctx context.Context) (*RefreshResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer j.running.Store(false)

	userIDs, err := j.users.ListProfiledUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return j.Run(ctx, userIDs), nil
}

// Run refreshes the given users.
func (j *RefreshJob) Run(ctx context.Context, userIDs []string) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{
		StartTime:  startTime,
		TotalUsers: len(userIDs),
	}

	j.logger.Info().
		Int("total_users", result.TotalUsers).
		Int("concurrency", j.config.Concurrency).
		Msg("starting snapshot refresh job")

	idsChan := make(chan string, len(userIDs))
	resultsChan := make(chan userResult, len(userIDs))

	var wg sync.WaitGroup
	for range j.config.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, idsChan, resultsChan)
		}()
	}

	for _, id := range userIDs {
		idsChan <- id
	}
	close(idsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for ur := range resultsChan {
		switch ur.outcome {
		case metrics.OutcomeOK:
			result.Successful++
		case metrics.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{UserID: ur.userID, Error: ur.err.Error()})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateStats(result)
	j.metrics.ObserveSnapshotRun(result.Duration)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("snapshot refresh job completed")

	return result
}

// RefreshUser refreshes a single user's snapshot. Users that no longer
// exist and disabled snapshots are not errors.
func (j *RefreshJob) RefreshUser(ctx context.Context, userID string) error {
	outcome, err := j.refreshOne(ctx, userID)

	j.stats.mu.Lock()
	j.stats.SingleRefreshes++
	j.stats.mu.Unlock()

	if outcome == metrics.OutcomeSkipped {
		return nil
	}
	return err
}

type userResult struct {
	userID  string
	outcome string
	err     error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, ids <-chan string, results chan<- userResult) {
	for id := range ids {
		if ctx.Err() != nil {
			results <- userResult{userID: id, outcome: metrics.OutcomeError, err: ctx.Err()}
			continue
		}
		outcome, err := j.refreshOne(ctx, id)
		results <- userResult{userID: id, outcome: outcome, err: err}
	}
}

func (j *RefreshJob) refreshOne(ctx context.Context, userID string) (string, error) {
	if err := j.wait(ctx); err != nil {
		return metrics.OutcomeError, err
	}

	userCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.refresher.RefreshSnapshot(userCtx, userID)
	outcome := refreshOutcome(err)
	j.metrics.ObserveSnapshotRefresh(outcome)

	if outcome == metrics.OutcomeError || outcome == metrics.OutcomeInvalid {
		j.logger.Warn().Err(err).Str("user_id", userID).Msg("snapshot refresh failed")
	}
	return outcome, err
}

// wait blocks until the rate limiter admits one refresh.
func (j *RefreshJob) wait(ctx context.Context) error {
	if j.bucket == nil {
		return nil
	}
	d := j.bucket.Take(1)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func refreshOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, levels.ErrSnapshotsDisabled),
		errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, user.ErrProfileNotFound):
		return metrics.OutcomeSkipped
	default:
		return metrics.Outcome(err)
	}
}

func (j *RefreshJob) updateStats(result *RefreshResult) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalRuns++
	j.stats.UsersRefreshed += int64(result.Successful)
	j.stats.UsersSkipped += int64(result.Skipped)
	j.stats.UsersFailed += int64(result.Failed)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetStats returns a copy of the current statistics.
func (j *RefreshJob) GetStats() RefreshStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return RefreshStats{
		TotalRuns:       j.stats.TotalRuns,
		UsersRefreshed:  j.stats.UsersRefreshed,
		UsersSkipped:    j.stats.UsersSkipped,
		UsersFailed:     j.stats.UsersFailed,
		SingleRefreshes: j.stats.SingleRefreshes,
		LastRunAt:       j.stats.LastRunAt,
		LastRunDuration: j.stats.LastRunDuration,
		TotalDuration:   j.stats.TotalDuration,
	}
}

// StatsSnapshot returns the current statistics as a map.
func (j *RefreshJob) StatsSnapshot() map[string]any {
	s := j.GetStats()
	return map[string]any{
		"total_runs":        s.TotalRuns,
		"users_refreshed":   s.UsersRefreshed,
		"users_skipped":     s.UsersSkipped,
		"users_failed":      s.UsersFailed,
		"single_refreshes":  s.SingleRefreshes,
		"last_run_at":       s.LastRunAt,
		"last_run_duration": s.LastRunDuration.String(),
		"total_duration":    s.TotalDuration.String(),
		"running":           j.running.Load(),
	}
}
