package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/user"
	"github.com/hrtlevels/hrtlevels/internal/worker"
)

// fakeRefresher records refreshed users and fails for configured ones.
type fakeRefresher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeRefresher(failures map[string]error) *fakeRefresher {
	return &fakeRefresher{calls: make(map[string]int), failures: failures}
}

func (f *fakeRefresher) RefreshSnapshot(ctx context.Context, userID string) (*levels.Snapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	f.calls[userID]++
	f.mu.Unlock()

	if err := f.failures[userID]; err != nil {
		return nil, err
	}
	return &levels.Snapshot{UserID: userID}, nil
}

func (f *fakeRefresher) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

type staticUsers struct {
	ids []string
	err error
}

func (s staticUsers) ListProfiledUserIDs(context.Context) ([]string, error) {
	return s.ids, s.err
}

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("usr_%02d", i)
	}
	return ids
}

func newJob(refresher worker.SnapshotRefresher, users worker.UserLister, m *metrics.Metrics, cfg worker.RefreshConfig) *worker.RefreshJob {
	return worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:    cfg,
		Refresher: refresher,
		Users:     users,
		Metrics:   m,
		Logger:    zerolog.Nop(),
	})
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.InDelta(t, 20, cfg.RatePerSecond, 1e-9)
	assert.Equal(t, int64(4), cfg.Burst)
}

func TestRefreshJob_RunAll(t *testing.T) {
	failures := map[string]error{
		"usr_01": errors.New("database unavailable"),
		"usr_02": user.ErrProfileNotFound,
		"usr_03": fmt.Errorf("computing: %w", levels.ErrSnapshotsDisabled),
	}
	refresher := newFakeRefresher(failures)
	m := metrics.New("test")
	job := newJob(refresher, staticUsers{ids: userIDs(6)}, m, worker.RefreshConfig{Concurrency: 2})

	result, err := job.RunAll(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 6, result.TotalUsers)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "usr_01", result.Errors[0].UserID)
	assert.Contains(t, result.Errors[0].Error, "database unavailable")

	for _, id := range userIDs(6) {
		assert.Equal(t, 1, refresher.count(id), id)
	}

	assert.InDelta(t, 3, testutil.ToFloat64(m.SnapshotRefreshesTotal.WithLabelValues(metrics.OutcomeOK)), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SnapshotRefreshesTotal.WithLabelValues(metrics.OutcomeSkipped)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SnapshotRefreshesTotal.WithLabelValues(metrics.OutcomeError)), 1e-9)

	stats := job.GetStats()
	assert.Equal(t, int64(1), stats.TotalRuns)
	assert.Equal(t, int64(3), stats.UsersRefreshed)
	assert.Equal(t, int64(2), stats.UsersSkipped)
	assert.Equal(t, int64(1), stats.UsersFailed)
	assert.False(t, stats.LastRunAt.IsZero())
}

func TestRefreshJob_RunAll_ListError(t *testing.T) {
	job := newJob(newFakeRefresher(nil), staticUsers{err: errors.New("boom")}, nil, worker.RefreshConfig{})

	_, err := job.RunAll(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing users")
}

func TestRefreshJob_Concurrency(t *testing.T) {
	refresher := newFakeRefresher(nil)
	refresher.delay = 20 * time.Millisecond
	job := newJob(refresher, staticUsers{}, nil, worker.RefreshConfig{Concurrency: 3})

	result := job.Run(t.Context(), userIDs(9))

	assert.Equal(t, 9, result.Successful)
	assert.LessOrEqual(t, refresher.maxSeen.Load(), int32(3))
	assert.Greater(t, refresher.maxSeen.Load(), int32(1))
}

func TestRefreshJob_SingleFlight(t *testing.T) {
	refresher := newFakeRefresher(nil)
	refresher.delay = 100 * time.Millisecond
	job := newJob(refresher, staticUsers{ids: userIDs(2)}, nil, worker.RefreshConfig{Concurrency: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = job.RunAll(t.Context())
	}()

	require.Eventually(t, func() bool {
		return job.StatsSnapshot()["running"] == true
	}, time.Second, 5*time.Millisecond)

	_, err := job.RunAll(t.Context())
	assert.ErrorIs(t, err, worker.ErrRefreshInProgress)
	<-done

	_, err = job.RunAll(t.Context())
	assert.NoError(t, err)
}

func TestRefreshJob_Timeout(t *testing.T) {
	refresher := newFakeRefresher(nil)
	refresher.delay = time.Second
	job := newJob(refresher, staticUsers{}, nil, worker.RefreshConfig{Concurrency: 1, Timeout: 10 * time.Millisecond})

	result := job.Run(t.Context(), []string{"usr_slow"})

	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors[0].Error, context.DeadlineExceeded.Error())
}

func TestRefreshJob_Cancelled(t *testing.T) {
	refresher := newFakeRefresher(nil)
	job := newJob(refresher, staticUsers{}, nil, worker.RefreshConfig{Concurrency: 2})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	result := job.Run(ctx, userIDs(4))

	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, 0, refresher.count("usr_00"))
}

func TestRefreshJob_RateLimited(t *testing.T) {
	refresher := newFakeRefresher(nil)
	job := newJob(refresher, staticUsers{}, nil, worker.RefreshConfig{
		Concurrency:   4,
		RatePerSecond: 50,
		Burst:         1,
	})

	start := time.Now()
	result := job.Run(t.Context(), userIDs(6))

	assert.Equal(t, 6, result.Successful)
	// One token up front, five more at 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRefreshJob_RefreshUser(t *testing.T) {
	refresher := newFakeRefresher(map[string]error{
		"usr_gone":   user.ErrUserNotFound,
		"usr_broken": errors.New("boom"),
	})
	job := newJob(refresher, staticUsers{}, nil, worker.RefreshConfig{})

	assert.NoError(t, job.RefreshUser(t.Context(), "usr_ok"))
	assert.NoError(t, job.RefreshUser(t.Context(), "usr_gone"))
	assert.Error(t, job.RefreshUser(t.Context(), "usr_broken"))

	assert.Equal(t, int64(3), job.GetStats().SingleRefreshes)

	snapshot := job.StatsSnapshot()
	assert.Equal(t, int64(3), snapshot["single_refreshes"])
	assert.Equal(t, int64(0), snapshot["total_runs"])
	assert.Contains(t, snapshot, "last_run_duration")
}
