// Package worker runs background level snapshot jobs for hrtlevels.
package worker

import (
	"time"
)

// Job types carried in job messages.
const (
	JobSnapshotRefresh    = "snapshot_refresh"
	JobSnapshotRefreshAll = "snapshot_refresh_all"
)

// RefreshConfig holds configuration for the snapshot refresh job.
type RefreshConfig struct {
	// Concurrency is the number of users refreshed at once.
	// Default: 4
	Concurrency int

	// Timeout bounds the refresh of a single user.
	// Default: 10 seconds
	Timeout time.Duration

	// RatePerSecond caps refreshes per second across workers.
	// Zero or less disables the cap.
	// Default: 20
	RatePerSecond float64

	// Burst is the number of refreshes allowed back to back.
	// Default: Concurrency
	Burst int64
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency:   4,
		Timeout:       10 * time.Second,
		RatePerSecond: 20,
		Burst:         4,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Burst <= 0 {
		c.Burst = int64(c.Concurrency)
	}
	return c
}

// SchedulerConfig holds configuration for the periodic refresh.
type SchedulerConfig struct {
	// Interval between full refreshes.
	// Default: 15 minutes
	Interval time.Duration

	// RunOnStart triggers a refresh as soon as the scheduler starts.
	RunOnStart bool
}
