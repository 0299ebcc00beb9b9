// Package levels turns dose histories into concentration curves and keeps
// the per-user level snapshots refreshed by the worker.
package levels

import (
	"time"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// Snapshot is the level summary of one user at ComputedAt.
type Snapshot struct {
	ID           string
	UserID       string
	ComputedAt   time.Time
	CurrentPgML  float64
	PeakPgML     float64
	PeakAt       time.Time
	TroughPgML   float64
	TroughAt     time.Time
	HorizonHours float64
	DoseCount    int
}

// ToAPI converts the snapshot to its API form.
func (s *Snapshot) ToAPI() *models.LevelSnapshot {
	return &models.LevelSnapshot{
		ComputedAt:   models.Timestamp(s.ComputedAt),
		CurrentPgML:  s.CurrentPgML,
		PeakPgML:     s.PeakPgML,
		PeakAt:       models.Timestamp(s.PeakAt),
		TroughPgML:   s.TroughPgML,
		TroughAt:     models.Timestamp(s.TroughAt),
		HorizonHours: s.HorizonHours,
		DoseCount:    s.DoseCount,
	}
}

// Query selects the window of a user's level curve. Zero values fall back
// to the default window, step and zoom.
type Query struct {
	From        *time.Time
	To          *time.Time
	StepMinutes *int
	Zoom        float64
}
