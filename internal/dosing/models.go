// Package dosing stores a user's dose history and converts API doses into
// validated pharmacokinetic events.
package dosing

import (
	"errors"
	"time"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Repository errors.
var (
	ErrDoseNotFound  = errors.New("dose not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Dose is a stored dose. MassMg is the entered side of the mass: the
// estradiol mass for estradiol and the raw mass for every other compound. SublingualTier and HoldMinutes record what the user entered;
// Theta is authoritative.
type Dose struct {
	ID             string
	UserID         string
	AdministeredAt time.Time
	Route          pk.Route
	Compound       pk.Compound

	MassMg float64

	Theta          *float64
	SublingualTier *string
	HoldMinutes    *float64

	// PatchAmount is mg in dose mode and µg/day in rate mode.
	PatchMode      pk.PatchMode
	PatchAmount    float64
	PatchWearHours float64

	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spec returns the normalized spec with time measured in hours from ref.
func (d *Dose) Spec(ref time.Time) pk.DoseSpec {
	spec := pk.DoseSpec{
		TimeH:    d.AdministeredAt.Sub(ref).Hours(),
		Route:    d.Route,
		Compound: d.Compound,
	}

	if d.Route == pk.Patch {
		amount, wear := d.PatchAmount, d.PatchWearHours
		spec.PatchMode = d.PatchMode
		spec.PatchWearHours = &wear
		if d.PatchMode == pk.PatchByRate {
			spec.PatchRateUGPerDay = &amount
		} else {
			spec.PatchTotalMg = &amount
		}
		return spec
	}

	mass := d.MassMg
	if d.Compound == pk.Estradiol {
		spec.E2Mg = &mass
	} else {
		spec.RawMg = &mass
	}
	if d.Route == pk.Sublingual && d.Theta != nil {
		theta := *d.Theta
		spec.Theta = &theta
	}
	return spec
}

// Event rebuilds the pharmacokinetic event with time measured from ref.
func (d *Dose) Event(ref time.Time) (pk.DoseEvent, error) {
	return pk.NewDoseEvent(d.Spec(ref))
}

// applyEvent copies the normalized quantities of ev into d.
func (d *Dose) applyEvent(ev pk.DoseEvent) {
	spec := ev.Spec()
	d.Route = ev.Route()
	d.Compound = ev.Compound()
	d.MassMg = 0
	d.Theta = nil
	d.PatchMode = ""
	d.PatchAmount = 0
	d.PatchWearHours = 0

	switch {
	case spec.PatchMode != "":
		d.PatchMode = spec.PatchMode
		d.PatchWearHours = *spec.PatchWearHours
		if spec.PatchRateUGPerDay != nil {
			d.PatchAmount = *spec.PatchRateUGPerDay
		} else {
			d.PatchAmount = *spec.PatchTotalMg
		}
	case spec.E2Mg != nil:
		d.MassMg = *spec.E2Mg
	case spec.RawMg != nil:
		d.MassMg = *spec.RawMg
	}
	if spec.Theta != nil {
		theta := *spec.Theta
		d.Theta = &theta
	}
}

func (d *Dose) clone() *Dose {
	cp := *d
	if d.Theta != nil {
		v := *d.Theta
		cp.Theta = &v
	}
	if d.SublingualTier != nil {
		v := *d.SublingualTier
		cp.SublingualTier = &v
	}
	if d.HoldMinutes != nil {
		v := *d.HoldMinutes
		cp.HoldMinutes = &v
	}
	if d.Notes != nil {
		v := *d.Notes
		cp.Notes = &v
	}
	return &cp
}
