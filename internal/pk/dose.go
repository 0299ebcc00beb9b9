package pk

import "math"

// PatchMode selects how a patch dose is specified.
type PatchMode string

// Patch modes.
const (
	PatchByDose PatchMode = "dose"
	PatchByRate PatchMode = "rate"
)

// DefaultPatchWearHours is the wear duration used when none is given.
const DefaultPatchWearHours = 84.0

// massTolerance is the relative tolerance when both masses are supplied.
const massTolerance = 1e-6

// DoseSpec is the user-facing description of a dose. Pointer fields are
// optional; NewDoseEvent rejects fields that do not apply to the route and
// compound.
type DoseSpec struct {
	TimeH    float64
	Route    Route
	Compound Compound

	RawMg *float64
	E2Mg  *float64

	SublingualTier string
	HoldMinutes    *float64
	Theta          *float64

	PatchMode         PatchMode
	PatchRateUGPerDay *float64
	PatchTotalMg      *float64
	PatchWearHours    *float64
}

// PatchParams describes a patch dose in both representations.
type PatchParams struct {
	Mode         PatchMode
	RateUGPerDay float64
	TotalMg      float64
	WearHours    float64
}

// DoseEvent is a validated, immutable dose. massMg is the normalized mass:
// estradiol equivalent for convertible compounds, raw mass otherwise. rawMg
// keeps the entered raw mass so esters rebuild without a round trip.
type DoseEvent struct {
	timeH    float64
	route    Route
	compound Compound
	massMg   float64
	rawMg    float64
	theta    float64

	patchMode       PatchMode
	patchAmount     float64
	patchWearH      float64
	patchRateMgPerH float64
}

// NewDoseEvent validates spec and builds a DoseEvent.
func NewDoseEvent(spec DoseSpec) (DoseEvent, error) {
	if math.IsNaN(spec.TimeH) || math.IsInf(spec.TimeH, 0) {
		return DoseEvent{}, invalid("time", "must be a finite instant")
	}
	if err := Supports(spec.Route, spec.Compound); err != nil {
		return DoseEvent{}, err
	}

	d := DoseEvent{
		timeH:    spec.TimeH,
		route:    spec.Route,
		compound: spec.Compound,
	}

	if spec.Route != Sublingual {
		if spec.SublingualTier != "" || spec.HoldMinutes != nil || spec.Theta != nil {
			return DoseEvent{}, invalid("theta", "sublingual parameters do not apply to the %s route", spec.Route)
		}
	}
	if spec.Route != Patch {
		if spec.PatchMode != "" || spec.PatchRateUGPerDay != nil || spec.PatchTotalMg != nil || spec.PatchWearHours != nil {
			return DoseEvent{}, invalid("patch", "patch parameters do not apply to the %s route", spec.Route)
		}
	}

	if spec.Route == Patch {
		if err := d.setPatch(spec); err != nil {
			return DoseEvent{}, err
		}
		return d, nil
	}

	raw, mass, err := normalizedMass(spec)
	if err != nil {
		return DoseEvent{}, err
	}
	d.rawMg = raw
	d.massMg = mass

	if spec.Route == Sublingual {
		th, err := sublingualTheta(spec)
		if err != nil {
			return DoseEvent{}, err
		}
		d.theta = th
	}
	return d, nil
}

func checkMass(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return invalid(field, "must be a finite, non-negative mass")
	}
	return nil
}

// normalizedMass returns the raw and normalized mass of spec. Estradiol is
// entered on either side; esters only as raw mass, their equivalent being
// derived.
func normalizedMass(spec DoseSpec) (raw, norm float64, err error) {
	if err := checkMass("rawMass", spec.RawMg); err != nil {
		return 0, 0, err
	}
	if err := checkMass("e2Mass", spec.E2Mg); err != nil {
		return 0, 0, err
	}

	switch {
	case !spec.Compound.Convertible():
		if spec.E2Mg != nil {
			return 0, 0, invalid("e2Mass", "%s has no estradiol equivalent", spec.Compound)
		}
		if spec.RawMg == nil {
			return 0, 0, invalid("rawMass", "required for %s", spec.Compound)
		}
		return *spec.RawMg, *spec.RawMg, nil
	case spec.Compound == Estradiol && spec.RawMg == nil:
		if spec.E2Mg == nil {
			return 0, 0, invalid("e2Mass", "required")
		}
		return *spec.E2Mg, *spec.E2Mg, nil
	case spec.RawMg == nil:
		if spec.E2Mg != nil {
			return 0, 0, invalid("e2Mass", "is derived for %s; give the raw mass", spec.Compound)
		}
		return 0, 0, invalid("rawMass", "required")
	}

	e2, err := ToE2Equivalent(spec.Compound, *spec.RawMg)
	if err != nil {
		return 0, 0, err
	}
	if spec.E2Mg != nil && !approxEqual(e2, *spec.E2Mg) {
		return 0, 0, invalid("e2Mass", "%.6g mg is inconsistent with raw mass %.6g mg of %s", *spec.E2Mg, *spec.RawMg, spec.Compound)
	}
	return *spec.RawMg, e2, nil
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= massTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func sublingualTheta(spec DoseSpec) (float64, error) {
	given := 0
	if spec.Theta != nil {
		given++
	}
	if spec.HoldMinutes != nil {
		given++
	}
	if spec.SublingualTier != "" {
		given++
	}
	if given > 1 {
		return 0, invalid("theta", "give only one of theta, hold time or tier")
	}

	switch {
	case spec.Theta != nil:
		th := *spec.Theta
		if math.IsNaN(th) || th < 0 || th > 1 {
			return 0, invalid("theta", "must be within [0,1]")
		}
		return th, nil
	case spec.HoldMinutes != nil:
		h := *spec.HoldMinutes
		if math.IsNaN(h) || h < MinHoldMinutes || h > MaxHoldMinutes {
			return 0, invalid("holdMinutes", "must be within [%g,%g] minutes", MinHoldMinutes, MaxHoldMinutes)
		}
		return ThetaFromHold(h), nil
	case spec.SublingualTier != "":
		t, ok := TierByKey(spec.SublingualTier)
		if !ok {
			return 0, invalid("sublingualTier", "unknown tier %q", spec.SublingualTier)
		}
		return t.Theta(), nil
	}
	t, _ := TierByKey(DefaultSublingualTier)
	return t.Theta(), nil
}

func (d *DoseEvent) setPatch(spec DoseSpec) error {
	if spec.RawMg != nil || spec.E2Mg != nil {
		return invalid("rawMass", "patch doses are given as a total dose or a delivery rate")
	}
	if err := checkMass("patchTotalMg", spec.PatchTotalMg); err != nil {
		return err
	}
	if err := checkMass("patchRate", spec.PatchRateUGPerDay); err != nil {
		return err
	}

	wear := DefaultPatchWearHours
	if spec.PatchWearHours != nil {
		wear = *spec.PatchWearHours
		if math.IsNaN(wear) || math.IsInf(wear, 0) || wear <= 0 {
			return invalid("patchWearHours", "must be a positive duration")
		}
	}

	mode := spec.PatchMode
	if mode == "" {
		if spec.PatchRateUGPerDay != nil {
			mode = PatchByRate
		} else {
			mode = PatchByDose
		}
	}

	switch mode {
	case PatchByDose:
		if spec.PatchRateUGPerDay != nil {
			return invalid("patchRate", "does not apply in dose mode")
		}
		if spec.PatchTotalMg == nil {
			return invalid("patchTotalMg", "required in dose mode")
		}
		d.patchAmount = *spec.PatchTotalMg
		d.patchRateMgPerH = d.patchAmount / wear
	case PatchByRate:
		if spec.PatchTotalMg != nil {
			return invalid("patchTotalMg", "does not apply in rate mode")
		}
		if spec.PatchRateUGPerDay == nil {
			return invalid("patchRate", "required in rate mode")
		}
		d.patchAmount = *spec.PatchRateUGPerDay
		d.patchRateMgPerH = d.patchAmount / 1000 / 24
	default:
		return invalid("patchMode", "unknown patch mode %q", string(mode))
	}

	d.patchMode = mode
	d.patchWearH = wear
	d.massMg = d.patchRateMgPerH * wear
	return nil
}

// Validate checks the invariants of d. Events built by NewDoseEvent always
// pass; the zero value does not.
func (d DoseEvent) Validate() error {
	if math.IsNaN(d.timeH) || math.IsInf(d.timeH, 0) {
		return invalid("time", "must be a finite instant")
	}
	if err := Supports(d.route, d.compound); err != nil {
		return err
	}
	if math.IsNaN(d.massMg) || d.massMg < 0 {
		return invalid("mass", "must be a finite, non-negative mass")
	}
	if math.IsNaN(d.theta) || d.theta < 0 || d.theta > 1 {
		return invalid("theta", "must be within [0,1]")
	}
	if d.route == Patch && (d.patchWearH <= 0 || math.IsNaN(d.patchWearH)) {
		return invalid("patchWearHours", "must be a positive duration")
	}
	return nil
}

// TimeH returns the administration time in hours.
func (d DoseEvent) TimeH() float64 { return d.timeH }

// Route returns the administration route.
func (d DoseEvent) Route() Route { return d.route }

// Compound returns the administered compound.
func (d DoseEvent) Compound() Compound { return d.compound }

// Theta returns the sublingual absorption split, zero for other routes.
func (d DoseEvent) Theta() float64 { return d.theta }

// E2EquivalentMass returns the estradiol-equivalent mass in mg. For patches
// it is the total mass delivered over the wear duration.
func (d DoseEvent) E2EquivalentMass() (float64, error) {
	if !d.compound.Convertible() {
		_, err := PotencyFactor(d.compound)
		return 0, err
	}
	return d.massMg, nil
}

// RawMass returns the administered mass of the compound in mg.
func (d DoseEvent) RawMass() (float64, error) {
	switch {
	case !d.compound.Convertible():
		return d.massMg, nil
	case d.route == Patch:
		return FromE2Equivalent(d.compound, d.massMg)
	}
	return d.rawMg, nil
}

// Patch returns the patch parameters; ok is false for other routes.
func (d DoseEvent) Patch() (PatchParams, bool) {
	if d.route != Patch {
		return PatchParams{}, false
	}
	p := PatchParams{Mode: d.patchMode, WearHours: d.patchWearH}
	if d.patchMode == PatchByRate {
		p.RateUGPerDay = d.patchAmount
		p.TotalMg = d.patchRateMgPerH * d.patchWearH
	} else {
		p.TotalMg = d.patchAmount
		p.RateUGPerDay = d.patchRateMgPerH * 1000 * 24
	}
	return p, true
}

// At returns a copy of d administered at timeH.
func (d DoseEvent) At(timeH float64) DoseEvent {
	d.timeH = timeH
	return d
}

// Spec returns the normalized spec that rebuilds d.
func (d DoseEvent) Spec() DoseSpec {
	s := DoseSpec{TimeH: d.timeH, Route: d.route, Compound: d.compound}
	switch {
	case d.route == Patch:
		wear, amount := d.patchWearH, d.patchAmount
		s.PatchMode = d.patchMode
		s.PatchWearHours = &wear
		if d.patchMode == PatchByRate {
			s.PatchRateUGPerDay = &amount
		} else {
			s.PatchTotalMg = &amount
		}
		return s
	case d.compound == Estradiol:
		m := d.massMg
		s.E2Mg = &m
	default:
		m := d.rawMg
		s.RawMg = &m
	}
	if d.route == Sublingual {
		th := d.theta
		s.Theta = &th
	}
	return s
}
