package pk

import "math"

// Model constants. Rates are per hour.
const (
	// VdPerKg is the apparent volume of distribution of estradiol in L/kg.
	VdPerKg = 35.0

	// mg/L to pg/mL.
	mgPerLToPgPerML = 1e6

	// KePatch is the elimination rate used for transdermal delivery.
	KePatch = 0.03
)

// absorption holds first-order absorption and elimination parameters.
type absorption struct {
	ka float64
	ke float64
	f  float64
}

var (
	injectionParams = map[Compound]absorption{
		Estradiol:         {ka: 0.5, ke: 0.046, f: 1},
		EstradiolValerate: {ka: 0.032, ke: 0.046, f: 1},
	}

	oralParams = absorption{ka: 0.32, ke: 0.08, f: 0.10}

	// Fast path shares ke with the oral path so any theta mix stays unimodal.
	sublingualFastParams = absorption{ka: 1.8, ke: 0.08, f: 0.25}
)

// volume returns the distribution volume in litres.
func volume(weightKG float64) float64 {
	return VdPerKg * weightKG
}

// bateman is the one-compartment first-order absorption curve for a single
// dose, in pg/mL.
func bateman(doseMg float64, p absorption, vdL, t float64) float64 {
	if t < 0 || doseMg == 0 {
		return 0
	}
	var c float64
	if math.Abs(p.ka-p.ke) < 1e-9*math.Max(p.ka, p.ke) {
		c = doseMg * p.f * p.ka / vdL * t * math.Exp(-p.ka*t)
	} else {
		c = doseMg * p.f * p.ka / (vdL * (p.ka - p.ke)) * (math.Exp(-p.ke*t) - math.Exp(-p.ka*t))
	}
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	return c * mgPerLToPgPerML
}

// infusion is a zero-order input of rateMgPerH for wearH hours followed by
// first-order decay, in pg/mL.
func infusion(rateMgPerH, wearH, ke, vdL, t float64) float64 {
	if t < 0 || rateMgPerH == 0 {
		return 0
	}
	css := rateMgPerH / (vdL * ke)
	var c float64
	if t <= wearH {
		c = -css * math.Expm1(-ke*t)
	} else {
		c = -css * math.Expm1(-ke*wearH) * math.Exp(-ke*(t-wearH))
	}
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	return c * mgPerLToPgPerML
}

// Contribution returns the concentration in pg/mL contributed by d at
// absolute time t for a patient of the given weight. It is zero before the
// dose and for routes or compounds that do not produce estradiol.
func Contribution(d DoseEvent, weightKG, t float64) float64 {
	dt := t - d.timeH
	if dt < 0 || weightKG <= 0 {
		return 0
	}
	if d.compound == CyproteroneAcetate || d.route.Inert() {
		return 0
	}
	vd := volume(weightKG)

	switch d.route {
	case Injection:
		p, ok := injectionParams[d.compound]
		if !ok {
			return 0
		}
		return bateman(d.massMg, p, vd, dt)
	case Oral:
		return bateman(d.massMg, oralParams, vd, dt)
	case Sublingual:
		fast := bateman(d.massMg, sublingualFastParams, vd, dt)
		slow := bateman(d.massMg, oralParams, vd, dt)
		return d.theta*fast + (1-d.theta)*slow
	case Patch:
		return infusion(d.patchRateMgPerH, d.patchWearH, KePatch, vd, dt)
	}
	return 0
}
