package pk

import (
	"math"
	"sort"
)

// Profile holds the patient parameters used by the kinetics.
type Profile struct {
	WeightKG float64
}

// Validate checks that the weight is a positive finite number.
func (p Profile) Validate() error {
	if math.IsNaN(p.WeightKG) || math.IsInf(p.WeightKG, 0) || p.WeightKG <= 0 {
		return invalid("weight", "must be greater than zero")
	}
	return nil
}

// Result is a sampled concentration curve. TimeH and ConcPGmL have equal
// length.
type Result struct {
	TimeH    []float64
	ConcPGmL []float64
}

// Len returns the number of samples.
func (r *Result) Len() int {
	return len(r.TimeH)
}

// Peak returns the sample with the highest concentration. ok is false for an
// empty result.
func (r *Result) Peak() (timeH, conc float64, ok bool) {
	if r.Len() == 0 {
		return 0, 0, false
	}
	idx := 0
	for i, c := range r.ConcPGmL {
		if c > r.ConcPGmL[idx] {
			idx = i
		}
	}
	return r.TimeH[idx], r.ConcPGmL[idx], true
}

// Trough returns the sample with the lowest concentration.
func (r *Result) Trough() (timeH, conc float64, ok bool) {
	if r.Len() == 0 {
		return 0, 0, false
	}
	idx := 0
	for i, c := range r.ConcPGmL {
		if c < r.ConcPGmL[idx] {
			idx = i
		}
	}
	return r.TimeH[idx], r.ConcPGmL[idx], true
}

// Simulate samples the summed concentration of doses at sampleTimes.
// Sample times must be finite, non-negative and strictly increasing. An
// empty dose collection yields an all-zero curve.
func Simulate(doses []DoseEvent, profile Profile, sampleTimes []float64) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := validateSamples(sampleTimes); err != nil {
		return nil, err
	}
	for i, d := range doses {
		if err := d.Validate(); err != nil {
			return nil, atDose(err, i)
		}
	}

	ordered := make([]DoseEvent, len(doses))
	copy(ordered, doses)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].timeH < ordered[j].timeH })

	res := &Result{
		TimeH:    make([]float64, len(sampleTimes)),
		ConcPGmL: make([]float64, len(sampleTimes)),
	}
	copy(res.TimeH, sampleTimes)

	for i, t := range sampleTimes {
		var sum float64
		for _, d := range ordered {
			if d.timeH > t {
				break
			}
			sum += Contribution(d, profile.WeightKG, t)
		}
		res.ConcPGmL[i] = sum
	}
	return res, nil
}

func validateSamples(ts []float64) error {
	for i, t := range ts {
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return invalid("sampleTimes", "sample %d must be a finite, non-negative hour", i)
		}
		if i > 0 && t <= ts[i-1] {
			return invalid("sampleTimes", "sample %d is not strictly after sample %d", i, i-1)
		}
	}
	return nil
}
