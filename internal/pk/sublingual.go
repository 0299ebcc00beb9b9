package pk

import (
	"math"
	"strings"
)

// Hold-time domain for the sublingual model, in minutes.
const (
	MinHoldMinutes = 1.0
	MaxHoldMinutes = 60.0
)

// thetaTau is the time constant of the hold-to-theta saturation curve.
const thetaTau = 80.0

// SublingualTier is a named hold-time preset.
type SublingualTier struct {
	Key         string
	Label       string
	HoldMinutes float64
}

// Theta returns the absorption split for the tier.
func (t SublingualTier) Theta() float64 {
	return ThetaFromHold(t.HoldMinutes)
}

// DefaultSublingualTier is used when a sublingual dose names no tier, theta
// or hold time.
const DefaultSublingualTier = "standard"

var sublingualTiers = []SublingualTier{
	{Key: "quick", Label: "Quick", HoldMinutes: 2},
	{Key: "casual", Label: "Casual", HoldMinutes: 5},
	{Key: "standard", Label: "Standard", HoldMinutes: 10},
	{Key: "strict", Label: "Strict", HoldMinutes: 15},
}

// SublingualTiers returns the presets ordered by hold time.
func SublingualTiers() []SublingualTier {
	out := make([]SublingualTier, len(sublingualTiers))
	copy(out, sublingualTiers)
	return out
}

// TierByKey looks up a preset, ignoring case.
func TierByKey(key string) (SublingualTier, bool) {
	for _, t := range sublingualTiers {
		if strings.EqualFold(t.Key, strings.TrimSpace(key)) {
			return t, true
		}
	}
	return SublingualTier{}, false
}

// ThetaMin is the absorption split at the shortest hold time.
func ThetaMin() float64 { return theta(MinHoldMinutes) }

// ThetaMax is the absorption split at the longest hold time.
func ThetaMax() float64 { return theta(MaxHoldMinutes) }

func theta(h float64) float64 {
	return -math.Expm1(-h / thetaTau)
}

// ThetaFromHold maps a hold time in minutes to the fraction absorbed via the
// fast sublingual path. Inputs outside [1,60] are clamped; NaN maps to the
// minimum.
func ThetaFromHold(holdMinutes float64) float64 {
	return theta(clamp(holdMinutes, MinHoldMinutes, MaxHoldMinutes))
}

// HoldFromTheta is the inverse of ThetaFromHold. Inputs outside
// [ThetaMin, ThetaMax] are clamped; NaN maps to the minimum hold.
func HoldFromTheta(th float64) float64 {
	th = clamp(th, ThetaMin(), ThetaMax())
	h := -thetaTau * math.Log1p(-th)
	return clamp(h, MinHoldMinutes, MaxHoldMinutes)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
