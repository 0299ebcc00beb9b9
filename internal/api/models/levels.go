package models

// ConcentrationUnit is the unit of every concentration in the API.
const ConcentrationUnit = "pg/mL"

// SimulationRequest is the request body for a stateless simulation.
// Either SampleHours or a window (From/To, or the default window) is used.
type SimulationRequest struct {
	WeightKG       float64     `json:"weightKg"`
	Doses          []DoseInput `json:"doses"`
	From           *Timestamp  `json:"from,omitempty"`
	To             *Timestamp  `json:"to,omitempty"`
	Now            *Timestamp  `json:"now,omitempty"`
	StepMinutes    *int        `json:"stepMinutes,omitempty"`
	LookAheadHours *float64    `json:"lookAheadHours,omitempty"`
	SampleHours    []float64   `json:"sampleHours,omitempty"`
}

// LevelPoint is a single concentration sample.
type LevelPoint struct {
	Time  Timestamp `json:"time"`
	Hours float64   `json:"hours"`
	PgML  float64   `json:"pgPerMl"`
}

// TimeRange is a closed time interval.
type TimeRange struct {
	From Timestamp `json:"from"`
	To   Timestamp `json:"to"`
}

// LevelSeries is a simulated concentration curve. Hours are relative to
// Reference; Hours and Concentrations have equal length.
type LevelSeries struct {
	Reference      Timestamp   `json:"reference"`
	Unit           string      `json:"unit"`
	Hours          []float64   `json:"hours"`
	Concentrations []float64   `json:"concentrations"`
	Peak           *LevelPoint `json:"peak,omitempty"`
	Trough         *LevelPoint `json:"trough,omitempty"`
	Current        *LevelPoint `json:"current,omitempty"`
	Window         TimeRange   `json:"window"`
	Display        *TimeRange  `json:"display,omitempty"`
	DoseCount      int         `json:"doseCount"`
}

// LevelSnapshot is the cached summary computed by the worker: the level at
// ComputedAt and the extremes projected over the following HorizonHours.
type LevelSnapshot struct {
	ComputedAt   Timestamp `json:"computedAt"`
	CurrentPgML  float64   `json:"currentPgPerMl"`
	PeakPgML     float64   `json:"peakPgPerMl"`
	PeakAt       Timestamp `json:"peakAt"`
	TroughPgML   float64   `json:"troughPgPerMl"`
	TroughAt     Timestamp `json:"troughAt"`
	HorizonHours float64   `json:"horizonHours"`
	DoseCount    int       `json:"doseCount"`
}

// Conversion is the response of the estradiol-equivalent conversion helper.
type Conversion struct {
	Compound      string  `json:"compound"`
	RawMassMg     float64 `json:"rawMassMg"`
	E2MassMg      float64 `json:"e2MassMg"`
	PotencyFactor float64 `json:"potencyFactor"`
}

// ThetaConversion is the response of the sublingual hold-time helper.
type ThetaConversion struct {
	HoldMinutes float64 `json:"holdMinutes"`
	Theta       float64 `json:"theta"`
	ThetaMin    float64 `json:"thetaMin"`
	ThetaMax    float64 `json:"thetaMax"`
	Clamped     bool    `json:"clamped"`
}

// SublingualTier is a named hold-time preset.
type SublingualTier struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	HoldMinutes float64 `json:"holdMinutes"`
	Theta       float64 `json:"theta"`
	Default     bool    `json:"default,omitempty"`
}
