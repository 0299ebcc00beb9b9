package models

// PatchDose describes a transdermal patch dose.
type PatchDose struct {
	Mode         string   `json:"mode,omitempty"`
	RateUGPerDay *float64 `json:"rateUgPerDay,omitempty"`
	TotalMg      *float64 `json:"totalMg,omitempty"`
	WearHours    *float64 `json:"wearHours,omitempty"`
}

// DoseInput is the request body for creating or replacing a dose, and the
// dose shape accepted by stateless simulations.
type DoseInput struct {
	AdministeredAt Timestamp  `json:"administeredAt"`
	Route          string     `json:"route"`
	Compound       string     `json:"compound"`
	RawMassMg      *float64   `json:"rawMassMg,omitempty"`
	E2MassMg       *float64   `json:"e2MassMg,omitempty"`
	SublingualTier *string    `json:"sublingualTier,omitempty"`
	HoldMinutes    *float64   `json:"holdMinutes,omitempty"`
	Theta          *float64   `json:"theta,omitempty"`
	Patch          *PatchDose `json:"patch,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// Dose represents a stored dose. Both masses are reported when the compound
// has an estradiol equivalent; the non-entered one is derived.
type Dose struct {
	ID             string     `json:"id"`
	AdministeredAt Timestamp  `json:"administeredAt"`
	Route          string     `json:"route"`
	Compound       string     `json:"compound"`
	RawMassMg      *float64   `json:"rawMassMg,omitempty"`
	E2MassMg       *float64   `json:"e2MassMg,omitempty"`
	SublingualTier *string    `json:"sublingualTier,omitempty"`
	HoldMinutes    *float64   `json:"holdMinutes,omitempty"`
	Theta          *float64   `json:"theta,omitempty"`
	Patch          *PatchDose `json:"patch,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedAt      Timestamp  `json:"createdAt"`
	UpdatedAt      Timestamp  `json:"updatedAt"`
}

// PagedDoses represents a paginated list of doses.
type PagedDoses struct {
	Items []Dose            `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// DoseImportResult summarises a bulk dose import.
type DoseImportResult struct {
	Imported int          `json:"imported"`
	Rejected int          `json:"rejected"`
	Errors   []FieldError `json:"errors,omitempty"`
}
