package models

// RouteInfo describes an administration route.
type RouteInfo struct {
	Key       string   `json:"key"`
	Beta      bool     `json:"beta"`
	Inert     bool     `json:"inert"`
	Enabled   bool     `json:"enabled"`
	Compounds []string `json:"compounds"`
}

// CompoundInfo describes a compound.
type CompoundInfo struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Convertible   bool     `json:"convertible"`
	PotencyFactor *float64 `json:"potencyFactor,omitempty"`
}

// Enums represents the enum values used by the API.
type Enums struct {
	Routes          []RouteInfo      `json:"routes"`
	Compounds       []CompoundInfo   `json:"compounds"`
	PatchModes      []string         `json:"patchModes"`
	SublingualTiers []SublingualTier `json:"sublingualTiers"`
	HoldMinutes     [2]float64       `json:"holdMinutesRange"`
}

// FieldPolicy tells a form which dose quantities apply to a route/compound
// pair. Raw and E2 are one of "hidden", "editable" or "derived".
type FieldPolicy struct {
	Route     string `json:"route"`
	Compound  string `json:"compound"`
	Raw       string `json:"rawMass"`
	E2        string `json:"e2Mass"`
	PatchMode bool   `json:"patchMode"`
	Inert     bool   `json:"inert"`
	Beta      bool   `json:"beta"`
	Supported bool   `json:"supported"`
}

// FieldPolicyList is the response of the field policy endpoint.
type FieldPolicyList struct {
	Items []FieldPolicy `json:"items"`
}
