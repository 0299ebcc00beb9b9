package models

// Me represents the authenticated user's account summary.
type Me struct {
	UserID    string    `json:"userId"`
	Locale    string    `json:"locale"`
	CreatedAt Timestamp `json:"createdAt"`
}

// MeInput is the request body for updating user settings.
type MeInput struct {
	Locale *string `json:"locale,omitempty"`
}

// Profile represents the patient parameters used by simulations.
type Profile struct {
	WeightKG  float64   `json:"weightKg"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// ProfileInput is the request body for creating or updating a profile.
type ProfileInput struct {
	WeightKG float64 `json:"weightKg"`
}
