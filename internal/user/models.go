// Package user provides account settings and the patient profile used by
// simulations.
//
// # PII Considerations
//
// Data Stored:
//   - UserID: Internal identifier (not PII, randomly generated)
//   - Locale: Language/region preference (e.g., "nl-NL")
//   - WeightKG: Body weight, used to scale the volume of distribution
//
// Data NOT Stored:
//   - Name, email, phone (accounts are anonymous)
//
// Dose history lives in the dosing package. Both are removed by DeleteUser
// callers and included in encrypted exports.
package user

import (
	"time"
)

// DefaultLocale is used when a client does not send one.
const DefaultLocale = "en-US"

// User represents a user's account and profile.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	// Locale is the user's preferred language/region (BCP 47 format).
	Locale string

	// Profile is nil until the user has entered their weight.
	Profile *Profile

	// CreatedAt is when the user was created.
	CreatedAt time.Time

	// UpdatedAt is when the user was last updated.
	UpdatedAt time.Time
}

// Profile holds the patient parameters for simulations.
type Profile struct {
	// WeightKG is body weight in kilograms.
	WeightKG float64

	// CreatedAt is when the profile was created.
	CreatedAt time.Time

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time
}

// DefaultUser returns a new user with default settings and no profile.
func DefaultUser(id string) *User {
	now := time.Now()
	return &User{
		ID:        id,
		Locale:    DefaultLocale,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
