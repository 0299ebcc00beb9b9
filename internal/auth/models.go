// Package auth issues and validates the tokens of anonymous accounts.
//
// An account carries no identity beyond its ID. The refresh token held by
// the client is the only credential; losing it means losing access, which
// is why the export envelope exists.
package auth

import "time"

// Account is an anonymous account.
type Account struct {
	ID         string    `json:"userId"`
	Locale     string    `json:"locale"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// RegisterRequest is the request body for anonymous registration.
type RegisterRequest struct {
	// Locale is a BCP 47 tag. Empty uses the service default.
	Locale string `json:"locale,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TokenResponse is returned after registration and refresh.
type TokenResponse struct {
	// AccessToken is the JWT access token for API authentication.
	AccessToken string `json:"accessToken"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// ExpiresIn is the number of seconds until the access token expires.
	ExpiresIn int64 `json:"expiresIn"`

	// RefreshToken is the opaque token used to obtain new access tokens.
	RefreshToken string `json:"refreshToken,omitempty"`

	Account *Account `json:"account"`
}

// RefreshTokenRequest represents the request to refresh an access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate validates the refresh token request.
func (r *RefreshTokenRequest) Validate() []FieldError {
	var errors []FieldError

	if r.RefreshToken == "" {
		errors = append(errors, FieldError{
			Field:   "refreshToken",
			Message: "refresh token is required",
			Code:    "required",
		})
	}

	return errors
}
