// Package handler provides the HTTP handlers of the hrtlevels API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/middleware"
	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/auth"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/export"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/pk"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// maxJSONBody bounds JSON request bodies. An import of MaxImportDoses
// doses fits comfortably.
const maxJSONBody = 2 << 20

// decodeJSON decodes the request body into dst. It writes the error
// response and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, r, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// requireUser returns the authenticated user ID, writing a 401 when the
// route was mounted without the auth middleware.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return "", false
	}
	return userID, true
}

// writeError maps a service error onto a problem response. Errors that are
// not recognised are logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		doseErr   *dosing.ValidationError
		userErr   *user.ValidationError
		exportErr *export.ValidationError
		pkErr     *pk.Error
	)
	switch {
	case errors.As(err, &doseErr):
		writeValidation(w, r, doseErr.Errors, doseErr.Unsupported)
	case errors.As(err, &userErr):
		response.BadRequest(w, r, "validation error", userErr.Errors)
	case errors.As(err, &exportErr):
		response.BadRequest(w, r, "validation error", exportErr.Errors)
	case errors.As(err, &pkErr):
		fieldErrs, unsupported := dosing.FieldErrors(err, "")
		writeValidation(w, r, fieldErrs, unsupported)

	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, auth.ErrAccountNotFound):
		response.NotFound(w, r, "account not found")
	case errors.Is(err, user.ErrProfileNotFound):
		response.NotFound(w, r, "profile not found: set a body weight first")
	case errors.Is(err, dosing.ErrDoseNotFound):
		response.NotFound(w, r, "dose not found")
	case errors.Is(err, levels.ErrSnapshotNotFound):
		response.NotFound(w, r, "no level snapshot has been computed yet")
	case errors.Is(err, dosing.ErrInvalidCursor):
		response.BadRequest(w, r, "invalid cursor", []models.FieldError{
			{Field: "cursor", Message: "does not name a dose of this account", Code: dosing.CodeInvalid},
		})

	case errors.Is(err, export.ErrWrongPassword):
		response.BadRequest(w, r, "the export could not be decrypted", []models.FieldError{
			{Field: "password", Message: "wrong password or corrupted export", Code: dosing.CodeInvalid},
		})
	case errors.Is(err, export.ErrUnsupportedVersion), errors.Is(err, export.ErrMalformedEnvelope):
		response.BadRequest(w, r, "the export could not be read", []models.FieldError{
			{Field: "export", Message: err.Error(), Code: dosing.CodeInvalid},
		})

	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, context.DeadlineExceeded):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("dependency unavailable")
		response.ServiceUnavailable(w, r, "a dependency is temporarily unavailable")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		response.InternalError(w, r, "internal server error")
	}
}

// writeValidation writes 422 for unsupported configurations and 400 for
// everything else.
func writeValidation(w http.ResponseWriter, r *http.Request, fieldErrs []models.FieldError, unsupported bool) {
	if unsupported {
		response.Unprocessable(w, r, "unsupported route and compound configuration", fieldErrs)
		return
	}
	response.BadRequest(w, r, "validation error", fieldErrs)
}
