// Package response writes JSON bodies and RFC 7807 problems for the API
// handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/middleware"
	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// JSON writes data as a JSON body with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "", data)
}

// Created writes a 201 with an optional Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusCreated, location, data)
}

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	correlate(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data any) {
	correlate(w, r)
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; all that is left is to record it.
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("encoding response body")
	}
}

// correlate echoes the request ID so clients can quote it in bug reports.
func correlate(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// Problem writes p with the request path as its instance.
func Problem(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	correlate(w, r)
	p.Instance = r.URL.Path
	p.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest writes a 400 listing the offending fields.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Problem(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// Unprocessable writes a 422 for a well-formed request that asks for an
// unsupported configuration.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Problem(w, r, models.NewUnprocessable(traceID(r), detail, errors))
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewUnauthorized(traceID(r), detail))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewNotFound(traceID(r), detail))
}

// MethodNotAllowed writes a 405 naming the rejected method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Problem(w, r, models.NewMethodNotAllowed(traceID(r), r.Method+" is not supported on this resource"))
}

// PayloadTooLarge writes a 413.
func PayloadTooLarge(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewPayloadTooLarge(traceID(r), detail))
}

// InternalError writes a 500. The detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewInternalError(traceID(r), detail))
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewServiceUnavailable(traceID(r), detail))
}
