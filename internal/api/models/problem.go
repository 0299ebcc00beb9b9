package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, quoted by clients in bug reports.
	TraceID string `json:"traceId"`

	// Errors lists per-field failures. Dose fields are addressed as
	// doses[i].field so a client can highlight the offending row.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation       = "https://api.hrtlevels.app/problems/validation-error"
	ProblemTypeUnsupported      = "https://api.hrtlevels.app/problems/unsupported-configuration"
	ProblemTypeUnauthorized     = "https://api.hrtlevels.app/problems/unauthorized"
	ProblemTypeForbidden        = "https://api.hrtlevels.app/problems/forbidden"
	ProblemTypeNotFound         = "https://api.hrtlevels.app/problems/not-found"
	ProblemTypeTooLarge         = "https://api.hrtlevels.app/problems/payload-too-large"
	ProblemTypeUnsupportedMedia = "https://api.hrtlevels.app/problems/unsupported-media-type"
	ProblemTypeTooManyRequests  = "https://api.hrtlevels.app/problems/too-many-requests"
	ProblemTypeInternal         = "https://api.hrtlevels.app/problems/internal-error"
	ProblemTypeUnavailable      = "https://api.hrtlevels.app/problems/service-unavailable"
)

// NewProblem creates a Problem without detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

func newDetailed(problemType, title string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, title, status, traceID)
	p.Detail = detail
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 for malformed or invalid input.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newDetailed(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnprocessable is a 422 for valid input that names an unsupported
// route, compound or disabled feature.
func NewUnprocessable(traceID, detail string, errors []FieldError) *Problem {
	p := newDetailed(ProblemTypeUnsupported, "Unsupported configuration", http.StatusUnprocessableEntity, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized is a 401.
func NewUnauthorized(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

// NewForbidden is a 403.
func NewForbidden(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeForbidden, "Forbidden", http.StatusForbidden, traceID, detail)
}

// NewNotFound is a 404.
func NewNotFound(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

// NewMethodNotAllowed is a 405.
func NewMethodNotAllowed(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeNotFound, "Method not allowed", http.StatusMethodNotAllowed, traceID, detail)
}

// NewPayloadTooLarge is a 413.
func NewPayloadTooLarge(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeTooLarge, "Payload too large", http.StatusRequestEntityTooLarge, traceID, detail)
}

// NewTooManyRequests is a 429.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError is a 500.
func NewInternalError(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable is a 503.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newDetailed(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID, detail)
}
