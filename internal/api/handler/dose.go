package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/doseio"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
)

// DoseHandler handles the dose history endpoints.
type DoseHandler struct {
	doses *dosing.Service
}

// NewDoseHandler creates a new DoseHandler.
func NewDoseHandler(doses *dosing.Service) *DoseHandler {
	return &DoseHandler{doses: doses}
}

// ListDoses handles GET /v1/me/doses - list doses oldest first.
// Query parameters: limit, cursor, from, to (RFC 3339, to exclusive).
func (h *DoseHandler) ListDoses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	opts, fieldErrs := listOptions(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	page, err := h.doses.List(r.Context(), userID, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

// CreateDose handles POST /v1/me/doses - record a dose.
func (h *DoseHandler) CreateDose(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.DoseInput
	if !decodeJSON(w, r, &input) {
		return
	}

	dose, err := h.doses.Create(r.Context(), userID, &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/me/doses/"+dose.ID, dose)
}

// GetDose handles GET /v1/me/doses/{doseID} - get one dose.
func (h *DoseHandler) GetDose(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	dose, err := h.doses.Get(r.Context(), userID, chi.URLParam(r, "doseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, dose)
}

// UpdateDose handles PUT /v1/me/doses/{doseID} - replace a dose.
func (h *DoseHandler) UpdateDose(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.DoseInput
	if !decodeJSON(w, r, &input) {
		return
	}

	dose, err := h.doses.Update(r.Context(), userID, chi.URLParam(r, "doseID"), &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, dose)
}

// DeleteDose handles DELETE /v1/me/doses/{doseID} - delete a dose.
func (h *DoseHandler) DeleteDose(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.doses.Delete(r.Context(), userID, chi.URLParam(r, "doseID")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// ImportDoses handles POST /v1/me/doses:import - bulk import from a CSV
// or JSON document. Valid rows are stored; invalid ones are reported.
// Query parameters: filename (format hint), tz (zone of offset-less
// times, default UTC).
func (h *DoseHandler) ImportDoses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	format, err := doseio.DetectFormat(r.Header.Get("Content-Type"), query.Get("filename"))
	if err != nil {
		response.BadRequest(w, r, "unsupported import format", []models.FieldError{
			{Field: "Content-Type", Message: "must be text/csv or application/json", Code: dosing.CodeInvalid},
		})
		return
	}

	opts := doseio.Options{}
	if tz := query.Get("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "tz", Message: "must be an IANA time zone name", Code: dosing.CodeInvalid},
			})
			return
		}
		opts.Location = loc
	}

	inputs, err := doseio.Parse(r.Body, format, opts)
	if err != nil {
		var parseErr *doseio.ParseError
		switch {
		case errors.As(err, &parseErr):
			response.BadRequest(w, r, "the document could not be parsed", parseErr.Errors)
		case errors.Is(err, doseio.ErrTooLarge):
			response.PayloadTooLarge(w, r, fmt.Sprintf("imports are limited to %d bytes", doseio.MaxInputBytes))
		default:
			writeError(w, r, err)
		}
		return
	}

	result, err := h.doses.Import(r.Context(), userID, inputs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Imported > 0 && result.Rejected == 0 {
		status = http.StatusCreated
	}
	response.JSON(w, r, status, result)
}

// listOptions parses the dose listing query parameters.
func listOptions(r *http.Request) (dosing.ListOptions, []models.FieldError) {
	query := r.URL.Query()
	opts := dosing.ListOptions{Cursor: query.Get("cursor")}
	var fieldErrs []models.FieldError

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > dosing.MaxListLimit {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   "limit",
				Message: fmt.Sprintf("must be an integer between 1 and %d", dosing.MaxListLimit),
				Code:    dosing.CodeInvalid,
			})
		}
		opts.Limit = limit
	}

	var timeErrs []models.FieldError
	opts.From, timeErrs = queryTime(r, "from", timeErrs)
	opts.To, timeErrs = queryTime(r, "to", timeErrs)
	fieldErrs = append(fieldErrs, timeErrs...)

	if opts.From != nil && opts.To != nil && !opts.To.After(*opts.From) {
		fieldErrs = append(fieldErrs, models.FieldError{
			Field:   "to",
			Message: "must be after from",
			Code:    dosing.CodeInvalid,
		})
	}
	return opts, fieldErrs
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string, errs []models.FieldError) (*time.Time, []models.FieldError) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, errs
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, append(errs, models.FieldError{
			Field:   name,
			Message: "must be an RFC 3339 timestamp",
			Code:    dosing.CodeInvalid,
		})
	}
	return &t, errs
}
