package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/levels"
)

// maxZoom bounds the zoom query parameter.
const maxZoom = 100.0

// LevelsHandler handles the concentration curve endpoints.
type LevelsHandler struct {
	levels *levels.Service
}

// NewLevelsHandler creates a new LevelsHandler.
func NewLevelsHandler(levelsService *levels.Service) *LevelsHandler {
	return &LevelsHandler{levels: levelsService}
}

// GetLevels handles GET /v1/me/levels - simulate the user's dose history.
// Query parameters: from, to (RFC 3339), stepMinutes, zoom.
func (h *LevelsHandler) GetLevels(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q, fieldErrs := levelsQuery(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	series, err := h.levels.UserLevels(r.Context(), userID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, series)
}

// GetSnapshot handles GET /v1/me/levels/snapshot - the cached summary
// computed by the worker.
func (h *LevelsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	snapshot, err := h.levels.GetSnapshot(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, snapshot)
}

// Simulate handles POST /v1/simulations - simulate doses sent in the
// request. Nothing is stored.
func (h *LevelsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req models.SimulationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	series, err := h.levels.Simulate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, series)
}

func levelsQuery(r *http.Request) (levels.Query, []models.FieldError) {
	var q levels.Query
	var fieldErrs []models.FieldError

	q.From, fieldErrs = queryTime(r, "from", fieldErrs)
	q.To, fieldErrs = queryTime(r, "to", fieldErrs)

	query := r.URL.Query()
	if v := query.Get("stepMinutes"); v != "" {
		step, err := strconv.Atoi(v)
		if err != nil || step < 1 {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   "stepMinutes",
				Message: "must be a positive integer",
				Code:    dosing.CodeInvalid,
			})
		} else {
			q.StepMinutes = &step
		}
	}
	if v := query.Get("zoom"); v != "" {
		zoom, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(zoom) || zoom < 1 || zoom > maxZoom {
			fieldErrs = append(fieldErrs, models.FieldError{
				Field:   "zoom",
				Message: "must be a number between 1 and 100",
				Code:    dosing.CodeInvalid,
			})
		} else {
			q.Zoom = zoom
		}
	}
	return q, fieldErrs
}
