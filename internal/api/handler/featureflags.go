package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag administration.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/admin/flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.List(r.Context()))
}

// UpsertFeatureFlags handles PUT /v1/admin/flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Reason == "" {
		response.BadRequest(w, r, "invalid request body", []models.FieldError{
			{Field: "reason", Message: "is required", Code: dosing.CodeRequired},
		})
		return
	}

	err := h.service.Apply(r.Context(), req)
	var updateErr *featureflags.UpdateError
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, h.service.List(r.Context()))
	case errors.As(err, &updateErr):
		response.BadRequest(w, r, "invalid flag update", []models.FieldError{{
			Field:   fmt.Sprintf("updates[%d]", updateErr.Index),
			Message: updateErr.Err.Error(),
			Code:    dosing.CodeInvalid,
		}})
	case errors.Is(err, featureflags.ErrInvalidValue):
		response.BadRequest(w, r, "invalid flag update", []models.FieldError{
			{Field: "updates", Message: "must not be empty", Code: dosing.CodeRequired},
		})
	default:
		writeError(w, r, err)
	}
}

// ResetFeatureFlag handles DELETE /v1/admin/flags/{key} - restore the
// default value of a flag.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	err := h.service.Reset(r.Context(), chi.URLParam(r, "key"))
	switch {
	case err == nil:
		response.NoContent(w, r)
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.NotFound(w, r, "feature flag not found")
	default:
		writeError(w, r, err)
	}
}

// InvalidateCache handles POST /v1/admin/flags/invalidate - drop cached
// flag values.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
