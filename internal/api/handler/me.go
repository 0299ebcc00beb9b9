package handler

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/auth"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// MeHandler handles the account and profile endpoints.
type MeHandler struct {
	users  *user.Service
	doses  *dosing.Service
	levels *levels.Service
	auth   *auth.Service
}

// MeHandlerConfig holds the services used by MeHandler.
type MeHandlerConfig struct {
	Users  *user.Service
	Doses  *dosing.Service
	Levels *levels.Service
	Auth   *auth.Service
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(cfg MeHandlerConfig) *MeHandler {
	return &MeHandler{
		users:  cfg.Users,
		doses:  cfg.Doses,
		levels: cfg.Levels,
		auth:   cfg.Auth,
	}
}

// GetMe handles GET /v1/me - get the account summary.
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	me, err := h.users.GetMe(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, me)
}

// UpdateMe handles PUT /v1/me - update account settings.
func (h *MeHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.MeInput
	if !decodeJSON(w, r, &input) {
		return
	}

	me, err := h.users.UpdateMe(r.Context(), userID, &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, me)
}

// DeleteMe handles DELETE /v1/me - erase the account and all of its data.
// Doses go first so that a failure part way leaves an account the user can
// retry the deletion with.
func (h *MeHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	deleted, err := h.doses.DeleteAll(ctx, userID)
	if err != nil {
		writeError(w, r, fmt.Errorf("deleting doses: %w", err))
		return
	}
	if err := h.levels.DeleteSnapshot(ctx, userID); err != nil {
		writeError(w, r, fmt.Errorf("deleting snapshot: %w", err))
		return
	}
	if err := h.users.DeleteUser(ctx, userID); err != nil {
		writeError(w, r, fmt.Errorf("deleting user: %w", err))
		return
	}
	if err := h.auth.DeleteAccount(ctx, userID); err != nil {
		writeError(w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().Int("doses", deleted).Msg("account erased")
	response.NoContent(w, r)
}

// GetProfile handles GET /v1/me/profile - get the simulation profile.
func (h *MeHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, profile)
}

// UpsertProfile handles PUT /v1/me/profile - set the body weight.
func (h *MeHandler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.ProfileInput
	if !decodeJSON(w, r, &input) {
		return
	}

	profile, err := h.users.UpsertProfile(r.Context(), userID, &input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, profile)
}
