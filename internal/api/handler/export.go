package handler

import (
	"net/http"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/export"
)

// ExportHandler handles encrypted backup and restore.
type ExportHandler struct {
	service *export.Service
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service *export.Service) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export handles POST /v1/me/export - seal the caller's profile and doses
// with a generated password.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Export(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Import handles POST /v1/me/import - restore a sealed export.
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Import(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}
