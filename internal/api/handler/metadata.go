package handler

import (
	"net/http"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// MetadataHandler serves the enums and field policies that drive dose forms.
type MetadataHandler struct {
	routes dosing.RouteGate
}

// NewMetadataHandler creates a new MetadataHandler. Route availability is
// read from routes on every request.
func NewMetadataHandler(routes dosing.RouteGate) *MetadataHandler {
	return &MetadataHandler{routes: routes}
}

// GetEnums handles GET /v1/metadata/enums - get enum values used by the API.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		PatchModes:      []string{string(pk.PatchByDose), string(pk.PatchByRate)},
		SublingualTiers: sublingualTiers(),
		HoldMinutes:     [2]float64{pk.MinHoldMinutes, pk.MaxHoldMinutes},
	}

	for _, route := range pk.Routes() {
		info := models.RouteInfo{
			Key:     string(route),
			Beta:    route.Beta(),
			Inert:   route.Inert(),
			Enabled: h.routes == nil || h.routes.RouteEnabled(r.Context(), route),
		}
		for _, c := range pk.SupportedCompounds(route) {
			info.Compounds = append(info.Compounds, string(c))
		}
		enums.Routes = append(enums.Routes, info)
	}

	for _, c := range pk.Compounds() {
		info := models.CompoundInfo{
			Code:        string(c),
			Name:        c.Name(),
			Convertible: c.Convertible(),
		}
		if factor, err := pk.PotencyFactor(c); err == nil {
			info.PotencyFactor = &factor
		}
		enums.Compounds = append(enums.Compounds, info)
	}

	response.JSON(w, r, http.StatusOK, enums)
}

// ListFieldPolicies handles GET /v1/metadata/field-policies - which mass
// fields a form shows for each route and compound.
func (h *MetadataHandler) ListFieldPolicies(w http.ResponseWriter, r *http.Request) {
	policies := pk.FieldPolicies()
	out := make([]models.FieldPolicy, len(policies))
	for i, p := range policies {
		out[i] = models.FieldPolicy{
			Route:     string(p.Route),
			Compound:  string(p.Compound),
			Raw:       string(p.Raw),
			E2:        string(p.E2),
			PatchMode: p.PatchMode,
			Inert:     p.Inert,
			Beta:      p.Beta,
			Supported: p.Supported,
		}
	}
	response.JSON(w, r, http.StatusOK, models.FieldPolicyList{Items: out})
}
