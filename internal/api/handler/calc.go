package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/api/response"
	"github.com/hrtlevels/hrtlevels/internal/doseio"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// CalcHandler serves the stateless conversion helpers used by dose forms.
type CalcHandler struct{}

// NewCalcHandler creates a new CalcHandler.
func NewCalcHandler() *CalcHandler {
	return &CalcHandler{}
}

// ConvertE2 handles GET /v1/conversions/e2 - convert between a compound
// mass and its estradiol equivalent. Query: compound and exactly one of
// rawMg or e2Mg.
func (h *CalcHandler) ConvertE2(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	compound, err := pk.ParseCompound(doseio.NormalizeCompound(query.Get("compound")))
	if err != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: "compound", Message: "must be a known compound code", Code: dosing.CodeInvalid},
		})
		return
	}

	raw, hasRaw, rawErr := queryMass(r, "rawMg")
	e2, hasE2, e2Err := queryMass(r, "e2Mg")
	var fieldErrs []models.FieldError
	for _, fe := range []*models.FieldError{rawErr, e2Err} {
		if fe != nil {
			fieldErrs = append(fieldErrs, *fe)
		}
	}
	if len(fieldErrs) == 0 && hasRaw == hasE2 {
		fieldErrs = append(fieldErrs, models.FieldError{
			Field:   "rawMg",
			Message: "exactly one of rawMg and e2Mg is required",
			Code:    dosing.CodeRequired,
		})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	factor, err := pk.PotencyFactor(compound)
	if err != nil {
		if errors.Is(err, pk.ErrNotConvertible) {
			response.Unprocessable(w, r, "compound has no estradiol equivalent", []models.FieldError{
				{Field: "compound", Message: err.Error(), Code: dosing.CodeUnsupported},
			})
			return
		}
		writeError(w, r, err)
		return
	}

	out := models.Conversion{Compound: string(compound), PotencyFactor: factor}
	if hasRaw {
		out.RawMassMg = raw
		out.E2MassMg, err = pk.ToE2Equivalent(compound, raw)
	} else {
		out.E2MassMg = e2
		out.RawMassMg, err = pk.FromE2Equivalent(compound, e2)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

// ListSublingualTiers handles GET /v1/sublingual/tiers - the hold-time
// presets.
func (h *CalcHandler) ListSublingualTiers(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, sublingualTiers())
}

// ConvertTheta handles GET /v1/sublingual/theta - convert between a hold
// time and the absorption split. Query: exactly one of holdMinutes or
// theta. Out-of-range inputs are clamped and flagged.
func (h *CalcHandler) ConvertTheta(w http.ResponseWriter, r *http.Request) {
	hold, hasHold, holdErr := queryFloat(r, "holdMinutes")
	theta, hasTheta, thetaErr := queryFloat(r, "theta")
	var fieldErrs []models.FieldError
	for _, fe := range []*models.FieldError{holdErr, thetaErr} {
		if fe != nil {
			fieldErrs = append(fieldErrs, *fe)
		}
	}
	if len(fieldErrs) == 0 && hasHold == hasTheta {
		fieldErrs = append(fieldErrs, models.FieldError{
			Field:   "holdMinutes",
			Message: "exactly one of holdMinutes and theta is required",
			Code:    dosing.CodeRequired,
		})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	out := models.ThetaConversion{ThetaMin: pk.ThetaMin(), ThetaMax: pk.ThetaMax()}
	if hasHold {
		out.Theta = pk.ThetaFromHold(hold)
		out.HoldMinutes = pk.HoldFromTheta(out.Theta)
		out.Clamped = hold < pk.MinHoldMinutes || hold > pk.MaxHoldMinutes
	} else {
		out.HoldMinutes = pk.HoldFromTheta(theta)
		out.Theta = pk.ThetaFromHold(out.HoldMinutes)
		out.Clamped = theta < out.ThetaMin || theta > out.ThetaMax
	}
	response.JSON(w, r, http.StatusOK, out)
}

// sublingualTiers returns the presets in API form.
func sublingualTiers() []models.SublingualTier {
	tiers := pk.SublingualTiers()
	out := make([]models.SublingualTier, len(tiers))
	for i, t := range tiers {
		out[i] = models.SublingualTier{
			Key:         t.Key,
			Label:       t.Label,
			HoldMinutes: t.HoldMinutes,
			Theta:       t.Theta(),
			Default:     t.Key == pk.DefaultSublingualTier,
		}
	}
	return out
}

// queryFloat parses an optional finite number from the query string.
func queryFloat(r *http.Request, name string) (v float64, present bool, fieldErr *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, true, &models.FieldError{Field: name, Message: "must be a finite number", Code: dosing.CodeInvalid}
	}
	return v, true, nil
}

// queryMass is queryFloat restricted to non-negative values.
func queryMass(r *http.Request, name string) (v float64, present bool, fieldErr *models.FieldError) {
	v, present, fieldErr = queryFloat(r, name)
	if fieldErr == nil && v < 0 {
		return 0, true, &models.FieldError{Field: name, Message: "must be a non-negative number", Code: dosing.CodeInvalid}
	}
	return v, present, fieldErr
}
