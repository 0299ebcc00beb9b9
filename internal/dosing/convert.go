package dosing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Field error codes.
const (
	CodeInvalid       = "invalid"
	CodeRequired      = "required"
	CodeUnsupported   = "unsupported"
	CodeRouteDisabled = "route_disabled"
)

// ValidationError represents validation errors. Unsupported is set when at
// least one error is a well-formed but unsupported configuration, which is
// reported as 422 rather than 400.
type ValidationError struct {
	Errors      []models.FieldError
	Unsupported bool
}

func (e *ValidationError) Error() string {
	if e.Unsupported {
		return "unsupported configuration"
	}
	return "validation failed"
}

// Is matches pk.ErrUnsupported or pk.ErrInvalidInput depending on
// Unsupported.
func (e *ValidationError) Is(target error) bool {
	if e.Unsupported {
		return target == pk.ErrUnsupported
	}
	return target == pk.ErrInvalidInput
}

// apiFields maps core field names to request JSON paths.
var apiFields = map[string]string{
	"time":           "administeredAt",
	"route":          "route",
	"compound":       "compound",
	"rawMass":        "rawMassMg",
	"e2Mass":         "e2MassMg",
	"mass":           "rawMassMg",
	"theta":          "theta",
	"holdMinutes":    "holdMinutes",
	"sublingualTier": "sublingualTier",
	"patch":          "patch",
	"patchMode":      "patch.mode",
	"patchTotalMg":   "patch.totalMg",
	"patchRate":      "patch.rateUgPerDay",
	"patchWearHours": "patch.wearHours",
	"weight":         "weightKg",
	"sampleTimes":    "sampleHours",
	"window":         "to",
	"step":           "stepMinutes",
}

// APIField returns the request field path for a core field name.
func APIField(field string) string {
	if f, ok := apiFields[field]; ok {
		return f
	}
	return field
}

// FieldErrors converts an error from the pk package into field errors. The
// prefix is prepended to field paths; a dose index on the error adds
// "doses[i]." when prefix is empty. unsupported reports whether the error
// is an unsupported configuration.
func FieldErrors(err error, prefix string) (errs []models.FieldError, unsupported bool) {
	var pe *pk.Error
	if !errors.As(err, &pe) {
		return []models.FieldError{{Field: strings.TrimSuffix(prefix, "."), Message: err.Error(), Code: CodeInvalid}}, false
	}

	if prefix == "" && pe.DoseIndex >= 0 {
		prefix = fmt.Sprintf("doses[%d].", pe.DoseIndex)
	}

	code := CodeInvalid
	unsupported = errors.Is(err, pk.ErrUnsupported)
	if unsupported {
		code = CodeUnsupported
	}

	field := strings.TrimSuffix(prefix+APIField(pe.Field), ".")
	return []models.FieldError{{Field: field, Message: pe.Message, Code: code}}, unsupported
}

// EventFromInput validates an API dose and converts it to an event with
// time measured in hours from ref. Errors are *ValidationError with field
// paths under prefix.
func EventFromInput(in *models.DoseInput, ref time.Time, prefix string) (pk.DoseEvent, error) {
	if in.AdministeredAt.Time().IsZero() {
		return pk.DoseEvent{}, &ValidationError{Errors: []models.FieldError{
			{Field: prefix + "administeredAt", Message: "is required", Code: CodeRequired},
		}}
	}

	spec, err := specFromInput(in, ref)
	if err == nil {
		var ev pk.DoseEvent
		ev, err = pk.NewDoseEvent(spec)
		if err == nil {
			return ev, nil
		}
	}

	fieldErrs, unsupported := FieldErrors(err, prefix)
	return pk.DoseEvent{}, &ValidationError{Errors: fieldErrs, Unsupported: unsupported}
}

func specFromInput(in *models.DoseInput, ref time.Time) (pk.DoseSpec, error) {
	route, err := pk.ParseRoute(in.Route)
	if err != nil {
		return pk.DoseSpec{}, err
	}
	compound, err := pk.ParseCompound(in.Compound)
	if err != nil {
		return pk.DoseSpec{}, err
	}

	spec := pk.DoseSpec{
		TimeH:       in.AdministeredAt.Time().Sub(ref).Hours(),
		Route:       route,
		Compound:    compound,
		RawMg:       in.RawMassMg,
		E2Mg:        in.E2MassMg,
		HoldMinutes: in.HoldMinutes,
		Theta:       in.Theta,
	}
	if in.SublingualTier != nil {
		spec.SublingualTier = *in.SublingualTier
	}
	if in.Patch != nil {
		spec.PatchMode = pk.PatchMode(in.Patch.Mode)
		spec.PatchRateUGPerDay = in.Patch.RateUGPerDay
		spec.PatchTotalMg = in.Patch.TotalMg
		spec.PatchWearHours = in.Patch.WearHours
	}
	return spec, nil
}

// ToAPI converts a stored dose to its API form, filling derived quantities.
func ToAPI(d *Dose) models.Dose {
	out := models.Dose{
		ID:             d.ID,
		AdministeredAt: models.Timestamp(d.AdministeredAt),
		Route:          string(d.Route),
		Compound:       string(d.Compound),
		SublingualTier: d.SublingualTier,
		HoldMinutes:    d.HoldMinutes,
		Theta:          d.Theta,
		Notes:          d.Notes,
		CreatedAt:      models.Timestamp(d.CreatedAt),
		UpdatedAt:      models.Timestamp(d.UpdatedAt),
	}

	ev, err := d.Event(d.AdministeredAt)
	if err != nil {
		return out
	}

	if p, ok := ev.Patch(); ok {
		rate, total, wear := p.RateUGPerDay, p.TotalMg, p.WearHours
		out.Patch = &models.PatchDose{
			Mode:         string(p.Mode),
			RateUGPerDay: &rate,
			TotalMg:      &total,
			WearHours:    &wear,
		}
		return out
	}

	if raw, err := ev.RawMass(); err == nil {
		out.RawMassMg = &raw
	}
	if e2, err := ev.E2EquivalentMass(); err == nil {
		out.E2MassMg = &e2
	}
	return out
}

// InputFromDose converts a stored dose back to an API input. Applying the
// result reproduces the dose.
func InputFromDose(d *Dose) models.DoseInput {
	spec := d.Spec(d.AdministeredAt)
	in := models.DoseInput{
		AdministeredAt: models.Timestamp(d.AdministeredAt),
		Route:          string(d.Route),
		Compound:       string(d.Compound),
		RawMassMg:      spec.RawMg,
		E2MassMg:       spec.E2Mg,
		Theta:          spec.Theta,
		Notes:          d.Notes,
	}
	if d.Route == pk.Patch {
		in.Patch = &models.PatchDose{
			Mode:         string(spec.PatchMode),
			RateUGPerDay: spec.PatchRateUGPerDay,
			TotalMg:      spec.PatchTotalMg,
			WearHours:    spec.PatchWearHours,
		}
	}
	return in
}
