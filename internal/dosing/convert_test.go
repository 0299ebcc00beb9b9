package dosing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

func TestEventFromInput_RelativeTime(t *testing.T) {
	ref := t0.Add(-36 * time.Hour)

	ev, err := dosing.EventFromInput(evInjection(t0, 5), ref, "")
	require.NoError(t, err)

	assert.InDelta(t, 36, ev.TimeH(), 1e-9)
	assert.Equal(t, pk.Injection, ev.Route())
	assert.Equal(t, pk.EstradiolValerate, ev.Compound())

	before, err := dosing.EventFromInput(evInjection(t0, 5), t0.Add(time.Hour), "")
	require.NoError(t, err)
	assert.InDelta(t, -1, before.TimeH(), 1e-9, "doses before the reference have negative hours")
}

func TestEventFromInput_Prefix(t *testing.T) {
	_, err := dosing.EventFromInput(evInjection(t0, -2), t0, "doses[4].")

	var validationErr *dosing.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "doses[4].rawMassMg", validationErr.Errors[0].Field)
	assert.Equal(t, dosing.CodeInvalid, validationErr.Errors[0].Code)
}

func TestFieldErrors(t *testing.T) {
	profileErr := pk.Profile{}.Validate()
	fieldErrs, unsupported := dosing.FieldErrors(profileErr, "")
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "weightKg", fieldErrs[0].Field)
	assert.False(t, unsupported)

	// Simulate tags failures with the index of the offending dose.
	good := mustEvent(t, evInjection(t0, 5))
	bad := pk.DoseEvent{}
	_, simErr := pk.Simulate([]pk.DoseEvent{good, bad}, pk.Profile{WeightKG: 70}, []float64{0, 1})
	require.Error(t, simErr)

	fieldErrs, _ = dosing.FieldErrors(simErr, "")
	require.Len(t, fieldErrs, 1)
	assert.Contains(t, fieldErrs[0].Field, "doses[1]")

	fieldErrs, unsupported = dosing.FieldErrors(errors.New("boom"), "doses[0].")
	assert.Equal(t, "doses[0]", fieldErrs[0].Field)
	assert.False(t, unsupported)
}

func TestAPIField(t *testing.T) {
	tests := map[string]string{
		"time":           "administeredAt",
		"rawMass":        "rawMassMg",
		"e2Mass":         "e2MassMg",
		"patchRate":      "patch.rateUgPerDay",
		"patchWearHours": "patch.wearHours",
		"somethingElse":  "somethingElse",
	}
	for in, want := range tests {
		assert.Equal(t, want, dosing.APIField(in), in)
	}
}

func TestDose_SpecRoundTrip(t *testing.T) {
	inputs := []*models.DoseInput{
		evInjection(t0, 5),
		{AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "CPA", RawMassMg: fptr(12.5)},
		{AdministeredAt: models.Timestamp(t0), Route: "sublingual", Compound: "EV", RawMassMg: fptr(2), HoldMinutes: fptr(12)},
		{AdministeredAt: models.Timestamp(t0), Route: "patch", Compound: "E2", Patch: &models.PatchDose{TotalMg: fptr(0.7), WearHours: fptr(168)}},
		{AdministeredAt: models.Timestamp(t0), Route: "patch", Compound: "E2", Patch: &models.PatchDose{RateUGPerDay: fptr(50)}},
	}

	for _, in := range inputs {
		t.Run(in.Route+"/"+in.Compound, func(t *testing.T) {
			original := mustEvent(t, in)

			restored := dosing.InputFromDose(doseFromInput(t, in))
			again := mustEvent(t, &restored)

			assert.Equal(t, original.Spec(), again.Spec())
		})
	}
}

func TestInputFromDose_KeepsEnteredEsterMass(t *testing.T) {
	in := &models.DoseInput{AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "EV", RawMassMg: fptr(1.0 / 3)}

	restored := dosing.InputFromDose(doseFromInput(t, in))

	require.NotNil(t, restored.RawMassMg)
	assert.Equal(t, 1.0/3, *restored.RawMassMg)
	assert.Nil(t, restored.E2MassMg)
}

func mustEvent(t *testing.T, in *models.DoseInput) pk.DoseEvent {
	t.Helper()
	ev, err := dosing.EventFromInput(in, in.AdministeredAt.Time(), "")
	require.NoError(t, err)
	return ev
}

// doseFromInput stores the input through the service and reads it back.
func doseFromInput(t *testing.T, in *models.DoseInput) *dosing.Dose {
	t.Helper()
	service := newTestService(nil, nil)
	_, err := service.Create(t.Context(), "usr_rt", in)
	require.NoError(t, err)
	doses, err := service.ListAll(t.Context(), "usr_rt")
	require.NoError(t, err)
	require.Len(t, doses, 1)
	return doses[0]
}
