package pk_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

func ptr(v float64) *float64 { return &v }

func TestNewDoseEvent_NormalizesMass(t *testing.T) {
	d, err := pk.NewDoseEvent(pk.DoseSpec{
		Route:    pk.Injection,
		Compound: pk.EstradiolValerate,
		RawMg:    ptr(5),
	})
	require.NoError(t, err)

	e2, err := d.E2EquivalentMass()
	require.NoError(t, err)
	assert.InDelta(t, 3.8202, e2, 1e-3)

	raw, err := d.RawMass()
	require.NoError(t, err)
	assert.InDelta(t, 5, raw, 1e-12)
}

func TestNewDoseEvent_EsterMassIsEnteredRaw(t *testing.T) {
	for _, route := range []pk.Route{pk.Injection, pk.Oral, pk.Sublingual} {
		t.Run(string(route), func(t *testing.T) {
			policy := pk.Fields(route, pk.EstradiolValerate)
			require.Equal(t, pk.FieldEditable, policy.Raw)
			require.Equal(t, pk.FieldDerived, policy.E2)

			_, err := pk.NewDoseEvent(pk.DoseSpec{Route: route, Compound: pk.EstradiolValerate, E2Mg: ptr(3)})
			require.ErrorIs(t, err, pk.ErrInvalidInput)
			var pe *pk.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "e2Mass", pe.Field)

			d, err := pk.NewDoseEvent(pk.DoseSpec{Route: route, Compound: pk.EstradiolValerate, RawMg: ptr(3)})
			require.NoError(t, err)
			raw, err := d.RawMass()
			require.NoError(t, err)
			assert.Equal(t, 3.0, raw)
			require.NotNil(t, d.Spec().RawMg)
			assert.Nil(t, d.Spec().E2Mg)
		})
	}
}

func TestNewDoseEvent_EstradiolTakesEitherSide(t *testing.T) {
	byE2, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Oral, Compound: pk.Estradiol, E2Mg: ptr(2)})
	require.NoError(t, err)
	byRaw, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Oral, Compound: pk.Estradiol, RawMg: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, byE2, byRaw)
}

func TestNewDoseEvent_ConsistentMasses(t *testing.T) {
	e2, _ := pk.ToE2Equivalent(pk.EstradiolValerate, 4)

	_, err := pk.NewDoseEvent(pk.DoseSpec{
		Route: pk.Injection, Compound: pk.EstradiolValerate,
		RawMg: ptr(4), E2Mg: ptr(e2),
	})
	assert.NoError(t, err)

	_, err = pk.NewDoseEvent(pk.DoseSpec{
		Route: pk.Injection, Compound: pk.EstradiolValerate,
		RawMg: ptr(4), E2Mg: ptr(4),
	})
	assert.ErrorIs(t, err, pk.ErrInvalidInput)
}

func TestNewDoseEvent_Validation(t *testing.T) {
	tests := []struct {
		name      string
		spec      pk.DoseSpec
		wantErr   error
		wantField string
	}{
		{
			name:      "non-finite time",
			spec:      pk.DoseSpec{TimeH: math.Inf(1), Route: pk.Oral, Compound: pk.Estradiol, E2Mg: ptr(2)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "time",
		},
		{
			name:      "cyproterone with equivalent",
			spec:      pk.DoseSpec{Route: pk.Oral, Compound: pk.CyproteroneAcetate, RawMg: ptr(12.5), E2Mg: ptr(1)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "e2Mass",
		},
		{
			name:      "cyproterone without mass",
			spec:      pk.DoseSpec{Route: pk.Oral, Compound: pk.CyproteroneAcetate},
			wantErr:   pk.ErrInvalidInput,
			wantField: "rawMass",
		},
		{
			name:      "cyproterone on injection",
			spec:      pk.DoseSpec{Route: pk.Injection, Compound: pk.CyproteroneAcetate, RawMg: ptr(100)},
			wantErr:   pk.ErrUnsupported,
			wantField: "compound",
		},
		{
			name:      "negative mass",
			spec:      pk.DoseSpec{Route: pk.Oral, Compound: pk.Estradiol, E2Mg: ptr(-1)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "e2Mass",
		},
		{
			name:      "estradiol without mass",
			spec:      pk.DoseSpec{Route: pk.Injection, Compound: pk.Estradiol},
			wantErr:   pk.ErrInvalidInput,
			wantField: "e2Mass",
		},
		{
			name:      "theta above one",
			spec:      pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), Theta: ptr(1.2)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "theta",
		},
		{
			name:      "hold time out of domain",
			spec:      pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), HoldMinutes: ptr(90)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "holdMinutes",
		},
		{
			name:      "theta and tier together",
			spec:      pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), Theta: ptr(0.1), SublingualTier: "quick"},
			wantErr:   pk.ErrInvalidInput,
			wantField: "theta",
		},
		{
			name:      "unknown tier",
			spec:      pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), SublingualTier: "eternal"},
			wantErr:   pk.ErrInvalidInput,
			wantField: "sublingualTier",
		},
		{
			name:      "theta on oral",
			spec:      pk.DoseSpec{Route: pk.Oral, Compound: pk.Estradiol, E2Mg: ptr(2), Theta: ptr(0.1)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "theta",
		},
		{
			name:      "patch with mass",
			spec:      pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol, E2Mg: ptr(2)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "rawMass",
		},
		{
			name:      "patch with rate and total",
			spec:      pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol, PatchMode: pk.PatchByDose, PatchTotalMg: ptr(1), PatchRateUGPerDay: ptr(100)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "patchRate",
		},
		{
			name:      "patch without amount",
			spec:      pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol},
			wantErr:   pk.ErrInvalidInput,
			wantField: "patchTotalMg",
		},
		{
			name:      "patch zero wear",
			spec:      pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol, PatchTotalMg: ptr(0.4), PatchWearHours: ptr(0)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "patchWearHours",
		},
		{
			name:      "patch fields on injection",
			spec:      pk.DoseSpec{Route: pk.Injection, Compound: pk.Estradiol, E2Mg: ptr(2), PatchWearHours: ptr(84)},
			wantErr:   pk.ErrInvalidInput,
			wantField: "patch",
		},
		{
			name:      "reserved ester has no kinetics",
			spec:      pk.DoseSpec{Route: pk.Injection, Compound: pk.EstradiolEnanthate, RawMg: ptr(5)},
			wantErr:   pk.ErrUnsupported,
			wantField: "compound",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pk.NewDoseEvent(tt.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var pe *pk.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantField, pe.Field)
			assert.Equal(t, pk.NoDose, pe.DoseIndex)
		})
	}
}

func TestNewDoseEvent_SublingualTheta(t *testing.T) {
	def, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2)})
	require.NoError(t, err)
	std, _ := pk.TierByKey(pk.DefaultSublingualTier)
	assert.Equal(t, std.Theta(), def.Theta())

	hold, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), HoldMinutes: ptr(30)})
	require.NoError(t, err)
	assert.Equal(t, pk.ThetaFromHold(30), hold.Theta())

	explicit, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Sublingual, Compound: pk.Estradiol, E2Mg: ptr(2), Theta: ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, explicit.Theta())
}

func TestNewDoseEvent_PatchModes(t *testing.T) {
	byRate, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol, PatchRateUGPerDay: ptr(100)})
	require.NoError(t, err)

	p, ok := byRate.Patch()
	require.True(t, ok)
	assert.Equal(t, pk.PatchByRate, p.Mode)
	assert.Equal(t, pk.DefaultPatchWearHours, p.WearHours)
	assert.InDelta(t, 100, p.RateUGPerDay, 1e-9)
	assert.InDelta(t, 0.35, p.TotalMg, 1e-9)

	byDose, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Patch, Compound: pk.Estradiol, PatchTotalMg: ptr(0.35)})
	require.NoError(t, err)
	p, _ = byDose.Patch()
	assert.Equal(t, pk.PatchByDose, p.Mode)
	assert.InDelta(t, 100, p.RateUGPerDay, 1e-9)

	_, ok = pk.DoseEvent{}.Patch()
	assert.False(t, ok)
}

func TestDoseEvent_CyproteroneHasNoEquivalent(t *testing.T) {
	d, err := pk.NewDoseEvent(pk.DoseSpec{Route: pk.Oral, Compound: pk.CyproteroneAcetate, RawMg: ptr(12.5)})
	require.NoError(t, err)

	_, err = d.E2EquivalentMass()
	assert.ErrorIs(t, err, pk.ErrNotConvertible)

	raw, err := d.RawMass()
	require.NoError(t, err)
	assert.Equal(t, 12.5, raw)
}

func TestDoseEvent_SpecRebuildsEvent(t *testing.T) {
	specs := []pk.DoseSpec{
		{TimeH: 3, Route: pk.Injection, Compound: pk.EstradiolValerate, RawMg: ptr(5)},
		{TimeH: 4, Route: pk.Sublingual, Compound: pk.EstradiolValerate, RawMg: ptr(2), SublingualTier: "strict"},
		{TimeH: 5, Route: pk.Oral, Compound: pk.CyproteroneAcetate, RawMg: ptr(12.5)},
		{TimeH: 6, Route: pk.Patch, Compound: pk.Estradiol, PatchRateUGPerDay: ptr(50), PatchWearHours: ptr(96)},
		{TimeH: 7, Route: pk.Patch, Compound: pk.Estradiol, PatchTotalMg: ptr(0.4)},
		{TimeH: 8, Route: pk.Injection, Compound: pk.EstradiolValerate, RawMg: ptr(1.0 / 3)},
	}

	for _, spec := range specs {
		d, err := pk.NewDoseEvent(spec)
		require.NoError(t, err)

		again, err := pk.NewDoseEvent(d.Spec())
		require.NoError(t, err)
		assert.Equal(t, d, again)
	}
}

func TestDoseEvent_ZeroValueFailsValidation(t *testing.T) {
	assert.Error(t, pk.DoseEvent{}.Validate())
}
