package dosing_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (n *recordingNotifier) DosesChanged(_ context.Context, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.users)
}

type routeSet map[pk.Route]bool

func (s routeSet) RouteEnabled(_ context.Context, r pk.Route) bool {
	return !s[r]
}

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestService(notifier *recordingNotifier, disabled routeSet) *dosing.Service {
	cfg := dosing.ServiceConfig{
		Repository: dosing.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	}
	if notifier != nil {
		cfg.Notifier = notifier
	}
	if disabled != nil {
		cfg.Routes = disabled
	}
	return dosing.NewService(cfg)
}

func evInjection(at time.Time, rawMg float64) *models.DoseInput {
	return &models.DoseInput{
		AdministeredAt: models.Timestamp(at),
		Route:          "injection",
		Compound:       "EV",
		RawMassMg:      fptr(rawMg),
	}
}

func TestService_Create(t *testing.T) {
	notifier := &recordingNotifier{}
	service := newTestService(notifier, nil)
	ctx := context.Background()

	result, err := service.Create(ctx, "usr_1", evInjection(t0, 5))
	require.NoError(t, err)

	if !strings.HasPrefix(result.ID, "dose_") {
		t.Errorf("expected dose ID to start with 'dose_', got %q", result.ID)
	}
	assert.Equal(t, "injection", result.Route)
	assert.Equal(t, "EV", result.Compound)
	require.NotNil(t, result.RawMassMg)
	require.NotNil(t, result.E2MassMg)
	assert.InDelta(t, 5, *result.RawMassMg, 1e-9)
	assert.InDelta(t, 5*0.76404, *result.E2MassMg, 1e-3)
	assert.Equal(t, 1, notifier.count())
}

func TestService_Create_NormalizesCase(t *testing.T) {
	service := newTestService(nil, nil)

	result, err := service.Create(context.Background(), "usr_1", &models.DoseInput{
		AdministeredAt: models.Timestamp(t0),
		Route:          "Oral",
		Compound:       "e2",
		E2MassMg:       fptr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "oral", result.Route)
	assert.Equal(t, "E2", result.Compound)
}

func TestService_Create_ValidationErrors(t *testing.T) {
	service := newTestService(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name            string
		input           *models.DoseInput
		wantField       string
		wantUnsupported bool
	}{
		{
			name:      "missing time",
			input:     &models.DoseInput{Route: "oral", Compound: "E2", E2MassMg: fptr(2)},
			wantField: "administeredAt",
		},
		{
			name:      "unknown route",
			input:     &models.DoseInput{AdministeredAt: models.Timestamp(t0), Route: "nasal", Compound: "E2", E2MassMg: fptr(2)},
			wantField: "route",
		},
		{
			name:      "unknown compound",
			input:     &models.DoseInput{AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "XX", RawMassMg: fptr(2)},
			wantField: "compound",
		},
		{
			name:            "unsupported pair",
			input:           &models.DoseInput{AdministeredAt: models.Timestamp(t0), Route: "injection", Compound: "CPA", RawMassMg: fptr(2)},
			wantField:       "compound",
			wantUnsupported: true,
		},
		{
			name:      "negative mass",
			input:     evInjection(t0, -1),
			wantField: "rawMassMg",
		},
		{
			name: "inconsistent masses",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "injection", Compound: "EV",
				RawMassMg: fptr(5), E2MassMg: fptr(5),
			},
			wantField: "e2MassMg",
		},
		{
			name: "ester given as equivalent",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "EV",
				E2MassMg: fptr(2),
			},
			wantField: "e2MassMg",
		},
		{
			name: "theta out of range",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "sublingual", Compound: "E2",
				E2MassMg: fptr(1), Theta: fptr(1.5),
			},
			wantField: "theta",
		},
		{
			name: "hold out of range",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "sublingual", Compound: "E2",
				E2MassMg: fptr(1), HoldMinutes: fptr(90),
			},
			wantField: "holdMinutes",
		},
		{
			name: "patch without amount",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "patch", Compound: "E2",
				Patch: &models.PatchDose{Mode: "dose"},
			},
			wantField: "patch.totalMg",
		},
		{
			name: "patch fields on oral",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "E2",
				E2MassMg: fptr(2), Patch: &models.PatchDose{TotalMg: fptr(1)},
			},
			wantField: "patch",
		},
		{
			name: "notes too long",
			input: &models.DoseInput{
				AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "E2",
				E2MassMg: fptr(2), Notes: sptr(strings.Repeat("a", 501)),
			},
			wantField: "notes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(ctx, "usr_1", tt.input)

			var validationErr *dosing.ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			require.NotEmpty(t, validationErr.Errors)
			assert.Equal(t, tt.wantField, validationErr.Errors[0].Field)
			assert.Equal(t, tt.wantUnsupported, validationErr.Unsupported)
		})
	}
}

func TestService_Create_DisabledRoute(t *testing.T) {
	service := newTestService(nil, routeSet{pk.Patch: true})

	_, err := service.Create(context.Background(), "usr_1", &models.DoseInput{
		AdministeredAt: models.Timestamp(t0),
		Route:          "patch",
		Compound:       "E2",
		Patch:          &models.PatchDose{RateUGPerDay: fptr(100)},
	})

	var validationErr *dosing.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.True(t, validationErr.Unsupported)
	assert.Equal(t, dosing.CodeRouteDisabled, validationErr.Errors[0].Code)
}

func TestService_Create_SublingualKeepsEnteredTier(t *testing.T) {
	service := newTestService(nil, nil)

	result, err := service.Create(context.Background(), "usr_1", &models.DoseInput{
		AdministeredAt: models.Timestamp(t0),
		Route:          "sublingual",
		Compound:       "E2",
		E2MassMg:       fptr(1),
		SublingualTier: sptr("strict"),
	})
	require.NoError(t, err)

	require.NotNil(t, result.SublingualTier)
	assert.Equal(t, "strict", *result.SublingualTier)
	require.NotNil(t, result.Theta)
	tier, _ := pk.TierByKey("strict")
	assert.InDelta(t, tier.Theta(), *result.Theta, 1e-12)
}

func TestService_Create_PatchReportsBothForms(t *testing.T) {
	service := newTestService(nil, nil)

	result, err := service.Create(context.Background(), "usr_1", &models.DoseInput{
		AdministeredAt: models.Timestamp(t0),
		Route:          "patch",
		Compound:       "E2",
		Patch:          &models.PatchDose{RateUGPerDay: fptr(100), WearHours: fptr(84)},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Patch)
	assert.Equal(t, "rate", result.Patch.Mode)
	assert.InDelta(t, 100, *result.Patch.RateUGPerDay, 1e-9)
	assert.InDelta(t, 0.35, *result.Patch.TotalMg, 1e-9)
	assert.Nil(t, result.RawMassMg)
}

func TestService_GetUpdateDelete(t *testing.T) {
	notifier := &recordingNotifier{}
	service := newTestService(notifier, nil)
	ctx := context.Background()

	created, err := service.Create(ctx, "usr_1", evInjection(t0, 5))
	require.NoError(t, err)

	_, err = service.Get(ctx, "usr_other", created.ID)
	assert.ErrorIs(t, err, dosing.ErrDoseNotFound, "doses are scoped to their owner")

	updated, err := service.Update(ctx, "usr_1", created.ID, evInjection(t0.Add(time.Hour), 6))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.InDelta(t, 6, *updated.RawMassMg, 1e-9)

	got, err := service.Get(ctx, "usr_1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Timestamp(t0.Add(time.Hour)), got.AdministeredAt)

	assert.ErrorIs(t, service.Delete(ctx, "usr_other", created.ID), dosing.ErrDoseNotFound)
	require.NoError(t, service.Delete(ctx, "usr_1", created.ID))

	_, err = service.Get(ctx, "usr_1", created.ID)
	assert.ErrorIs(t, err, dosing.ErrDoseNotFound)
	assert.Equal(t, 3, notifier.count())
}

func TestService_List_PaginationAndOrder(t *testing.T) {
	service := newTestService(nil, nil)
	ctx := context.Background()

	// Created out of order
	for _, h := range []int{48, 0, 24, 72, 96} {
		_, err := service.Create(ctx, "usr_1", evInjection(t0.Add(time.Duration(h)*time.Hour), 5))
		require.NoError(t, err)
	}
	_, err := service.Create(ctx, "usr_2", evInjection(t0, 5))
	require.NoError(t, err)

	page, err := service.List(ctx, "usr_1", dosing.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.Meta.NextCursor)
	assert.Equal(t, models.Timestamp(t0), page.Items[0].AdministeredAt)
	assert.Equal(t, models.Timestamp(t0.Add(24*time.Hour)), page.Items[1].AdministeredAt)

	var all []models.Dose
	all = append(all, page.Items...)
	for page.Meta.NextCursor != nil {
		page, err = service.List(ctx, "usr_1", dosing.ListOptions{Limit: 2, Cursor: *page.Meta.NextCursor})
		require.NoError(t, err)
		all = append(all, page.Items...)
	}
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].AdministeredAt.Time().Before(all[i].AdministeredAt.Time()))
	}

	from := t0.Add(24 * time.Hour)
	to := t0.Add(72 * time.Hour)
	window, err := service.List(ctx, "usr_1", dosing.ListOptions{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, window.Items, 2)

	_, err = service.List(ctx, "usr_1", dosing.ListOptions{Cursor: "dose_missing"})
	assert.ErrorIs(t, err, dosing.ErrInvalidCursor)
}

func TestService_Import(t *testing.T) {
	notifier := &recordingNotifier{}
	service := newTestService(notifier, routeSet{pk.Gel: true})
	ctx := context.Background()

	result, err := service.Import(ctx, "usr_1", []models.DoseInput{
		*evInjection(t0, 5),
		{AdministeredAt: models.Timestamp(t0), Route: "oral", Compound: "E2"},
		*evInjection(t0.Add(7*24*time.Hour), 5),
		{AdministeredAt: models.Timestamp(t0), Route: "gel", Compound: "E2", E2MassMg: fptr(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Rejected)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "doses[1].e2MassMg", result.Errors[0].Field)
	assert.Equal(t, "doses[3].route", result.Errors[1].Field)
	assert.Equal(t, 1, notifier.count())

	doses, err := service.ListAll(ctx, "usr_1")
	require.NoError(t, err)
	assert.Len(t, doses, 2)

	_, err = service.Import(ctx, "usr_1", nil)
	var validationErr *dosing.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestService_RestoreAndDeleteAll(t *testing.T) {
	service := newTestService(nil, routeSet{pk.Patch: true})
	ctx := context.Background()

	n, err := service.Restore(ctx, "usr_1", []models.DoseInput{
		*evInjection(t0, 5),
		{AdministeredAt: models.Timestamp(t0), Route: "patch", Compound: "E2", Patch: &models.PatchDose{TotalMg: fptr(0.35)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "restore does not apply route flags")

	deleted, err := service.DeleteAll(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	doses, err := service.ListAll(ctx, "usr_1")
	require.NoError(t, err)
	assert.Empty(t, doses)
}

func TestService_NotifierErrorDoesNotFailWrite(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("publish failed")}
	service := newTestService(notifier, nil)

	_, err := service.Create(context.Background(), "usr_1", evInjection(t0, 5))
	assert.NoError(t, err)
}
