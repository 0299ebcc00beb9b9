package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// PayloadVersion is the version of the JSON document inside an envelope.
const PayloadVersion = 1

// Payload is the plaintext of an envelope.
type Payload struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exportedAt"`
	Locale     string             `json:"locale,omitempty"`
	WeightKG   *float64           `json:"weightKg,omitempty"`
	Doses      []models.DoseInput `json:"doses"`
}

// DoseStore reads and restores dose histories.
type DoseStore interface {
	ListAll(ctx context.Context, userID string) ([]*dosing.Dose, error)
	Restore(ctx context.Context, userID string, inputs []models.DoseInput) (int, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// UserStore reads and writes the exported user settings.
type UserStore interface {
	GetMe(ctx context.Context, userID string) (*models.Me, error)
	UpdateMe(ctx context.Context, userID string, input *models.MeInput) (*models.Me, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, userID string, input *models.ProfileInput) (*models.Profile, error)
}

// ValidationError reports an import request or payload that cannot be
// restored.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	Doses   DoseStore
	Users   UserStore
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Service creates and restores encrypted exports.
type Service struct {
	doses   DoseStore
	users   UserStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewService creates a new export service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		doses:   cfg.Doses,
		users:   cfg.Users,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Export seals the user's settings, profile and doses under a freshly
// generated password.
func (s *Service) Export(ctx context.Context, userID string) (resp *models.ExportResponse, err error) {
	defer func() { s.metrics.ObserveExport("export", err) }()

	payload, err := s.payload(ctx, userID)
	if err != nil {
		return nil, err
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}

	password, err := GeneratePassword()
	if err != nil {
		return nil, err
	}
	env, err := Seal(plaintext, password)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("dose_count", len(payload.Doses)).
		Msg("export created")

	return &models.ExportResponse{
		Password:  password,
		Export:    *env,
		CreatedAt: models.Timestamp(payload.ExportedAt),
		DoseCount: len(payload.Doses),
	}, nil
}

func (s *Service) payload(ctx context.Context, userID string) (*Payload, error) {
	me, err := s.users.GetMe(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Payload{
		Version:    PayloadVersion,
		ExportedAt: time.Now().UTC(),
		Locale:     me.Locale,
		Doses:      []models.DoseInput{},
	}

	profile, err := s.users.GetProfile(ctx, userID)
	switch {
	case err == nil:
		weight := profile.WeightKG
		p.WeightKG = &weight
	case !errors.Is(err, user.ErrProfileNotFound):
		return nil, err
	}

	doses, err := s.doses.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, d := range doses {
		p.Doses = append(p.Doses, dosing.InputFromDose(d))
	}
	return p, nil
}

// Import decrypts an envelope and restores it into the user's account.
// Merge adds the doses to the existing history; replace deletes the
// existing history first. Every dose is validated before anything is
// written.
func (s *Service) Import(ctx context.Context, userID string, req *models.ImportRequest) (result *models.ImportResult, err error) {
	defer func() { s.metrics.ObserveExport("import", err) }()

	mode := req.Mode
	if mode == "" {
		mode = models.ImportModeMerge
	}
	if mode != models.ImportModeMerge && mode != models.ImportModeReplace {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "mode", Message: "must be merge or replace", Code: dosing.CodeInvalid},
		}}
	}
	if req.Password == "" {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "password", Message: "is required", Code: dosing.CodeRequired},
		}}
	}

	plaintext, err := Open(&req.Export, req.Password)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedEnvelope)
	}
	if payload.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: payload version %d", ErrUnsupportedVersion, payload.Version)
	}
	if err := validateDoses(payload.Doses); err != nil {
		return nil, err
	}

	result = &models.ImportResult{Mode: mode}

	if payload.WeightKG != nil {
		if _, err := s.users.UpsertProfile(ctx, userID, &models.ProfileInput{WeightKG: *payload.WeightKG}); err != nil {
			return nil, fmt.Errorf("restoring profile: %w", err)
		}
		result.ProfileRestored = true
	}
	if payload.Locale != "" && mode == models.ImportModeReplace {
		locale := payload.Locale
		if _, err := s.users.UpdateMe(ctx, userID, &models.MeInput{Locale: &locale}); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("ignoring exported locale")
		}
	}

	if mode == models.ImportModeReplace {
		if _, err := s.doses.DeleteAll(ctx, userID); err != nil {
			return nil, fmt.Errorf("clearing doses: %w", err)
		}
	}
	if len(payload.Doses) > 0 {
		n, err := s.doses.Restore(ctx, userID, payload.Doses)
		if err != nil {
			return nil, fmt.Errorf("restoring doses: %w", err)
		}
		result.Imported = n
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("mode", string(mode)).
		Int("imported", result.Imported).
		Msg("export restored")

	return result, nil
}

func validateDoses(doses []models.DoseInput) error {
	if len(doses) > dosing.MaxImportDoses {
		return &ValidationError{Errors: []models.FieldError{{
			Field:   "doses",
			Message: fmt.Sprintf("export holds %d doses, the limit is %d", len(doses), dosing.MaxImportDoses),
			Code:    dosing.CodeInvalid,
		}}}
	}

	var fieldErrs []models.FieldError
	for i := range doses {
		in := &doses[i]
		if _, err := dosing.EventFromInput(in, in.AdministeredAt.Time(), fmt.Sprintf("doses[%d].", i)); err != nil {
			var validationErr *dosing.ValidationError
			if !errors.As(err, &validationErr) {
				return err
			}
			fieldErrs = append(fieldErrs, validationErr.Errors...)
		}
	}
	if len(fieldErrs) > 0 {
		return &ValidationError{Errors: fieldErrs}
	}
	return nil
}
