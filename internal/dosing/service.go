package dosing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Validation constants.
const (
	MaxNotesLength = 500
	MaxImportDoses = 5000
)

// RouteGate reports whether new doses may use a route.
type RouteGate interface {
	RouteEnabled(ctx context.Context, r pk.Route) bool
}

// Notifier is told when a user's dose history changes.
type Notifier interface {
	DosesChanged(ctx context.Context, userID string) error
}

type allRoutes struct{}

func (allRoutes) RouteEnabled(context.Context, pk.Route) bool { return true }

// ServiceConfig holds configuration for the dosing service.
type ServiceConfig struct {
	Repository Repository
	Routes     RouteGate
	Notifier   Notifier
	Logger     zerolog.Logger
}

// Service provides dose operations.
type Service struct {
	repo     Repository
	routes   RouteGate
	notifier Notifier
	logger   zerolog.Logger
}

// NewService creates a new dosing service.
func NewService(cfg ServiceConfig) *Service {
	routes := cfg.Routes
	if routes == nil {
		routes = allRoutes{}
	}
	return &Service{
		repo:     cfg.Repository,
		routes:   routes,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
}

// List retrieves a page of a user's doses.
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) (*models.PagedDoses, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}

	result, err := s.repo.List(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	items := make([]models.Dose, 0, len(result.Items))
	for _, d := range result.Items {
		items = append(items, ToAPI(d))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedDoses{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      opts.Limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// ListAll retrieves every stored dose of a user.
func (s *Service) ListAll(ctx context.Context, userID string) ([]*Dose, error) {
	return s.repo.ListAll(ctx, userID)
}

// Get retrieves a dose by ID for a user.
func (s *Service) Get(ctx context.Context, userID, doseID string) (*models.Dose, error) {
	dose, err := s.repo.GetByUserAndID(ctx, userID, doseID)
	if err != nil {
		return nil, err
	}
	result := ToAPI(dose)
	return &result, nil
}

// Create validates and stores a new dose.
func (s *Service) Create(ctx context.Context, userID string, input *models.DoseInput) (*models.Dose, error) {
	now := time.Now()
	dose, err := s.build(ctx, userID, input, "")
	if err != nil {
		return nil, err
	}
	dose.ID = newDoseID()
	dose.CreatedAt = now
	dose.UpdatedAt = now

	if err := s.repo.Create(ctx, dose); err != nil {
		return nil, err
	}
	s.notify(ctx, userID)

	result := ToAPI(dose)
	return &result, nil
}

// Update replaces an existing dose.
func (s *Service) Update(ctx context.Context, userID, doseID string, input *models.DoseInput) (*models.Dose, error) {
	existing, err := s.repo.GetByUserAndID(ctx, userID, doseID)
	if err != nil {
		return nil, err
	}

	dose, err := s.build(ctx, userID, input, "")
	if err != nil {
		return nil, err
	}
	dose.ID = existing.ID
	dose.CreatedAt = existing.CreatedAt
	dose.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, dose); err != nil {
		return nil, err
	}
	s.notify(ctx, userID)

	result := ToAPI(dose)
	return &result, nil
}

// Delete deletes a dose for a user.
func (s *Service) Delete(ctx context.Context, userID, doseID string) error {
	if _, err := s.repo.GetByUserAndID(ctx, userID, doseID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, doseID); err != nil {
		return err
	}
	s.notify(ctx, userID)
	return nil
}

// DeleteAll deletes every dose of a user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, userID)
	}
	return n, nil
}

// Import validates a batch of doses and stores the valid ones. Invalid
// doses are reported per index and skipped.
func (s *Service) Import(ctx context.Context, userID string, inputs []models.DoseInput) (*models.DoseImportResult, error) {
	if len(inputs) == 0 {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "doses", Message: "must contain at least one dose", Code: CodeRequired},
		}}
	}
	if len(inputs) > MaxImportDoses {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "doses", Message: fmt.Sprintf("must contain at most %d doses", MaxImportDoses), Code: CodeInvalid},
		}}
	}

	now := time.Now()
	result := &models.DoseImportResult{}
	accepted := make([]*Dose, 0, len(inputs))
	for i := range inputs {
		dose, err := s.build(ctx, userID, &inputs[i], fmt.Sprintf("doses[%d].", i))
		if err != nil {
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				return nil, err
			}
			result.Rejected++
			result.Errors = append(result.Errors, validationErr.Errors...)
			continue
		}
		dose.ID = newDoseID()
		dose.CreatedAt = now
		dose.UpdatedAt = now
		accepted = append(accepted, dose)
	}

	if err := s.repo.CreateMany(ctx, accepted); err != nil {
		return nil, err
	}
	result.Imported = len(accepted)

	if result.Imported > 0 {
		s.notify(ctx, userID)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("imported", result.Imported).
		Int("rejected", result.Rejected).
		Msg("doses imported")

	return result, nil
}

// Restore stores doses from an export without re-checking route flags.
// Doses keep their timestamps and notes but get new IDs.
func (s *Service) Restore(ctx context.Context, userID string, inputs []models.DoseInput) (int, error) {
	now := time.Now()
	doses := make([]*Dose, 0, len(inputs))
	for i := range inputs {
		dose, err := newDose(userID, &inputs[i], fmt.Sprintf("doses[%d].", i))
		if err != nil {
			return 0, err
		}
		dose.ID = newDoseID()
		dose.CreatedAt = now
		dose.UpdatedAt = now
		doses = append(doses, dose)
	}

	if err := s.repo.CreateMany(ctx, doses); err != nil {
		return 0, err
	}
	if len(doses) > 0 {
		s.notify(ctx, userID)
	}
	return len(doses), nil
}

// build validates input and returns a dose without ID or timestamps.
func (s *Service) build(ctx context.Context, userID string, input *models.DoseInput, prefix string) (*Dose, error) {
	dose, err := newDose(userID, input, prefix)
	if err != nil {
		return nil, err
	}
	if !s.routes.RouteEnabled(ctx, dose.Route) {
		return nil, &ValidationError{
			Errors: []models.FieldError{{
				Field:   prefix + "route",
				Message: fmt.Sprintf("the %s route is currently disabled", dose.Route),
				Code:    CodeRouteDisabled,
			}},
			Unsupported: true,
		}
	}
	return dose, nil
}

func newDose(userID string, input *models.DoseInput, prefix string) (*Dose, error) {
	if input.Notes != nil && len(*input.Notes) > MaxNotesLength {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: prefix + "notes", Message: "must be at most 500 characters", Code: CodeInvalid},
		}}
	}

	at := input.AdministeredAt.Time().UTC()
	ev, err := EventFromInput(input, at, prefix)
	if err != nil {
		return nil, err
	}

	dose := &Dose{
		UserID:         userID,
		AdministeredAt: at,
		Notes:          input.Notes,
	}
	dose.applyEvent(ev)
	if dose.Route == pk.Sublingual {
		dose.SublingualTier = input.SublingualTier
		dose.HoldMinutes = input.HoldMinutes
	}
	return dose, nil
}

func (s *Service) notify(ctx context.Context, userID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.DosesChanged(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to publish dose change")
	}
}

func newDoseID() string {
	return "dose_" + uuid.New().String()[:22]
}
