package user

import (
	"context"
	"errors"
	"time"

	"golang.org/x/text/language"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// Service errors.
var (
	ErrUserExists = errors.New("user already exists")
)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// Service provides account and profile operations.
type Service struct {
	repo Repository
}

// NewService creates a new user service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetMe retrieves the user's account summary.
func (s *Service) GetMe(ctx context.Context, userID string) (*models.Me, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toAPIMe(user), nil
}

// UpdateMe updates the user's account settings.
func (s *Service) UpdateMe(ctx context.Context, userID string, input *models.MeInput) (*models.Me, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Locale != nil {
		locale, err := canonicalLocale(*input.Locale)
		if err != nil {
			return nil, &ValidationError{Errors: []models.FieldError{
				{Field: "locale", Message: "must be a BCP 47 language tag"},
			}}
		}
		user.Locale = locale
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return toAPIMe(user), nil
}

// GetProfile retrieves the user's patient profile.
// Returns ErrProfileNotFound until a weight has been set.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Profile == nil {
		return nil, ErrProfileNotFound
	}
	return toAPIProfile(user.Profile), nil
}

// SimulationProfile returns the profile in the form consumed by pk.Simulate.
func (s *Service) SimulationProfile(ctx context.Context, userID string) (pk.Profile, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return pk.Profile{}, err
	}
	if user.Profile == nil {
		return pk.Profile{}, ErrProfileNotFound
	}
	return pk.Profile{WeightKG: user.Profile.WeightKG}, nil
}

// UpsertProfile creates or updates the user's patient profile.
func (s *Service) UpsertProfile(ctx context.Context, userID string, input *models.ProfileInput) (*models.Profile, error) {
	if err := (pk.Profile{WeightKG: input.WeightKG}).Validate(); err != nil {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "weightKg", Message: "must be a positive number of kilograms"},
		}}
	}

	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if user.Profile == nil {
		user.Profile = &Profile{CreatedAt: now}
	}
	user.Profile.WeightKG = input.WeightKG
	user.Profile.UpdatedAt = now
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return toAPIProfile(user.Profile), nil
}

// CreateUser creates a new user with default settings.
// An existing user is returned unchanged.
func (s *Service) CreateUser(ctx context.Context, userID, locale string) (*User, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err == nil && existing != nil {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := DefaultUser(userID)
	if canonical, err := canonicalLocale(locale); err == nil && locale != "" {
		user.Locale = canonical
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser deletes a user and profile.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// ListProfiledUserIDs returns every user that can be simulated.
func (s *Service) ListProfiledUserIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListIDs(ctx)
}

func canonicalLocale(s string) (string, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

func toAPIMe(u *User) *models.Me {
	return &models.Me{
		UserID:    u.ID,
		Locale:    u.Locale,
		CreatedAt: models.Timestamp(u.CreatedAt),
	}
}

func toAPIProfile(p *Profile) *models.Profile {
	return &models.Profile{
		WeightKG:  p.WeightKG,
		CreatedAt: models.Timestamp(p.CreatedAt),
		UpdatedAt: models.Timestamp(p.UpdatedAt),
	}
}
