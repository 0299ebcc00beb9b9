package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when a feature flag is not stored.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores feature flag overrides.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlag creates or updates a feature flag.
	SetFlag(ctx context.Context, flag *Flag) error

	// SetFlags creates or updates several flags in one transaction.
	SetFlags(ctx context.Context, flags []*Flag) error

	// DeleteFlag removes a stored flag. Missing keys yield ErrFlagNotFound.
	DeleteFlag(ctx context.Context, key string) error
}
