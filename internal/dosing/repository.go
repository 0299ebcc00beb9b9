package dosing

import (
	"context"
	"time"
)

// DefaultListLimit is the page size used when none is requested.
const DefaultListLimit = 50

// MaxListLimit is the largest page size served.
const MaxListLimit = 200

// ListOptions contains options for listing doses.
type ListOptions struct {
	Limit  int
	Cursor string

	// From and To bound AdministeredAt to [From, To). Optional.
	From *time.Time
	To   *time.Time
}

// ListResult contains the results of listing doses.
type ListResult struct {
	Items      []*Dose
	NextCursor string
}

// Repository defines the interface for dose persistence. Listings are
// ordered by AdministeredAt, then ID.
type Repository interface {
	// GetByUserAndID retrieves a dose by user ID and dose ID.
	// Returns ErrDoseNotFound if the dose doesn't exist or doesn't belong to the user.
	GetByUserAndID(ctx context.Context, userID, doseID string) (*Dose, error)

	// List retrieves a page of a user's doses. Cursor is the ID of the last
	// dose of the previous page.
	List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)

	// ListAll retrieves every dose of a user.
	ListAll(ctx context.Context, userID string) ([]*Dose, error)

	// Create creates a new dose.
	Create(ctx context.Context, dose *Dose) error

	// CreateMany creates several doses atomically.
	CreateMany(ctx context.Context, doses []*Dose) error

	// Update replaces an existing dose.
	Update(ctx context.Context, dose *Dose) error

	// Delete deletes a dose by ID.
	Delete(ctx context.Context, id string) error

	// DeleteAllForUser deletes every dose of a user and returns the count.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}
