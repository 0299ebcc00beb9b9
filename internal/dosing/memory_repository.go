package dosing

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	doses map[string]*Dose
}

// NewInMemoryRepository creates a new in-memory dose repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		doses: make(map[string]*Dose),
	}
}

// GetByUserAndID retrieves a dose by user ID and dose ID.
func (r *InMemoryRepository) GetByUserAndID(_ context.Context, userID, doseID string) (*Dose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doses[doseID]
	if !ok || d.UserID != userID {
		return nil, ErrDoseNotFound
	}
	return d.clone(), nil
}

// List retrieves a page of a user's doses.
func (r *InMemoryRepository) List(_ context.Context, userID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sortedForUser(userID)

	start := 0
	if opts.Cursor != "" {
		start = -1
		for i, d := range all {
			if d.ID == opts.Cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, ErrInvalidCursor
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	result := &ListResult{}
	for _, d := range all[start:] {
		if opts.From != nil && d.AdministeredAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && !d.AdministeredAt.Before(*opts.To) {
			continue
		}
		if len(result.Items) == limit {
			result.NextCursor = result.Items[limit-1].ID
			break
		}
		result.Items = append(result.Items, d.clone())
	}
	return result, nil
}

// ListAll retrieves every dose of a user.
func (r *InMemoryRepository) ListAll(_ context.Context, userID string) ([]*Dose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sortedForUser(userID)
	out := make([]*Dose, len(all))
	for i, d := range all {
		out[i] = d.clone()
	}
	return out, nil
}

// Create creates a new dose.
func (r *InMemoryRepository) Create(_ context.Context, d *Dose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doses[d.ID] = d.clone()
	return nil
}

// CreateMany creates several doses.
func (r *InMemoryRepository) CreateMany(_ context.Context, doses []*Dose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range doses {
		r.doses[d.ID] = d.clone()
	}
	return nil
}

// Update replaces an existing dose.
func (r *InMemoryRepository) Update(_ context.Context, d *Dose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doses[d.ID]; !ok {
		return ErrDoseNotFound
	}
	r.doses[d.ID] = d.clone()
	return nil
}

// Delete deletes a dose by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.doses, id)
	return nil
}

// DeleteAllForUser deletes every dose of a user.
func (r *InMemoryRepository) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, d := range r.doses {
		if d.UserID == userID {
			delete(r.doses, id)
			n++
		}
	}
	return n, nil
}

// sortedForUser must be called with the lock held.
func (r *InMemoryRepository) sortedForUser(userID string) []*Dose {
	var out []*Dose
	for _, d := range r.doses {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AdministeredAt.Equal(out[j].AdministeredAt) {
			return out[i].AdministeredAt.Before(out[j].AdministeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
