package levels

import (
	"context"
	"errors"
	"sync"
)

// ErrSnapshotNotFound is returned when a user has no stored snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository stores the latest snapshot per user.
type SnapshotRepository interface {
	// Get retrieves the latest snapshot of a user.
	Get(ctx context.Context, userID string) (*Snapshot, error)

	// Upsert stores a snapshot, replacing the user's previous one.
	Upsert(ctx context.Context, snapshot *Snapshot) error

	// Delete removes a user's snapshot. Deleting a missing snapshot is not
	// an error.
	Delete(ctx context.Context, userID string) error
}

// InMemorySnapshotRepository is an in-memory implementation of
// SnapshotRepository.
type InMemorySnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewInMemorySnapshotRepository creates a new in-memory snapshot repository.
func NewInMemorySnapshotRepository() *InMemorySnapshotRepository {
	return &InMemorySnapshotRepository{
		snapshots: make(map[string]Snapshot),
	}
}

// Get retrieves the latest snapshot of a user.
func (r *InMemorySnapshotRepository) Get(_ context.Context, userID string) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshots[userID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return &snap, nil
}

// Upsert stores a snapshot.
func (r *InMemorySnapshotRepository) Upsert(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshot.UserID] = *snapshot
	return nil
}

// Delete removes a user's snapshot.
func (r *InMemorySnapshotRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.snapshots, userID)
	return nil
}

// Count returns the number of stored snapshots.
func (r *InMemorySnapshotRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}

var _ SnapshotRepository = (*InMemorySnapshotRepository)(nil)
