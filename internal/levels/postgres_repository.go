package levels

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSnapshotRepository is a PostgreSQL implementation of
// SnapshotRepository.
type PostgresSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotRepository creates a new PostgreSQL snapshot repository.
func NewPostgresSnapshotRepository(pool *pgxpool.Pool) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{pool: pool}
}

// Get retrieves the latest snapshot of a user.
func (r *PostgresSnapshotRepository) Get(ctx context.Context, userID string) (*Snapshot, error) {
	query := `
		SELECT id, user_id, computed_at, current_pg_ml,
			peak_pg_ml, peak_at, trough_pg_ml, trough_at,
			horizon_hours, dose_count
		FROM level_snapshots
		WHERE user_id = $1
	`

	var s Snapshot
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.ComputedAt,
		&s.CurrentPgML,
		&s.PeakPgML,
		&s.PeakAt,
		&s.TroughPgML,
		&s.TroughAt,
		&s.HorizonHours,
		&s.DoseCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Upsert stores a snapshot, replacing the user's previous one.
func (r *PostgresSnapshotRepository) Upsert(ctx context.Context, s *Snapshot) error {
	query := `
		INSERT INTO level_snapshots (
			user_id, id, computed_at, current_pg_ml,
			peak_pg_ml, peak_at, trough_pg_ml, trough_at,
			horizon_hours, dose_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			computed_at = EXCLUDED.computed_at,
			current_pg_ml = EXCLUDED.current_pg_ml,
			peak_pg_ml = EXCLUDED.peak_pg_ml,
			peak_at = EXCLUDED.peak_at,
			trough_pg_ml = EXCLUDED.trough_pg_ml,
			trough_at = EXCLUDED.trough_at,
			horizon_hours = EXCLUDED.horizon_hours,
			dose_count = EXCLUDED.dose_count
		WHERE level_snapshots.computed_at <= EXCLUDED.computed_at
	`

	_, err := r.pool.Exec(ctx, query,
		s.UserID,
		s.ID,
		s.ComputedAt,
		s.CurrentPgML,
		s.PeakPgML,
		s.PeakAt,
		s.TroughPgML,
		s.TroughAt,
		s.HorizonHours,
		s.DoseCount,
	)
	return err
}

// Delete removes a user's snapshot.
func (r *PostgresSnapshotRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM level_snapshots WHERE user_id = $1`, userID)
	return err
}

var _ SnapshotRepository = (*PostgresSnapshotRepository)(nil)
