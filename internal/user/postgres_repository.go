package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT
			user_id, locale,
			weight_kg, profile_created_at, profile_updated_at,
			created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`

	var (
		user             User
		weightKG         *float64
		profileCreatedAt *time.Time
		profileUpdatedAt *time.Time
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Locale,
		&weightKG,
		&profileCreatedAt,
		&profileUpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if weightKG != nil {
		user.Profile = &Profile{WeightKG: *weightKG}
		if profileCreatedAt != nil {
			user.Profile.CreatedAt = *profileCreatedAt
		}
		if profileUpdatedAt != nil {
			user.Profile.UpdatedAt = *profileUpdatedAt
		}
	}

	return &user, nil
}

// Create creates a new user row.
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO user_profiles (
			user_id, locale,
			weight_kg, profile_created_at, profile_updated_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	weightKG, profileCreatedAt, profileUpdatedAt := profileColumns(user.Profile)
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Locale,
		weightKG,
		profileCreatedAt,
		profileUpdatedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// Update updates an existing user row.
func (r *PostgresRepository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE user_profiles SET
			locale = $2,
			weight_kg = $3,
			profile_created_at = $4,
			profile_updated_at = $5,
			updated_at = $6
		WHERE user_id = $1
	`

	weightKG, profileCreatedAt, profileUpdatedAt := profileColumns(user.Profile)
	result, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Locale,
		weightKG,
		profileCreatedAt,
		profileUpdatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete deletes a user row. Doses and snapshots cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, id)
	return err
}

// ListIDs returns the IDs of all users with a profile.
func (r *PostgresRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM user_profiles
		WHERE weight_kg IS NOT NULL
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func profileColumns(p *Profile) (*float64, *time.Time, *time.Time) {
	if p == nil {
		return nil, nil, nil
	}
	weight := p.WeightKG
	created := p.CreatedAt
	updated := p.UpdatedAt
	return &weight, &created, &updated
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
