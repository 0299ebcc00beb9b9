package dosing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL dose repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const doseColumns = `
	id, user_id, administered_at, route, compound,
	mass_mg, theta, sublingual_tier, hold_minutes,
	patch_mode, patch_amount, patch_wear_hours,
	notes, created_at, updated_at`

var doseColumnNames = []string{
	"id", "user_id", "administered_at", "route", "compound",
	"mass_mg", "theta", "sublingual_tier", "hold_minutes",
	"patch_mode", "patch_amount", "patch_wear_hours",
	"notes", "created_at", "updated_at",
}

// GetByUserAndID retrieves a dose by user ID and dose ID.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, doseID string) (*Dose, error) {
	query := `SELECT ` + doseColumns + `
		FROM doses
		WHERE id = $1 AND user_id = $2
	`

	dose, err := scanDose(r.pool.QueryRow(ctx, query, doseID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoseNotFound
		}
		return nil, err
	}
	return dose, nil
}

// List retrieves a page of a user's doses using keyset pagination.
func (r *PostgresRepository) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	if opts.Cursor != "" {
		if _, err := r.GetByUserAndID(ctx, userID, opts.Cursor); err != nil {
			if errors.Is(err, ErrDoseNotFound) {
				return nil, ErrInvalidCursor
			}
			return nil, err
		}
	}

	query := `SELECT ` + doseColumns + `
		FROM doses
		WHERE user_id = $1
			AND ($2::timestamptz IS NULL OR administered_at >= $2)
			AND ($3::timestamptz IS NULL OR administered_at < $3)
			AND ($4 = '' OR (administered_at, id) > (
				SELECT administered_at, id FROM doses WHERE id = $4 AND user_id = $1
			))
		ORDER BY administered_at, id
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, userID, opts.From, opts.To, opts.Cursor, fetchLimit)
	if err != nil {
		return nil, err
	}
	doses, err := collectDoses(rows)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: doses}
	if len(doses) > limit {
		result.Items = doses[:limit]
		result.NextCursor = doses[limit-1].ID
	}
	return result, nil
}

// ListAll retrieves every dose of a user.
func (r *PostgresRepository) ListAll(ctx context.Context, userID string) ([]*Dose, error) {
	query := `SELECT ` + doseColumns + `
		FROM doses
		WHERE user_id = $1
		ORDER BY administered_at, id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectDoses(rows)
}

// Create creates a new dose.
func (r *PostgresRepository) Create(ctx context.Context, d *Dose) error {
	query := `
		INSERT INTO doses (` + doseColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query, doseValues(d)...)
	return err
}

// CreateMany creates several doses in one transaction using COPY.
func (r *PostgresRepository) CreateMany(ctx context.Context, doses []*Dose) error {
	if len(doses) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"doses"},
		doseColumnNames,
		pgx.CopyFromSlice(len(doses), func(i int) ([]any, error) {
			return doseValues(doses[i]), nil
		}),
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Update replaces an existing dose.
func (r *PostgresRepository) Update(ctx context.Context, d *Dose) error {
	query := `
		UPDATE doses SET
			administered_at = $3,
			route = $4,
			compound = $5,
			mass_mg = $6,
			theta = $7,
			sublingual_tier = $8,
			hold_minutes = $9,
			patch_mode = $10,
			patch_amount = $11,
			patch_wear_hours = $12,
			notes = $13,
			updated_at = $14
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.pool.Exec(ctx, query,
		d.ID,
		d.UserID,
		d.AdministeredAt,
		string(d.Route),
		string(d.Compound),
		d.MassMg,
		d.Theta,
		d.SublingualTier,
		d.HoldMinutes,
		string(d.PatchMode),
		d.PatchAmount,
		d.PatchWearHours,
		d.Notes,
		d.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDoseNotFound
	}
	return nil
}

// Delete deletes a dose by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM doses WHERE id = $1`, id)
	return err
}

// DeleteAllForUser deletes every dose of a user.
func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM doses WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func doseValues(d *Dose) []any {
	return []any{
		d.ID,
		d.UserID,
		d.AdministeredAt,
		string(d.Route),
		string(d.Compound),
		d.MassMg,
		d.Theta,
		d.SublingualTier,
		d.HoldMinutes,
		string(d.PatchMode),
		d.PatchAmount,
		d.PatchWearHours,
		d.Notes,
		d.CreatedAt,
		d.UpdatedAt,
	}
}

func scanDose(row pgx.Row) (*Dose, error) {
	var (
		d                         Dose
		route, compound, patchMode string
	)

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.AdministeredAt,
		&route,
		&compound,
		&d.MassMg,
		&d.Theta,
		&d.SublingualTier,
		&d.HoldMinutes,
		&patchMode,
		&d.PatchAmount,
		&d.PatchWearHours,
		&d.Notes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Route = pk.Route(route)
	d.Compound = pk.Compound(compound)
	d.PatchMode = pk.PatchMode(patchMode)
	return &d, nil
}

func collectDoses(rows pgx.Rows) ([]*Dose, error) {
	defer rows.Close()

	var doses []*Dose
	for rows.Next() {
		d, err := scanDose(rows)
		if err != nil {
			return nil, err
		}
		doses = append(doses, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doses, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
