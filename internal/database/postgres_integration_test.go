//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hrtlevels/hrtlevels/internal/auth"
	"github.com/hrtlevels/hrtlevels/internal/database"
	"github.com/hrtlevels/hrtlevels/internal/dosing"
	"github.com/hrtlevels/hrtlevels/internal/featureflags"
	"github.com/hrtlevels/hrtlevels/internal/levels"
	"github.com/hrtlevels/hrtlevels/internal/pk"
	"github.com/hrtlevels/hrtlevels/internal/user"
)

// setupTestDB starts a PostgreSQL container and applies the migrations.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("hrtlevels"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.ConnectURL(ctx, dsn, database.Config{MaxOpenConns: 5})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	require.NoError(t, database.Migrate(ctx, pool), "migrations must be idempotent")
	return pool
}

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func createUser(t *testing.T, ctx context.Context, accounts *auth.PostgresAccountRepository, users *user.PostgresRepository, id string, weight float64) {
	t.Helper()
	require.NoError(t, accounts.Create(ctx, &auth.Account{ID: id, Locale: "en-US", CreatedAt: base, LastSeenAt: base}))

	u := &user.User{ID: id, Locale: "en-US", CreatedAt: base, UpdatedAt: base}
	if weight > 0 {
		u.Profile = &user.Profile{WeightKG: weight, CreatedAt: base, UpdatedAt: base}
	}
	require.NoError(t, users.Create(ctx, u))
}

func TestPostgresRepositories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := t.Context()

	accounts := auth.NewPostgresAccountRepository(pool)
	tokens := auth.NewPostgresRefreshTokenRepository(pool)
	users := user.NewPostgresRepository(pool)
	doses := dosing.NewPostgresRepository(pool)
	snapshots := levels.NewPostgresSnapshotRepository(pool)
	flags := featureflags.NewPostgresRepository(pool)

	createUser(t, ctx, accounts, users, "usr_alice", 62.5)
	createUser(t, ctx, accounts, users, "usr_bob", 0)

	t.Run("accounts and refresh tokens", func(t *testing.T) {
		account, err := accounts.FindByID(ctx, "usr_alice")
		require.NoError(t, err)
		assert.Equal(t, "en-US", account.Locale)

		seen := base.Add(time.Hour)
		require.NoError(t, accounts.Touch(ctx, "usr_alice", seen))
		account, err = accounts.FindByID(ctx, "usr_alice")
		require.NoError(t, err)
		assert.True(t, seen.Equal(account.LastSeenAt))

		_, err = accounts.FindByID(ctx, "usr_nobody")
		assert.ErrorIs(t, err, auth.ErrAccountNotFound)

		hash := auth.HashRefreshToken("opaque-token")
		require.NoError(t, tokens.Create(ctx, &auth.RefreshToken{
			ID:        "rt_1",
			TokenHash: hash,
			UserID:    "usr_alice",
			ExpiresAt: base.Add(30 * 24 * time.Hour),
			CreatedAt: base,
		}))

		token, err := tokens.FindByHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, "usr_alice", token.UserID)
		assert.Nil(t, token.RevokedAt)

		require.NoError(t, tokens.Revoke(ctx, hash))
		token, err = tokens.FindByHash(ctx, hash)
		require.NoError(t, err)
		assert.NotNil(t, token.RevokedAt)

		require.NoError(t, tokens.DeleteAllForUser(ctx, "usr_alice"))
		_, err = tokens.FindByHash(ctx, hash)
		assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
	})

	t.Run("users", func(t *testing.T) {
		u, err := users.Get(ctx, "usr_alice")
		require.NoError(t, err)
		require.NotNil(t, u.Profile)
		assert.InDelta(t, 62.5, u.Profile.WeightKG, 1e-9)

		bob, err := users.Get(ctx, "usr_bob")
		require.NoError(t, err)
		assert.Nil(t, bob.Profile)

		ids, err := users.ListIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"usr_alice"}, ids)

		bob.Locale = "de-DE"
		bob.Profile = &user.Profile{WeightKG: 80, CreatedAt: base, UpdatedAt: base}
		bob.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, users.Update(ctx, bob))

		ids, err = users.ListIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"usr_alice", "usr_bob"}, ids)

		err = users.Update(ctx, &user.User{ID: "usr_nobody"})
		assert.ErrorIs(t, err, user.ErrUserNotFound)
	})

	t.Run("doses", func(t *testing.T) {
		notes := "left thigh"
		theta := pk.ThetaFromHold(10)
		tier := "standard"
		batch := []*dosing.Dose{
			{ID: "dose_1", UserID: "usr_alice", AdministeredAt: base, Route: pk.Injection, Compound: pk.EstradiolValerate, MassMg: 5, Notes: &notes},
			{ID: "dose_2", UserID: "usr_alice", AdministeredAt: base.Add(24 * time.Hour), Route: pk.Sublingual, Compound: pk.Estradiol, MassMg: 2, Theta: &theta, SublingualTier: &tier},
			{ID: "dose_3", UserID: "usr_alice", AdministeredAt: base.Add(48 * time.Hour), Route: pk.Patch, Compound: pk.Estradiol, PatchMode: pk.PatchByRate, PatchAmount: 100, PatchWearHours: 84},
		}
		for _, d := range batch {
			d.CreatedAt, d.UpdatedAt = base, base
		}
		require.NoError(t, doses.Create(ctx, batch[0]))
		require.NoError(t, doses.CreateMany(ctx, batch[1:]))

		page, err := doses.List(ctx, "usr_alice", dosing.ListOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "dose_2", page.NextCursor)

		page, err = doses.List(ctx, "usr_alice", dosing.ListOptions{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "dose_3", page.Items[0].ID)
		assert.Equal(t, pk.PatchByRate, page.Items[0].PatchMode)
		assert.Empty(t, page.NextCursor)

		from, to := base.Add(time.Hour), base.Add(48*time.Hour)
		page, err = doses.List(ctx, "usr_alice", dosing.ListOptions{From: &from, To: &to})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "dose_2", page.Items[0].ID)
		require.NotNil(t, page.Items[0].Theta)
		assert.InDelta(t, theta, *page.Items[0].Theta, 1e-12)

		_, err = doses.List(ctx, "usr_alice", dosing.ListOptions{Cursor: "dose_unknown"})
		assert.ErrorIs(t, err, dosing.ErrInvalidCursor)

		_, err = doses.GetByUserAndID(ctx, "usr_bob", "dose_1")
		assert.ErrorIs(t, err, dosing.ErrDoseNotFound)

		updated := *batch[0]
		updated.MassMg = 4
		updated.Notes = nil
		updated.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, doses.Update(ctx, &updated))

		got, err := doses.GetByUserAndID(ctx, "usr_alice", "dose_1")
		require.NoError(t, err)
		assert.InDelta(t, 4, got.MassMg, 1e-9)
		assert.Nil(t, got.Notes)

		wrongOwner := updated
		wrongOwner.UserID = "usr_bob"
		assert.ErrorIs(t, doses.Update(ctx, &wrongOwner), dosing.ErrDoseNotFound)

		all, err := doses.ListAll(ctx, "usr_alice")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		require.NoError(t, doses.Delete(ctx, "dose_3"))
		n, err := doses.DeleteAllForUser(ctx, "usr_alice")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("snapshots", func(t *testing.T) {
		_, err := snapshots.Get(ctx, "usr_alice")
		assert.ErrorIs(t, err, levels.ErrSnapshotNotFound)

		snap := &levels.Snapshot{
			ID: "snap_1", UserID: "usr_alice", ComputedAt: base,
			CurrentPgML: 120, PeakPgML: 250, PeakAt: base.Add(2 * time.Hour),
			TroughPgML: 90, TroughAt: base.Add(20 * time.Hour),
			HorizonHours: 24, DoseCount: 3,
		}
		require.NoError(t, snapshots.Upsert(ctx, snap))

		snap.ID, snap.CurrentPgML = "snap_2", 130
		require.NoError(t, snapshots.Upsert(ctx, snap))

		got, err := snapshots.Get(ctx, "usr_alice")
		require.NoError(t, err)
		assert.Equal(t, "snap_2", got.ID)
		assert.InDelta(t, 130, got.CurrentPgML, 1e-9)
		assert.True(t, snap.PeakAt.Equal(got.PeakAt))

		require.NoError(t, snapshots.Delete(ctx, "usr_alice"))
		require.NoError(t, snapshots.Delete(ctx, "usr_alice"))
		_, err = snapshots.Get(ctx, "usr_alice")
		assert.ErrorIs(t, err, levels.ErrSnapshotNotFound)
	})

	t.Run("feature flags", func(t *testing.T) {
		_, err := flags.GetFlag(ctx, featureflags.FlagEnableGelRoute)
		assert.ErrorIs(t, err, featureflags.ErrFlagNotFound)

		require.NoError(t, flags.SetFlags(ctx, []*featureflags.Flag{
			{Key: featureflags.FlagEnableGelRoute, Value: true, UpdatedAt: base},
			{Key: featureflags.FlagMaxSimulationSamples, Value: float64(5000), UpdatedAt: base},
		}))

		all, err := flags.GetAllFlags(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, true, all[featureflags.FlagEnableGelRoute].Value)
		assert.Equal(t, 5000, all[featureflags.FlagMaxSimulationSamples].IntValue(0))

		require.NoError(t, flags.SetFlag(ctx, &featureflags.Flag{Key: featureflags.FlagEnableGelRoute, Value: false, UpdatedAt: base}))
		flag, err := flags.GetFlag(ctx, featureflags.FlagEnableGelRoute)
		require.NoError(t, err)
		assert.False(t, flag.BoolValue(true))

		require.NoError(t, flags.DeleteFlag(ctx, featureflags.FlagEnableGelRoute))
		assert.ErrorIs(t, flags.DeleteFlag(ctx, featureflags.FlagEnableGelRoute), featureflags.ErrFlagNotFound)
	})

	t.Run("account deletion cascades", func(t *testing.T) {
		require.NoError(t, doses.Create(ctx, &dosing.Dose{
			ID: "dose_bob", UserID: "usr_bob", AdministeredAt: base,
			Route: pk.Oral, Compound: pk.Estradiol, MassMg: 2, CreatedAt: base, UpdatedAt: base,
		}))

		require.NoError(t, accounts.Delete(ctx, "usr_bob"))

		_, err := users.Get(ctx, "usr_bob")
		assert.ErrorIs(t, err, user.ErrUserNotFound)
		all, err := doses.ListAll(ctx, "usr_bob")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
