package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtlevels/hrtlevels/internal/auth"
)

type testEnv struct {
	service  *auth.Service
	accounts *auth.InMemoryAccountRepository
	tokens   *auth.InMemoryRefreshTokenRepository
}

func newTestEnv(hook auth.RegisterHook) *testEnv {
	accounts := auth.NewInMemoryAccountRepository()
	tokens := auth.NewInMemoryRefreshTokenRepository()
	service := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: "test-secret-key-for-testing-only",
			Issuer:     "https://api.hrtlevels.app",
			Audience:   "hrtlevels-api",
		}),
		AccountRepo: accounts,
		RefreshRepo: tokens,
		OnRegister:  hook,
	})
	return &testEnv{service: service, accounts: accounts, tokens: tokens}
}

func TestService_Register(t *testing.T) {
	var provisioned []string
	env := newTestEnv(func(_ context.Context, accountID, locale string) error {
		provisioned = append(provisioned, accountID+"/"+locale)
		return nil
	})
	ctx := t.Context()

	resp, err := env.service.Register(ctx, &auth.RegisterRequest{Locale: "nl-nl"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.InDelta(t, auth.AccessTokenExpiry.Seconds(), float64(resp.ExpiresIn), 5)
	assert.Regexp(t, `^usr_`, resp.Account.ID)
	assert.Equal(t, "nl-NL", resp.Account.Locale)
	assert.Equal(t, []string{resp.Account.ID + "/nl-NL"}, provisioned)

	userID, err := env.service.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.Account.ID, userID)

	// Only the hash of the refresh token is stored.
	_, err = env.tokens.FindByHash(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
	stored, err := env.tokens.FindByHash(ctx, auth.HashRefreshToken(resp.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, resp.Account.ID, stored.UserID)
}

func TestService_Register_DefaultAndInvalidLocale(t *testing.T) {
	env := newTestEnv(nil)

	resp, err := env.service.Register(t.Context(), &auth.RegisterRequest{})
	require.NoError(t, err)
	assert.Equal(t, "en-US", resp.Account.Locale)

	_, err = env.service.Register(t.Context(), &auth.RegisterRequest{Locale: "not a locale!"})
	assert.ErrorIs(t, err, auth.ErrInvalidLocale)
}

func TestService_Register_HookFailureRemovesAccount(t *testing.T) {
	var created string
	env := newTestEnv(func(_ context.Context, accountID, _ string) error {
		created = accountID
		return errors.New("profile store unavailable")
	})

	_, err := env.service.Register(t.Context(), &auth.RegisterRequest{})
	require.Error(t, err)

	_, err = env.accounts.FindByID(t.Context(), created)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestService_RefreshAccessToken(t *testing.T) {
	env := newTestEnv(nil)
	ctx := t.Context()

	first, err := env.service.Register(ctx, &auth.RegisterRequest{})
	require.NoError(t, err)

	second, err := env.service.RefreshAccessToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.False(t, second.Account.LastSeenAt.Before(first.Account.LastSeenAt))

	// The old token was rotated out.
	_, err = env.service.RefreshAccessToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = env.service.RefreshAccessToken(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestService_RefreshAccessToken_Expired(t *testing.T) {
	env := newTestEnv(nil)
	ctx := t.Context()

	require.NoError(t, env.accounts.Create(ctx, &auth.Account{ID: "usr_old"}))
	require.NoError(t, env.tokens.Create(ctx, &auth.RefreshToken{
		ID:        "rt_1",
		TokenHash: auth.HashRefreshToken("stale"),
		UserID:    "usr_old",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-auth.RefreshTokenExpiry),
	}))

	_, err := env.service.RefreshAccessToken(ctx, "stale")
	assert.ErrorIs(t, err, auth.ErrRefreshTokenExpired)
}

func TestService_Logout(t *testing.T) {
	env := newTestEnv(nil)
	ctx := t.Context()

	a, err := env.service.Register(ctx, &auth.RegisterRequest{})
	require.NoError(t, err)
	b, err := env.service.RefreshAccessToken(ctx, a.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, env.service.RevokeRefreshToken(ctx, b.RefreshToken))
	_, err = env.service.RefreshAccessToken(ctx, b.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	c, err := env.service.Register(ctx, &auth.RegisterRequest{})
	require.NoError(t, err)
	require.NoError(t, env.service.RevokeAllTokens(ctx, c.Account.ID))
	_, err = env.service.RefreshAccessToken(ctx, c.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	// Revoking an unknown token is not an error.
	assert.NoError(t, env.service.RevokeRefreshToken(ctx, "unknown"))
}

func TestService_DeleteAccount(t *testing.T) {
	env := newTestEnv(nil)
	ctx := t.Context()

	resp, err := env.service.Register(ctx, &auth.RegisterRequest{})
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteAccount(ctx, resp.Account.ID))

	_, err = env.service.GetAccount(ctx, resp.Account.ID)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	_, err = env.service.RefreshAccessToken(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}
