package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Predefined service errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidLocale   = errors.New("invalid locale")
)

// AccountRepository defines the interface for account persistence.
type AccountRepository interface {
	// Create creates a new account.
	Create(ctx context.Context, account *Account) error

	// FindByID finds an account by ID.
	FindByID(ctx context.Context, id string) (*Account, error)

	// Touch records that an account was used at the given time.
	Touch(ctx context.Context, id string, at time.Time) error

	// Delete deletes an account.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository defines the interface for refresh token operations.
// Tokens are addressed by HashRefreshToken of their value.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// FindByHash finds a refresh token by the hash of its value.
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// Revoke marks a refresh token as revoked.
	Revoke(ctx context.Context, hash string) error

	// RevokeAllForUser revokes all refresh tokens for a user.
	RevokeAllForUser(ctx context.Context, userID string) error

	// DeleteAllForUser removes every refresh token of a user.
	DeleteAllForUser(ctx context.Context, userID string) error
}

// RegisterHook runs after an account is created and before tokens are
// issued. A hook error aborts the registration.
type RegisterHook func(ctx context.Context, accountID, locale string) error

// Service provides authentication operations.
type Service struct {
	jwtService    *JWTService
	accounts      AccountRepository
	refreshRepo   RefreshTokenRepository
	onRegister    RegisterHook
	defaultLocale string
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService    *JWTService
	AccountRepo   AccountRepository
	RefreshRepo   RefreshTokenRepository
	OnRegister    RegisterHook
	DefaultLocale string
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	locale := cfg.DefaultLocale
	if locale == "" {
		locale = "en-US"
	}

	return &Service{
		jwtService:    cfg.JWTService,
		accounts:      cfg.AccountRepo,
		refreshRepo:   cfg.RefreshRepo,
		onRegister:    cfg.OnRegister,
		defaultLocale: locale,
	}
}

// Register creates an anonymous account and returns its first token pair.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*TokenResponse, error) {
	locale := s.defaultLocale
	if req.Locale != "" {
		tag, err := language.Parse(req.Locale)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLocale, req.Locale)
		}
		locale = tag.String()
	}

	now := time.Now()
	account := &Account{
		ID:         generateUserID(),
		Locale:     locale,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	if s.onRegister != nil {
		if err := s.onRegister(ctx, account.ID, account.Locale); err != nil {
			_ = s.accounts.Delete(ctx, account.ID) //nolint:errcheck // best effort cleanup
			return nil, fmt.Errorf("provisioning account: %w", err)
		}
	}

	return s.generateTokens(ctx, account)
}

// RefreshAccessToken exchanges a refresh token for a new token pair. The
// presented token is revoked.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshTokenStr string) (*TokenResponse, error) {
	hash := HashRefreshToken(refreshTokenStr)

	refreshToken, err := s.refreshRepo.FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	if refreshToken.RevokedAt != nil {
		return nil, ErrInvalidRefreshToken
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	account, err := s.accounts.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	// Rotation
	if err := s.refreshRepo.Revoke(ctx, hash); err != nil {
		return nil, fmt.Errorf("revoking old refresh token: %w", err)
	}

	account.LastSeenAt = time.Now()
	if err := s.accounts.Touch(ctx, account.ID, account.LastSeenAt); err != nil {
		return nil, fmt.Errorf("touching account: %w", err)
	}

	return s.generateTokens(ctx, account)
}

// ValidateAccessToken validates an access token and returns the account ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	return s.jwtService.ValidateAccessToken(tokenString)
}

// GetAccount retrieves an account by ID.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return s.accounts.FindByID(ctx, accountID)
}

// RevokeRefreshToken revokes a specific refresh token.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshTokenStr string) error {
	return s.refreshRepo.Revoke(ctx, HashRefreshToken(refreshTokenStr))
}

// RevokeAllTokens revokes all refresh tokens for an account (logout everywhere).
func (s *Service) RevokeAllTokens(ctx context.Context, accountID string) error {
	return s.refreshRepo.RevokeAllForUser(ctx, accountID)
}

// DeleteAccount removes an account and its refresh tokens.
func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	if err := s.refreshRepo.DeleteAllForUser(ctx, accountID); err != nil {
		return fmt.Errorf("deleting refresh tokens: %w", err)
	}
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

// generateTokens generates both access and refresh tokens for an account.
func (s *Service) generateTokens(ctx context.Context, account *Account) (*TokenResponse, error) {
	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshTokenStr, err := GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	now := time.Now()
	refreshToken := &RefreshToken{
		ID:        uuid.New().String(),
		TokenHash: HashRefreshToken(refreshTokenStr),
		UserID:    account.ID,
		ExpiresAt: now.Add(RefreshTokenExpiry),
		CreatedAt: now,
	}

	if err := s.refreshRepo.Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		RefreshToken: refreshTokenStr,
		Account:      account,
	}, nil
}

// generateUserID generates a unique account ID with prefix.
func generateUserID() string {
	return "usr_" + uuid.New().String()[:22]
}
