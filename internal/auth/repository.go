package auth

import (
	"context"
	"sync"
	"time"
)

// InMemoryAccountRepository is an in-memory implementation of
// AccountRepository for development and tests.
type InMemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewInMemoryAccountRepository creates a new in-memory account repository.
func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		accounts: make(map[string]*Account),
	}
}

// Create creates a new account.
func (r *InMemoryAccountRepository) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accountCopy := *account
	r.accounts[account.ID] = &accountCopy
	return nil
}

// FindByID finds an account by ID.
func (r *InMemoryAccountRepository) FindByID(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}

	accountCopy := *account
	return &accountCopy, nil
}

// Touch records that an account was used at the given time.
func (r *InMemoryAccountRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.LastSeenAt = at
	return nil
}

// Delete deletes an account. Deleting an unknown account is not an error.
func (r *InMemoryAccountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, id)
	return nil
}

// InMemoryRefreshTokenRepository is an in-memory implementation of
// RefreshTokenRepository for development and tests.
type InMemoryRefreshTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*RefreshToken // keyed by token hash
	byUser map[string][]string      // userID -> token hashes
}

// NewInMemoryRefreshTokenRepository creates a new in-memory refresh token repository.
func NewInMemoryRefreshTokenRepository() *InMemoryRefreshTokenRepository {
	return &InMemoryRefreshTokenRepository{
		tokens: make(map[string]*RefreshToken),
		byUser: make(map[string][]string),
	}
}

// Create stores a new refresh token.
func (r *InMemoryRefreshTokenRepository) Create(_ context.Context, token *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokenCopy := *token
	r.tokens[token.TokenHash] = &tokenCopy
	r.byUser[token.UserID] = append(r.byUser[token.UserID], token.TokenHash)

	return nil
}

// FindByHash finds a refresh token by the hash of its value.
func (r *InMemoryRefreshTokenRepository) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[hash]
	if !ok {
		return nil, ErrInvalidRefreshToken
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// Revoke marks a refresh token as revoked. Unknown tokens are ignored.
func (r *InMemoryRefreshTokenRepository) Revoke(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[hash]
	if !ok {
		return nil
	}
	if token.RevokedAt == nil {
		now := time.Now()
		token.RevokedAt = &now
	}
	return nil
}

// RevokeAllForUser revokes all refresh tokens for a user.
func (r *InMemoryRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, hash := range r.byUser[userID] {
		if token, ok := r.tokens[hash]; ok && token.RevokedAt == nil {
			token.RevokedAt = &now
		}
	}
	return nil
}

// DeleteAllForUser removes every refresh token of a user.
func (r *InMemoryRefreshTokenRepository) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, hash := range r.byUser[userID] {
		delete(r.tokens, hash)
	}
	delete(r.byUser, userID)
	return nil
}

var (
	_ AccountRepository      = (*InMemoryAccountRepository)(nil)
	_ RefreshTokenRepository = (*InMemoryRefreshTokenRepository)(nil)
)
