// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package memory provides an in-process AccountStore for tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vidtube/vidtube/internal/auth"
)

// AccountStore keeps accounts in a map guarded by a mutex. Returned
// accounts are copies.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[ulid.ULID]*auth.Account
	now      func() time.Time
}

// Compile-time interface check.
var _ auth.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[ulid.ULID]*auth.Account),
		now:      time.Now,
	}
}

// Create inserts a new account.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Username == account.Username {
			return auth.AccountExistsError("username")
		}
		if a.Email == account.Email {
			return auth.AccountExistsError("email")
		}
	}
	if _, ok := s.accounts[account.ID]; ok {
		return auth.AccountExistsError("id")
	}

	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.NotFoundError("id", id.String())
	}
	out := *a
	return &out, nil
}

// GetByIdentifier retrieves an account by username or email.
func (s *AccountStore) GetByIdentifier(_ context.Context, identifier string) (*auth.Account, error) {
	identifier = auth.NormalizeIdentifier(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Username == identifier || a.Email == identifier {
			out := *a
			return &out, nil
		}
	}
	return nil, auth.NotFoundError("identifier", identifier)
}

// SetRefreshTokenHash stores hash unconditionally, and passwordHash when
// it is non-empty.
func (s *AccountStore) SetRefreshTokenHash(_ context.Context, id ulid.ULID, hash, passwordHash string) error {
	return s.update(id, func(a *auth.Account) error {
		a.RefreshTokenHash = hash
		if passwordHash != "" {
			a.PasswordHash = passwordHash
		}
		return nil
	})
}

// SwapRefreshTokenHash replaces expected with next if expected is current.
func (s *AccountStore) SwapRefreshTokenHash(_ context.Context, id ulid.ULID, expected, next string) error {
	return s.update(id, func(a *auth.Account) error {
		if expected == "" || a.RefreshTokenHash != expected {
			return auth.ErrRefreshTokenStale
		}
		a.RefreshTokenHash = next
		return nil
	})
}

// ClearRefreshTokenHash removes the stored refresh token.
func (s *AccountStore) ClearRefreshTokenHash(_ context.Context, id ulid.ULID) error {
	return s.update(id, func(a *auth.Account) error {
		a.RefreshTokenHash = ""
		return nil
	})
}

// UpdatePasswordHash sets the password digest and clears the session.
func (s *AccountStore) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	return s.update(id, func(a *auth.Account) error {
		a.PasswordHash = hash
		a.RefreshTokenHash = ""
		return nil
	})
}

// Ping always succeeds.
func (s *AccountStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func (s *AccountStore) update(id ulid.ULID, fn func(*auth.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return auth.NotFoundError("id", id.String())
	}
	if err := fn(a); err != nil {
		return err
	}
	a.UpdatedAt = s.now()
	return nil
}
