// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account is a registered user. Username and Email are stored lower-case
// and are each unique. RefreshTokenHash is empty when there is no active
// session.
type Account struct {
	ID               ulid.ULID
	Username         string
	Email            string
	FullName         string
	AvatarURL        string
	CoverImageURL    string
	PasswordHash     string
	RefreshTokenHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile is the public projection of an Account. It never carries the
// password digest or refresh token.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Profile returns the public projection of a.
func (a *Account) Profile() Profile {
	return Profile{
		ID:            a.ID.String(),
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// HasSession reports whether a refresh token is currently stored.
func (a *Account) HasSession() bool {
	return a.RefreshTokenHash != ""
}

// NewAccount creates a validated Account with a fresh ID.
// Username and email are normalized to lower case.
func NewAccount(username, email, fullName, passwordHash string, now time.Time) (*Account, error) {
	username = NormalizeIdentifier(username)
	email = NormalizeIdentifier(email)
	fullName = strings.TrimSpace(fullName)

	if username == "" || email == "" || fullName == "" {
		return nil, validationError("new account", "username, email and full name are required")
	}
	if strings.ContainsAny(username, " @") {
		return nil, validationError("new account", "username cannot contain spaces or '@'")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationError("new account", "email address is invalid")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeIdentifier trims and lower-cases a username or email.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AccountStore persists accounts. It is the only shared mutable state of
// the session protocol. Failures of the backend itself wrap
// ErrStorageUnavailable (see StorageError); missing accounts wrap
// ErrNotFound.
type AccountStore interface {
	// Create inserts a new account. Returns an error wrapping
	// ErrAccountExists if the username or email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByIdentifier retrieves an account whose username or email equals
	// identifier, case-insensitively.
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)

	// SetRefreshTokenHash unconditionally stores hash as the current
	// refresh token. A non-empty passwordHash replaces the password digest
	// in the same write; an empty one leaves it unchanged.
	SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash, passwordHash string) error

	// SwapRefreshTokenHash atomically replaces expected with next. Returns
	// ErrRefreshTokenStale if the stored hash is no longer expected.
	SwapRefreshTokenHash(ctx context.Context, id ulid.ULID, expected, next string) error

	// ClearRefreshTokenHash removes the stored refresh token. Clearing an
	// account without a session is not an error.
	ClearRefreshTokenHash(ctx context.Context, id ulid.ULID) error

	// UpdatePasswordHash stores a new password digest and clears the
	// refresh token in the same write.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}
