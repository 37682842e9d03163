// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package postgres implements auth.AccountStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/auth"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock pools satisfy
// it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Unique constraint names from the accounts migration.
const (
	constraintUsername = "accounts_username_key"
	constraintEmail    = "accounts_email_key"
	constraintPrimary  = "accounts_pkey"
)

const selectAccount = `
	SELECT id, username, email, full_name, avatar_url, cover_image_url,
	       password_hash, COALESCE(refresh_token_hash, ''), created_at, updated_at
	FROM accounts
`

// AccountStore implements auth.AccountStore using PostgreSQL.
type AccountStore struct {
	db DB
}

// Compile-time interface check.
var _ auth.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore.
func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, account *auth.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (
			id, username, email, full_name, avatar_url, cover_image_url,
			password_hash, refresh_token_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.FullName,
		account.AvatarURL,
		account.CoverImageURL,
		account.PasswordHash,
		account.RefreshTokenHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintUsername:
			return auth.AccountExistsError("username")
		case constraintEmail:
			return auth.AccountExistsError("email")
		case constraintPrimary:
			return auth.AccountExistsError("id")
		}
		return auth.AccountExistsError(pgErr.ConstraintName)
	}
	return auth.StorageError("insert account", err)
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := s.db.QueryRow(ctx, selectAccount+`WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.NotFoundError("id", id.String())
	}
	if err != nil {
		return nil, auth.StorageError("get account by id", err)
	}
	return account, nil
}

// GetByIdentifier retrieves an account by username or email (case-insensitive).
func (s *AccountStore) GetByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	identifier = auth.NormalizeIdentifier(identifier)
	row := s.db.QueryRow(ctx, selectAccount+`WHERE LOWER(username) = $1 OR LOWER(email) = $1 LIMIT 1`, identifier)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.NotFoundError("identifier", identifier)
	}
	if err != nil {
		return nil, auth.StorageError("get account by identifier", err)
	}
	return account, nil
}

// SetRefreshTokenHash stores hash unconditionally, and passwordHash when
// it is non-empty, in one statement.
func (s *AccountStore) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET refresh_token_hash = NULLIF($2, ''),
			password_hash = COALESCE(NULLIF($3, ''), password_hash),
			updated_at = NOW()
		WHERE id = $1
	`, id.String(), hash, passwordHash)
	if err != nil {
		return auth.StorageError("set refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

// SwapRefreshTokenHash replaces expected with next in a single conditional
// UPDATE. When no row matches, a second query tells a missing account apart
// from a stale expected value.
func (s *AccountStore) SwapRefreshTokenHash(ctx context.Context, id ulid.ULID, expected, next string) error {
	if expected == "" {
		return oops.With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET refresh_token_hash = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token_hash = $2
	`, id.String(), expected, next)
	if err != nil {
		return auth.StorageError("swap refresh token", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return auth.NotFoundError("id", id.String())
	}
	return oops.With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
}

// ClearRefreshTokenHash sets the stored refresh token to NULL.
func (s *AccountStore) ClearRefreshTokenHash(ctx context.Context, id ulid.ULID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET refresh_token_hash = NULL, updated_at = NOW()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return auth.StorageError("clear refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

// UpdatePasswordHash sets a new digest and clears the session in one statement.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, refresh_token_hash = NULL, updated_at = NOW()
		WHERE id = $1
	`, id.String(), hash)
	if err != nil {
		return auth.StorageError("update password hash", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (s *AccountStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return auth.StorageError("ping", err)
	}
	return nil
}

func (s *AccountStore) exists(ctx context.Context, id ulid.ULID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return false, auth.StorageError("check account exists", err)
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a     auth.Account
		idStr string
	)
	if err := row.Scan(
		&idStr,
		&a.Username,
		&a.Email,
		&a.FullName,
		&a.AvatarURL,
		&a.CoverImageURL,
		&a.PasswordHash,
		&a.RefreshTokenHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	a.ID = id
	return &a, nil
}
