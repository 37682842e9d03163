// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package redis implements auth.AccountStore on Redis. Each account is a
// hash; username and email map to the account ID through index keys. Every
// write that has a precondition runs as a Lua script so it is atomic.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/auth"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "vidtube"

// Script results.
const (
	resultMissing  = 0
	resultOK       = 1
	resultConflict = 2
	resultUsername = 3
	resultEmail    = 4
)

// KEYS[1] account, KEYS[2] username index, KEYS[3] email index.
// ARGV[1] id, ARGV[2..] field/value pairs.
var createScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 3
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 4
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
return 1
`)

// KEYS[1] account. ARGV field/value pairs.
var updateScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// KEYS[1] account. ARGV[1] expected, ARGV[2] next, ARGV[3] updated_at.
var swapScript = goredis.NewScript(`
local current = redis.call("HGET", KEYS[1], "refresh_token_hash")
if current == false then
  if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
  end
  return 2
end
if current ~= ARGV[1] then
  return 2
end
redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[2], "updated_at", ARGV[3])
return 1
`)

// AccountStore implements auth.AccountStore using Redis.
type AccountStore struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// Compile-time interface check.
var _ auth.AccountStore = (*AccountStore)(nil)

// Option configures an AccountStore.
type Option func(*AccountStore)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *AccountStore) { s.prefix = prefix }
}

// WithClock sets the time source for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *AccountStore) { s.now = now }
}

// NewAccountStore creates a store on rdb.
func NewAccountStore(rdb goredis.UniversalClient, opts ...Option) *AccountStore {
	s := &AccountStore{rdb: rdb, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AccountStore) accountKey(id string) string { return s.prefix + ":account:" + id }
func (s *AccountStore) usernameKey(u string) string { return s.prefix + ":username:" + u }
func (s *AccountStore) emailKey(e string) string    { return s.prefix + ":email:" + e }

// Create stores a new account and claims its username and email.
func (s *AccountStore) Create(ctx context.Context, account *auth.Account) error {
	id := account.ID.String()
	args := append([]any{id}, encode(account)...)
	res, err := createScript.Run(ctx, s.rdb,
		[]string{s.accountKey(id), s.usernameKey(account.Username), s.emailKey(account.Email)},
		args...,
	).Int()
	if err != nil {
		return auth.StorageError("create account", err)
	}

	switch res {
	case resultOK:
		return nil
	case resultConflict:
		return auth.AccountExistsError("id")
	case resultUsername:
		return auth.AccountExistsError("username")
	case resultEmail:
		return auth.AccountExistsError("email")
	}
	return unexpected("create account", res)
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	fields, err := s.rdb.HGetAll(ctx, s.accountKey(id.String())).Result()
	if err != nil {
		return nil, auth.StorageError("get account by id", err)
	}
	if len(fields) == 0 {
		return nil, auth.NotFoundError("id", id.String())
	}
	return decode(id, fields)
}

// GetByIdentifier resolves a username, then an email, to an account.
func (s *AccountStore) GetByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	identifier = auth.NormalizeIdentifier(identifier)

	for _, key := range []string{s.usernameKey(identifier), s.emailKey(identifier)} {
		raw, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, auth.StorageError("resolve identifier", err)
		}
		id, err := ulid.Parse(raw)
		if err != nil {
			return nil, oops.Code("ACCOUNT_CORRUPT_ID").With("key", key).Wrap(err)
		}
		account, err := s.GetByID(ctx, id)
		if errors.Is(err, auth.ErrNotFound) {
			// Dangling index entry.
			continue
		}
		return account, err
	}
	return nil, auth.NotFoundError("identifier", identifier)
}

// SetRefreshTokenHash stores hash unconditionally, and passwordHash when
// it is non-empty, in one script.
func (s *AccountStore) SetRefreshTokenHash(ctx context.Context, id ulid.ULID, hash, passwordHash string) error {
	pairs := []any{"refresh_token_hash", hash}
	if passwordHash != "" {
		pairs = append(pairs, "password_hash", passwordHash)
	}
	return s.update(ctx, "set refresh token", id, pairs...)
}

// SwapRefreshTokenHash replaces expected with next atomically.
func (s *AccountStore) SwapRefreshTokenHash(ctx context.Context, id ulid.ULID, expected, next string) error {
	if expected == "" {
		return oops.With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
	}
	res, err := swapScript.Run(ctx, s.rdb, []string{s.accountKey(id.String())},
		expected, next, formatTime(s.now())).Int()
	if err != nil {
		return auth.StorageError("swap refresh token", err)
	}

	switch res {
	case resultOK:
		return nil
	case resultMissing:
		return auth.NotFoundError("id", id.String())
	case resultConflict:
		return oops.With("id", id.String()).Wrap(auth.ErrRefreshTokenStale)
	}
	return unexpected("swap refresh token", res)
}

// ClearRefreshTokenHash empties the stored refresh token.
func (s *AccountStore) ClearRefreshTokenHash(ctx context.Context, id ulid.ULID) error {
	return s.update(ctx, "clear refresh token", id, "refresh_token_hash", "")
}

// UpdatePasswordHash sets the digest and clears the session in one script.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return s.update(ctx, "update password hash", id, "password_hash", hash, "refresh_token_hash", "")
}

// Ping checks Redis connectivity for readiness probes.
func (s *AccountStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return auth.StorageError("ping", err)
	}
	return nil
}

func (s *AccountStore) update(ctx context.Context, operation string, id ulid.ULID, pairs ...any) error {
	pairs = append(pairs, "updated_at", formatTime(s.now()))
	res, err := updateScript.Run(ctx, s.rdb, []string{s.accountKey(id.String())}, pairs...).Int()
	if err != nil {
		return auth.StorageError(operation, err)
	}
	if res == resultMissing {
		return auth.NotFoundError("id", id.String())
	}
	return nil
}

func encode(a *auth.Account) []any {
	return []any{
		"username", a.Username,
		"email", a.Email,
		"full_name", a.FullName,
		"avatar_url", a.AvatarURL,
		"cover_image_url", a.CoverImageURL,
		"password_hash", a.PasswordHash,
		"refresh_token_hash", a.RefreshTokenHash,
		"created_at", formatTime(a.CreatedAt),
		"updated_at", formatTime(a.UpdatedAt),
	}
}

func decode(id ulid.ULID, f map[string]string) (*auth.Account, error) {
	created, err := time.Parse(time.RFC3339Nano, f["created_at"])
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", id.String()).With("field", "created_at").Wrap(err)
	}
	updated, err := time.Parse(time.RFC3339Nano, f["updated_at"])
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", id.String()).With("field", "updated_at").Wrap(err)
	}
	return &auth.Account{
		ID:               id,
		Username:         f["username"],
		Email:            f["email"],
		FullName:         f["full_name"],
		AvatarURL:        f["avatar_url"],
		CoverImageURL:    f["cover_image_url"],
		PasswordHash:     f["password_hash"],
		RefreshTokenHash: f["refresh_token_hash"],
		CreatedAt:        created,
		UpdatedAt:        updated,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func unexpected(operation string, res int) error {
	return auth.StorageError(operation, oops.Errorf("unexpected script result %d", res))
}
