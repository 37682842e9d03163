// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/auth/memory"
	"github.com/vidtube/vidtube/pkg/errutil"
)

func newAccount(t *testing.T, username, email string) *auth.Account {
	t.Helper()
	a, err := auth.NewAccount(username, email, "Test User", "$argon2id$fake", time.Now())
	require.NoError(t, err)
	return a
}

func TestAccountStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	alice := newAccount(t, "Alice", "alice@example.com")
	require.NoError(t, store.Create(ctx, alice))

	t.Run("by id", func(t *testing.T) {
		got, err := store.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("by username ignoring case", func(t *testing.T) {
		got, err := store.GetByIdentifier(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("by email", func(t *testing.T) {
		got, err := store.GetByIdentifier(ctx, " alice@example.com ")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := store.GetByIdentifier(ctx, "bob")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodeAccountNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.GetByID(ctx, ulid.Make())
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("returned account is a copy", func(t *testing.T) {
		got, err := store.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		got.RefreshTokenHash = "mutated"

		again, err := store.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, again.RefreshTokenHash)
	})
}

func TestAccountStore_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	require.NoError(t, store.Create(ctx, newAccount(t, "alice", "alice@example.com")))

	err := store.Create(ctx, newAccount(t, "alice", "other@example.com"))
	require.ErrorIs(t, err, auth.ErrAccountExists)
	errutil.AssertErrorContext(t, err, "field", "username")

	err = store.Create(ctx, newAccount(t, "alice2", "ALICE@example.com"))
	require.ErrorIs(t, err, auth.ErrAccountExists)
	errutil.AssertErrorContext(t, err, "field", "email")

	assert.Equal(t, 1, store.Len())
}

func TestAccountStore_RefreshTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	alice := newAccount(t, "alice", "alice@example.com")
	require.NoError(t, store.Create(ctx, alice))

	require.NoError(t, store.SetRefreshTokenHash(ctx, alice.ID, "h1", ""))

	err := store.SwapRefreshTokenHash(ctx, alice.ID, "wrong", "h2")
	require.ErrorIs(t, err, auth.ErrRefreshTokenStale)

	require.NoError(t, store.SwapRefreshTokenHash(ctx, alice.ID, "h1", "h2"))
	got, err := store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.RefreshTokenHash)

	require.NoError(t, store.ClearRefreshTokenHash(ctx, alice.ID))
	err = store.SwapRefreshTokenHash(ctx, alice.ID, "", "h3")
	require.ErrorIs(t, err, auth.ErrRefreshTokenStale, "empty expected value never matches")

	require.NoError(t, store.SetRefreshTokenHash(ctx, alice.ID, "h4", "upgraded-digest"))
	got, err = store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "upgraded-digest", got.PasswordHash)
	assert.Equal(t, "h4", got.RefreshTokenHash)

	require.NoError(t, store.UpdatePasswordHash(ctx, alice.ID, "new-digest"))
	got, err = store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-digest", got.PasswordHash)
	assert.False(t, got.HasSession())

	err = store.ClearRefreshTokenHash(ctx, ulid.Make())
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAccountStore_SwapIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAccountStore()
	alice := newAccount(t, "alice", "alice@example.com")
	require.NoError(t, store.Create(ctx, alice))
	require.NoError(t, store.SetRefreshTokenHash(ctx, alice.ID, "current", ""))

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if store.SwapRefreshTokenHash(ctx, alice.ID, "current", ulid.Make().String()) == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "current", got.RefreshTokenHash)
	assert.NotEmpty(t, got.RefreshTokenHash)
}
