// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package auth implements account credentials and the session token
// protocol for VidTube.
//
// # Tokens
//
// A session is an access token (short-lived, stateless) plus a refresh
// token (long-lived). Both are HS256 JWTs issued by TokenCodec, each kind
// signed with its own secret. Only the SHA-256 of the current refresh
// token is stored on the Account.
//
// # Rotation
//
// Every successful Refresh replaces the stored refresh token through
// AccountStore.SwapRefreshTokenHash, a compare-and-set keyed on the old
// value. Presenting a refresh token that verifies but is not the stored
// one clears the session (reuse detection).
//
// # Errors
//
// Service errors are oops errors wrapping one sentinel (ErrValidation,
// ErrInvalidCredentials, ErrNotFound, ErrAccountExists,
// ErrInvalidRefreshToken, ErrRefreshTokenReuse, ErrUnauthenticated,
// ErrStorageUnavailable). ErrorCode maps them to stable codes and
// IsRetryable is true only for storage failures.
package auth
