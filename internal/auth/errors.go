// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Stable machine-readable error codes surfaced to API clients.
const (
	CodeValidation          = "AUTH_VALIDATION_FAILED"
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeAccountNotFound     = "AUTH_ACCOUNT_NOT_FOUND"
	CodeAccountExists       = "AUTH_ACCOUNT_EXISTS"
	CodeInvalidRefreshToken = "AUTH_INVALID_REFRESH_TOKEN"
	CodeRefreshTokenReuse   = "AUTH_REFRESH_TOKEN_REUSE_DETECTED"
	CodeUnauthenticated     = "AUTH_UNAUTHENTICATED"
	CodeStorageUnavailable  = "AUTH_STORAGE_UNAVAILABLE"
)

// Sentinel errors. Every error returned by Service wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotFound            = errors.New("not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrStorageUnavailable  = errors.New("account storage unavailable")
)

// ErrRefreshTokenStale is returned by AccountStore.SwapRefreshTokenHash when
// the stored hash no longer equals the expected value.
var ErrRefreshTokenStale = errors.New("stored refresh token changed")

var errorCodes = []struct {
	sentinel error
	code     string
}{
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrRefreshTokenReuse, CodeRefreshTokenReuse},
	{ErrInvalidRefreshToken, CodeInvalidRefreshToken},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrAccountExists, CodeAccountExists},
	{ErrNotFound, CodeAccountNotFound},
	{ErrValidation, CodeValidation},
}

// ErrorCode classifies err into one of the stable codes above.
// Returns "" for errors outside the taxonomy.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.sentinel) {
			return ec.code
		}
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation.
// Only storage outages qualify; authentication failures are terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// StorageError wraps a backend failure so that it classifies as
// ErrStorageUnavailable while keeping the driver error in the chain.
func StorageError(operation string, err error) error {
	return oops.Code(CodeStorageUnavailable).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
}

// NotFoundError builds the store-level error for a missing account.
func NotFoundError(key string, value any) error {
	return oops.Code(CodeAccountNotFound).With(key, value).Wrap(ErrNotFound)
}

// AccountExistsError builds the store-level error for a uniqueness violation.
func AccountExistsError(field string) error {
	return oops.Code(CodeAccountExists).With("field", field).Wrap(ErrAccountExists)
}

func validationError(operation, format string, args ...any) error {
	return oops.Code(CodeValidation).
		With("operation", operation).
		Wrapf(ErrValidation, format, args...)
}
