// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Logout ends the account's session by clearing its refresh token.
// Outstanding access tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, accountID ulid.ULID) (err error) {
	defer func() { s.record(ctx, EventLogout, err) }()

	if err := s.accounts.ClearRefreshTokenHash(ctx, accountID); err != nil {
		return propagate(err, "logout", accountID)
	}
	s.logger.InfoContext(ctx, "logout succeeded", "account_id", accountID.String())
	return nil
}

// ChangePassword replaces the password after checking the old one. The
// new digest and the cleared session are written together, so every
// outstanding refresh token stops working.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, oldPassword, newPassword string) (err error) {
	defer func() { s.record(ctx, EventPasswordChange, err) }()

	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return validationError("change password", "old and new password are required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return propagate(err, "get account for password change", accountID)
	}
	if !s.hasher.Verify(oldPassword, account.PasswordHash) {
		return invalidCredentials("change password")
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "hash new password").Wrap(err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		return propagate(err, "store new password", accountID)
	}

	s.logger.InfoContext(ctx, "password changed, session cleared", "account_id", accountID.String())
	return nil
}
