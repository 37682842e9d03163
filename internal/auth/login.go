// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/vidtube/vidtube/pkg/errutil"
)

// Login verifies credentials and starts a new session, replacing any
// refresh token stored for the account. identifier may be a username or
// an email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (session *Session, err error) {
	defer func() { s.record(ctx, EventLogin, err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.TrimSpace(password) == "" {
		return nil, validationError("login", "identifier and password are required")
	}

	account, lookupErr := s.accounts.GetByIdentifier(ctx, identifier)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.With("operation", "get account by identifier").Wrap(lookupErr)
	}

	// Always verify so an unknown identifier costs the same as a wrong password.
	targetHash := s.dummyHash
	if account != nil {
		targetHash = account.PasswordHash
	}
	valid := s.hasher.Verify(password, targetHash)

	if account == nil {
		if s.concealUnknownAccount {
			return nil, invalidCredentials("login")
		}
		return nil, oops.Code(CodeAccountNotFound).
			With("operation", "login").
			Wrapf(ErrNotFound, "account not found")
	}
	if !valid {
		return nil, invalidCredentials("login")
	}

	var upgradedHash string
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		upgradedHash = s.upgradePasswordHash(ctx, account, password)
	}

	now := s.clock()
	pair, err := s.issuePair(account.ID, now)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	if err := s.accounts.SetRefreshTokenHash(ctx, account.ID, HashRefreshToken(pair.RefreshToken), upgradedHash); err != nil {
		return nil, propagate(err, "persist refresh token", account.ID)
	}
	if upgradedHash != "" {
		account.PasswordHash = upgradedHash
		s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID.String())
	return &Session{Account: account.Profile(), Tokens: pair}, nil
}

// upgradePasswordHash re-hashes a legacy digest for storage alongside the
// new session. It returns "" if hashing fails; the failure is logged and
// the login continues with the old digest.
func (s *Service) upgradePasswordHash(ctx context.Context, account *Account, password string) string {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger.With("account_id", account.ID.String()),
			slog.LevelWarn, "password hash upgrade failed", err)
		return ""
	}
	return newHash
}

func invalidCredentials(operation string) error {
	return oops.Code(CodeInvalidCredentials).
		With("operation", operation).
		Wrapf(ErrInvalidCredentials, "invalid identifier or password")
}
