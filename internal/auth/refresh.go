// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh rotates a refresh token. The presented token must be the one
// currently stored for its account. A valid token that is not current is
// treated as stolen: the session is destroyed and the call fails with
// ErrRefreshTokenReuse. Each refresh token can be rotated at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { s.record(ctx, EventRefresh, err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, invalidRefreshToken(ErrTokenMalformed)
	}

	now := s.clock()
	subject, err := s.tokens.Verify(refreshToken, RefreshToken, now)
	if err != nil {
		return nil, invalidRefreshToken(err)
	}
	id, err := ulid.Parse(subject)
	if err != nil {
		return nil, invalidRefreshToken(err)
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, propagate(err, "get account for refresh", id)
	}

	if !refreshTokenMatches(refreshToken, account.RefreshTokenHash) {
		return nil, s.destroyOnReuse(ctx, id)
	}

	next, err := s.issuePair(id, now)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	err = s.accounts.SwapRefreshTokenHash(ctx, id, account.RefreshTokenHash, HashRefreshToken(next.RefreshToken))
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshTokenStale):
		// A concurrent refresh consumed the same token first. Its new token
		// stays valid; this caller only learns that its token is spent.
		s.logger.WarnContext(ctx, "refresh token rotated concurrently", "account_id", id.String())
		return nil, oops.Code(CodeRefreshTokenReuse).
			With("operation", "rotate refresh token").
			With("account_id", id.String()).
			Wrapf(ErrRefreshTokenReuse, "refresh token already used")
	default:
		return nil, propagate(err, "rotate refresh token", id)
	}

	s.logger.InfoContext(ctx, "refresh token rotated", "account_id", id.String())
	return &next, nil
}

// destroyOnReuse clears the session after a replayed refresh token.
func (s *Service) destroyOnReuse(ctx context.Context, id ulid.ULID) error {
	s.logger.WarnContext(ctx, "refresh token reuse detected, destroying session", "account_id", id.String())
	if err := s.accounts.ClearRefreshTokenHash(ctx, id); err != nil {
		return propagate(err, "clear session after reuse", id)
	}
	return oops.Code(CodeRefreshTokenReuse).
		With("operation", "refresh").
		With("account_id", id.String()).
		Wrapf(ErrRefreshTokenReuse, "refresh token already used")
}

func invalidRefreshToken(cause error) error {
	return oops.Code(CodeInvalidRefreshToken).
		With("operation", "verify refresh token").
		With("cause", cause.Error()).
		Wrapf(ErrInvalidRefreshToken, "refresh token is invalid or expired")
}
