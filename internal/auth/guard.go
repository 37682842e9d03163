// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Authenticate resolves an access token to its account. Access tokens are
// stateless: the session field is not consulted, so a logged-out account
// stays reachable until the token expires.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (account *Account, err error) {
	defer func() { s.record(ctx, EventAuthenticate, err) }()

	if accessToken == "" {
		return nil, unauthenticated(errors.New("no access token"))
	}

	subject, err := s.tokens.Verify(accessToken, AccessToken, s.clock())
	if err != nil {
		return nil, unauthenticated(err)
	}
	id, err := ulid.Parse(subject)
	if err != nil {
		return nil, unauthenticated(err)
	}

	account, err = s.accounts.GetByID(ctx, id)
	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, ErrNotFound):
		return nil, unauthenticated(err)
	default:
		return nil, propagate(err, "get account for access token", id)
	}
}

func unauthenticated(cause error) error {
	return oops.Code(CodeUnauthenticated).
		With("operation", "authenticate").
		With("cause", cause.Error()).
		Wrapf(ErrUnauthenticated, "authentication required")
}
