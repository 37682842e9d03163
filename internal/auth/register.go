// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// Registration is the input for Register. Avatar and cover image URLs point
// at objects already uploaded to media storage.
type Registration struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// Validate checks that every required field is present.
func (r Registration) Validate() error {
	for _, f := range []string{r.Username, r.Email, r.FullName, r.Password} {
		if strings.TrimSpace(f) == "" {
			return validationError("register", "all fields are required")
		}
	}
	if r.AvatarURL == "" {
		return validationError("register", "avatar file is required")
	}
	return nil
}

// Register creates an account. It does not start a session.
func (s *Service) Register(ctx context.Context, reg Registration) (profile *Profile, err error) {
	defer func() { s.record(ctx, EventRegister, err) }()

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(reg.Username, reg.Email, reg.FullName, hash, s.clock())
	if err != nil {
		return nil, err
	}
	account.AvatarURL = reg.AvatarURL
	account.CoverImageURL = reg.CoverImageURL

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, oops.With("operation", "create account").With("username", account.Username).Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	p := account.Profile()
	return &p, nil
}
