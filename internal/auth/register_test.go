// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidtube/vidtube/internal/auth"
)

func validRegistration() auth.Registration {
	return auth.Registration{
		Username:      "  Chris ",
		Email:         "Chris@Example.com",
		FullName:      "Chris Doe",
		Password:      "s3cret",
		AvatarURL:     "https://cdn.example.com/avatars/chris.png",
		CoverImageURL: "https://cdn.example.com/covers/chris.png",
	}
}

func TestRegister_CreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.service.Register(ctx, validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "chris", profile.Username)
	assert.Equal(t, "chris@example.com", profile.Email)
	assert.Equal(t, "https://cdn.example.com/avatars/chris.png", profile.AvatarURL)
	assert.Equal(t, recordedEvent{auth.EventRegister, "success"}, f.recorder.last())

	session, err := f.service.Login(ctx, "chris", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, session.Account.ID)

	stored, err := f.store.GetByIdentifier(ctx, "chris")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", stored.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Registration)
	}{
		{"missing username", func(r *auth.Registration) { r.Username = " " }},
		{"missing email", func(r *auth.Registration) { r.Email = "" }},
		{"missing full name", func(r *auth.Registration) { r.FullName = "" }},
		{"missing password", func(r *auth.Registration) { r.Password = "" }},
		{"missing avatar", func(r *auth.Registration) { r.AvatarURL = "" }},
		{"invalid email", func(r *auth.Registration) { r.Email = "not-an-email" }},
		{"username with at sign", func(r *auth.Registration) { r.Username = "chris@home" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reg := validRegistration()
			tt.mutate(&reg)

			_, err := f.service.Register(context.Background(), reg)
			require.ErrorIs(t, err, auth.ErrValidation)
			assert.Equal(t, 1, f.store.Len(), "only alice exists")
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	reg := validRegistration()
	reg.Username = "ALICE"

	_, err := f.service.Register(context.Background(), reg)
	require.ErrorIs(t, err, auth.ErrAccountExists)
	assert.Equal(t, auth.CodeAccountExists, auth.ErrorCode(err))
	assert.Equal(t, recordedEvent{auth.EventRegister, "account_exists"}, f.recorder.last())
}
