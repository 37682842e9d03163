// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/pkg/errutil"
)

func TestAuthenticate_Rejects(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)
	codec := newTestCodec(t)

	ghost, err := codec.Issue(ulid.Make().String(), auth.AccessToken, testEpoch)
	require.NoError(t, err)
	notULID, err := codec.Issue("alice", auth.AccessToken, testEpoch)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "abc.def.ghi"},
		{"refresh token presented", session.Tokens.RefreshToken},
		{"account no longer exists", ghost},
		{"subject is not an account id", notULID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := f.service.Authenticate(context.Background(), tt.token)
			require.ErrorIs(t, err, auth.ErrUnauthenticated)
			assert.Nil(t, account)
			errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
			assert.False(t, auth.IsRetryable(err))
		})
	}
}

func TestAuthenticate_DoesNotConsultSession(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	_, err := f.service.Refresh(context.Background(), session.Tokens.RefreshToken)
	require.NoError(t, err)

	account, err := f.service.Authenticate(context.Background(), session.Tokens.AccessToken)
	require.NoError(t, err, "older access tokens stay valid after rotation")
	assert.Equal(t, f.alice.ID, account.ID)
}
