// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/pkg/errutil"
)

// dummyPasswordHash is verified against when an account doesn't exist so
// that unknown identifiers take as long as wrong passwords. It never
// matches any password. NewService replaces it with a digest that uses the
// configured hasher's parameters when it can.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Auth event names reported to the EventRecorder.
const (
	EventLogin          = "login"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventPasswordChange = "password_change"
	EventAuthenticate   = "authenticate"
	EventRegister       = "register"
)

// EventRecorder receives one call per completed operation.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// TokenPair is an access token and a refresh token issued together.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// Session is the result of a successful login.
type Session struct {
	Account Profile
	Tokens  TokenPair
}

// Service implements login, refresh, logout, password change and access
// token authentication on top of an AccountStore.
type Service struct {
	accounts AccountStore
	hasher   PasswordHasher
	tokens   *TokenCodec
	clock    func() time.Time
	logger   *slog.Logger
	recorder EventRecorder

	dummyHash             string
	concealUnknownAccount bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for token issuance and checks.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithEventRecorder sets the recorder for auth event metrics.
func WithEventRecorder(r EventRecorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithConcealUnknownAccount makes login report unknown identifiers as
// invalid credentials instead of not found.
func WithConcealUnknownAccount(conceal bool) ServiceOption {
	return func(s *Service) { s.concealUnknownAccount = conceal }
}

// NewService creates a new Service.
// Returns an error if any dependency is nil.
func NewService(accounts AccountStore, hasher PasswordHasher, tokens *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token codec is required")
	}

	s := &Service{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		clock:     time.Now,
		logger:    slog.Default(),
		dummyHash: dummyPasswordHash,
	}
	for _, opt := range opts {
		opt(s)
	}

	if h, err := hasher.Hash(ulid.Make().String()); err == nil {
		s.dummyHash = h
	}
	return s, nil
}

// TokenTTL exposes the configured lifetime for kind, used for cookie max-age.
func (s *Service) TokenTTL(kind TokenKind) time.Duration {
	return s.tokens.TTL(kind)
}

// issuePair signs a fresh access/refresh pair for the account.
func (s *Service) issuePair(id ulid.ULID, now time.Time) (TokenPair, error) {
	subject := id.String()
	access, err := s.tokens.Issue(subject, AccessToken, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.Issue(subject, RefreshToken, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.TTL(AccessToken)),
		RefreshExpiresAt: now.Add(s.tokens.TTL(RefreshToken)),
	}, nil
}

// record reports the operation outcome and logs failures.
func (s *Service) record(ctx context.Context, event string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code := ErrorCode(err); code != "" {
			outcome = strings.ToLower(strings.TrimPrefix(code, "AUTH_"))
		}
		level := slog.LevelInfo
		if IsRetryable(err) || ErrorCode(err) == "" {
			level = slog.LevelError
		}
		errutil.LogErrorContext(ctx, s.logger, level, event+" failed", err)
	}
	if s.recorder != nil {
		s.recorder.RecordAuthEvent(event, outcome)
	}
}

// propagate adds operation context to store errors without changing their
// classification.
func propagate(err error, operation string, id ulid.ULID) error {
	return oops.With("operation", operation).With("account_id", id.String()).Wrap(err)
}
