// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package auth

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

// Token kinds.
const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 10 * 24 * time.Hour
)

// Token verification failures.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)

// TokenConfig configures a TokenCodec. Each kind has its own secret.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"knd"`
	// ExpiresNano is the exact expiry in Unix nanoseconds. The standard
	// exp claim only carries whole seconds and is rounded up to it.
	ExpiresNano int64 `json:"xpn,omitempty"`
}

// TokenCodec issues and verifies signed, expiring tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenCodec struct {
	cfg    TokenConfig
	method jwt.SigningMethod
}

// NewTokenCodec validates cfg and returns a codec.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL).
			With("refresh_ttl", cfg.RefreshTTL).
			Errorf("token lifetimes must be positive")
	}
	return &TokenCodec{cfg: cfg, method: jwt.SigningMethodHS256}, nil
}

// TTL returns the lifetime of tokens of the given kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	if kind == RefreshToken {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

func (c *TokenCodec) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case AccessToken:
		return c.cfg.AccessSecret, nil
	case RefreshToken:
		return c.cfg.RefreshSecret, nil
	default:
		return nil, oops.Code("TOKEN_KIND_INVALID").With("kind", kind).Errorf("unknown token kind")
	}
}

// Issue signs a token for subject. It is valid for every instant in
// [now, now+TTL(kind)).
func (c *TokenCodec) Issue(subject string, kind TokenKind, now time.Time) (string, error) {
	if subject == "" {
		return "", oops.Code("TOKEN_SUBJECT_EMPTY").Errorf("token subject cannot be empty")
	}
	secret, err := c.secret(kind)
	if err != nil {
		return "", err
	}

	expires := now.Add(c.TTL(kind))
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    c.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expires)),
		},
		Kind:        kind,
		ExpiresNano: expires.UnixNano(),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("kind", kind).Wrap(err)
	}
	return signed, nil
}

// Verify checks token against the secret for expected and returns its
// subject. Failures wrap ErrTokenMalformed, ErrTokenKindMismatch,
// ErrTokenBadSignature or ErrTokenExpired and never yield a subject.
func (c *TokenCodec) Verify(token string, expected TokenKind, now time.Time) (string, error) {
	secret, err := c.secret(expected)
	if err != nil {
		return "", err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	// The kind is read before the signature is checked so that a token of
	// the other kind reports a mismatch instead of a bad signature.
	var unverified tokenClaims
	if _, _, err := parser.ParseUnverified(token, &unverified); err != nil {
		return "", tokenError("TOKEN_MALFORMED", ErrTokenMalformed, err)
	}
	switch unverified.Kind {
	case AccessToken, RefreshToken:
	default:
		return "", tokenError("TOKEN_MALFORMED", ErrTokenMalformed, nil)
	}
	if unverified.Kind != expected {
		return "", oops.Code("TOKEN_KIND_MISMATCH").
			With("expected", expected).
			With("actual", unverified.Kind).
			Wrap(ErrTokenKindMismatch)
	}

	var claims tokenClaims
	_, err = parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", tokenError("TOKEN_BAD_SIGNATURE", ErrTokenBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", tokenError("TOKEN_EXPIRED", ErrTokenExpired, err)
	default:
		return "", tokenError("TOKEN_MALFORMED", ErrTokenMalformed, err)
	}

	if claims.ExpiresNano != 0 && !now.Before(time.Unix(0, claims.ExpiresNano)) {
		return "", tokenError("TOKEN_EXPIRED", ErrTokenExpired, nil)
	}
	if claims.Subject == "" {
		return "", tokenError("TOKEN_MALFORMED", ErrTokenMalformed, nil)
	}
	return claims.Subject, nil
}

// ceilSecond rounds t up to the next whole second.
func ceilSecond(t time.Time) time.Time {
	if t.Nanosecond() == 0 {
		return t
	}
	return t.Truncate(time.Second).Add(time.Second)
}

func tokenError(code string, sentinel, cause error) error {
	b := oops.Code(code)
	if cause != nil {
		b = b.With("cause", cause.Error())
	}
	return b.Wrap(sentinel)
}

// HashRefreshToken returns the SHA-256 hex digest stored in place of a
// refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// refreshTokenMatches compares a presented token with a stored hash in
// constant time. An empty stored hash never matches.
func refreshTokenMatches(token, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	presented := HashRefreshToken(token)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
