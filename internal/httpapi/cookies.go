// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/vidtube/vidtube/internal/auth"
)

// Session cookie names.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

func (s *Server) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}

func (s *Server) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, s.cookie(AccessTokenCookie, pair.AccessToken, s.auth.TokenTTL(auth.AccessToken)))
	http.SetCookie(w, s.cookie(RefreshTokenCookie, pair.RefreshToken, s.auth.TokenTTL(auth.RefreshToken)))
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, s.cookie(RefreshTokenCookie, "", -1))
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
