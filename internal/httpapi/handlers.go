// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/media"
	"github.com/vidtube/vidtube/pkg/errutil"
)

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required_without_all=Username Email"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password" validate:"required"`
}

func (req loginRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.Username, req.Email} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sessionResponse is the login and refresh payload. Tokens are also set as
// cookies; the body copy serves clients that cannot use cookies.
type sessionResponse struct {
	Account      *auth.Profile `json:"account,omitempty"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.auth.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, session.Tokens)
	writeData(w, http.StatusOK, sessionResponse{
		Account:      &session.Account,
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	}, "user logged in successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, RefreshTokenCookie)
	if token == "" {
		var req refreshRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		token = req.RefreshToken
	}

	pair, err := s.auth.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenReuse) || errors.Is(err, auth.ErrInvalidRefreshToken) {
			s.clearSessionCookies(w)
		}
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookies(w, *pair)
	writeData(w, http.StatusOK, sessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "access token refreshed")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())
	if err := s.auth.Logout(r.Context(), account.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	writeData(w, http.StatusOK, struct{}{}, "user logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=256,nefield=OldPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	account, _ := AccountFromContext(r.Context())
	if err := s.auth.ChangePassword(r.Context(), account.ID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookies(w)
	writeData(w, http.StatusOK, struct{}{}, "password changed successfully")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())
	writeData(w, http.StatusOK, account.Profile(), "current user fetched successfully")
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "Service is running",
	}, "Everything is OK")
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// handleRegister accepts multipart/form-data with the account fields, a
// required avatar file and an optional coverImage file. Uploaded objects
// are removed again if the account cannot be created.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, validationFailed("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
			return
		}
		s.writeError(w, r, validationFailed("request must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := registerRequest{
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		FullName: strings.TrimSpace(r.FormValue("fullName")),
		Password: r.FormValue("password"),
	}
	if err := s.validateStruct(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	avatar := formFile(r, "avatar")
	if avatar == nil {
		s.writeError(w, r, validationFailed("avatar file is required"))
		return
	}

	var uploaded []string
	rollback := func(ctx context.Context) {
		for _, url := range uploaded {
			if err := s.media.Delete(ctx, url); err != nil {
				errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "media rollback failed", err)
			}
		}
	}

	avatarURL, err := s.upload(r.Context(), media.KindAvatar, avatar)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	uploaded = append(uploaded, avatarURL)

	var coverURL string
	if cover := formFile(r, "coverImage"); cover != nil {
		coverURL, err = s.upload(r.Context(), media.KindCoverImage, cover)
		if err != nil {
			rollback(context.WithoutCancel(r.Context()))
			s.writeError(w, r, err)
			return
		}
		uploaded = append(uploaded, coverURL)
	}

	profile, err := s.auth.Register(r.Context(), auth.Registration{
		Username:      req.Username,
		Email:         req.Email,
		FullName:      req.FullName,
		Password:      req.Password,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		rollback(context.WithoutCancel(r.Context()))
		s.writeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, profile, "user registered successfully")
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 || files[0].Size == 0 {
		return nil
	}
	return files[0]
}

func (s *Server) upload(ctx context.Context, kind string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", oops.Code(media.CodeUploadFailed).With("kind", kind).Wrap(errors.Join(media.ErrUploadFailed, err))
	}
	defer func() { _ = f.Close() }()

	//nolint:wrapcheck // media errors already carry codes
	return s.media.Put(ctx, media.Upload{
		Kind:        kind,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
}
