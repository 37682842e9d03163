// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/media"
	"github.com/vidtube/vidtube/pkg/errutil"
)

// CodeInternal is reported for errors outside the auth and media taxonomy.
const CodeInternal = "INTERNAL_ERROR"

// Envelope is the body of every API response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// errorMapping ties a sentinel to its HTTP status. A non-empty message
// replaces the error text so backend details never reach the client.
type errorMapping struct {
	sentinel error
	status   int
	code     string
	message  string
}

var errorMappings = []errorMapping{
	{auth.ErrStorageUnavailable, http.StatusServiceUnavailable, auth.CodeStorageUnavailable, "service temporarily unavailable, please retry"},
	{auth.ErrRefreshTokenReuse, http.StatusUnauthorized, auth.CodeRefreshTokenReuse, ""},
	{auth.ErrInvalidRefreshToken, http.StatusUnauthorized, auth.CodeInvalidRefreshToken, ""},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, auth.CodeUnauthenticated, ""},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, auth.CodeInvalidCredentials, ""},
	{auth.ErrAccountExists, http.StatusConflict, auth.CodeAccountExists, "user with this username or email already exists"},
	{auth.ErrNotFound, http.StatusNotFound, auth.CodeAccountNotFound, "account does not exist"},
	{auth.ErrValidation, http.StatusBadRequest, auth.CodeValidation, ""},
	{media.ErrUnsupportedMedia, http.StatusBadRequest, media.CodeUnsupportedMedia, ""},
	{media.ErrUploadFailed, http.StatusBadGateway, media.CodeUploadFailed, "failed to upload file"},
}

// classify maps err to status, code and client-facing message.
func classify(err error) (status int, code, message string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		if m.message != "" {
			return m.status, m.code, m.message
		}
		return m.status, m.code, strings.TrimSuffix(err.Error(), ": "+m.sentinel.Error())
	}
	return http.StatusInternalServerError, CodeInternal, "internal server error"
}

// writeError logs err and writes the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	errutil.LogErrorContext(r.Context(), s.logger.With("status", status, "path", r.URL.Path),
		level, "request failed", err)

	writeJSON(w, status, Envelope{
		StatusCode: status,
		Data:       nil,
		Message:    message,
		Success:    false,
		Code:       code,
		Retryable:  auth.IsRetryable(err),
	})
}
