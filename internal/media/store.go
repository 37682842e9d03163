// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package media stores account images (avatars and cover images) and
// returns the public URL for each object.
package media

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Object kinds. They become the first key segment.
const (
	KindAvatar     = "avatars"
	KindCoverImage = "covers"
)

// Error codes for media failures.
const (
	CodeUnsupportedMedia = "MEDIA_UNSUPPORTED_TYPE"
	CodeUploadFailed     = "MEDIA_UPLOAD_FAILED"
)

var (
	// ErrUnsupportedMedia is returned for uploads that are not images.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrUploadFailed wraps backend failures.
	ErrUploadFailed = errors.New("media upload failed")
)

// Upload is a file to store.
type Upload struct {
	Kind        string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store saves uploads and removes them again.
type Store interface {
	// Put stores the upload and returns its public URL.
	Put(ctx context.Context, up Upload) (string, error)
	// Delete removes the object behind a URL returned by Put. Unknown URLs
	// are ignored.
	Delete(ctx context.Context, url string) error
}

// validate rejects uploads that are not images.
func validate(up Upload) error {
	ct := strings.ToLower(strings.TrimSpace(up.ContentType))
	if !strings.HasPrefix(ct, "image/") {
		return oops.Code(CodeUnsupportedMedia).
			With("content_type", up.ContentType).
			With("kind", up.Kind).
			Wrapf(ErrUnsupportedMedia, "%s must be an image", strings.TrimSuffix(up.Kind, "s"))
	}
	return nil
}

// objectKey builds "<kind>/<uuid><ext>". The client file name only
// contributes its extension.
func objectKey(up Upload) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(up.Filename, "\\", "/"))))
	if len(ext) > 6 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return up.Kind + "/" + uuid.NewString() + ext
}

// MemoryStore keeps objects in memory. It backs local development when no
// bucket is configured, and tests.
type MemoryStore struct {
	baseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore returns a store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, up Upload) (string, error) {
	if err := validate(up); err != nil {
		return "", err
	}
	data, err := io.ReadAll(up.Body)
	if err != nil {
		return "", oops.Code(CodeUploadFailed).With("kind", up.Kind).Wrap(errors.Join(ErrUploadFailed, err))
	}

	key := objectKey(up)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, url string) error {
	key, ok := strings.CutPrefix(url, m.baseURL+"/")
	if !ok {
		return nil
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored object by URL.
func (m *MemoryStore) Get(url string) ([]byte, bool) {
	key, ok := strings.CutPrefix(url, m.baseURL+"/")
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
