// Package blobstore keeps in-memory object URLs (blob:<origin>/<uuid>) for
// media that exists only on the client: pending uploads and imported
// embedded files.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrRevoked is returned when fetching a URL that was revoked or never created.
var ErrRevoked = errors.New("blob URL not found or revoked")

// Scheme is the object URL scheme.
const Scheme = "blob:"

type blob struct {
	data     []byte
	mimeType string
}

// Store is a table of object URLs. Safe for concurrent use.
type Store struct {
	origin string

	mu    sync.RWMutex
	blobs map[string]blob
}

// New creates a store whose URLs carry the given origin, e.g. http://localhost:3000.
func New(origin string) *Store {
	return &Store{
		origin: strings.TrimRight(origin, "/"),
		blobs:  make(map[string]blob),
	}
}

// CreateObjectURL stores data and returns a new URL for it.
func (s *Store) CreateObjectURL(data []byte, mimeType string) string {
	u := Scheme + s.origin + "/" + uuid.NewString()
	s.mu.Lock()
	s.blobs[u] = blob{data: data, mimeType: mimeType}
	s.mu.Unlock()
	return u
}

// Fetch returns the bytes and MIME type behind url.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !strings.HasPrefix(url, Scheme) {
		return nil, "", fmt.Errorf("not an object URL: %s", url)
	}
	s.mu.RLock()
	b, ok := s.blobs[url]
	s.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("fetch %s: %w", url, ErrRevoked)
	}
	return b.data, b.mimeType, nil
}

// Revoke releases url. Revoking an unknown URL is a no-op.
func (s *Store) Revoke(url string) {
	s.mu.Lock()
	delete(s.blobs, url)
	s.mu.Unlock()
}

// Len returns the number of live URLs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
