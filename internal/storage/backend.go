// Package storage defines the Backend interface for the flat media key space.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object. Folder markers are keys ending in "/".
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// IsFolder reports whether the object is a folder marker.
func (o ObjectInfo) IsFolder() bool { return strings.HasSuffix(o.Key, "/") }

// Backend is the interface for media storage backends (local filesystem, S3).
// Keys never start with "/".
type Backend interface {
	// GetObject retrieves an object's content and metadata.
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// PutObject uploads content to the given key. A key ending in "/"
	// with an empty body creates a folder marker.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// DeleteObject removes an object by key. Missing keys are not an error.
	DeleteObject(ctx context.Context, key string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// StatObject returns metadata for a key or ErrNotFound.
	StatObject(ctx context.Context, key string) (ObjectInfo, error)

	// ListObjects returns every object whose key starts with prefix, recursively.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Type returns the backend type identifier ("s3", "local").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// CleanKey normalizes a client supplied key: no leading slash, no "." or
// ".." segments. A trailing slash (folder marker) is preserved.
func CleanKey(key string) (string, error) {
	folder := strings.HasSuffix(key, "/")
	var parts []string
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", errors.New("invalid key: parent segment")
		}
		parts = append(parts, seg)
	}
	cleaned := strings.Join(parts, "/")
	if folder && cleaned != "" {
		cleaned += "/"
	}
	return cleaned, nil
}
