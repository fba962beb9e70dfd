// Package local provides a local filesystem media backend. Folder markers
// map to directories.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fruitsalade/pagemedia/internal/metrics"
	"github.com/fruitsalade/pagemedia/internal/storage"
)

const tempPattern = ".pagemedia-*.tmp"

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string
}

// Backend implements storage.Backend on a directory tree.
type Backend struct {
	rootPath string
}

// New creates the root directory if needed and returns the backend.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}
	if err := os.MkdirAll(cfg.RootPath, 0755); err != nil {
		return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, err)
	}
	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}
	return &Backend{rootPath: cfg.RootPath}, nil
}

func (b *Backend) fullPath(key string) string {
	return filepath.Join(b.rootPath, filepath.FromSlash(strings.TrimSuffix(key, "/")))
}

func record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation("local", op, time.Since(start), err == nil)
}

func infoFor(key string, fi fs.FileInfo) storage.ObjectInfo {
	if fi.IsDir() {
		return storage.ObjectInfo{Key: strings.TrimSuffix(key, "/") + "/", LastModified: fi.ModTime()}
	}
	return storage.ObjectInfo{Key: key, Size: fi.Size(), LastModified: fi.ModTime()}
}

// GetObject opens a file for reading.
func (b *Backend) GetObject(_ context.Context, key string) (rc io.ReadCloser, info storage.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("get_object", start, err) }()

	f, err := os.Open(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ObjectInfo{}, storage.ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s: %w", key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storage.ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return f, infoFor(key, fi), nil
}

// PutObject writes content atomically (temp file then rename).
// Folder markers create the directory.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, _ int64, _ string) (err error) {
	start := time.Now()
	defer func() { record("put_object", start, err) }()

	path := b.fullPath(key)
	if strings.HasSuffix(key, "/") {
		return os.MkdirAll(path, 0755)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes a file, or an empty directory for folder markers.
func (b *Backend) DeleteObject(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { record("delete_object", start, err) }()

	if err := os.Remove(b.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// CopyObject copies a file.
func (b *Backend) CopyObject(ctx context.Context, srcKey, dstKey string) (err error) {
	start := time.Now()
	defer func() { record("copy_object", start, err) }()

	src, info, err := b.GetObject(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("open src %s: %w", srcKey, err)
	}
	defer src.Close()
	return b.PutObject(ctx, dstKey, src, info.Size, "")
}

// StatObject returns metadata for a file or directory.
func (b *Backend) StatObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	fi, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ObjectInfo{}, storage.ErrNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return infoFor(key, fi), nil
}

// ListObjects walks the tree and returns files and directories under prefix.
func (b *Backend) ListObjects(_ context.Context, prefix string) (objects []storage.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("list_objects", start, err) }()

	err = filepath.WalkDir(b.rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == b.rootPath {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".pagemedia-") {
			return nil
		}
		rel, err := filepath.Rel(b.rootPath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			key += "/"
		}
		if !strings.HasPrefix(key, prefix) {
			if d.IsDir() && !strings.HasPrefix(prefix, key) {
				return filepath.SkipDir
			}
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		objects = append(objects, infoFor(key, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }
