package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fruitsalade/pagemedia/internal/storage"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func put(t *testing.T, b *Backend, key, content string) {
	t.Helper()
	if err := b.PutObject(context.Background(), key, strings.NewReader(content), int64(len(content)), ""); err != nil {
		t.Fatalf("PutObject(%s): %v", key, err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	b := newBackend(t)
	put(t, b, "a/b/hello.txt", "hello")

	rc, info, err := b.GetObject(context.Background(), "a/b/hello.txt")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" || info.Size != 5 {
		t.Errorf("got %q size %d", data, info.Size)
	}
}

func TestGetMissing(t *testing.T) {
	b := newBackend(t)
	if _, _, err := b.GetObject(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := b.StatObject(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListObjects(t *testing.T) {
	b := newBackend(t)
	put(t, b, "docs/", "")
	put(t, b, "docs/a.png", "x")
	put(t, b, "docs/2024/b.png", "y")
	put(t, b, "other.png", "z")

	objs, err := b.ListObjects(context.Background(), "docs/")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	var keys []string
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	got := strings.Join(keys, ",")
	want := "docs/,docs/2024/,docs/2024/b.png,docs/a.png"
	if got != want {
		t.Errorf("keys = %s, want %s", got, want)
	}
}

func TestCopyAndDelete(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	put(t, b, "src.png", "data")

	if err := b.CopyObject(ctx, "src.png", "dst/copy.png"); err != nil {
		t.Fatalf("CopyObject: %v", err)
	}
	if _, err := b.StatObject(ctx, "dst/copy.png"); err != nil {
		t.Errorf("copy missing: %v", err)
	}
	if err := b.DeleteObject(ctx, "src.png"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := b.DeleteObject(ctx, "src.png"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}
