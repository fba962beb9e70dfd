package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateFetchRevoke(t *testing.T) {
	s := New("http://localhost:3000/")
	u := s.CreateObjectURL([]byte("abc"), "image/png")

	if !strings.HasPrefix(u, "blob:http://localhost:3000/") {
		t.Fatalf("url = %q", u)
	}

	data, mt, err := s.Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "abc" || mt != "image/png" {
		t.Errorf("got %q %q", data, mt)
	}

	s.Revoke(u)
	if _, _, err := s.Fetch(context.Background(), u); !errors.Is(err, ErrRevoked) {
		t.Errorf("after revoke err = %v, want ErrRevoked", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestURLsAreUnique(t *testing.T) {
	s := New("http://app")
	a := s.CreateObjectURL(nil, "")
	b := s.CreateObjectURL(nil, "")
	if a == b {
		t.Errorf("duplicate url %q", a)
	}
}

func TestFetchRejectsOtherSchemes(t *testing.T) {
	s := New("http://app")
	if _, _, err := s.Fetch(context.Background(), "http://app/x.png"); err == nil {
		t.Error("expected error for non-blob URL")
	}
}

func TestFetchCancelled(t *testing.T) {
	s := New("http://app")
	u := s.CreateObjectURL([]byte("x"), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := s.Fetch(ctx, u); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
