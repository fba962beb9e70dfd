package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fruitsalade/pagemedia/internal/filestate"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
)

func TestIsServerFile(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"https://bucket.s3.us-east-1.amazonaws.com/x.png", true},
		{"https://s3.amazonaws.com/bucket/x.png", true},
		{"https://s3-eu-west-1.amazonaws.com/bucket/x.png", true},
		{"https://storage.googleapis.com/bucket/x.png", true},
		{"https://storage.cloud.google.com/bucket/x.png", true},
		{"https://acct.blob.core.windows.net/container/x.png", true},
		{"http://localhost:8080/api/files/brand/logo.png", true},
		{"/uploads/2024/a.jpg", true},
		{"blob:http://localhost/abc", false},
		{"data:image/png;base64,AAAA", false},
		{"https://cdn.example.com/x.png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsServerFile(tt.src); got != tt.want {
			t.Errorf("IsServerFile(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestExtractBucketPath(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{"http://h/api/files/brand/logo.png", "/brand/logo.png"},
		{"http://h/api/files/my%20dir/a.png?v=2", "/my dir/a.png"},
		{"http://h/uploads/a.jpg", "/a.jpg"},
		{"https://bucket.s3.amazonaws.com/img/x.png", "/img/x.png"},
		{"https://storage.googleapis.com/", ""},
	}
	for _, tt := range tests {
		if got := ExtractBucketPath(tt.src); got != tt.want {
			t.Errorf("ExtractBucketPath(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestFileManagerData(t *testing.T) {
	store := filestate.New()
	legacy := filestate.New()
	store.Register("blob:http://app/1", "el-1", filestate.Entry{BucketPath: "/a.png", ServerURL: "http://media", Type: "image"})
	store.Register("", "el-2", filestate.Entry{Filename: "no-path.png"})
	legacy.Register("", "el-3", filestate.Entry{BucketPath: "/old.png"})
	store.Register("", "el-4", filestate.Entry{Filename: "pending.png"})
	legacy.Register("", "el-4", filestate.Entry{BucketPath: "/legacy.png"})
	store.Register("blob:http://app/5", "", filestate.Entry{Filename: "pending.png"})
	store.Register("", "el-5", filestate.Entry{BucketPath: "/five.png"})

	d := &Detector{Store: store, Legacy: legacy}

	tests := []struct {
		name, src, elementID string
		wantPath             string
		wantOK               bool
	}{
		{"by src", "blob:http://app/1", "", "/a.png", true},
		{"by element", "blob:http://app/other", "el-1", "/a.png", true},
		{"empty bucket path", "x", "el-2", "", false},
		{"legacy fallback", "x", "el-3", "/old.png", true},
		{"legacy behind entry without path", "x", "el-4", "/legacy.png", true},
		{"element behind src without path", "blob:http://app/5", "el-5", "/five.png", true},
		{"unknown", "x", "el-9", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := d.FileManagerData(tt.src, tt.elementID)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (ref.BucketPath != tt.wantPath || ref.OriginalSrc != tt.src) {
				t.Errorf("ref = %+v", ref)
			}
		})
	}
}

type fakeProber struct {
	info  *protocol.ObjectInfo
	err   error
	calls int
}

func (p *fakeProber) Head(_ context.Context, _ string) (*protocol.ObjectInfo, error) {
	p.calls++
	return p.info, p.err
}

func TestServerFileData(t *testing.T) {
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &fakeProber{info: &protocol.ObjectInfo{ContentType: "image/png", Size: 10, LastModified: mod}}
	d := &Detector{Prober: p}

	ref, ok := d.ServerFileData(context.Background(), "http://media:8080/api/files/brand/logo.png", "image")
	if !ok {
		t.Fatal("expected a reference")
	}
	if ref.BucketPath != "/brand/logo.png" || ref.ServerURL != "http://media:8080" {
		t.Errorf("ref = %+v", ref)
	}
	if ref.Metadata.MimeType != "image/png" || ref.Metadata.Size != 10 || !ref.Metadata.LastModified.Equal(mod) {
		t.Errorf("metadata = %+v", ref.Metadata)
	}
	if ref.Metadata.Filename != "logo.png" {
		t.Errorf("filename = %q", ref.Metadata.Filename)
	}
}

func TestServerFileData_ProbeFailureIsNotFatal(t *testing.T) {
	d := &Detector{Prober: &fakeProber{err: errors.New("connection refused")}}
	ref, ok := d.ServerFileData(context.Background(), "http://media/api/files/a.png", "image")
	if !ok {
		t.Fatal("expected a reference despite probe failure")
	}
	if ref.Metadata.MimeType != "" || ref.Metadata.Size != 0 {
		t.Errorf("metadata = %+v, want empty", ref.Metadata)
	}
}

func TestServerFileData_NonServer(t *testing.T) {
	p := &fakeProber{}
	d := &Detector{Prober: p}
	if _, ok := d.ServerFileData(context.Background(), "https://cdn.example.com/a.png", "image"); ok {
		t.Error("expected no reference for unknown host")
	}
	if p.calls != 0 {
		t.Errorf("probe issued for non-server URL")
	}
}
