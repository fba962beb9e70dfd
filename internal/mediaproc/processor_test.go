package mediaproc

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/fruitsalade/pagemedia/pkg/retry"
)

type flakyBlobs struct {
	failures int
	calls    int
	data     []byte
}

func (f *flakyBlobs) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, "", errors.New("blob not ready")
	}
	return f.data, "image/png", nil
}

func fastProcessor(blobs BlobFetcher, recoverers ...Recoverer) *Processor {
	p := New(blobs, recoverers...)
	p.Retry = retry.LinearConfig(3, time.Millisecond)
	return p
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := imaging.Save(imaging.New(w, h, color.NRGBA{R: 255, A: 255}), path); err != nil {
		t.Fatalf("save png: %v", err)
	}
	return path
}

func TestBlobRetrySucceedsOnThirdAttempt(t *testing.T) {
	blobs := &flakyBlobs{failures: 2, data: []byte("pixels")}
	res := fastProcessor(blobs).Extract(context.Background(), "blob:http://app/1", KindImage)

	if res.Outcome != Recovered || res.Reason != ReasonBlobURL {
		t.Fatalf("result = %+v", res)
	}
	if res.Base64 != base64.StdEncoding.EncodeToString([]byte("pixels")) {
		t.Errorf("base64 = %q", res.Base64)
	}
	if blobs.calls != 3 {
		t.Errorf("calls = %d, want 3", blobs.calls)
	}
}

func TestBlobExhaustedImageGetsPlaceholder(t *testing.T) {
	blobs := &flakyBlobs{failures: 10}
	res := fastProcessor(blobs).Extract(context.Background(), "blob:http://app/gone", KindImage)

	if res.Outcome != Degraded || res.Reason != ReasonPlaceholder {
		t.Fatalf("result = %+v", res)
	}
	if blobs.calls != 3 {
		t.Errorf("calls = %d, want 3", blobs.calls)
	}
	if res.Err == nil || res.Note == "" {
		t.Error("placeholder should carry the cause and guidance")
	}

	raw, err := base64.StdEncoding.DecodeString(res.Base64)
	if err != nil {
		t.Fatalf("decode placeholder: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || format != "png" || cfg.Width != 1 || cfg.Height != 1 {
		t.Errorf("placeholder = %s %dx%d, err %v", format, cfg.Width, cfg.Height, err)
	}
}

func TestBlobExhaustedNonImageGetsEmptyPlaceholder(t *testing.T) {
	res := fastProcessor(&flakyBlobs{failures: 10}).Extract(context.Background(), "blob:http://app/gone", KindVideo)
	if res.Outcome != Degraded || res.Base64 != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestNoBlobStoreDegrades(t *testing.T) {
	res := (&Processor{}).Extract(context.Background(), "blob:http://app/x", KindAudio)
	if res.Outcome != Degraded {
		t.Errorf("outcome = %v", res.Outcome)
	}
}

func TestFileInputRecoverer(t *testing.T) {
	path := writePNG(t, 2, 2)
	att := NewAttachments()
	att.Attach("blob:http://app/pick", path)

	p := fastProcessor(&flakyBlobs{failures: 10}, FileInputRecoverer{Files: att})
	res := p.Extract(context.Background(), "blob:http://app/pick", KindVideo)

	if res.Outcome != Recovered || res.Reason != ReasonRecovered {
		t.Fatalf("result = %+v", res)
	}
	want, _ := os.ReadFile(path)
	if res.Base64 != base64.StdEncoding.EncodeToString(want) {
		t.Error("recovered bytes differ from the file on disk")
	}
	if res.MimeType != "image/png" {
		t.Errorf("mime = %q", res.MimeType)
	}
}

func TestCanvasRecovererRedraws(t *testing.T) {
	att := NewAttachments()
	att.Attach("blob:http://app/img", writePNG(t, 3, 2))

	p := fastProcessor(&flakyBlobs{failures: 10}, CanvasRecoverer{Images: att})
	res := p.Extract(context.Background(), "blob:http://app/img", KindImage)
	if res.Outcome != Recovered || res.MimeType != "image/png" {
		t.Fatalf("result = %+v", res)
	}
	raw, _ := base64.StdEncoding.DecodeString(res.Base64)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || cfg.Width != 3 || cfg.Height != 2 {
		t.Errorf("redrawn image %dx%d, err %v", cfg.Width, cfg.Height, err)
	}

	// only images can be redrawn
	res = p.Extract(context.Background(), "blob:http://app/img", KindAudio)
	if res.Outcome != Degraded {
		t.Errorf("audio outcome = %v, want degraded", res.Outcome)
	}
}

func TestDataURL(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		outcome  Outcome
		base64   string
		mimeType string
		size     int64
	}{
		{
			name:     "base64 payload kept verbatim",
			src:      "data:image/png;base64,iVBORw0KGgo=",
			outcome:  Recovered,
			base64:   "iVBORw0KGgo=",
			mimeType: "image/png",
			size:     8,
		},
		{
			name:     "percent-encoded text",
			src:      "data:,Hello%20World",
			outcome:  Recovered,
			base64:   base64.StdEncoding.EncodeToString([]byte("Hello World")),
			mimeType: "text/plain;charset=US-ASCII",
			size:     11,
		},
		{
			name:     "unpadded base64",
			src:      "data:image/png;base64,iVBORw0KGgo",
			outcome:  Recovered,
			base64:   "iVBORw0KGgo",
			mimeType: "image/png",
			size:     8,
		},
		{
			name:     "undecodable payload kept as is",
			src:      "data:image/png;base64,@@@@",
			outcome:  Recovered,
			base64:   "@@@@",
			mimeType: "image/png",
			size:     3,
		},
		{name: "missing comma", src: "data:image/png;base64", outcome: Failed},
	}
	p := &Processor{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Extract(context.Background(), tt.src, KindImage)
			if res.Outcome != tt.outcome {
				t.Fatalf("outcome = %v, want %v (err %v)", res.Outcome, tt.outcome, res.Err)
			}
			if tt.outcome != Recovered {
				if res.Err == nil {
					t.Error("failed result without error")
				}
				return
			}
			if res.Base64 != tt.base64 || res.MimeType != tt.mimeType || res.Size != tt.size {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestExternalAndInvalidSources(t *testing.T) {
	p := &Processor{}
	tests := []struct {
		src     string
		outcome Outcome
		isURL   bool
	}{
		{"https://cdn.example.com/a.png", Recovered, true},
		{"http://localhost:8080/api/files/a.png", Recovered, true},
		{"/images/a.png", Failed, false},
		{"", Failed, false},
	}
	for _, tt := range tests {
		res := p.Extract(context.Background(), tt.src, KindImage)
		if res.Outcome != tt.outcome || res.IsURL != tt.isURL {
			t.Errorf("Extract(%q) = %+v", tt.src, res)
		}
		if tt.isURL && (res.URL != tt.src || res.Base64 != "") {
			t.Errorf("external reference = %+v", res)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Recovered: "recovered", Degraded: "degraded", Failed: "failed"} {
		if o.String() != want {
			t.Errorf("%d.String() = %q", o, o.String())
		}
	}
}

func TestUpright(t *testing.T) {
	img := imaging.New(3, 2, color.NRGBA{R: 255, A: 255})
	tests := []struct {
		orientation int
		w, h        int
	}{
		{0, 3, 2},
		{1, 3, 2},
		{3, 3, 2},
		{6, 2, 3},
		{8, 2, 3},
		{42, 3, 2},
	}
	for _, tt := range tests {
		b := upright(img, tt.orientation).Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("orientation %d: %dx%d, want %dx%d", tt.orientation, b.Dx(), b.Dy(), tt.w, tt.h)
		}
	}
}

func TestExifOrientationWithoutExif(t *testing.T) {
	if got := exifOrientation(writePNG(t, 1, 1)); got != 1 {
		t.Errorf("png orientation = %d, want 1", got)
	}
	if got := exifOrientation(filepath.Join(t.TempDir(), "missing.jpg")); got != 1 {
		t.Errorf("missing file orientation = %d, want 1", got)
	}
}

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aGk=", "hi", false},
		{"aGk", "hi", false},
		{"aG\nk=", "hi", false},
		{" aGVs bG8= ", "hello", false},
		{"@@", "", true},
	}
	for _, tt := range tests {
		got, err := DecodeBase64(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("DecodeBase64(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && string(got) != tt.want {
			t.Errorf("DecodeBase64(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
