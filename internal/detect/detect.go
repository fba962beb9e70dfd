// Package detect decides whether a media source already lives on a media
// server and, if so, how to reference it instead of embedding its bytes.
package detect

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/filestate"
	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
)

// serverPatterns is the closed list of recognized server URL shapes.
// Anything else (unknown CDNs included) is treated as non-server.
var serverPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/api/files/`),
	regexp.MustCompile(`/uploads/`),
	regexp.MustCompile(`^https?://[^/]*\.s3[.-][^/]*amazonaws\.com/`),
	regexp.MustCompile(`^https?://s3[.-][^/]*amazonaws\.com/`),
	regexp.MustCompile(`^https?://storage\.googleapis\.com/`),
	regexp.MustCompile(`^https?://storage\.cloud\.google\.com/`),
	regexp.MustCompile(`^https?://[^/]+\.blob\.core\.windows\.net/`),
}

var bucketPathPattern = regexp.MustCompile(`(?:/api/files|/uploads)(/[^?#]*)`)

// IsServerFile reports whether src points at a known media server or
// cloud storage location.
func IsServerFile(src string) bool {
	if strings.HasPrefix(src, "blob:") || strings.HasPrefix(src, "data:") {
		return false
	}
	for _, p := range serverPatterns {
		if p.MatchString(src) {
			return true
		}
	}
	return false
}

// ExtractBucketPath returns the storage key of src with a leading slash.
// API and upload URLs yield the part after the prefix; cloud storage URLs
// fall back to the URL path.
func ExtractBucketPath(src string) string {
	if m := bucketPathPattern.FindStringSubmatch(src); m != nil {
		if p, err := url.PathUnescape(m[1]); err == nil {
			return p
		}
		return m[1]
	}
	u, err := url.Parse(src)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.Path
}

// ServerOrigin returns scheme://host of src.
func ServerOrigin(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Reference is the pointer written for media that lives on a server.
type Reference struct {
	BucketPath  string
	ServerURL   string
	OriginalSrc string
	FileType    string
	Metadata    Metadata
}

// Metadata is what is known about a referenced file. Zero values mean unknown.
type Metadata struct {
	Filename     string    `json:"filename,omitempty"`
	MimeType     string    `json:"mimeType,omitempty"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// Prober fetches metadata for an absolute URL (client.Client.Head).
type Prober interface {
	Head(ctx context.Context, rawURL string) (*protocol.ObjectInfo, error)
}

// Detector resolves media sources against the file-manager state store
// and the media server.
type Detector struct {
	Store  *filestate.Store
	Legacy *filestate.Store // older registration path, consulted last
	Prober Prober
}

// FileManagerData looks src up by URL, then by element ID, then in the
// legacy store the same way. Entries without a bucket path are passed over.
func (d *Detector) FileManagerData(src, elementID string) (*Reference, bool) {
	entry, ok := d.lookup(src, elementID)
	if !ok || entry.BucketPath == "" {
		return nil, false
	}
	return &Reference{
		BucketPath:  entry.BucketPath,
		ServerURL:   entry.ServerURL,
		OriginalSrc: src,
		FileType:    entry.Type,
		Metadata: Metadata{
			Filename:     entry.Filename,
			MimeType:     entry.MimeType,
			Size:         entry.Size,
			LastModified: entry.LastModified,
		},
	}, true
}

func (d *Detector) lookup(src, elementID string) (filestate.Entry, bool) {
	for _, s := range []*filestate.Store{d.Store, d.Legacy} {
		if s == nil {
			continue
		}
		for _, key := range []string{src, elementID} {
			if key == "" {
				continue
			}
			if e, ok := s.Get(key); ok && e.BucketPath != "" {
				return e, true
			}
		}
	}
	return filestate.Entry{}, false
}

// ServerFileData builds a reference for a server URL. Metadata comes from a
// HEAD probe; a failed probe leaves it empty.
func (d *Detector) ServerFileData(ctx context.Context, src, kind string) (*Reference, bool) {
	if !IsServerFile(src) {
		return nil, false
	}
	bucketPath := ExtractBucketPath(src)
	if bucketPath == "" {
		return nil, false
	}

	ref := &Reference{
		BucketPath:  bucketPath,
		ServerURL:   ServerOrigin(src),
		OriginalSrc: src,
		FileType:    kind,
		Metadata:    Metadata{Filename: bucketPath[strings.LastIndex(bucketPath, "/")+1:]},
	}
	if d.Prober == nil {
		return ref, true
	}
	info, err := d.Prober.Head(ctx, src)
	if err != nil {
		logging.Debug("metadata probe failed", zap.String("src", src), zap.Error(err))
		return ref, true
	}
	ref.Metadata.MimeType = info.ContentType
	ref.Metadata.Size = info.Size
	ref.Metadata.LastModified = info.LastModified
	return ref, true
}
