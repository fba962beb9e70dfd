// Package mediaproc turns a media source (blob, data or remote URL) into
// something the exporter can write: base64 bytes or an external reference.
// Extraction never fails hard; every call returns a Result whose Outcome
// tells the caller how much was recovered.
package mediaproc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/internal/metrics"
	"github.com/fruitsalade/pagemedia/pkg/retry"
)

// Outcome classifies an extraction.
type Outcome int

const (
	// Failed means nothing usable was produced.
	Failed Outcome = iota
	// Recovered means the real bytes or a usable reference were produced.
	Recovered
	// Degraded means a placeholder stands in for the real bytes.
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case Recovered:
		return "recovered"
	case Degraded:
		return "degraded"
	default:
		return "failed"
	}
}

// MarshalText writes the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Reasons recorded on embedded results.
const (
	ReasonDataURL     = "data-url"
	ReasonBlobURL     = "blob-url"
	ReasonRecovered   = "recovered"
	ReasonPlaceholder = "placeholder"
)

// Media kinds.
const (
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
)

const blobNote = "the blob URL could not be read, most likely because it was revoked " +
	"after a page reload; re-select the file from the media library or upload it " +
	"to the server and export again"

// Result is the outcome of one extraction. Exactly one of Base64 (with
// MimeType and Size) or URL (IsURL) is meaningful on success.
type Result struct {
	Outcome  Outcome
	Base64   string
	MimeType string
	Size     int64
	IsURL    bool
	URL      string
	Reason   string
	Note     string
	Err      error
}

// BlobFetcher reads object URLs (blobstore.Store).
type BlobFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Recoverer re-derives the bytes of a source whose primary read failed.
type Recoverer interface {
	Recover(ctx context.Context, src, kind string) ([]byte, string, error)
}

// Processor extracts media. The zero value has no blob access and no
// recoverers; blob sources then degrade to placeholders.
type Processor struct {
	Blobs      BlobFetcher
	Recoverers []Recoverer
	Retry      retry.Config
}

// New creates a processor with the default blob retry schedule
// (3 attempts, 100ms * attempt).
func New(blobs BlobFetcher, recoverers ...Recoverer) *Processor {
	return &Processor{
		Blobs:      blobs,
		Recoverers: recoverers,
		Retry:      retry.LinearConfig(3, 100*time.Millisecond),
	}
}

// Extract resolves src.
func (p *Processor) Extract(ctx context.Context, src, kind string) Result {
	scheme := schemeOf(src)

	var res Result
	switch scheme {
	case "blob":
		res = p.extractBlob(ctx, src, kind)
	case "data":
		res = extractDataURL(src)
	case "":
		res = Result{Outcome: Failed, Err: fmt.Errorf("unsupported media source %q", src)}
	default:
		res = Result{Outcome: Recovered, IsURL: true, URL: src}
	}

	metrics.RecordExtraction(scheme, res.Outcome.String())
	if res.Outcome == Degraded {
		logging.Warn("media replaced by placeholder",
			zap.String("src", src),
			zap.String("kind", kind),
			zap.Error(res.Err),
		)
	}
	return res
}

// schemeOf returns the lower-case scheme of src when it is an absolute URL
// (data and blob URLs included), "" otherwise.
func schemeOf(src string) string {
	switch {
	case strings.HasPrefix(src, "blob:"):
		return "blob"
	case strings.HasPrefix(src, "data:"):
		return "data"
	}
	u, err := url.Parse(src)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

type blobContent struct {
	data     []byte
	mimeType string
}

func (p *Processor) retryConfig() retry.Config {
	if p.Retry.MaxAttempts == 0 {
		return retry.LinearConfig(3, 100*time.Millisecond)
	}
	return p.Retry
}

func (p *Processor) extractBlob(ctx context.Context, src, kind string) Result {
	content, err := p.fetchBlob(ctx, src)
	if err == nil {
		return embedded(content.data, content.mimeType, ReasonBlobURL)
	}

	for _, r := range p.Recoverers {
		data, mt, rerr := r.Recover(ctx, src, kind)
		if rerr != nil {
			logging.Debug("media recoverer failed", zap.String("src", src), zap.Error(rerr))
			continue
		}
		return embedded(data, mt, ReasonRecovered)
	}

	return placeholder(kind, err)
}

func (p *Processor) fetchBlob(ctx context.Context, src string) (blobContent, error) {
	if p.Blobs == nil {
		return blobContent{}, errors.New("no blob store configured")
	}
	return retry.DoWithResult(ctx, p.retryConfig(), func() (blobContent, error) {
		data, mt, err := p.Blobs.Fetch(ctx, src)
		if err != nil {
			return blobContent{}, retry.Retryable(err)
		}
		return blobContent{data: data, mimeType: mt}, nil
	})
}

func embedded(data []byte, mimeType, reason string) Result {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return Result{
		Outcome:  Recovered,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Size:     int64(len(data)),
		Reason:   reason,
	}
}

func placeholder(kind string, cause error) Result {
	res := Result{
		Outcome: Degraded,
		Reason:  ReasonPlaceholder,
		Note:    blobNote,
		Err:     cause,
	}
	if kind == KindImage {
		res.Base64 = base64.StdEncoding.EncodeToString(transparentPixel)
		res.MimeType = "image/png"
		res.Size = int64(len(transparentPixel))
	}
	return res
}

// extractDataURL splits data:[<mediatype>][;base64],<payload>. Base64
// payloads are returned verbatim, even when they do not decode.
func extractDataURL(src string) Result {
	header, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return Result{Outcome: Failed, Err: errors.New("malformed data URL: missing comma")}
	}

	isBase64 := false
	mimeType := header
	if h, found := strings.CutSuffix(header, ";base64"); found {
		isBase64 = true
		mimeType = h
	}
	if mimeType == "" {
		mimeType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		size := int64(base64.StdEncoding.DecodedLen(len(payload)))
		if decoded, err := DecodeBase64(payload); err == nil {
			size = int64(len(decoded))
		}
		return Result{
			Outcome:  Recovered,
			Base64:   payload,
			MimeType: mimeType,
			Size:     size,
			Reason:   ReasonDataURL,
		}
	}

	raw, err := url.PathUnescape(payload)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("malformed data URL: %w", err)}
	}
	return Result{
		Outcome:  Recovered,
		Base64:   base64.StdEncoding.EncodeToString([]byte(raw)),
		MimeType: mimeType,
		Size:     int64(len(raw)),
		Reason:   ReasonDataURL,
	}
}

// DecodeBase64 decodes base64 the way browsers read data URLs: whitespace
// is ignored and padding is optional.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
