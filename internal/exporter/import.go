package exporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/detect"
	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/internal/mediaproc"
	"github.com/fruitsalade/pagemedia/internal/metrics"
)

var validate = validator.New()

func validateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// ObjectURLCreator turns bytes into a usable URL (blobstore.Store).
type ObjectURLCreator interface {
	CreateObjectURL(data []byte, mimeType string) string
}

// Restorer rebuilds projects from documents.
type Restorer struct {
	Blobs  ObjectURLCreator
	Prober detect.Prober
	Origin string // application origin, for origin-relative candidates
}

// RestoredMedia reports what happened to one media key.
type RestoredMedia struct {
	Key       string            `json:"key"`
	ElementID string            `json:"elementId"`
	Variant   string            `json:"variant"`
	URL       string            `json:"url"`
	Outcome   mediaproc.Outcome `json:"outcome"`
	Note      string            `json:"note,omitempty"`
}

// ImportReport lists per-key outcomes in element order.
type ImportReport struct {
	Media []RestoredMedia `json:"media"`
}

// Count returns how many keys ended with outcome o.
func (r *ImportReport) Count(o mediaproc.Outcome) int {
	n := 0
	for _, m := range r.Media {
		if m.Outcome == o {
			n++
		}
	}
	return n
}

// Import restores a usable URL for every media key of every element. Only
// a structurally invalid document is an error; broken media degrade.
// The document is not modified.
func (r *Restorer) Import(ctx context.Context, doc *Document) (*Project, *ImportReport, error) {
	if err := validateDocument(doc); err != nil {
		metrics.RecordImport(false)
		return nil, nil, err
	}

	project := &Project{Elements: make([]*Element, len(doc.Elements))}
	for i, el := range doc.Elements {
		project.Elements[i] = el.Clone()
	}

	report := &ImportReport{}
	var err error
	walk(project.Elements, func(el *Element) {
		if err != nil {
			return
		}
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			return
		}
		for _, slot := range slots(el) {
			mf, ok := doc.MediaFiles[slot.key]
			if !ok || mf.Data == nil {
				continue
			}
			restored := r.restore(ctx, mf.Data)
			restored.Key = slot.key
			restored.ElementID = el.ID
			slot.set(el, restored.URL)
			report.Media = append(report.Media, restored)
			metrics.RecordRestoredMedia(restored.Variant, restored.Outcome.String())
		}
	})
	if err != nil {
		metrics.RecordImport(false)
		return nil, nil, err
	}

	metrics.RecordImport(true)
	logging.Info("project imported",
		zap.Int("media", len(report.Media)),
		zap.Int("degraded", report.Count(mediaproc.Degraded)),
		zap.Int("failed", report.Count(mediaproc.Failed)),
	)
	return project, report, nil
}

func (r *Restorer) restore(ctx context.Context, data FileExportData) RestoredMedia {
	out := RestoredMedia{Variant: data.Tag()}
	switch v := data.(type) {
	case *ServerReference:
		out.URL, out.Outcome, out.Note = r.restoreServer(ctx, v)
	case *Base64Embedded:
		if v.Base64 == "" {
			out.URL, out.Outcome, out.Note = v.OriginalSrc, mediaproc.Degraded, "no embedded bytes"
			break
		}
		out.URL, out.Outcome, out.Note = r.restoreBytes(v.Base64, v.MimeType)
		if v.Reason == mediaproc.ReasonPlaceholder && out.Outcome == mediaproc.Recovered {
			out.Outcome, out.Note = mediaproc.Degraded, v.Note
		}
	case *LegacyBase64:
		payload, mimeType := v.Data, ""
		if strings.HasPrefix(payload, "data:") {
			header, rest, _ := strings.Cut(strings.TrimPrefix(payload, "data:"), ",")
			mimeType, payload = strings.TrimSuffix(header, ";base64"), rest
		}
		out.URL, out.Outcome, out.Note = r.restoreBytes(payload, mimeType)
	case *ReferenceOnly:
		out.URL = v.OriginalSrc
		out.Outcome = mediaproc.Recovered
		out.Note = v.Note
		if v.Error != "" {
			out.Outcome, out.Note = mediaproc.Failed, v.Error
		}
	}
	return out
}

// restoreBytes decodes base64 into an object URL, falling back to an
// inline data URL when the payload does not decode.
func (r *Restorer) restoreBytes(payload, mimeType string) (string, mediaproc.Outcome, string) {
	raw, err := mediaproc.DecodeBase64(payload)
	if mimeType == "" {
		mimeType = "application/octet-stream"
		if err == nil {
			mimeType = mimetype.Detect(raw).String()
		}
	}
	dataURL := "data:" + mimeType + ";base64," + payload
	if err != nil {
		logging.Warn("embedded media did not decode, using inline data URL", zap.Error(err))
		return dataURL, mediaproc.Degraded, "base64 decode failed: " + err.Error()
	}
	if r.Blobs == nil {
		return dataURL, mediaproc.Recovered, ""
	}
	return r.Blobs.CreateObjectURL(raw, mimeType), mediaproc.Recovered, ""
}

// restoreServer probes the candidate URLs of a server reference in order
// and returns the first that answers. When none does, the primary candidate
// is returned as a best guess.
func (r *Restorer) restoreServer(ctx context.Context, ref *ServerReference) (string, mediaproc.Outcome, string) {
	candidates := serverCandidates(ref, r.Origin)
	if r.Prober == nil {
		return candidates[0], mediaproc.Degraded, "not verified"
	}
	for _, u := range candidates {
		if !strings.Contains(u, "://") {
			continue
		}
		if _, err := r.Prober.Head(ctx, u); err == nil {
			return u, mediaproc.Recovered, ""
		}
	}
	logging.Warn("no candidate URL answered, keeping best guess",
		zap.String("bucket_path", ref.BucketPath),
		zap.String("server_url", ref.ServerURL),
	)
	return candidates[0], mediaproc.Degraded, "server file not reachable, best guess"
}

// serverCandidates lists the URL shapes a stored file may be served under.
// The first entry is the canonical one. The original source comes after the
// server shapes so cloud storage references resolve.
func serverCandidates(ref *ServerReference, origin string) []string {
	serverURL := strings.TrimRight(ref.ServerURL, "/")
	bucketPath := ref.BucketPath
	origin = strings.TrimRight(origin, "/")
	if !strings.HasPrefix(bucketPath, "/") {
		bucketPath = "/" + bucketPath
	}

	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if serverURL != "" {
		add(serverURL + "/api/files" + bucketPath)
		add(serverURL + "/uploads" + bucketPath)
		add(serverURL + "/files" + bucketPath)
	}
	if origin != "" {
		add(origin + "/api/files" + bucketPath)
	}
	if strings.Contains(ref.OriginalSrc, "://") {
		add(ref.OriginalSrc)
	}
	add("/api/files" + bucketPath)
	return out
}
