package exporter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/detect"
	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/internal/mediaproc"
	"github.com/fruitsalade/pagemedia/internal/metrics"
)

const externalNote = "external URL, not embedded"

// Exporter writes projects to documents.
type Exporter struct {
	Detector  *detect.Detector
	Processor *mediaproc.Processor
	Now       func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(d *detect.Detector, p *mediaproc.Processor) *Exporter {
	return &Exporter{Detector: d, Processor: p, Now: time.Now}
}

// Export resolves every media property of the project. The element tree is
// written as given; media lives only in MediaFiles. Individual media
// failures never fail the export.
func (e *Exporter) Export(ctx context.Context, project *Project) (*Document, error) {
	if project == nil || project.Elements == nil {
		metrics.RecordExport(false)
		return nil, fmt.Errorf("%w: elements are required", ErrInvalidDocument)
	}

	doc := &Document{
		Elements:   project.Elements,
		MediaFiles: make(map[string]MediaFile),
		ExportMetadata: ExportMetadata{
			ExportedAt: e.now().UTC(),
			Version:    DocumentVersion,
		},
	}
	meta := &doc.ExportMetadata

	var err error
	walk(project.Elements, func(el *Element) {
		if err != nil {
			return
		}
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			return
		}
		meta.ElementCount++
		for _, slot := range slots(el) {
			data := e.resolve(ctx, slot.src, el.ID, slot.kind)
			doc.MediaFiles[slot.key] = MediaFile{Data: data}
			if slot.background {
				meta.BackgroundCount++
			}
			switch data.(type) {
			case *ServerReference:
				meta.ServerReferences++
			case *Base64Embedded:
				meta.Embedded++
			case *ReferenceOnly:
				meta.ReferenceOnly++
			}
			metrics.RecordExportedMedia(data.Tag())
		}
	})
	if err != nil {
		metrics.RecordExport(false)
		return nil, err
	}
	meta.MediaCount = len(doc.MediaFiles)

	metrics.RecordExport(true)
	logging.Info("project exported",
		zap.Int("elements", meta.ElementCount),
		zap.Int("media", meta.MediaCount),
		zap.Int("server_references", meta.ServerReferences),
		zap.Int("embedded", meta.Embedded),
		zap.Int("reference_only", meta.ReferenceOnly),
	)
	return doc, nil
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// resolve picks the export variant for one source: file-manager provenance,
// then a recognized server URL, then byte extraction.
func (e *Exporter) resolve(ctx context.Context, src, elementID, kind string) FileExportData {
	d := e.Detector
	if d == nil {
		d = &detect.Detector{}
	}
	if ref, ok := d.FileManagerData(src, elementID); ok {
		return serverReference(ref)
	}
	if detect.IsServerFile(src) {
		if ref, ok := d.ServerFileData(ctx, src, kind); ok {
			return serverReference(ref)
		}
	}

	p := e.Processor
	if p == nil {
		p = &mediaproc.Processor{}
	}
	res := p.Extract(ctx, src, kind)
	switch {
	case res.IsURL:
		return &ReferenceOnly{OriginalSrc: src, Note: externalNote}
	case res.Outcome == mediaproc.Failed:
		msg := "extraction failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return &ReferenceOnly{OriginalSrc: src, Error: msg}
	default:
		return &Base64Embedded{
			Base64:      res.Base64,
			MimeType:    res.MimeType,
			Size:        res.Size,
			Reason:      res.Reason,
			OriginalSrc: src,
			Note:        res.Note,
		}
	}
}

func serverReference(ref *detect.Reference) *ServerReference {
	return &ServerReference{
		BucketPath:  ref.BucketPath,
		ServerURL:   ref.ServerURL,
		OriginalSrc: ref.OriginalSrc,
		FileType:    ref.FileType,
		Metadata:    ref.Metadata,
	}
}
