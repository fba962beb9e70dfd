package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/pagemedia/internal/blobstore"
	"github.com/fruitsalade/pagemedia/internal/detect"
	"github.com/fruitsalade/pagemedia/internal/exporter"
	"github.com/fruitsalade/pagemedia/internal/filestate"
	"github.com/fruitsalade/pagemedia/internal/mediaproc"
)

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// parseAttachments reads blob-url=path pairs.
func parseAttachments(pairs []string) (*mediaproc.Attachments, error) {
	att := mediaproc.NewAttachments()
	for _, p := range pairs {
		objectURL, path, ok := strings.Cut(p, "=")
		if !ok || objectURL == "" || path == "" {
			return nil, fmt.Errorf("invalid --attach %q, want blob-url=path", p)
		}
		att.Attach(objectURL, path)
	}
	return att, nil
}

// RunExport writes the export document of a project file.
func RunExport(cmd *cobra.Command, projectPath, output, selectionsPath string, attach []string) error {
	data, err := os.ReadFile(projectPath)
	if err != nil {
		return err
	}
	project, err := exporter.DecodeProject(data)
	if err != nil {
		return err
	}

	store := filestate.New()
	sel, err := loadSelections(selectionsPath)
	if err != nil {
		return err
	}
	register(store, sel)

	att, err := parseAttachments(attach)
	if err != nil {
		return err
	}

	c := newClient()
	proc := mediaproc.New(blobstore.New(cfg.AppOrigin),
		mediaproc.CanvasRecoverer{Images: att},
		mediaproc.FileInputRecoverer{Files: att},
	)
	exp := exporter.NewExporter(&detect.Detector{Store: store, Prober: c}, proc)

	doc, err := exp.Export(cmd.Context(), project)
	if err != nil {
		return err
	}
	out, err := exporter.Encode(doc)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, output, out); err != nil {
		return err
	}

	m := doc.ExportMetadata
	fmt.Fprintf(cmd.ErrOrStderr(), "exported %d elements, %d media files (%d server references, %d embedded, %d reference only)\n",
		m.ElementCount, m.MediaCount, m.ServerReferences, m.Embedded, m.ReferenceOnly)
	return nil
}

// RunImport restores a project from an export document. Embedded media is
// written back as data URLs.
func RunImport(cmd *cobra.Command, docPath, output string) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return err
	}
	doc, err := exporter.Decode(data)
	if err != nil {
		return err
	}

	r := &exporter.Restorer{Prober: newClient(), Origin: cfg.AppOrigin}
	project, report, err := r.Import(cmd.Context(), doc)
	if err != nil {
		return err
	}
	out, err := exporter.EncodeProject(project)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, output, out); err != nil {
		return err
	}
	printReport(cmd.ErrOrStderr(), report)
	return nil
}

func printReport(w io.Writer, report *exporter.ImportReport) {
	for _, m := range report.Media {
		u := m.URL
		if len(u) > 72 {
			u = u[:69] + "..."
		}
		fmt.Fprintf(w, "%-24s %-17s %-9s %s\n", m.Key, m.Variant, m.Outcome, u)
		if m.Note != "" && m.Outcome != mediaproc.Recovered {
			fmt.Fprintf(w, "%-24s %s\n", "", m.Note)
		}
	}
	fmt.Fprintf(w, "restored %d media files (%d degraded, %d failed)\n",
		len(report.Media), report.Count(mediaproc.Degraded), report.Count(mediaproc.Failed))
}
