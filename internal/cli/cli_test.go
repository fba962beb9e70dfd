package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fruitsalade/pagemedia/internal/exporter"
	"github.com/fruitsalade/pagemedia/internal/mediaserver"
	"github.com/fruitsalade/pagemedia/internal/storage/local"
)

// testServer starts a media server and points the CLI at it through the
// environment.
func testServer(t *testing.T) string {
	t.Helper()
	backend, err := local.New(local.Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	srv := mediaserver.NewServer(backend, mediaserver.Options{})
	ts := httptest.NewServer(srv.Handler())
	srv.SetPublicURL(ts.URL)
	t.Cleanup(ts.Close)

	t.Setenv("MEDIA_API_URL", ts.URL)
	t.Setenv("APP_ORIGIN", "")
	t.Setenv("PAGEMEDIA_CONFIG", "")
	return ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("pagemedia %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLibraryCommands(t *testing.T) {
	testServer(t)
	dir := t.TempDir()
	logo := writeFile(t, dir, "logo.png", "png bytes")

	mustRun(t, "mkdir", "brand")
	out := mustRun(t, "upload", logo, "--to", "brand", "--id", "")
	if !strings.Contains(out, "brand/logo.png") {
		t.Errorf("upload output = %q", out)
	}

	out = mustRun(t, "ls", "brand")
	if !strings.Contains(out, "brand/logo.png") || !strings.Contains(out, "/ brand /") {
		t.Errorf("ls output = %q", out)
	}

	mustRun(t, "mkdir", "archive")
	mustRun(t, "mv", "brand/logo.png", "archive")
	out = mustRun(t, "ls", "archive")
	if !strings.Contains(out, "archive/logo.png") {
		t.Errorf("ls after mv = %q", out)
	}

	mustRun(t, "rm", "archive/logo.png")
	out = mustRun(t, "ls", "archive")
	if !strings.Contains(out, "(empty)") {
		t.Errorf("ls after rm = %q", out)
	}
}

func TestSelectExportImport(t *testing.T) {
	base := testServer(t)
	dir := t.TempDir()
	hero := writeFile(t, dir, "hero.png", "hero bytes")
	mustRun(t, "upload", hero, "--to", "brand", "--id", "")

	selections := filepath.Join(dir, "selections.json")
	out := mustRun(t, "select", "brand/hero.png", "hero", "--selections", selections)
	if !strings.Contains(out, "/brand/hero.png") {
		t.Errorf("select output = %q", out)
	}

	heroURL := base + "/api/files/brand/hero.png"
	project := `{"elements":[
		{"id":"hero","type":"image","src":"` + heroURL + `"},
		{"id":"dot","type":"image","src":"data:image/png;base64,iVBORw0KGgo="},
		{"id":"intro","type":"text","properties":{"text":"Hola"}}
	]}`
	projectPath := writeFile(t, dir, "project.json", project)
	docPath := filepath.Join(dir, "export.json")

	mustRun(t, "export", projectPath, "-o", docPath, "--selections", selections)

	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := exporter.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ref, ok := doc.MediaFiles["image_hero"].Data.(*exporter.ServerReference)
	if !ok {
		t.Fatalf("image_hero = %T, want server reference", doc.MediaFiles["image_hero"].Data)
	}
	if ref.BucketPath != "/brand/hero.png" || ref.ServerURL != base {
		t.Errorf("reference = %+v", ref)
	}
	if _, ok := doc.MediaFiles["image_dot"].Data.(*exporter.Base64Embedded); !ok {
		t.Errorf("image_dot = %T, want embedded", doc.MediaFiles["image_dot"].Data)
	}

	restoredPath := filepath.Join(dir, "restored.json")
	out = mustRun(t, "import", docPath, "-o", restoredPath)
	if !strings.Contains(out, "restored 2 media files (0 degraded, 0 failed)") {
		t.Errorf("import report = %q", out)
	}

	data, err = os.ReadFile(restoredPath)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := exporter.DecodeProject(data)
	if err != nil {
		t.Fatalf("DecodeProject: %v", err)
	}
	if got := restored.Elements[0].Src; got != heroURL {
		t.Errorf("hero src = %q, want %q", got, heroURL)
	}
	if got := restored.Elements[1].Src; got != "data:image/png;base64,iVBORw0KGgo=" {
		t.Errorf("dot src = %q", got)
	}
}

func TestExportRejectsBadAttachment(t *testing.T) {
	testServer(t)
	dir := t.TempDir()
	projectPath := writeFile(t, dir, "project.json", `{"elements":[]}`)

	_, err := run(t, "export", projectPath, "-o", filepath.Join(dir, "out.json"), "--selections", "", "--attach", "nopath")
	if err == nil || !strings.Contains(err.Error(), "blob-url=path") {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectMissingFile(t *testing.T) {
	testServer(t)
	_, err := run(t, "select", "brand/nothing.png", "hero", "--selections", filepath.Join(t.TempDir(), "s.json"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}
