package mediaserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fruitsalade/pagemedia/internal/storage/local"
	"github.com/fruitsalade/pagemedia/pkg/models"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
)

func newTestServer(t *testing.T, maxUpload int64) *httptest.Server {
	t.Helper()
	backend, err := local.New(local.Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	srv := NewServer(backend, Options{MaxUploadSize: maxUpload})
	ts := httptest.NewServer(srv.Handler())
	srv.SetPublicURL(ts.URL)
	t.Cleanup(ts.Close)
	return ts
}

func apiURL(ts *httptest.Server, endpoint string, q url.Values) string {
	u := ts.URL + protocol.BasePath + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func doUpload(t *testing.T, ts *httptest.Server, bucketPath, id, name string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile(protocol.UploadFormFile, name)
	part.Write(content)
	mw.Close()

	q := url.Values{"bucketPath": {bucketPath}}
	if id != "" {
		q.Set("id", id)
	}
	resp, err := http.Post(apiURL(ts, protocol.UploadPath, q), mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func doRequest(t *testing.T, method, u string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, u, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, u, err)
	}
	return resp
}

func decodeItems(t *testing.T, resp *http.Response) []models.MediaItem {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var items []models.MediaItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return items
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 0)
	resp := doRequest(t, http.MethodGet, ts.URL+"/health")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestUploadAndServe(t *testing.T) {
	ts := newTestServer(t, 0)
	resp := doUpload(t, ts, "img", "", "cat.png", []byte("meow"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var up protocol.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	if up.Key != "img/cat.png" || up.URL != ts.URL+"/api/files/img/cat.png" {
		t.Fatalf("upload response = %+v", up)
	}

	get := doRequest(t, http.MethodGet, up.URL)
	defer get.Body.Close()
	body, _ := io.ReadAll(get.Body)
	if string(body) != "meow" {
		t.Errorf("body = %q", body)
	}
	if ct := get.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if get.Header.Get("Last-Modified") == "" {
		t.Error("missing Last-Modified")
	}
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, 64)
	resp := doUpload(t, ts, "", "", "big.bin", bytes.Repeat([]byte("x"), 1024))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestUploadRejectsParentSegments(t *testing.T) {
	ts := newTestServer(t, 0)
	resp := doUpload(t, ts, "../outside", "", "x.png", []byte("x"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadWithID(t *testing.T) {
	ts := newTestServer(t, 0)
	resp := doUpload(t, ts, "hero", "banner", "photo.jpg", []byte("x"))
	defer resp.Body.Close()
	var up protocol.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	if up.Key != "hero/banner.jpg" {
		t.Errorf("key = %q, want hero/banner.jpg", up.Key)
	}
}

func TestListSynthesizesImpliedFolders(t *testing.T) {
	ts := newTestServer(t, 0)
	doUpload(t, ts, "a/b/c", "", "deep.png", []byte("x")).Body.Close()

	items := decodeItems(t, doRequest(t, http.MethodGet, apiURL(ts, protocol.ListPath, url.Values{"path": {""}})))
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path+":"+it.Type)
	}
	want := "a/:folder,a/b/:folder,a/b/c/:folder,a/b/c/deep.png:file"
	if got := strings.Join(paths, ","); got != want {
		t.Errorf("items = %s, want %s", got, want)
	}
}

func TestCreateFolder(t *testing.T) {
	ts := newTestServer(t, 0)

	tests := []struct {
		name       string
		folderName string
		parent     string
		wantStatus int
	}{
		{"top level", "docs", "", http.StatusCreated},
		{"nested", "2024", "docs", http.StatusCreated},
		{"empty name", "", "", http.StatusBadRequest},
		{"slash in name", "a/b", "", http.StatusBadRequest},
		{"escape", "x", "../..", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{"folderName": {tt.folderName}, "parentPath": {tt.parent}}
			resp := doRequest(t, http.MethodPost, apiURL(ts, protocol.FolderPath, q))
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	items := decodeItems(t, doRequest(t, http.MethodGet, apiURL(ts, protocol.ListPath, url.Values{"path": {"docs"}})))
	if len(items) != 2 || items[0].Path != "docs/" || items[1].Path != "docs/2024/" {
		t.Errorf("items = %+v", items)
	}
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t, 0)
	doUpload(t, ts, "old", "", "a.png", []byte("x")).Body.Close()
	doUpload(t, ts, "", "", "keep.png", []byte("x")).Body.Close()

	resp := doRequest(t, http.MethodDelete, apiURL(ts, protocol.DeletePath, url.Values{"fileKey": {"old"}}))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete folder status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, apiURL(ts, protocol.DeletePath, url.Values{"fileKey": {"old/a.png"}}))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", resp.StatusCode)
	}

	items := decodeItems(t, doRequest(t, http.MethodGet, apiURL(ts, protocol.ListPath, nil)))
	if len(items) != 1 || items[0].Path != "keep.png" {
		t.Errorf("items after delete = %+v", items)
	}
}

func TestMoveRejectsFolders(t *testing.T) {
	ts := newTestServer(t, 0)
	doRequest(t, http.MethodPost, apiURL(ts, protocol.FolderPath, url.Values{"folderName": {"dir"}})).Body.Close()

	q := url.Values{"sourceKey": {"dir"}, "destinationPath": {"other"}}
	resp := doRequest(t, http.MethodPut, apiURL(ts, protocol.MovePath, q))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	q = url.Values{"sourceKey": {"missing.png"}, "destinationPath": {"other"}}
	resp = doRequest(t, http.MethodPut, apiURL(ts, protocol.MovePath, q))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSearchAndFilterValidation(t *testing.T) {
	ts := newTestServer(t, 0)

	resp := doRequest(t, http.MethodGet, apiURL(ts, protocol.SearchPath, nil))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("search without term: status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, apiURL(ts, protocol.FilterPath, url.Values{"fileType": {"spreadsheet"}}))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown filter: status = %d", resp.StatusCode)
	}
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		filename, id, want string
	}{
		{"photo.jpg", "", "photo.jpg"},
		{`C:\Users\me\photo.jpg`, "", "photo.jpg"},
		{"photo.jpg", "hero", "hero.jpg"},
		{"photo.jpg", "hero.webp", "hero.webp"},
		{"photo.jpg", "../../hero", "hero.jpg"},
	}
	for _, tt := range tests {
		if got := uploadName(tt.filename, tt.id); got != tt.want {
			t.Errorf("uploadName(%q, %q) = %q, want %q", tt.filename, tt.id, got, tt.want)
		}
	}
}

func TestMatchesFileType(t *testing.T) {
	tests := []struct {
		name, fileType string
		want           bool
	}{
		{"a.png", protocol.FilterImage, true},
		{"a.mp4", protocol.FilterVideo, true},
		{"a.mp3", protocol.FilterAudio, true},
		{"a.pdf", protocol.FilterDocument, true},
		{"a.txt", protocol.FilterDocument, true},
		{"a.png", protocol.FilterDocument, false},
		{"a.unknownext", protocol.FilterDocument, false},
		{"a.png", "spreadsheet", false},
	}
	for _, tt := range tests {
		if got := MatchesFileType(tt.name, tt.fileType); got != tt.want {
			t.Errorf("MatchesFileType(%q, %q) = %v, want %v", tt.name, tt.fileType, got, tt.want)
		}
	}
}
