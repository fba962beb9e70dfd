// Package mediaserver serves the media REST API over a flat storage key space.
package mediaserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/internal/metrics"
	"github.com/fruitsalade/pagemedia/internal/storage"
	"github.com/fruitsalade/pagemedia/pkg/models"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
	"github.com/fruitsalade/pagemedia/pkg/tree"
)

// Options configures the server.
type Options struct {
	PublicURL     string // base for file URLs, e.g. http://localhost:8080
	MaxUploadSize int64
}

// Server is the media HTTP server.
type Server struct {
	backend       storage.Backend
	publicURL     string
	maxUploadSize int64
}

// NewServer creates a new server.
func NewServer(backend storage.Backend, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 50 * 1024 * 1024
	}
	return &Server{
		backend:       backend,
		publicURL:     strings.TrimRight(opts.PublicURL, "/"),
		maxUploadSize: opts.MaxUploadSize,
	}
}

// SetPublicURL changes the base used for file URLs.
func (s *Server) SetPublicURL(u string) {
	s.publicURL = strings.TrimRight(u, "/")
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	api := protocol.BasePath
	mux.HandleFunc("GET "+api+protocol.ListPath, s.handleList)
	mux.HandleFunc("POST "+api+protocol.UploadPath, s.handleUpload)
	mux.HandleFunc("POST "+api+protocol.FolderPath, s.handleCreateFolder)
	mux.HandleFunc("DELETE "+api+protocol.DeletePath, s.handleDelete)
	mux.HandleFunc("PUT "+api+protocol.MovePath, s.handleMove)
	mux.HandleFunc("GET "+api+protocol.SearchPath, s.handleSearch)
	mux.HandleFunc("GET "+api+protocol.FilterPath, s.handleFilter)

	// GET patterns also match HEAD
	mux.HandleFunc("GET "+protocol.FilesPrefix+"/{key...}", s.handleFile)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.backend.Type()})
}

// ─── Listing ────────────────────────────────────────────────────────────────

func (s *Server) fileURL(key string) string {
	return s.publicURL + protocol.FilesPrefix + "/" + key
}

func (s *Server) toItem(obj storage.ObjectInfo) models.MediaItem {
	item := models.MediaItem{
		Name:         tree.BaseName(obj.Key),
		LastModified: obj.LastModified,
		Path:         obj.Key,
		Size:         obj.Size,
	}
	if obj.IsFolder() {
		item.Type = models.TypeFolder
	} else {
		item.Type = models.TypeFile
		item.URL = s.fileURL(obj.Key)
	}
	return item
}

// listPrefix returns every item under dir, recursively. Folders that exist
// only implicitly (files without a marker object) get synthesized rows.
func (s *Server) listPrefix(r *http.Request, dir string) ([]models.MediaItem, error) {
	dir = tree.NormalizePath(dir)
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	objects, err := s.backend.ListObjects(r.Context(), prefix)
	if err != nil {
		return nil, err
	}

	folders := make(map[string]bool)
	for _, obj := range objects {
		if obj.IsFolder() {
			folders[obj.Key] = true
		}
	}

	items := make([]models.MediaItem, 0, len(objects))
	for _, obj := range objects {
		items = append(items, s.toItem(obj))
		if obj.IsFolder() {
			continue
		}
		for parent := tree.ParentPath(obj.Key); parent != "" && parent != dir; parent = tree.ParentPath(parent) {
			marker := parent + "/"
			if folders[marker] {
				break
			}
			folders[marker] = true
			items = append(items, s.toItem(storage.ObjectInfo{Key: marker, LastModified: obj.LastModified}))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.listPrefix(r, r.URL.Query().Get("path"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "list failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("term")))
	if term == "" {
		s.sendError(w, http.StatusBadRequest, "term required")
		return
	}
	items, err := s.listPrefix(r, r.URL.Query().Get("path"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "search failed: "+err.Error())
		return
	}
	matched := make([]models.MediaItem, 0)
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), term) {
			matched = append(matched, item)
		}
	}
	s.writeJSON(w, http.StatusOK, matched)
}

// MatchesFileType reports whether a file name belongs to a filter category.
func MatchesFileType(name, fileType string) bool {
	mt := tree.MimeType(name)
	switch fileType {
	case protocol.FilterImage, protocol.FilterVideo, protocol.FilterAudio:
		return strings.HasPrefix(mt, fileType+"/")
	case protocol.FilterDocument:
		return strings.HasPrefix(mt, "text/") ||
			(strings.HasPrefix(mt, "application/") && mt != "application/octet-stream")
	default:
		return false
	}
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	fileType := r.URL.Query().Get("fileType")
	switch fileType {
	case protocol.FilterImage, protocol.FilterVideo, protocol.FilterAudio, protocol.FilterDocument:
	default:
		s.sendError(w, http.StatusBadRequest, "unknown fileType: "+fileType)
		return
	}
	items, err := s.listPrefix(r, r.URL.Query().Get("path"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "filter failed: "+err.Error())
		return
	}
	matched := make([]models.MediaItem, 0)
	for _, item := range items {
		if item.Type == models.TypeFile && MatchesFileType(item.Name, fileType) {
			matched = append(matched, item)
		}
	}
	s.writeJSON(w, http.StatusOK, matched)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// uploadName picks the stored file name. A client id replaces the base
// name; the upload's extension is kept when the id has none.
func uploadName(filename, id string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if id == "" {
		return filename
	}
	id = path.Base(id)
	if path.Ext(id) == "" {
		id += path.Ext(filename)
	}
	return id
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	file, header, err := r.FormFile(protocol.UploadFormFile)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	dir, err := storage.CleanKey(r.URL.Query().Get("bucketPath"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := uploadName(header.Filename, r.URL.Query().Get("id"))
	if name == "" || name == "." || name == "/" {
		s.sendError(w, http.StatusBadRequest, "file name required")
		return
	}
	key := tree.JoinPath(dir, name)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = tree.MimeType(name)
	}

	if err := s.backend.PutObject(r.Context(), key, file, header.Size, contentType); err != nil {
		logging.WithContext(r.Context()).Error("upload failed", zap.String("key", key), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	metrics.RecordUpload(header.Size)

	s.writeJSON(w, http.StatusCreated, protocol.UploadResponse{
		URL:      s.fileURL(key),
		Key:      key,
		Name:     name,
		Size:     header.Size,
		MimeType: contentType,
	})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := tree.NormalizePath(q.Get("folderName"))
	if name == "" || strings.Contains(name, "/") {
		s.sendError(w, http.StatusBadRequest, "invalid folderName")
		return
	}
	key, err := storage.CleanKey(tree.JoinPath(q.Get("parentPath"), name) + "/")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.backend.PutObject(r.Context(), key, strings.NewReader(""), 0, ""); err != nil {
		s.sendError(w, http.StatusInternalServerError, "create folder failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, s.toItem(storage.ObjectInfo{Key: key, LastModified: time.Now().UTC()}))
}

// folderKeys returns the keys to delete for a folder, deepest first, with the
// marker last. Empty means the folder does not exist.
func (s *Server) folderKeys(r *http.Request, dir string) ([]string, error) {
	objects, err := s.backend.ListObjects(r.Context(), dir+"/")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := storage.CleanKey(r.URL.Query().Get("fileKey"))
	if err != nil || key == "" {
		s.sendError(w, http.StatusBadRequest, "invalid fileKey")
		return
	}
	ctx := r.Context()

	if !strings.HasSuffix(key, "/") {
		info, err := s.backend.StatObject(ctx, key)
		if err == nil && !info.IsFolder() {
			if err := s.backend.DeleteObject(ctx, key); err != nil {
				s.sendError(w, http.StatusInternalServerError, "delete failed: "+err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.sendError(w, http.StatusInternalServerError, "stat failed: "+err.Error())
			return
		}
	}

	keys, err := s.folderKeys(r, tree.NormalizePath(key))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}
	if len(keys) == 0 {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}
	for _, k := range keys {
		if err := s.backend.DeleteObject(ctx, k); err != nil {
			s.sendError(w, http.StatusInternalServerError, "delete failed: "+err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := storage.CleanKey(q.Get("sourceKey"))
	if err != nil || src == "" || strings.HasSuffix(src, "/") {
		s.sendError(w, http.StatusBadRequest, "invalid sourceKey")
		return
	}
	dir, err := storage.CleanKey(q.Get("destinationPath"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid destinationPath")
		return
	}
	dst := tree.JoinPath(dir, tree.BaseName(src))
	ctx := r.Context()

	info, err := s.backend.StatObject(ctx, src)
	if errors.Is(err, storage.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "stat failed: "+err.Error())
		return
	}
	if info.IsFolder() {
		s.sendError(w, http.StatusBadRequest, "moving folders is not supported")
		return
	}

	if dst != src {
		if err := s.backend.CopyObject(ctx, src, dst); err != nil {
			s.sendError(w, http.StatusInternalServerError, "move failed: "+err.Error())
			return
		}
		if err := s.backend.DeleteObject(ctx, src); err != nil {
			logging.WithContext(ctx).Warn("move left source behind", zap.String("key", src), zap.Error(err))
		}
	}

	moved, err := s.backend.StatObject(ctx, dst)
	if err != nil {
		moved = storage.ObjectInfo{Key: dst, Size: info.Size, LastModified: time.Now().UTC()}
	}
	s.writeJSON(w, http.StatusOK, s.toItem(moved))
}

// ─── Content ────────────────────────────────────────────────────────────────

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key, err := storage.CleanKey(r.PathValue("key"))
	if err != nil || key == "" || strings.HasSuffix(key, "/") {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}

	rc, info, err := s.backend.GetObject(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "read failed")
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = tree.MimeType(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	io.Copy(w, rc)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, protocol.ErrorResponse{Error: message, Code: code})
}
