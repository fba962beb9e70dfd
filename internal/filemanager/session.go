// Package filemanager holds the state of one open media-library dialog:
// the directory being browsed, its files and folders, and the selection
// handed to the page.
package filemanager

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/pagemedia/internal/filestate"
	"github.com/fruitsalade/pagemedia/internal/logging"
	"github.com/fruitsalade/pagemedia/pkg/client"
	"github.com/fruitsalade/pagemedia/pkg/models"
	"github.com/fruitsalade/pagemedia/pkg/protocol"
	"github.com/fruitsalade/pagemedia/pkg/tree"
)

// ErrSuperseded is returned when a newer navigation replaced the response.
var ErrSuperseded = errors.New("response superseded by a newer request")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("file manager is closed")

// MediaAPI is the part of the media client the session uses.
type MediaAPI interface {
	List(ctx context.Context, path string) (*client.Listing, error)
	Search(ctx context.Context, term, path string) (*client.Listing, error)
	FilterByType(ctx context.Context, fileType, path string) (*client.Listing, error)
	Upload(ctx context.Context, name string, content io.Reader, bucketPath, id string) (*protocol.UploadResponse, error)
	CreateFolder(ctx context.Context, folderName, parentPath string) (*models.Folder, error)
	DeleteMany(ctx context.Context, keys []string) error
	Move(ctx context.Context, sourceKey, destinationPath string) (*models.StoredFile, error)
}

// Options configures a session.
type Options struct {
	// ServerURL is recorded with selections so exports can point back at
	// the media server.
	ServerURL string
	// RetainOnClose keeps state store entries after Close, for callers that
	// export later in the same document session.
	RetainOnClose bool
}

// Session is one open file manager. Every mutation reloads the current
// directory from the server.
type Session struct {
	api   MediaAPI
	store *filestate.Store
	index *tree.Index
	opts  Options

	mu      sync.RWMutex
	open    bool
	gen     uint64
	path    string
	files   []models.StoredFile
	folders []models.Folder
}

// New creates a closed session. store receives selections.
func New(api MediaAPI, store *filestate.Store, opts Options) *Session {
	if store == nil {
		store = filestate.New()
	}
	return &Session{
		api:   api,
		store: store,
		index: tree.NewIndex(),
		opts:  opts,
	}
}

// Open opens the dialog at path.
func (s *Session) Open(ctx context.Context, path string) error {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return s.Navigate(ctx, path)
}

// Close discards the listing and any in-flight responses, and clears the
// state store unless RetainOnClose is set.
func (s *Session) Close() {
	s.mu.Lock()
	s.open = false
	s.gen++
	s.path = ""
	s.files = nil
	s.folders = nil
	s.mu.Unlock()

	if !s.opts.RetainOnClose {
		s.store.Clear()
	}
}

// IsOpen reports whether the session is open.
func (s *Session) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// Store returns the state store selections are registered in.
func (s *Session) Store() *filestate.Store { return s.store }

// Path returns the directory being shown.
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Files returns a copy of the files being shown.
func (s *Session) Files() []models.StoredFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StoredFile(nil), s.files...)
}

// Folders returns a copy of the folders being shown.
func (s *Session) Folders() []models.Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Folder(nil), s.folders...)
}

// FolderID returns the stable ID of a folder seen in this session.
func (s *Session) FolderID(path string) (string, bool) {
	return s.index.ID(path)
}

// Breadcrumbs returns the trail from the top level to the current path.
func (s *Session) Breadcrumbs() []models.Folder {
	return tree.Breadcrumbs(s.Path())
}

// load runs fetch and installs its result unless a newer load started
// or the session was closed meanwhile.
func (s *Session) load(path string, fetch func() (*client.Listing, error)) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	listing, err := fetch()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || !s.open {
		logging.Debug("discarding stale listing", zap.String("path", path))
		return ErrSuperseded
	}
	if err != nil {
		return err
	}
	s.path = tree.NormalizePath(path)
	s.files = listing.Files
	s.folders = listing.Folders
	s.index.Ensure(s.path)
	s.index.Observe(listing.Folders)
	return nil
}

// Navigate shows path.
func (s *Session) Navigate(ctx context.Context, path string) error {
	return s.load(path, func() (*client.Listing, error) {
		return s.api.List(ctx, path)
	})
}

// Up shows the parent of the current path. At the top level it reloads.
func (s *Session) Up(ctx context.Context) error {
	return s.Navigate(ctx, tree.ParentPath(s.Path()))
}

// Refresh reloads the current path.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Navigate(ctx, s.Path())
}

// Search replaces the listing with matches under the current path.
func (s *Session) Search(ctx context.Context, term string) error {
	path := s.Path()
	if strings.TrimSpace(term) == "" {
		return s.Navigate(ctx, path)
	}
	return s.load(path, func() (*client.Listing, error) {
		return s.api.Search(ctx, term, path)
	})
}

// Filter replaces the listing with files of fileType under the current path.
func (s *Session) Filter(ctx context.Context, fileType string) error {
	path := s.Path()
	return s.load(path, func() (*client.Listing, error) {
		return s.api.FilterByType(ctx, fileType, path)
	})
}

// Upload stores content in the current directory and reloads it.
func (s *Session) Upload(ctx context.Context, name string, content io.Reader) (*protocol.UploadResponse, error) {
	if !s.IsOpen() {
		return nil, ErrClosed
	}
	resp, err := s.api.Upload(ctx, name, content, s.Path(), "")
	if err != nil {
		return nil, err
	}
	return resp, s.Refresh(ctx)
}

// CreateFolder creates name in the current directory and reloads it.
func (s *Session) CreateFolder(ctx context.Context, name string) (*models.Folder, error) {
	if !s.IsOpen() {
		return nil, ErrClosed
	}
	folder, err := s.api.CreateFolder(ctx, name, s.Path())
	if err != nil {
		return nil, err
	}
	return folder, s.Refresh(ctx)
}

// Delete removes keys concurrently and reloads. Deletions that succeeded
// stay deleted when another fails.
func (s *Session) Delete(ctx context.Context, keys ...string) error {
	if !s.IsOpen() {
		return ErrClosed
	}
	err := s.api.DeleteMany(ctx, keys)
	if rerr := s.Refresh(ctx); err == nil {
		err = rerr
	}
	return err
}

// Move moves a file into destinationPath and reloads.
func (s *Session) Move(ctx context.Context, sourceKey, destinationPath string) (*models.StoredFile, error) {
	if !s.IsOpen() {
		return nil, ErrClosed
	}
	file, err := s.api.Move(ctx, sourceKey, destinationPath)
	if err != nil {
		return nil, err
	}
	return file, s.Refresh(ctx)
}

// Select hands file to the page element elementID and records where it
// came from. It returns the URL to place on the element.
func (s *Session) Select(file models.StoredFile, elementID string) string {
	s.store.Register(file.URL, elementID, filestate.Entry{
		BucketPath:   "/" + tree.NormalizePath(file.ID),
		ServerURL:    s.opts.ServerURL,
		Filename:     file.Name,
		MimeType:     file.Type,
		Size:         file.Size,
		LastModified: file.UploadedAt,
		Type:         kindOf(file.Type),
		OriginalURL:  file.URL,
	})
	return file.URL
}

func kindOf(mimeType string) string {
	for _, kind := range []string{"image", "video", "audio"} {
		if strings.HasPrefix(mimeType, kind+"/") {
			return kind
		}
	}
	return "file"
}
