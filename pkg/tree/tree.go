// Package tree derives a virtual folder hierarchy from the flat key space
// returned by the media API.
package tree

import (
	"mime"
	"path"
	"strings"

	"github.com/fruitsalade/pagemedia/pkg/models"
)

// Listing is the content of one directory.
type Listing struct {
	Files   []models.StoredFile `json:"files"`
	Folders []models.Folder     `json:"folders"`
}

// NormalizePath strips leading and trailing slashes.
func NormalizePath(p string) string {
	return strings.Trim(p, "/")
}

// ParentPath returns all segments of p but the last ("" for top-level keys).
func ParentPath(p string) string {
	p = NormalizePath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	p = NormalizePath(p)
	return p[strings.LastIndex(p, "/")+1:]
}

// JoinPath constructs a child path from parent + name.
func JoinPath(parent, name string) string {
	parent = NormalizePath(parent)
	name = NormalizePath(name)
	if parent == "" {
		return name
	}
	if name == "" {
		return parent
	}
	return parent + "/" + name
}

// Reconcile converts a flat item list into the files and folders directly
// under currentPath. Folder rows deeper than one level collapse onto the
// immediate child folder; files in deeper folders are not listed.
func Reconcile(items []models.MediaItem, currentPath string) Listing {
	current := NormalizePath(currentPath)
	listing := Listing{
		Files:   []models.StoredFile{},
		Folders: []models.Folder{},
	}
	seen := make(map[string]bool)

	for _, item := range items {
		switch item.Type {
		case models.TypeFolder:
			if isSentinel(item.Path, current) {
				continue
			}
			key, name, ok := childFolder(item.Path, current)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			listing.Folders = append(listing.Folders, models.Folder{
				ID:        key,
				Name:      name,
				ParentID:  current,
				CreatedAt: item.LastModified,
			})
		case models.TypeFile:
			p := NormalizePath(item.Path)
			if p == "" || ParentPath(p) != current {
				continue
			}
			listing.Files = append(listing.Files, ToStoredFile(item))
		}
	}

	return listing
}

// Flatten converts search and filter results, which span every level below
// currentPath, into a listing. Files keep their own folder and matching
// folders are listed at their full path.
func Flatten(items []models.MediaItem, currentPath string) Listing {
	current := NormalizePath(currentPath)
	listing := Listing{
		Files:   []models.StoredFile{},
		Folders: []models.Folder{},
	}
	seen := make(map[string]bool)

	for _, item := range items {
		p := NormalizePath(item.Path)
		if p == "" || p == current || (current != "" && !strings.HasPrefix(p, current+"/")) {
			continue
		}
		switch item.Type {
		case models.TypeFolder:
			if isSentinel(item.Path, current) || seen[p] {
				continue
			}
			seen[p] = true
			listing.Folders = append(listing.Folders, models.Folder{
				ID:        p,
				Name:      BaseName(p),
				ParentID:  ParentPath(p),
				CreatedAt: item.LastModified,
			})
		case models.TypeFile:
			listing.Files = append(listing.Files, ToStoredFile(item))
		}
	}

	return listing
}

// ToStoredFile converts a file row into the file manager's representation.
func ToStoredFile(item models.MediaItem) models.StoredFile {
	p := NormalizePath(item.Path)
	name := item.Name
	if name == "" {
		name = BaseName(p)
	}
	return models.StoredFile{
		ID:          item.Path,
		Name:        name,
		URL:         item.URL,
		Type:        MimeType(name),
		Size:        item.Size,
		UploadedAt:  item.LastModified,
		Description: item.Description,
		FolderID:    ParentPath(p),
	}
}

// Media types missing from Go's builtin table; system tables vary.
var extraTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".ico":  "image/x-icon",
}

// MimeType guesses a MIME type from a file name's extension.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// isSentinel reports server placeholder rows: glob rows ending in "/**"
// and the "currentPath/" row describing the directory itself.
func isSentinel(rawPath, current string) bool {
	if strings.HasSuffix(rawPath, "/**") {
		return true
	}
	return strings.TrimPrefix(rawPath, "/") == current+"/"
}

// childFolder computes the folder one level below current that p belongs to.
func childFolder(p, current string) (key, name string, ok bool) {
	p = NormalizePath(p)
	if p == "" {
		return "", "", false
	}
	rest := p
	if current != "" {
		if !strings.HasPrefix(p, current+"/") {
			return "", "", false
		}
		rest = p[len(current)+1:]
	}
	name, _, _ = strings.Cut(rest, "/")
	if name == "" {
		return "", "", false
	}
	return JoinPath(current, name), name, true
}

// Breadcrumbs returns one folder stub per segment of currentFolderPath,
// from the top level down. Segments are not checked against the server.
func Breadcrumbs(currentFolderPath string) []models.Folder {
	p := NormalizePath(currentFolderPath)
	if p == "" {
		return nil
	}
	var crumbs []models.Folder
	parent := ""
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		id := JoinPath(parent, seg)
		crumbs = append(crumbs, models.Folder{ID: id, Name: seg, ParentID: parent})
		parent = id
	}
	return crumbs
}
