// Package models contains the media types shared by the client, the
// file manager and the export pipeline.
package models

import "time"

// Item types reported by the media API.
const (
	TypeFile       = "file"
	TypeFolder     = "folder"
	TypeNavigation = "navigation"
)

// MediaItem is one row of a media API listing. Path is the flat server key;
// there is no parent pointer, hierarchy is inferred from path segments.
type MediaItem struct {
	Name         string    `json:"name"`
	LastModified time.Time `json:"lastModified"`
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	URL          string    `json:"url,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// IsFolder reports whether the item denotes a folder.
func (m MediaItem) IsFolder() bool { return m.Type == TypeFolder }

// StoredFile is a file as seen by the file manager. ID is the server key.
type StoredFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Type        string    `json:"type"` // MIME type
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Description string    `json:"description,omitempty"`
	FolderID    string    `json:"folderId,omitempty"`
}

// Folder is a virtual folder derived from server paths. ID is the
// normalized path; ParentID is an ancestor path or empty for root.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
