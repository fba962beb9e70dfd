// Package protocol defines the media API request/response types.
package protocol

import "time"

// Endpoint paths, relative to the media API base (/api/media).
const (
	BasePath       = "/api/media"
	ListPath       = "/list"   // GET    ?path=
	UploadPath     = "/upload" // POST   ?bucketPath=&id= (multipart, field "file")
	FolderPath     = "/folder" // POST   ?folderName=&parentPath=
	DeletePath     = "/delete" // DELETE ?fileKey=
	MovePath       = "/move"   // PUT    ?sourceKey=&destinationPath=
	SearchPath     = "/search" // GET    ?term=&path=
	FilterPath     = "/filter" // GET    ?fileType=&path=
	FilesPrefix    = "/api/files"
	UploadFormFile = "file"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// UploadResponse describes a stored upload. Some servers reply with a bare
// URL string instead; the client normalizes that into URL only.
type UploadResponse struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ObjectInfo is the metadata returned by a HEAD probe.
type ObjectInfo struct {
	ContentType  string    `json:"contentType,omitempty"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// File type filters accepted by GET /filter.
const (
	FilterImage    = "image"
	FilterVideo    = "video"
	FilterAudio    = "audio"
	FilterDocument = "document"
)
