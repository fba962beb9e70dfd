// Package filestate records where media placed on the page came from, so
// the exporter can write server references instead of embedding bytes.
package filestate

import (
	"sync"
	"time"
)

// Entry describes a file picked from the media library.
type Entry struct {
	BucketPath   string    `json:"bucketPath"`
	ServerURL    string    `json:"serverUrl"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Type         string    `json:"type"` // image, video, audio, file
	OriginalURL  string    `json:"originalUrl,omitempty"`
}

// Store maps object URLs and element IDs to entries. Each registration is
// reachable under both keys. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	twins   map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]Entry),
		twins:   make(map[string]string),
	}
}

// Register stores e under url and elementID. Existing entries under either
// key are replaced without merging. Empty keys are skipped.
func (s *Store) Register(url, elementID string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{url, elementID} {
		if key == "" {
			continue
		}
		s.unlink(key)
		s.entries[key] = e
	}
	if url != "" && elementID != "" && url != elementID {
		s.twins[url] = elementID
		s.twins[elementID] = url
	}
}

// unlink detaches key from a previous twin; the twin keeps its entry.
func (s *Store) unlink(key string) {
	if twin, ok := s.twins[key]; ok {
		delete(s.twins, twin)
		delete(s.twins, key)
	}
}

// Get returns the entry registered under id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Remove deletes the entry under id and under the key it was registered with.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if twin, ok := s.twins[id]; ok {
		delete(s.entries, twin)
		delete(s.twins, twin)
		delete(s.twins, id)
	}
	delete(s.entries, id)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	clear(s.twins)
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
