package tree

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fruitsalade/pagemedia/pkg/models"
)

// RootID is the synthetic ID of the top-level folder.
const RootID = "root"

type indexNode struct {
	id       string
	path     string
	parentID string
	children map[string]struct{}
}

// Index assigns every folder path a stable synthetic ID the first time it is
// seen and keeps parent/child relations explicitly. Server paths are only an
// input; IDs survive re-listings for the lifetime of the index.
type Index struct {
	mu     sync.RWMutex
	byPath map[string]string
	nodes  map[string]*indexNode
}

// NewIndex creates an index containing only the root folder.
func NewIndex() *Index {
	return &Index{
		byPath: map[string]string{"": RootID},
		nodes: map[string]*indexNode{
			RootID: {id: RootID, children: make(map[string]struct{})},
		},
	}
}

// Ensure returns the ID for p, creating it and any missing ancestors.
func (x *Index) Ensure(p string) string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ensure(NormalizePath(p))
}

func (x *Index) ensure(p string) string {
	if id, ok := x.byPath[p]; ok {
		return id
	}
	parentID := x.ensure(ParentPath(p))
	id := uuid.NewString()
	x.byPath[p] = id
	x.nodes[id] = &indexNode{id: id, path: p, parentID: parentID, children: make(map[string]struct{})}
	x.nodes[parentID].children[id] = struct{}{}
	return id
}

// Observe records every folder of a listing.
func (x *Index) Observe(folders []models.Folder) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, f := range folders {
		x.ensure(NormalizePath(f.ID))
	}
}

// ID returns the synthetic ID of a known folder path.
func (x *Index) ID(p string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byPath[NormalizePath(p)]
	return id, ok
}

// Path returns the folder path for id.
func (x *Index) Path(id string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[id]
	if !ok {
		return "", false
	}
	return n.path, true
}

// Parent returns the parent ID of id. The root has no parent.
func (x *Index) Parent(id string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[id]
	if !ok || id == RootID {
		return "", false
	}
	return n.parentID, true
}

// Children returns the child IDs of id, ordered by path.
func (x *Index) Children(id string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[id]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(n.children))
	for child := range n.children {
		ids = append(ids, child)
	}
	sort.Slice(ids, func(i, j int) bool {
		return x.nodes[ids[i]].path < x.nodes[ids[j]].path
	})
	return ids
}

// Len returns the number of folders, root included.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}
