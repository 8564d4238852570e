package publisher

import (
	"context"
	"fmt"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/cloudassets/internal/blob"
)

// RemoteMeta is a snapshot of one destination subtree.
// Keys are directory paths relative to the publisher base path, the root key being the fingerprint.
// Each key maps to the base names of the files stored directly in that directory.
type RemoteMeta struct {
	Dirs map[string]mapset.Set[string]
	// RootExists is false when the listing returned nothing at all
	RootExists bool
}

func newRemoteMeta(root string) *RemoteMeta {
	return &RemoteMeta{
		Dirs: map[string]mapset.Set[string]{
			root: mapset.NewThreadUnsafeSet[string](),
		},
	}
}

func (m *RemoteMeta) HasDir(key string) bool {
	_, ok := m.Dirs[key]
	return ok
}

func (m *RemoteMeta) HasFile(dirKey, name string) bool {
	files, ok := m.Dirs[dirKey]
	return ok && files.Contains(name)
}

// FileCount returns the number of files in the snapshot
func (m *RemoteMeta) FileCount() int {
	n := 0
	for _, files := range m.Dirs {
		n += files.Cardinality()
	}
	return n
}

func (m *RemoteMeta) dir(key string) mapset.Set[string] {
	files, ok := m.Dirs[key]
	if !ok {
		files = mapset.NewThreadUnsafeSet[string]()
		m.Dirs[key] = files
	}
	return files
}

// LoadRemoteMeta lists basePath/fingerprint once, recursively.
// A destination that does not exist yet gives a snapshot holding only the empty root key.
func LoadRemoteMeta(ctx context.Context, store blob.Store, basePath, fingerprint string) (*RemoteMeta, error) {
	basePath = strings.Trim(basePath, "/")
	root := path.Join(basePath, fingerprint)

	entries, err := store.ListContents(ctx, root, true)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", root, err)
	}

	meta := newRemoteMeta(fingerprint)
	meta.RootExists = len(entries) > 0

	for _, entry := range entries {
		key := relativeKey(basePath, entry.Path)
		if entry.IsDir() {
			meta.dir(key)
			continue
		}
		meta.dir(path.Dir(key)).Add(path.Base(key))
	}
	return meta, nil
}

func relativeKey(basePath, p string) string {
	p = strings.Trim(p, "/")
	if basePath == "" {
		return p
	}
	return strings.TrimPrefix(p, basePath+"/")
}
