// Package blob is the remote object store assets are published to.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/cloudassets/internal/utils"
)

var (
	// ErrAlreadyExists is returned by WriteStream when the destination is already populated
	ErrAlreadyExists = errors.New("object already exists")
	ErrInvalidKey    = errors.New("invalid key")
)

type EntryType uint8

const (
	EntryFile EntryType = iota + 1
	EntryDirectory
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "dir"
	default:
		return "unknown"
	}
}

// Entry is one item of a listing. Path is relative to the store root, without a trailing slash.
type Entry struct {
	Path string
	Type EntryType
}

func (e *Entry) IsDir() bool {
	return e.Type == EntryDirectory
}

// Store is the remote object store contract the publisher relies on
type Store interface {
	// ListContents lists the entries below path. A missing path yields an empty listing, not an error.
	ListContents(ctx context.Context, path string, recursive bool) ([]*Entry, error)

	// CreateDirectory creates path. Creating an existing directory succeeds.
	CreateDirectory(ctx context.Context, path string) error

	// WriteStream writes body to path and returns ErrAlreadyExists when path is already populated
	WriteStream(ctx context.Context, path string, body io.Reader) error

	// Delegate returns the underlying client
	Delegate() any
}

// OpError records the operation and key of a failed store call
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("blob.%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blob.%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}

// ValidateKey reports whether key is usable on every backend: 1 to 1024 bytes of valid UTF-8,
// no leading "/" and no "." or ".." path segment. Dots inside a name, as in "jquery..min.js", are fine.
func ValidateKey(key string) bool {
	// S3 keys must be between 1 and 1024 bytes long
	if len(key) == 0 || len(key) > 1024 {
		return false
	}
	if strings.HasPrefix(key, "/") || !utf8.ValidString(key) {
		return false
	}

	for _, segment := range strings.Split(strings.TrimSuffix(key, "/"), "/") {
		if segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

func checkKey(op, key string) error {
	if !ValidateKey(key) {
		return opError(op, key, ErrInvalidKey)
	}
	return nil
}

// listPrefix returns the object key prefix listing dir
func listPrefix(dir string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// objectLister folds a flat object listing into entries.
// Object stores have no directories: keys ending in "/" are directory markers and
// every path segment between the listing prefix and an object is an implied directory.
type objectLister struct {
	prefix    string
	recursive bool
	dirs      mapset.Set[string]
	files     mapset.Set[string]
}

func newObjectLister(prefix string, recursive bool) *objectLister {
	return &objectLister{
		prefix:    prefix,
		recursive: recursive,
		dirs:      mapset.NewThreadUnsafeSet[string](),
		files:     mapset.NewThreadUnsafeSet[string](),
	}
}

// addObject registers an object key
func (l *objectLister) addObject(key string) {
	if !strings.HasPrefix(key, l.prefix) || key == l.prefix {
		return
	}

	if strings.HasSuffix(key, "/") {
		l.addDir(strings.TrimSuffix(key, "/"))
		return
	}

	if !l.recursive && strings.Contains(strings.TrimPrefix(key, l.prefix), "/") {
		return
	}
	l.files.Add(key)
	l.addParents(path.Dir(key))
}

// addCommonPrefix registers a delimiter-collapsed prefix of a non recursive listing
func (l *objectLister) addCommonPrefix(prefix string) {
	if !strings.HasPrefix(prefix, l.prefix) || prefix == l.prefix {
		return
	}
	l.dirs.Add(strings.TrimSuffix(prefix, "/"))
}

func (l *objectLister) addDir(dir string) {
	if !l.recursive && strings.Contains(strings.TrimPrefix(dir, l.prefix), "/") {
		return
	}
	l.dirs.Add(dir)
	l.addParents(path.Dir(dir))
}

func (l *objectLister) addParents(dir string) {
	root := strings.TrimSuffix(l.prefix, "/")
	for dir != "." && dir != "/" && dir != root && strings.HasPrefix(dir, l.prefix) {
		if !l.dirs.Add(dir) {
			return
		}
		dir = path.Dir(dir)
	}
}

func (l *objectLister) entries() []*Entry {
	entries := make([]*Entry, 0, l.dirs.Cardinality()+l.files.Cardinality())
	for _, dir := range l.dirs.ToSlice() {
		entries = append(entries, &Entry{Path: dir, Type: EntryDirectory})
	}
	for _, file := range l.files.ToSlice() {
		entries = append(entries, &Entry{Path: file, Type: EntryFile})
	}
	sortEntries(entries)
	return entries
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}

func detectContentType(key string, head []byte) string {
	return utils.DetectContentType(key, head)
}
