package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/openmined/cloudassets/internal/utils"
)

type LocalConfig struct {
	Root string `mapstructure:"root"`
}

func (c *LocalConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root required")
	}
	root, err := utils.ResolvePath(c.Root)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", c.Root, err)
	}
	c.Root = root
	return nil
}

// FSBackend stores objects as files of a billy filesystem: a directory on disk or an in-memory tree
type FSBackend struct {
	fs billy.Filesystem
}

func NewFSBackend(fsys billy.Filesystem) *FSBackend {
	return &FSBackend{fs: fsys}
}

// NewLocalBackend publishes into root, which must be an existing directory
func NewLocalBackend(root string) (*FSBackend, error) {
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("the directory %q does not exist", root)
	}
	return NewFSBackend(osfs.New(root)), nil
}

func NewMemoryBackend() *FSBackend {
	return NewFSBackend(memfs.New())
}

func (b *FSBackend) ListContents(_ context.Context, dir string, recursive bool) ([]*Entry, error) {
	dir = strings.Trim(dir, "/")
	root := dir
	if root == "" {
		root = "."
	}

	if _, err := b.fs.Stat(root); errors.Is(err, os.ErrNotExist) {
		return []*Entry{}, nil
	} else if err != nil {
		return nil, opError("list", dir, err)
	}

	entries := make([]*Entry, 0)
	err := util.Walk(b.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		key := filepath.ToSlash(p)
		if key == root {
			return nil
		}
		key = strings.TrimPrefix(key, "./")

		if info.IsDir() {
			entries = append(entries, &Entry{Path: key, Type: EntryDirectory})
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, &Entry{Path: key, Type: EntryFile})
		return nil
	})
	if err != nil {
		return nil, opError("list", dir, err)
	}

	sortEntries(entries)
	return entries, nil
}

func (b *FSBackend) CreateDirectory(_ context.Context, dir string) error {
	if err := checkKey("mkdir", dir); err != nil {
		return err
	}
	return opError("mkdir", dir, b.fs.MkdirAll(strings.TrimSuffix(dir, "/"), 0o755))
}

// WriteStream creates key exclusively. A partially written file is removed again.
func (b *FSBackend) WriteStream(_ context.Context, key string, body io.Reader) error {
	if err := checkKey("write", key); err != nil {
		return err
	}

	if err := b.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return opError("write", key, err)
	}

	f, err := b.fs.OpenFile(key, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return opError("write", key, ErrAlreadyExists)
	} else if err != nil {
		return opError("write", key, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		b.fs.Remove(key)
		return opError("write", key, err)
	}

	if err := f.Close(); err != nil {
		b.fs.Remove(key)
		return opError("write", key, err)
	}
	return nil
}

// ReadFile returns the content stored at key
func (b *FSBackend) ReadFile(key string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, key)
	return data, opError("read", key, err)
}

func (b *FSBackend) Delegate() any {
	return b.fs
}

var _ Store = (*FSBackend)(nil)
