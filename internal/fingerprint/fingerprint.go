// Package fingerprint computes content fingerprints of local directories.
//
// A fingerprint is the md5 of the sorted md5 digests of every eligible file under a directory.
// It changes whenever any file's bytes change and is independent of names and enumeration order.
package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openmined/cloudassets/internal/cache"
	"github.com/openmined/cloudassets/internal/utils"
	"github.com/openmined/cloudassets/internal/walker"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

type Hasher struct {
	cache   *cache.Keyspace
	filter  walker.Filter
	batch   bool
	workers int
}

type Option func(*Hasher)

// WithFilter sets the walker filter deciding which files contribute to the fingerprint.
// It should be the publisher wide filter: files it leaves out are never published, so they must not move the fingerprint.
func WithFilter(filter walker.Filter) Option {
	return func(h *Hasher) {
		h.filter = walker.Filter{}.Merge(filter)
	}
}

// WithBatch makes the hasher ignore cached fingerprints. Fresh values are still written back.
func WithBatch(batch bool) Option {
	return func(h *Hasher) {
		h.batch = batch
	}
}

// WithWorkers sets how many files are hashed in parallel
func WithWorkers(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.workers = n
		}
	}
}

// New creates a Hasher that memoizes fingerprints in keyspace ks
func New(ks *cache.Keyspace, opts ...Option) *Hasher {
	h := &Hasher{
		cache:   ks,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fingerprint returns the fingerprint of path, or of its containing directory when path is a file.
// A cached value that is not a string is reported as cache.ErrInvalidValue.
func (h *Hasher) Fingerprint(ctx context.Context, path string) (string, error) {
	dir, err := h.directory(path)
	if err != nil {
		return "", err
	}

	if !h.batch {
		fp, ok, err := h.cache.GetString(ctx, dir)
		if err != nil {
			return "", fmt.Errorf("fingerprint %q: %w", dir, err)
		}
		if ok {
			slog.Debug("fingerprint", "op", "hit", "path", dir, "fingerprint", fp)
			return fp, nil
		}
	}

	fp, err := h.compute(ctx, dir)
	if err != nil {
		return "", err
	}

	if err := h.cache.SetString(ctx, dir, fp); err != nil {
		return "", fmt.Errorf("store fingerprint %q: %w", dir, err)
	}

	slog.Debug("fingerprint", "op", "computed", "path", dir, "fingerprint", fp)
	return fp, nil
}

func (h *Hasher) directory(path string) (string, error) {
	abs, err := utils.ResolvePath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	return abs, nil
}

func (h *Hasher) compute(ctx context.Context, dir string) (string, error) {
	files, err := walker.FindFiles(dir, h.filter)
	if err != nil {
		return "", fmt.Errorf("list files of %q: %w", dir, err)
	}

	digests := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			digest, err := utils.FileHash(file)
			if err != nil {
				return fmt.Errorf("hash %q: %w", file, err)
			}
			digests[i] = digest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	sort.Strings(digests)
	return utils.StringHash(strings.Join(digests, "")), nil
}
