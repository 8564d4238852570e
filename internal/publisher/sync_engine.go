package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/cloudassets/internal/blob"
	"github.com/openmined/cloudassets/internal/walker"
	"golang.org/x/sync/errgroup"
)

// SyncStats counts what one sync pass did
type SyncStats struct {
	DirsCreated int64
	// DirsPresent were listed remotely or already existed when created
	DirsPresent   int64
	FilesUploaded int64
	// FilesPresent were already listed remotely and skipped
	FilesPresent int64
	// Rejected entries were refused by ShouldCopy
	Rejected int64
	// Conflicts are uploads that lost a race to another writer
	Conflicts     int64
	BytesUploaded int64
	Duration      time.Duration
}

func (s *SyncStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("dirs", s.DirsCreated),
		slog.Int64("dirsPresent", s.DirsPresent),
		slog.Int64("uploaded", s.FilesUploaded),
		slog.Int64("present", s.FilesPresent),
		slog.Int64("rejected", s.Rejected),
		slog.Int64("conflicts", s.Conflicts),
		slog.String("bytes", humanize.Bytes(uint64(s.BytesUploaded))),
		slog.Duration("took", s.Duration),
	)
}

// syncEngine uploads the local entries missing from a remote snapshot
type syncEngine struct {
	store       blob.Store
	filter      walker.Filter
	hooks       CopyHooks
	concurrency int
}

func (e *syncEngine) sync(ctx context.Context, localRoot, destRoot, fingerprint string, meta *RemoteMeta, opts *Options) (*SyncStats, error) {
	start := time.Now()
	stats := &SyncStats{}

	hooks := e.hooks
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}

	files, dirs, err := walker.Find(localRoot, e.filter.Merge(opts.filter()))
	if err != nil {
		return nil, fmt.Errorf("enumerate %q: %w", localRoot, err)
	}

	if !meta.RootExists {
		if _, err := e.createDirectory(ctx, destRoot, stats); err != nil {
			return nil, err
		}
	}

	for _, dir := range dirs {
		rel, err := relPath(localRoot, dir)
		if err != nil {
			return nil, err
		}

		dst := path.Join(destRoot, rel)
		if !hooks.ShouldCopy(dir, dst) {
			stats.Rejected++
			continue
		}
		if meta.HasDir(path.Join(fingerprint, rel)) {
			stats.DirsPresent++
			continue
		}
		created, err := e.createDirectory(ctx, dst, stats)
		if err != nil {
			return nil, err
		}
		if created {
			hooks.OnCopied(dir, dst)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))

	for _, file := range files {
		rel, err := relPath(localRoot, file)
		if err != nil {
			return nil, err
		}

		dst := path.Join(destRoot, rel)
		if !hooks.ShouldCopy(file, dst) {
			atomic.AddInt64(&stats.Rejected, 1)
			continue
		}

		if meta.HasFile(path.Join(fingerprint, path.Dir(rel)), path.Base(rel)) {
			atomic.AddInt64(&stats.FilesPresent, 1)
			continue
		}

		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return e.upload(gctx, file, dst, hooks, stats)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// createDirectory reports false when the directory was already there
func (e *syncEngine) createDirectory(ctx context.Context, dst string, stats *SyncStats) (bool, error) {
	err := e.store.CreateDirectory(ctx, dst)
	if errors.Is(err, blob.ErrAlreadyExists) {
		stats.DirsPresent++
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("create directory %q: %w", dst, err)
	}
	stats.DirsCreated++
	slog.Debug("sync", "op", "mkdir", "path", dst)
	return true, nil
}

func (e *syncEngine) upload(ctx context.Context, src, dst string, hooks CopyHooks, stats *SyncStats) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	err = e.store.WriteStream(ctx, dst, f)
	if errors.Is(err, blob.ErrAlreadyExists) {
		// another writer got there first with the same content
		atomic.AddInt64(&stats.Conflicts, 1)
		slog.Debug("sync", "op", "conflict", "path", dst)
		return nil
	} else if err != nil {
		return fmt.Errorf("upload %q: %w", src, err)
	}

	atomic.AddInt64(&stats.FilesUploaded, 1)
	atomic.AddInt64(&stats.BytesUploaded, size)
	slog.Debug("sync", "op", "upload", "path", dst, "size", humanize.Bytes(uint64(size)))

	hooks.OnCopied(src, dst)
	return nil
}

func relPath(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("relative path of %q: %w", p, err)
	}
	return filepath.ToSlash(rel), nil
}
