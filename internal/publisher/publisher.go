// Package publisher publishes local asset directories to a remote store once per content fingerprint.
//
// A directory is published under <base path>/<fingerprint>. Completed passes are recorded in the
// cache so unchanged content costs one cache read, and every remote write tolerates a concurrent
// writer having produced the same object first.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/cloudassets/internal/blob"
	"github.com/openmined/cloudassets/internal/cache"
	"github.com/openmined/cloudassets/internal/fingerprint"
	"github.com/openmined/cloudassets/internal/utils"
	"github.com/openmined/cloudassets/internal/walker"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// BasePath is the destination directory inside the store
	BasePath string `mapstructure:"base_path"`
	// BaseURL is the public URL BasePath is served from
	BaseURL string `mapstructure:"base_url"`
	// ForceCopy runs the sync pass even for fingerprints already marked complete
	ForceCopy bool `mapstructure:"force_copy"`
	// Batch recomputes fingerprints instead of trusting cached ones
	Batch bool `mapstructure:"batch"`
	// Verbose prints every published file
	Verbose bool `mapstructure:"verbose"`
	// Filter applies to every publish, per call options are added on top
	Filter            walker.Filter `mapstructure:"filter"`
	UploadConcurrency int           `mapstructure:"upload_concurrency"`
	HashWorkers       int           `mapstructure:"hash_workers"`
	// CachePrefix namespaces the cache keys of this publisher
	CachePrefix string `mapstructure:"-"`
	// Hooks replace DefaultHooks, or VerboseHooks when Verbose is set
	Hooks CopyHooks `mapstructure:"-"`
}

// Validate trims BasePath of slashes and BaseURL of trailing slashes, checks BasePath is a usable key
// and defaults UploadConcurrency to 1
func (c *Config) Validate() error {
	c.BasePath = strings.Trim(strings.TrimSpace(c.BasePath), "/")
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	if c.BasePath == "" {
		return fmt.Errorf("%w: base_path required", ErrInvalidConfig)
	}
	if !blob.ValidateKey(c.BasePath) {
		return fmt.Errorf("%w: invalid base_path %q", ErrInvalidConfig, c.BasePath)
	}
	if c.UploadConcurrency < 0 {
		return fmt.Errorf("%w: upload_concurrency must not be negative", ErrInvalidConfig)
	}
	if c.UploadConcurrency == 0 {
		c.UploadConcurrency = 1
	}
	return nil
}

// Result locates a published directory or file
type Result struct {
	// BasePath is the destination directory in the store
	BasePath string
	// BaseURL is the public URL of the published directory, or of the file for file publishes
	BaseURL string
}

// Publisher publishes local paths and memoizes the results for its own lifetime.
// Use one Publisher per run.
type Publisher struct {
	config     *Config
	store      blob.Store
	hasher     *fingerprint.Hasher
	completion *CompletionCache
	engine     *syncEngine

	mu    sync.RWMutex
	memo  map[string]*Result
	group singleflight.Group
}

// New validates config and returns a Publisher storing fingerprints and completion records in cacheStore
// and uploading to store. It fails with ErrInvalidConfig when BasePath is missing or invalid.
func New(config *Config, cacheStore cache.Store, store blob.Store) (*Publisher, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if cacheStore == nil || store == nil {
		return nil, fmt.Errorf("%w: cache and store required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	hooks := config.Hooks
	if hooks == nil {
		if config.Verbose {
			hooks = NewVerboseHooks(os.Stdout)
		} else {
			hooks = DefaultHooks{}
		}
	}

	return &Publisher{
		config: config,
		store:  store,
		hasher: fingerprint.New(
			cache.HashKeyspace(cacheStore, config.CachePrefix),
			fingerprint.WithFilter(config.Filter),
			fingerprint.WithBatch(config.Batch),
			fingerprint.WithWorkers(config.HashWorkers),
		),
		completion: NewCompletionCache(cache.MetaKeyspace(cacheStore, config.CachePrefix)),
		engine: &syncEngine{
			store:       store,
			filter:      config.Filter,
			hooks:       hooks,
			concurrency: config.UploadConcurrency,
		},
		memo: make(map[string]*Result),
	}, nil
}

// Publish publishes a directory, or the single file at path, and returns where it lives remotely.
// Repeated calls for the same path return the first result, whatever the options.
func (p *Publisher) Publish(ctx context.Context, srcPath string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	absPath, err := utils.ResolvePath(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if res, ok := p.lookup(absPath); ok {
		return res, nil
	}

	v, err, _ := p.group.Do(absPath, func() (any, error) {
		if res, ok := p.lookup(absPath); ok {
			return res, nil
		}

		res, err := p.publish(ctx, absPath, opts)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.memo[absPath] = res
		p.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Published returns the memoized result for srcPath
func (p *Publisher) Published(srcPath string) (*Result, bool) {
	absPath, err := utils.ResolvePath(srcPath)
	if err != nil {
		return nil, false
	}
	return p.lookup(absPath)
}

func (p *Publisher) lookup(absPath string) (*Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res, ok := p.memo[absPath]
	return res, ok
}

func (p *Publisher) publish(ctx context.Context, absPath string, opts *Options) (*Result, error) {
	info, err := os.Stat(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: the file or directory to be published does not exist: %s", ErrInvalidArgument, absPath)
	} else if err != nil {
		return nil, fmt.Errorf("stat %q: %w", absPath, err)
	}

	if info.IsDir() {
		return p.publishDirectory(ctx, absPath, opts)
	}
	return p.publishFile(ctx, absPath, opts)
}

func (p *Publisher) publishFile(ctx context.Context, absPath string, opts *Options) (*Result, error) {
	name := filepath.Base(absPath)

	// matched by exact path, file names may contain pattern syntax
	dirOpts := *opts
	dirOpts.Only = nil
	dirOpts.files = []string{name}

	res, err := p.publishDirectory(ctx, filepath.Dir(absPath), &dirOpts)
	if err != nil {
		return nil, err
	}

	return &Result{
		BasePath: res.BasePath,
		BaseURL:  utils.JoinURL(res.BaseURL, utils.EscapePath(name)),
	}, nil
}

func (p *Publisher) publishDirectory(ctx context.Context, dir string, opts *Options) (*Result, error) {
	fp, err := p.hasher.Fingerprint(ctx, dir)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BasePath: path.Join(p.config.BasePath, fp),
		BaseURL:  p.config.BaseURL + "/" + fp,
	}

	if !opts.forceCopy(p.config.ForceCopy) {
		done, err := p.completion.IsComplete(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("completion of %s: %w", fp, err)
		}
		if done {
			slog.Debug("publish", "op", "skip", "path", dir, "fingerprint", fp)
			return res, nil
		}
	}

	meta, err := LoadRemoteMeta(ctx, p.store, p.config.BasePath, fp)
	if err != nil {
		return nil, err
	}

	stats, err := p.engine.sync(ctx, dir, res.BasePath, fp, meta, opts)
	if err != nil {
		return nil, fmt.Errorf("sync %q: %w", dir, err)
	}
	slog.Info("publish", "path", dir, "dest", res.BasePath, "stats", stats)

	// a pass limited to some files did not visit every entry, so it cannot vouch for the whole directory
	if !opts.restricted() {
		if err := p.completion.MarkComplete(ctx, fp); err != nil {
			return nil, fmt.Errorf("mark %s complete: %w", fp, err)
		}
	}

	return res, nil
}
