package publisher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openmined/cloudassets/internal/blob"
	"github.com/openmined/cloudassets/internal/cache"
	"github.com/stretchr/testify/require"
)

// countingStore records the calls made to a memory backend and serializes access to it
type countingStore struct {
	*blob.FSBackend
	fsMu sync.Mutex

	lists  atomic.Int64
	mkdirs atomic.Int64
	writes atomic.Int64

	mu      sync.Mutex
	written []string

	writeErr error
	// existingDirs make CreateDirectory report blob.ErrAlreadyExists
	existingDirs map[string]bool
}

func newCountingStore() *countingStore {
	return &countingStore{FSBackend: blob.NewMemoryBackend()}
}

func (s *countingStore) ListContents(ctx context.Context, path string, recursive bool) ([]*blob.Entry, error) {
	s.lists.Add(1)
	s.fsMu.Lock()
	defer s.fsMu.Unlock()
	return s.FSBackend.ListContents(ctx, path, recursive)
}

func (s *countingStore) CreateDirectory(ctx context.Context, path string) error {
	s.mkdirs.Add(1)
	if s.existingDirs[path] {
		return blob.ErrAlreadyExists
	}
	s.fsMu.Lock()
	defer s.fsMu.Unlock()
	return s.FSBackend.CreateDirectory(ctx, path)
}

func (s *countingStore) WriteStream(ctx context.Context, path string, body io.Reader) error {
	s.writes.Add(1)
	if s.writeErr != nil {
		return s.writeErr
	}
	s.fsMu.Lock()
	err := s.FSBackend.WriteStream(ctx, path, body)
	s.fsMu.Unlock()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.written = append(s.written, path)
	s.mu.Unlock()
	return nil
}

func (s *countingStore) calls() int64 {
	return s.lists.Load() + s.mkdirs.Load() + s.writes.Load()
}

func (s *countingStore) reset() {
	s.lists.Store(0)
	s.mkdirs.Store(0)
	s.writes.Store(0)
	s.mu.Lock()
	s.written = nil
	s.mu.Unlock()
}

func (s *countingStore) writtenPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

// countingCache records cache reads of a memory store
type countingCache struct {
	*cache.MemoryStore
	gets atomic.Int64
	sets atomic.Int64
}

func newCountingCache() *countingCache {
	return &countingCache{MemoryStore: cache.NewMemoryStore(0, 0)}
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets.Add(1)
	return c.MemoryStore.Get(ctx, key)
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte) error {
	c.sets.Add(1)
	return c.MemoryStore.Set(ctx, key, value)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestPublisher(t *testing.T, cfg *Config, c cache.Store, store blob.Store) *Publisher {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "assets"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://cdn.example.com/assets/"
	}
	p, err := New(cfg, c, store)
	require.NoError(t, err)
	return p
}
