package publisher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/cloudassets/internal/cache"
)

const completedSuffix = "-completed"

// CompletionCache remembers which fingerprints went through a full sync pass
type CompletionCache struct {
	keys *cache.Keyspace
}

// NewCompletionCache keeps records in keys, one "<fingerprint>-completed" entry per fingerprint
func NewCompletionCache(keys *cache.Keyspace) *CompletionCache {
	return &CompletionCache{keys: keys}
}

// IsComplete costs one cache read. A malformed record counts as not complete and is overwritten by the next full pass.
func (c *CompletionCache) IsComplete(ctx context.Context, fingerprint string) (bool, error) {
	done, ok, err := c.keys.GetBool(ctx, fingerprint+completedSuffix)
	if errors.Is(err, cache.ErrInvalidValue) {
		slog.Warn("completion", "op", "invalid", "fingerprint", fingerprint, "error", err)
		return false, nil
	} else if err != nil {
		return false, err
	}
	return ok && done, nil
}

// MarkComplete records that every entry of fingerprint was synced. Concurrent callers write the same value.
func (c *CompletionCache) MarkComplete(ctx context.Context, fingerprint string) error {
	return c.keys.SetBool(ctx, fingerprint+completedSuffix, true)
}
