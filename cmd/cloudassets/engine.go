package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/cloudassets/internal/blob"
	"github.com/openmined/cloudassets/internal/cache"
	"github.com/openmined/cloudassets/internal/config"
	"github.com/openmined/cloudassets/internal/publisher"
)

// engine bundles a publisher with the stores backing it
type engine struct {
	publisher *publisher.Publisher
	closers   []func() error
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	cacheStore, err := cache.New(ctx, &cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	store, err := blob.New(ctx, &cfg.Store)
	if err != nil {
		cacheStore.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	p, err := publisher.New(&cfg.Publisher, cacheStore, store)
	if err != nil {
		cacheStore.Close()
		closeStore(store)
		return nil, err
	}

	slog.Debug("engine", "store", cfg.Store.Driver, "cache", cfg.Cache.Driver, "basePath", cfg.Publisher.BasePath)

	return &engine{
		publisher: p,
		closers: []func() error{
			cacheStore.Close,
			func() error { return closeStore(store) },
		},
	}, nil
}

func (e *engine) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			slog.Warn("close", "error", err)
		}
	}
}

func closeStore(store blob.Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
