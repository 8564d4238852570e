// Package cache provides the key-value store that persists fingerprints and completion
// records across runs, plus namespaced keyspaces with typed JSON accessors.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned when a cached value does not have the expected shape
	ErrInvalidValue = errors.New("invalid cached value")
)

// Store is a minimal key-value cache. A missing key is not an error: Get returns ok=false.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Keyspace namespaces keys of a Store under a fixed prefix
type Keyspace struct {
	store  Store
	prefix string
}

func NewKeyspace(store Store, prefix string) *Keyspace {
	return &Keyspace{store: store, prefix: prefix}
}

// HashKeyspace holds directory fingerprints keyed by absolute path
func HashKeyspace(store Store, prefix string) *Keyspace {
	return NewKeyspace(store, prefix+"hash:")
}

// MetaKeyspace holds completion records keyed by fingerprint
func MetaKeyspace(store Store, prefix string) *Keyspace {
	return NewKeyspace(store, prefix+"meta:")
}

// Key returns the full store key for name
func (k *Keyspace) Key(name string) string {
	return k.prefix + name
}

func (k *Keyspace) Get(ctx context.Context, name string) ([]byte, bool, error) {
	return k.store.Get(ctx, k.Key(name))
}

func (k *Keyspace) Set(ctx context.Context, name string, value []byte) error {
	return k.store.Set(ctx, k.Key(name), value)
}

// GetString returns the string stored under name.
// A present value that is not a JSON string yields ErrInvalidValue.
func (k *Keyspace) GetString(ctx context.Context, name string) (string, bool, error) {
	raw, ok, err := k.Get(ctx, name)
	if err != nil || !ok {
		return "", false, err
	}

	var s string
	if err := jsonUnmarshal(raw, &s); err != nil || isNull(raw) {
		return "", false, fmt.Errorf("%w: expected string at %q, got %s", ErrInvalidValue, k.Key(name), describe(raw))
	}
	return s, true, nil
}

func (k *Keyspace) SetString(ctx context.Context, name, value string) error {
	raw, err := jsonMarshal(value)
	if err != nil {
		return err
	}
	return k.Set(ctx, name, raw)
}

// GetBool returns the bool stored under name.
// A present value that is not a JSON bool yields ErrInvalidValue.
func (k *Keyspace) GetBool(ctx context.Context, name string) (bool, bool, error) {
	raw, ok, err := k.Get(ctx, name)
	if err != nil || !ok {
		return false, false, err
	}

	var b bool
	if err := jsonUnmarshal(raw, &b); err != nil || isNull(raw) {
		return false, false, fmt.Errorf("%w: expected bool at %q, got %s", ErrInvalidValue, k.Key(name), describe(raw))
	}
	return b, true, nil
}

func (k *Keyspace) SetBool(ctx context.Context, name string, value bool) error {
	raw, err := jsonMarshal(value)
	if err != nil {
		return err
	}
	return k.Set(ctx, name, raw)
}

// null decodes into the zero value without error, but is not a value we wrote
func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func describe(raw []byte) string {
	const maxLen = 32
	if len(raw) > maxLen {
		return fmt.Sprintf("%q...", raw[:maxLen])
	}
	return fmt.Sprintf("%q", raw)
}
