package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at);
`

// SqliteStore persists entries in a sqlite table so fingerprints and completion records survive across runs
type SqliteStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewSqliteStore creates the cache table on db if needed. Entries expire after ttl (0 = never).
func NewSqliteStore(db *sqlx.DB, ttl time.Duration) (*SqliteStore, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize cache table: %w", err)
	}

	return &SqliteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row struct {
		Value     []byte `db:"value"`
		ExpiresAt int64  `db:"expires_at"`
	}

	err := s.db.GetContext(ctx, &row, "SELECT value, expires_at FROM cache WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if row.ExpiresAt > 0 && s.now().Unix() >= row.ExpiresAt {
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (s *SqliteStore) Set(ctx context.Context, key string, value []byte) error {
	var expiresAt int64
	if s.ttl > 0 {
		expiresAt = s.now().Add(s.ttl).Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Prune removes expired entries and returns how many were deleted
func (s *SqliteStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache WHERE expires_at > 0 AND expires_at <= ?", s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SqliteStore)(nil)
