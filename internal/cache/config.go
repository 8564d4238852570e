package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/cloudassets/internal/db"
	"github.com/redis/go-redis/v9"
)

const (
	DriverMemory = "memory"
	DriverSqlite = "sqlite"
	DriverRedis  = "redis"

	defaultMemorySize = 4096
)

type Config struct {
	Driver   string        `mapstructure:"driver"`
	Path     string        `mapstructure:"path"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Size     int           `mapstructure:"size"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

func (c *Config) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverSqlite
	}

	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}

	switch c.Driver {
	case DriverMemory:
		if c.Size < 0 {
			return fmt.Errorf("size must not be negative")
		}
		if c.Size == 0 {
			c.Size = defaultMemorySize
		}
	case DriverSqlite:
		if c.Path == "" {
			return fmt.Errorf("path required")
		}
		if c.Path != ":memory:" {
			abs, err := filepath.Abs(c.Path)
			if err != nil {
				return fmt.Errorf("invalid cache path %q: %w", c.Path, err)
			}
			c.Path = abs
		}
	case DriverRedis:
		if c.Addr == "" {
			return fmt.Errorf("addr required")
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Driver)
	}
	return nil
}

// New opens the store described by cfg. cfg must be validated.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(cfg.Size, cfg.TTL), nil
	case DriverSqlite:
		sqlDB, err := db.NewSqliteDB(db.WithPath(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("open cache db: %w", err)
		}
		store, err := NewSqliteStore(sqlDB, cfg.TTL)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		return store, nil
	case DriverRedis:
		store, err := NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}
