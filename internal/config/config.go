// Package config holds the application configuration and the bundle manifest.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/cloudassets/internal/blob"
	"github.com/openmined/cloudassets/internal/cache"
	"github.com/openmined/cloudassets/internal/publisher"
	"github.com/openmined/cloudassets/internal/warmup"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

var (
	home, _          = os.UserHomeDir()
	DefaultConfigDir = filepath.Join(home, ".cloudassets")
	DefaultCachePath = filepath.Join(DefaultConfigDir, "cache.db")
)

const EnvPrefix = "CLOUDASSETS"

type Config struct {
	Publisher publisher.Config `mapstructure:"publisher"`
	Store     blob.Config      `mapstructure:"store"`
	Cache     cache.Config     `mapstructure:"cache"`
	Bundles   []*warmup.Bundle `mapstructure:"bundles"`
	LogFile   string           `mapstructure:"log_file"`
	LogLevel  string           `mapstructure:"log_level"`
	Path      string           `mapstructure:"-"`
}

func (c *Config) Validate() error {
	if err := c.Publisher.Validate(); err != nil {
		return fmt.Errorf("%w: publisher: %w", ErrInvalidConfig, err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: store: %w", ErrInvalidConfig, err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	c.Publisher.CachePrefix = c.Cache.Prefix

	if c.Publisher.BaseURL == "" {
		slog.Warn("publisher base_url is empty, URLs will be relative")
	}

	for i, b := range c.Bundles {
		if b == nil {
			return fmt.Errorf("%w: bundles[%d] is empty", ErrInvalidConfig, i)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Level parses LogLevel, defaulting to info
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// SetDefaults registers every key so that environment variables can override keys absent from the config file
func SetDefaults(v *viper.Viper) {
	v.SetDefault("publisher.base_path", "assets")
	v.SetDefault("publisher.base_url", "")
	v.SetDefault("publisher.force_copy", false)
	v.SetDefault("publisher.batch", true)
	v.SetDefault("publisher.verbose", false)
	v.SetDefault("publisher.filter.only", []string{})
	v.SetDefault("publisher.filter.except", []string{})
	v.SetDefault("publisher.upload_concurrency", 1)
	v.SetDefault("publisher.hash_workers", 4)

	v.SetDefault("store.driver", blob.DriverLocal)
	v.SetDefault("store.s3.bucket_name", "")
	v.SetDefault("store.s3.region", "")
	v.SetDefault("store.s3.access_key", "")
	v.SetDefault("store.s3.secret_key", "")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.use_accelerate", false)
	v.SetDefault("store.s3.cache_control", "")
	v.SetDefault("store.gcs.bucket_name", "")
	v.SetDefault("store.gcs.credentials_file", "")
	v.SetDefault("store.gcs.endpoint", "")
	v.SetDefault("store.gcs.cache_control", "")
	v.SetDefault("store.local.root", "")

	v.SetDefault("cache.driver", cache.DriverSqlite)
	v.SetDefault("cache.path", DefaultCachePath)
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.size", 0)
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("cache.prefix", "")

	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
}

// NewViper returns a viper instance reading CLOUDASSETS_* variables, with "." in keys mapped to "_"
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type manifest struct {
	Bundles []*warmup.Bundle `yaml:"bundles"`
}

// LoadBundles reads a bundle manifest. Relative source paths are resolved against the manifest directory.
func LoadBundles(path string) ([]*warmup.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundles: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}

	dir := filepath.Dir(path)
	for i, b := range m.Bundles {
		if b == nil {
			return nil, fmt.Errorf("%w: %s: bundles[%d] is empty", ErrInvalidConfig, path, i)
		}
		if b.SourcePath != "" && !filepath.IsAbs(b.SourcePath) && !strings.HasPrefix(b.SourcePath, "~") {
			b.SourcePath = filepath.Join(dir, b.SourcePath)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	}
	return m.Bundles, nil
}
