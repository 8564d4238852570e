package blob

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverS3     = "s3"
	DriverGCS    = "gcs"
	DriverLocal  = "local"
	DriverMemory = "memory"
)

type Config struct {
	Driver string      `mapstructure:"driver"`
	S3     S3Config    `mapstructure:"s3"`
	GCS    GCSConfig   `mapstructure:"gcs"`
	Local  LocalConfig `mapstructure:"local"`
}

func (c *Config) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))

	switch c.Driver {
	case DriverS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	case DriverGCS:
		if err := c.GCS.Validate(); err != nil {
			return fmt.Errorf("gcs: %w", err)
		}
	case DriverLocal:
		if err := c.Local.Validate(); err != nil {
			return fmt.Errorf("local: %w", err)
		}
	case DriverMemory:
	case "":
		return fmt.Errorf("driver required")
	default:
		return fmt.Errorf("unsupported store driver %q", c.Driver)
	}
	return nil
}

// New creates the store described by cfg. cfg must be validated.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Driver {
	case DriverS3:
		backend, err := NewS3BackendWithConfig(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case DriverGCS:
		backend, err := NewGCSBackendWithConfig(ctx, &cfg.GCS)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case DriverLocal:
		backend, err := NewLocalBackend(cfg.Local.Root)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
