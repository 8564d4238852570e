package warmup

import (
	"fmt"

	"github.com/openmined/cloudassets/internal/publisher"
)

// Bundle is one asset directory to publish during warm-up
type Bundle struct {
	Name       string   `mapstructure:"name" yaml:"name"`
	SourcePath string   `mapstructure:"source_path" yaml:"source_path"`
	Only       []string `mapstructure:"only" yaml:"only"`
	Except     []string `mapstructure:"except" yaml:"except"`
	ForceCopy  *bool    `mapstructure:"force_copy" yaml:"force_copy"`
	// Files are glob patterns, relative to SourcePath, whose URLs are reported after publishing
	Files []string `mapstructure:"files" yaml:"files"`
}

func (b *Bundle) Validate() error {
	if b.SourcePath == "" {
		return fmt.Errorf("bundle %q: source_path required", b.Name)
	}
	if b.Name == "" {
		b.Name = b.SourcePath
	}
	return nil
}

func (b *Bundle) options() *publisher.Options {
	return &publisher.Options{
		ForceCopy: b.ForceCopy,
		Only:      b.Only,
		Except:    b.Except,
	}
}
