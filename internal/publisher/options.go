package publisher

import "github.com/openmined/cloudassets/internal/walker"

// Options adjust a single Publish call
type Options struct {
	// ForceCopy overrides Config.ForceCopy when set
	ForceCopy *bool
	// Only restricts the files of this call, on top of the publisher filter
	Only []string
	// Except excludes files and directories of this call, on top of the publisher filter
	Except []string
	// Hooks overrides the publisher hooks when set
	Hooks CopyHooks

	// files limits the pass to exact relative paths, set by single file publishes
	files []string
}

func Bool(b bool) *bool {
	return &b
}

func (o *Options) filter() walker.Filter {
	return walker.Filter{Only: o.Only, Except: o.Except, Files: o.files}
}

// restricted reports whether the pass may skip files of the directory
func (o *Options) restricted() bool {
	return o.filter().Restricted()
}

func (o *Options) forceCopy(def bool) bool {
	if o.ForceCopy == nil {
		return def
	}
	return *o.ForceCopy
}
