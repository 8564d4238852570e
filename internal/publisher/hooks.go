package publisher

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/openmined/cloudassets/internal/utils"
)

// CopyHooks gate and observe every copy of a sync pass.
// src is the local path and dst the destination key.
// OnCopied follows every created directory and uploaded file, but not the destination root
// nor an upload another writer completed first. With concurrent uploads it is called from several goroutines.
type CopyHooks interface {
	ShouldCopy(src, dst string) bool
	OnCopied(src, dst string)
}

// DefaultHooks skip dot files and dot directories
type DefaultHooks struct{}

func (DefaultHooks) ShouldCopy(src, _ string) bool {
	return !utils.IsHidden(src)
}

func (DefaultHooks) OnCopied(_, _ string) {}

// VerboseHooks behave like DefaultHooks and print a line for every published file and directory
type VerboseHooks struct {
	DefaultHooks
	Out io.Writer

	mu sync.Mutex
}

func NewVerboseHooks(out io.Writer) *VerboseHooks {
	if out == nil {
		out = os.Stdout
	}
	return &VerboseHooks{Out: out}
}

func (h *VerboseHooks) OnCopied(src, dst string) {
	kind := "File"
	if info, err := os.Stat(src); err == nil && info.IsDir() {
		kind = "Directory"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.Out, "%s %q was published to %q\n", kind, src, dst)
}

// HookFuncs adapts plain functions to CopyHooks. A nil BeforeCopy falls back to DefaultHooks.
type HookFuncs struct {
	BeforeCopy func(src, dst string) bool
	AfterCopy  func(src, dst string)
}

func (h HookFuncs) ShouldCopy(src, dst string) bool {
	if h.BeforeCopy == nil {
		return DefaultHooks{}.ShouldCopy(src, dst)
	}
	return h.BeforeCopy(src, dst)
}

func (h HookFuncs) OnCopied(src, dst string) {
	if h.AfterCopy != nil {
		h.AfterCopy(src, dst)
	}
}

var (
	_ CopyHooks = DefaultHooks{}
	_ CopyHooks = (*VerboseHooks)(nil)
	_ CopyHooks = HookFuncs{}
)
