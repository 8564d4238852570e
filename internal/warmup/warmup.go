// Package warmup publishes a batch of asset bundles ahead of serving traffic.
package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/cloudassets/internal/publisher"
	"github.com/openmined/cloudassets/internal/utils"
)

type Publisher interface {
	Publish(ctx context.Context, path string, opts *publisher.Options) (*publisher.Result, error)
}

type BundleResult struct {
	Name     string
	Result   *publisher.Result
	URLs     map[string]string
	Err      error
	Duration time.Duration
}

type Report struct {
	Bundles []*BundleResult
	Elapsed time.Duration
}

func (r *Report) Failed() []*BundleResult {
	failed := make([]*BundleResult, 0)
	for _, b := range r.Bundles {
		if b.Err != nil {
			failed = append(failed, b)
		}
	}
	return failed
}

func (r *Report) Succeeded() int {
	return len(r.Bundles) - len(r.Failed())
}

// Runner publishes bundles one after the other. A failing bundle is logged and the batch carries on.
type Runner struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewRunner(p Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{publisher: p, logger: logger}
}

func (r *Runner) Run(ctx context.Context, bundles []*Bundle) *Report {
	start := time.Now()
	report := &Report{Bundles: make([]*BundleResult, 0, len(bundles))}

	for _, bundle := range bundles {
		if err := ctx.Err(); err != nil {
			report.Bundles = append(report.Bundles, &BundleResult{Name: bundle.Name, Err: err})
			continue
		}

		res := r.runBundle(ctx, bundle)
		if res.Err != nil {
			r.logger.Error("warmup", "bundle", res.Name, "error", res.Err)
		} else {
			r.logger.Info("warmup", "bundle", res.Name, "url", res.Result.BaseURL, "took", res.Duration)
		}
		report.Bundles = append(report.Bundles, res)
	}

	report.Elapsed = time.Since(start)
	return report
}

func (r *Runner) runBundle(ctx context.Context, bundle *Bundle) *BundleResult {
	start := time.Now()
	res := &BundleResult{Name: bundle.Name}
	defer func() {
		res.Duration = time.Since(start)
	}()

	if err := bundle.Validate(); err != nil {
		res.Err = err
		return res
	}
	res.Name = bundle.Name

	published, err := r.publisher.Publish(ctx, bundle.SourcePath, bundle.options())
	if err != nil {
		res.Err = err
		return res
	}
	res.Result = published

	if len(bundle.Files) > 0 && utils.DirExists(bundle.SourcePath) {
		urls, err := resolveFiles(bundle.SourcePath, published.BaseURL, bundle.Files)
		if err != nil {
			res.Err = err
			return res
		}
		res.URLs = urls
	}
	return res
}

// resolveFiles maps every file matching patterns under root to its published URL
func resolveFiles(root, baseURL string, patterns []string) (map[string]string, error) {
	fsys := os.DirFS(root)
	urls := make(map[string]string)

	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid file pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no file matches %q in %s", pattern, root)
		}
		for _, m := range matches {
			urls[m] = utils.JoinURL(baseURL, utils.EscapePath(m))
		}
	}
	return urls, nil
}
