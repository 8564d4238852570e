package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/openmined/cloudassets/internal/config"
	"github.com/openmined/cloudassets/internal/warmup"
	"github.com/spf13/cobra"
)

func newWarmupCmd() *cobra.Command {
	var bundlesFile string

	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Publish every configured bundle",
		Long: `Publish every configured bundle.

Bundles come from the "bundles" section of the config file, or from a manifest passed with --bundles.
A failing bundle is reported and the remaining bundles are still published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if bundlesFile != "" {
				cfg.Bundles, err = config.LoadBundles(bundlesFile)
				if err != nil {
					return err
				}
			}
			if len(cfg.Bundles) == 0 {
				return fmt.Errorf("no bundles configured")
			}

			closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			cmd.SilenceUsage = true

			eng, err := newEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			logger := slog.With("run", uuid.NewString())
			report := warmup.NewRunner(eng.publisher, logger).Run(cmd.Context(), cfg.Bundles)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Assets have been warmed up. It took %.02f seconds\n", report.Elapsed.Seconds())
			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bundlesFile, "bundles", "b", "", "bundle manifest (yaml) used instead of the config bundles")
	return cmd
}

func printReport(w io.Writer, report *warmup.Report) {
	var sb strings.Builder
	for _, b := range report.Bundles {
		if b.Err != nil {
			sb.WriteString(fmt.Sprintf("%s %s %s\n", red.Render("FAIL"), b.Name, gray.Render(b.Err.Error())))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n", green.Render("OK  "), b.Name, cyan.Render(b.Result.BaseURL)))
		for _, file := range slices.Sorted(maps.Keys(b.URLs)) {
			sb.WriteString(fmt.Sprintf("     %s %s\n", gray.Render(file), b.URLs[file]))
		}
	}
	sb.WriteString(fmt.Sprintf("%d succeeded, %d failed\n", report.Succeeded(), len(report.Failed())))
	fmt.Fprint(w, sb.String())
}
