package main

import (
	"fmt"
	"time"

	"github.com/openmined/cloudassets/internal/publisher"
	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var only []string
	var except []string

	cmd := &cobra.Command{
		Use:   "publish [PATH]",
		Short: "Publish a directory or a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
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

			start := time.Now()
			res, err := eng.publisher.Publish(cmd.Context(), args[0], &publisher.Options{
				Only:   only,
				Except: except,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s%s\n", gray.Render("Path  "), cyan.Render(res.BasePath))
			fmt.Fprintf(out, "%s%s\n", gray.Render("URL   "), green.Render(res.BaseURL))
			fmt.Fprintf(out, "%s%s\n", gray.Render("Took  "), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringSliceVar(&only, "only", nil, "gitignore style patterns of the files to publish")
	cmd.Flags().StringSliceVar(&except, "except", nil, "gitignore style patterns of the files and directories to skip")
	return cmd
}
