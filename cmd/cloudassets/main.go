package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/cloudassets/internal/config"
	"github.com/openmined/cloudassets/internal/utils"
	"github.com/openmined/cloudassets/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFileName = "cloudassets"

var errorPrefix = color.New(color.FgHiRed, color.Bold).SprintFunc()

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cloudassets",
		Short:         "Publish static asset bundles to cloud storage",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default ./cloudassets.yaml or ~/.cloudassets/cloudassets.yaml)")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "print every published file")
	cmd.PersistentFlags().Bool("force", false, "sync even when a fingerprint is already marked complete")

	cmd.AddCommand(newWarmupCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	// console logging until the config tells us more
	setLogger(os.Stdout, nil, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorPrefix("ERROR:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file, the config file, CLOUDASSETS_* variables and flags, in increasing precedence
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		if cmd.Flag("env-file").Changed || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	v := config.NewViper()
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(config.DefaultConfigDir)
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	bindFlag(v, "log_file", cmd.Flag("log-file"))
	bindFlag(v, "log_level", cmd.Flag("log-level"))
	bindFlag(v, "publisher.verbose", cmd.Flag("verbose"))
	bindFlag(v, "publisher.force_copy", cmd.Flag("force"))

	return config.Load(v)
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag != nil {
		v.BindPFlag(key, flag)
	}
}

// setupLogging installs the console handler and, when configured, a log file behind a LogInterceptor
func setupLogging(cfg *config.Config) (func(), error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	if cfg.LogFile == "" {
		setLogger(os.Stdout, nil, level)
		return func() {}, nil
	}

	if err := utils.EnsureParent(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Clean(cfg.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	setLogger(os.Stdout, interceptor, level)

	return func() {
		interceptor.Close()
		file.Close()
	}, nil
}

func setLogger(stdout *os.File, file io.Writer, level slog.Level) {
	handlers := []slog.Handler{
		tint.NewHandler(stdout, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !isatty.IsTerminal(stdout.Fd()),
		}),
	}

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			// the interceptor stamps the time
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}))
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}
