package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pb33f/logtracker/config"
	"github.com/pb33f/logtracker/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "logtracker"

var (
	verbose    bool
	configFile string
	Logger     *slog.Logger
	cfg        *config.Config

	shutdownTracer func(context.Context) error

	rootCmd = &cobra.Command{
		Use:   "logtracker [har-file]",
		Short: "Capture browser sessions as HAR and console reports",
		Long: `logtracker consumes Chrome DevTools Protocol events for one or more
debugging sessions, correlates requests, responses and bodies, and writes a
HAR network report plus a CSV console report when each session ends.

Events arrive either as a recorded JSON lines stream ('replay') or over HTTP
from a live debugger bridge ('serve'). Given a HAR file, logtracker opens it
in the terminal viewer.`,
		Args: cobra.MaximumNArgs(1),
		Example: `  logtracker replay session.jsonl -o reports/
  logtracker serve --addr :9222
  logtracker network.SESSION-1.20240501T100000.000Z.har`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runView(cmd, args)
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		fmt.Sprintf("Config file (default: ./%s when present)", config.DefaultFile))

	// reconfigured in PersistentPreRunE once flags are parsed
	setupLogger()
}

func setup(cmd *cobra.Command, args []string) error {
	setupLogger()

	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if cfg.Trace.Enabled {
		shutdownTracer, err = telemetry.InitTracer(serviceName, Version, os.Stderr, Logger)
		if err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	return nil
}

func teardown() error {
	if shutdownTracer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := shutdownTracer(ctx)
	shutdownTracer = nil
	return err
}

// setupLogger configures the global slog logger based on the verbose flag
func setupLogger() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}
	}

	Logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(Logger)

	if verbose {
		Logger.Debug("verbose logging enabled", "pid", os.Getpid())
	}
}

// GetLogger returns the global logger instance
func GetLogger() *slog.Logger {
	if Logger == nil {
		setupLogger()
	}
	return Logger
}

// ValidateFile checks that path exists and is not a directory.
func ValidateFile(path string) error {
	if path == "" {
		return fmt.Errorf("file path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("error accessing file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("provided path is a directory, not a file: %s", path)
	}
	return nil
}
