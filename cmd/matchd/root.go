package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetsmatch/matchengine/internal/app"
	"github.com/meetsmatch/matchengine/internal/config"
	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the matchd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "matchd",
		Short:         "Mutual-interest matching engine",
		Long:          "matchd records swipe decisions and creates a match and a chat channel when two parties like each other.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "optional YAML config file; environment variables take precedence")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSwipeCommand(opts))

	return cmd
}

// loadRuntime reads configuration and installs the global logger.
func loadRuntime(opts *RootOptions) (*config.Config, *telemetry.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logConfig := telemetry.DefaultLogConfig()
	logConfig.Level = telemetry.LogLevel(cfg.LogLevel)
	logConfig.Format = cfg.LogFormat
	logConfig.Output = cfg.LogOutput
	logConfig.Rotation = true
	logger, err := telemetry.NewLogger(logConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	telemetry.SetGlobalLogger(logger)
	return cfg, logger, nil
}

// openApp loads configuration and wires the engine for one-shot commands.
func openApp(ctx context.Context, opts *RootOptions) (*app.App, error) {
	cfg, logger, err := loadRuntime(opts)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, app.Options{Version: version})
}
