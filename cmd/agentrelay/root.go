package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configDir string
	logLevel  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "agentrelay",
		Short: "Stream orchestration proxy for a data agent",
		Long: `agentrelay relays an agent's event stream to the caller.

When the agent asks for a query to be run, the relay executes it against
the statements API as the caller's tenant, streams the table back and
continues the conversation with the agent's follow-up answer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(opts.logLevel); err != nil {
				return err
			}
			loadDotEnv(opts.configDir)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		getEnv("LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newJWTCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setupLogging installs the default slog logger at the given level.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadDotEnv loads .env from the config directory, if present, without
// overriding variables already set.
func loadDotEnv(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
		return
	}
	slog.Info("Loaded environment", "path", envPath)
}

// loadConfig initializes configuration from the config directory.
func loadConfig(ctx context.Context, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Initialize(ctx, opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}
	return cfg, nil
}
