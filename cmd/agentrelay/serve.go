package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentrelay/pkg/api"
	"github.com/codeready-toolchain/agentrelay/pkg/auth"
	"github.com/codeready-toolchain/agentrelay/pkg/events"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/orchestrator"
	"github.com/codeready-toolchain/agentrelay/pkg/query"
	"github.com/codeready-toolchain/agentrelay/pkg/snowflake"
	"github.com/codeready-toolchain/agentrelay/pkg/version"
)

const (
	wsWriteTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, port)
		},
	}

	cmd.Flags().StringVar(&port, "port", getEnv("HTTP_PORT", "4000"), "HTTP listen port")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("Starting agentrelay",
		"version", version.Full(),
		"http_port", port,
		"config_dir", opts.configDir)

	// 1. Initialize configuration
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	// 2. Build the relay pipeline
	maskingService := masking.NewService(cfg.Masking)
	client := snowflake.NewClient(cfg, maskingService)
	executor := query.NewExecutor(client, cfg.Statements, maskingService)
	orch := orchestrator.New(client, executor, cfg.AgentModel, cfg.Agent.ToolName, maskingService)
	slog.Info("Relay pipeline initialized", "tool_name", cfg.Agent.ToolName)

	// 3. Create HTTP server
	connManager := events.NewConnectionManager(wsWriteTimeout)
	httpServer := api.NewServer(cfg,
		orch,
		client,
		auth.NewAuthenticator(cfg.Auth),
		auth.NewKeyPairSigner(cfg.Snowflake),
		connManager,
	)

	// 4. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + port
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case serveErr = <-errCh:
		slog.Error("Server error triggered shutdown", "error", serveErr)
	}

	// 6. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete", "open_websockets", connManager.ActiveConnections())
	return serveErr
}
