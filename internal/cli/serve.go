package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iqcloud/acsbroker/internal/config"
	"github.com/iqcloud/acsbroker/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the broker server",
		Long: `Start the broker HTTP server.

The server will:
  - Accept app launch POSTs carrying context tokens
  - Serve cached client contexts and access tokens
  - Load configuration from file, environment variables, and command-line flags

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (ACSBROKER_*)
  3. Configuration file (if --config or ACSBROKER_CONFIG is set)
  4. Built-in defaults

Examples:
  # Start with default settings
  acsbroker serve

  # Override the HTTP port
  acsbroker serve --server-http-port 8081

  # Run against a redis token store
  acsbroker serve --store-type redis --store-redis-addr localhost:6379

  # Use custom config file
  acsbroker serve --config /etc/acsbroker/config.yaml`,
		RunE: runServe,
	}

	// Auto-register all config flags
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Determine config file path
	configPath := configFile
	if configPath == "" {
		// Check environment variable
		configPath = os.Getenv("ACSBROKER_CONFIG")
	}
	// If still empty, configPath remains empty and we'll use env vars/flags only

	// 2. Load configuration (file + env vars + flags)
	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// 3. Create provider to build all components from config
	provider := config.NewProvider(cfg)

	// 4. Create logger and observer — single instance shared across all components
	logger := config.NewLogger(cfg.Observability)

	observer, err := config.NewObserverWithLogger(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("failed to create observer: %w", err)
	}

	// Inject into provider so the context service uses the same observer
	provider.SetObserver(observer)

	// 5. Build the context service via provider
	contextService, err := provider.ContextService()
	if err != nil {
		return fmt.Errorf("failed to create context service: %w", err)
	}

	// 6. Create server configuration
	serverCfg := provider.ServerConfig()
	serverCfg.Service = contextService

	// 7. Create and start server
	srv := server.New(serverCfg)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Println("acsbroker is running")
	fmt.Printf("  HTTP (launch):  http://localhost:%d/launch\n", serverCfg.HTTPPort)
	fmt.Printf("  HTTP (token):   http://localhost:%d/token\n", serverCfg.HTTPPort)
	fmt.Printf("  HTTP (context): http://localhost:%d/context\n", serverCfg.HTTPPort)
	fmt.Printf("  Health:         http://localhost:%d/healthz\n", serverCfg.HTTPPort)
	fmt.Printf("  Config:         %s\n", configPath)

	// 8. Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")

	// 9. Graceful shutdown
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}
