// Package main is the cocommandd daemon entry point: it loads the
// workspace config, wires the filesystem index, session runtime, and LLM
// provider together, and serves the local HTTP API a command-bar UI talks
// to.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cocommand/cocommand/internal/config"
	"github.com/cocommand/cocommand/internal/eventbus"
	"github.com/cocommand/cocommand/internal/fstools"
	"github.com/cocommand/cocommand/internal/llmadapter"
	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/session"
)

// Build information, populated by ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var errWriter io.Writer = os.Stderr

func main() {
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json", Output: os.Stderr})
	slog.SetDefault(logger.Slog())

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cocommandd",
		Short:        "cocommandd - local command-bar daemon",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildConfigCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var workspaceDir, addr string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: index the workspace and serve the session API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), workspaceDir, addr, debug)
		},
	}
	cmd.Flags().StringVar(&workspaceDir, "workspace", defaultWorkspaceDir(), "Workspace directory to index and configure from")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8420", "HTTP listen address for the session API and /metrics")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level logging")
	return cmd
}

func defaultWorkspaceDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cocommand")
	}
	return "."
}

func runServe(ctx context.Context, workspaceDir, addr string, debug bool) error {
	if debug {
		slog.SetDefault(observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: os.Stderr}).Slog())
	}
	log := slog.Default()
	log.Info("starting cocommandd", "version", version, "workspace", workspaceDir, "addr", addr)

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	cfg, err := config.Load(filepath.Join(workspaceDir, config.FileName))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics := observability.NewMetrics()
	bus := eventbus.New()

	store, err := messages.OpenSQLiteStore(filepath.Join(workspaceDir, "messages.db"))
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY must be set")
	}
	provider, err := llmadapter.NewAnthropicProvider(llmadapter.Config{
		APIKey:           apiKey,
		BaseURL:          cfg.LLM.BaseURL,
		DefaultModel:     cfg.LLM.Model,
		DefaultMaxTokens: cfg.LLM.MaxOutputTokens,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	extensions := session.NewExtensionRegistry()
	fsRegistry := fstools.NewRegistry(workspaceDir, filepath.Join(workspaceDir, "index-cache"), nil, metrics)
	extensions.Register(fstools.NewExtension(fsRegistry, metrics))

	registry := session.NewRegistry(session.RegistryOptions{
		Store:           store,
		Bus:             bus,
		Extensions:      extensions,
		Provider:        provider,
		Log:             log,
		MaxSteps:        cfg.LLM.MaxSteps,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		SystemPrompt:    cfg.LLM.SystemPrompt,
	})

	d := &daemon{registry: registry, bus: bus}
	if err := d.listenAndServe(addr); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	log.Info("cocommandd listening", "addr", addr)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := fsRegistry.Close(); err != nil {
		log.Warn("error closing filesystem index registry", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Warn("error closing message store", "error", err)
	}
	log.Info("cocommandd stopped")
	return nil
}
