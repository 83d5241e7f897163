// Wayfarer server — answers conversational queries by classifying intent,
// researching with tool calls, and streaming a synthesized answer to
// subscribers over SSE and WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wayfarer-ai/wayfarer/pkg/actions"
	"github.com/wayfarer-ai/wayfarer/pkg/api"
	"github.com/wayfarer-ai/wayfarer/pkg/classify"
	"github.com/wayfarer-ai/wayfarer/pkg/cleanup"
	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/followup"
	"github.com/wayfarer-ai/wayfarer/pkg/history"
	"github.com/wayfarer-ai/wayfarer/pkg/llm"
	"github.com/wayfarer-ai/wayfarer/pkg/pipeline"
	"github.com/wayfarer-ai/wayfarer/pkg/research"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
	"github.com/wayfarer-ai/wayfarer/pkg/synthesis"
	"github.com/wayfarer-ai/wayfarer/pkg/widgets"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	providerID := flag.String("provider",
		getEnv("LLM_PROVIDER", "default"),
		"LLM provider id from configuration")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "config_dir", *configDir, "provider", *providerID)

	registry := llm.NewRegistry(cfg.Providers)
	llmClient, err := registry.Client(*providerID, "")
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", *providerID, "error", err)
		os.Exit(1)
	}

	// Action registry: search plus the loop-control actions.
	actionRegistry := actions.NewRegistry()
	searchProvider := actions.NewSearxNGProvider(cfg.Search)
	for _, a := range []actions.Action{
		actions.NewWebSearch(searchProvider, cfg.Search),
		actions.DoneAction{},
		actions.ReasoningAction{},
	} {
		if err := actionRegistry.Register(a); err != nil {
			slog.Error("Failed to register action", "error", err)
			os.Exit(1)
		}
	}

	// Optional history persistence.
	var recorder pipeline.Recorder
	var pruner cleanup.HistoryPruner
	if cfg.History.Enabled {
		histStore, err := history.NewStore(ctx, historyConfigFromEnv())
		if err != nil {
			slog.Error("Failed to connect to history database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := histStore.Close(); err != nil {
				slog.Error("Error closing history store", "error", err)
			}
		}()
		recorder = histStore
		pruner = histStore
		slog.Info("History persistence enabled")
	}

	engine := pipeline.New(
		classify.New(llmClient, ""),
		research.New(llmClient, "", actionRegistry, cfg.Modes),
		widgets.NewExecutor(widgets.NewHTTPProvider(cfg.Widgets), cfg.Widgets),
		synthesis.New(llmClient, "", cfg.Synthesis),
		followup.New(llmClient, "", cfg.Followup),
		recorder,
	)

	store := session.NewStore(cfg.Session.TTL)

	cleanupService := cleanup.NewService(cfg.Session, cfg.History, store, pruner)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	server := api.NewServer(cfg.HTTP, store, registry, engine)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: server.Echo(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown did not complete cleanly", "error", err)
	}
	slog.Info("Wayfarer stopped")
}

// historyConfigFromEnv reads PostgreSQL settings from the environment, with
// local-development defaults.
func historyConfigFromEnv() history.Config {
	port := 5432
	if p := os.Getenv("DB_PORT"); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			slog.Warn("Invalid DB_PORT, using default", "value", p)
			port = 5432
		}
	}
	return history.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "wayfarer"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: getEnv("DB_NAME", "wayfarer"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}
