// Package main provides the entry point for the chatvault MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/server"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/tools"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("chatvault-mcp starting",
		"version", version,
		"store", cfg.StoreBackend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Pick the conversation store
	var st store.Store
	if cfg.StoreBackend == "surrealdb" {
		surreal, err := store.NewSurreal(ctx, store.SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("closing database connection")
			_ = surreal.Close(ctx)
		}()
		st = surreal
	} else {
		st = store.NewMemory()
	}

	// Build the orchestrator
	orch, err := orchestrator.New(&cfg, st, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	srv := server.New(version, logger)

	deps := &tools.Dependencies{
		Orchestrator: orch,
		Logger:       logger,
	}
	registered := tools.RegisterAll(srv.MCPServer(), deps)
	logger.Info("tools registered", "count", registered)

	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
