// Package main provides the HTTP server for chatvault.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/httpapi"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/store"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all stored conversations on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("chatvault-server starting",
		"version", version,
		"addr", cfg.ServerAddr,
		"store", cfg.StoreBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.StoreBackend == "surrealdb" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		surreal, err := store.NewSurreal(connectCtx, store.SurrealConfig{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		connectCancel()
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = surreal.Close(context.Background())
		}()
		st = surreal
	} else {
		st = store.NewMemory()
	}

	if *wipeDB || os.Getenv("CHATVAULT_WIPE_DB") == "true" {
		if wiper, ok := st.(interface{ WipeData(context.Context) error }); ok {
			if err := wiper.WipeData(ctx); err != nil {
				logger.Error("failed to wipe database", "error", err)
				os.Exit(1)
			}
			logger.Info("stored conversations wiped")
		}
	}

	orch, err := orchestrator.New(&cfg, st, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      httpapi.NewHandler(orch, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute, // extractions and job waits can run long
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("API available", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
