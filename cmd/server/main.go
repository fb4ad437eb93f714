package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabrica3d/fabrica/internal/api"
	"github.com/fabrica3d/fabrica/internal/config"
	"github.com/fabrica3d/fabrica/internal/genimage"
	"github.com/fabrica3d/fabrica/internal/kv"
	"github.com/fabrica3d/fabrica/internal/panels"
	"github.com/fabrica3d/fabrica/internal/pipeline"
	"github.com/fabrica3d/fabrica/internal/recon"
	"github.com/fabrica3d/fabrica/internal/state"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Session persistence
	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	productStore := state.NewProductStore(store, cfg.SessionTTL)
	statusStore := state.NewStatusStore(store, cfg.SessionTTL)
	packagingStore := state.NewPackagingStore(store, cfg.SessionTTL)

	// External capabilities
	imageClient := genimage.NewClient(cfg.ImageAPIBaseURL, cfg.ImageAPIKey, cfg.ImageProModel, cfg.ImageFlashModel)
	reconClient := recon.NewClient(cfg.ReconBaseURL, cfg.ReconAPIKey)

	// Pipelines
	orch := pipeline.NewOrchestrator(productStore, statusStore, imageClient, reconClient, logger)
	panelSvc := panels.NewService(packagingStore, imageClient, logger)

	// Router
	router := api.NewRouter(store, orch, panelSvc, imageClient, reconClient, cfg.APIKey, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("asset generation server starting", "addr", addr, "kv_backend", cfg.KVBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Background runs keep going until they have persisted their result.
	panelSvc.WaitIdle()

	logger.Info("server stopped")
}

func openStore(cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		store, err := kv.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.KVBackendSQLite:
		store, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return kv.NewMemoryStore(), func() {}, nil
	}
}
