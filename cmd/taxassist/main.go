package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/comigor/taxassist-go/internal/api"
	"github.com/comigor/taxassist-go/internal/assistant"
	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/llm"
	"github.com/comigor/taxassist-go/internal/logger"
	"github.com/comigor/taxassist-go/internal/panel"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format, nil)
	logger.L.Info("logger configured", "level", logger.Level().String(), "format", cfg.Log.Format)

	// Open the conversation store, falling back to memory
	store, err := history.Open(cfg.Store.Path)
	if err != nil {
		logger.L.Error("failed to open conversation store, using in-memory store", "path", cfg.Store.Path, "error", err)
		store = history.NewMemoryStore()
	}
	defer store.Close()

	// Completion service
	llmClient := llm.NewClient(cfg.LLM)
	service := assistant.New(llmClient, store, *cfg)
	defer service.Close()

	var completer panel.Completer = service
	if cfg.Panel.CompletionURL != "" {
		logger.L.Info("panels use remote completion service", "url", cfg.Panel.CompletionURL)
		completer = assistant.NewHTTPClient(cfg.Panel.CompletionURL, cfg.Panel.RequestTimeout)
	}

	panels := panel.NewManager(panel.Options{
		Store:     store,
		Completer: completer,
		Config:    cfg.Panel,
	})

	handler := api.NewHandler(service, panels, store, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     handler.Router(),
		ReadTimeout: 30 * time.Second,
		// Websocket streams stay open, so no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info("starting server", "address", srv.Addr, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()
	logger.L.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("server forced to shutdown", "error", err)
	}
	panels.Shutdown()
	logger.L.Info("server stopped")
}
