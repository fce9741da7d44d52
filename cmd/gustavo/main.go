package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/gustavo-go/internal/agent"
	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/history"
	"github.com/comigor/gustavo-go/internal/llm"
	"github.com/comigor/gustavo-go/internal/logger"
	"github.com/comigor/gustavo-go/internal/persona"
	"github.com/comigor/gustavo-go/internal/server"
	"github.com/comigor/gustavo-go/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transcripts and persona overrides share the sqlite file when it is available
	store, sqliteStore := history.Open(cfg.Storage.SQLitePath)
	var db *sql.DB
	if sqliteStore != nil {
		db = sqliteStore.DB()
		defer sqliteStore.Close()
	}
	resolver := persona.NewResolver(persona.Open(cfg.Persona, db), cfg.Persona.GlobalKey)

	// Tools
	toolManager := tools.NewToolManager()
	for _, t := range []tools.Tool{
		tools.NewClockTool(cfg.Clock.Timezone),
		tools.NewWeatherTool(cfg.Weather),
	} {
		if err := toolManager.RegisterTool(t); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", t.Name(), err)
		}
	}
	mcpClients := tools.ConnectMCPServers(ctx, toolManager, cfg.MCPServers)
	defer func() {
		for _, c := range mcpClients {
			if err := c.Close(); err != nil {
				logger.L.Warn("MCP client close error", "error", err)
			}
		}
	}()
	logger.L.Info("tools registered", "count", toolManager.Count(), "tools", toolManager.Names())

	// Initialize LLM provider
	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	a := agent.New(provider, toolManager, resolver, store, cfg.LLM)
	handler := server.NewHandler(a, resolver)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.NewRouter(handler, *cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", srv.Addr, "provider", provider.Name(), "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
