package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/workspace-search/internal/adapters/mcp"
	"github.com/kirillkom/workspace-search/internal/bootstrap"
	"github.com/kirillkom/workspace-search/internal/config"
	"github.com/kirillkom/workspace-search/internal/observability/logging"
)

const serviceName = "workspace-search-mcp"

func main() {
	// stdout carries the MCP protocol.
	cfg, err := config.Load()
	if err != nil {
		slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, "error"))
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	// The API process owns the on-disk index; this process keeps its own in memory.
	cfg.KeywordIndexPath = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		if err := app.RunIndexer(ctx); err != nil {
			slog.Error("keyword_indexer_stopped", "error", err)
		}
	}()

	if err := mcpadapter.NewServer(app.Search).ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
