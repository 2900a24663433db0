package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fantaco-agents/internal/config"
	"fantaco-agents/internal/integrations/finance"
	"fantaco-agents/internal/mcpserver"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := config.New(".env")
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	settings := config.Load(v)
	logger := config.NewLogger(os.Stderr, settings.LogLevel, false)
	slog.SetDefault(logger)

	api, err := finance.NewClient(settings.FinanceAPIBaseURL, nil)
	if err != nil {
		logger.Error("failed to create finance client", "err", err)
		os.Exit(1)
	}

	s := mcpserver.NewFinanceServer(api, version)
	logger.Info("finance MCP server starting", "addr", settings.FinanceMCPAddr, "upstream", settings.FinanceAPIBaseURL)
	if err := mcpserver.Serve(ctx, settings.FinanceMCPAddr, s, logger); err != nil {
		logger.Error("finance MCP server failed", "err", err)
		os.Exit(1)
	}
}
