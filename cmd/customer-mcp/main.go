package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fantaco-agents/internal/config"
	"fantaco-agents/internal/integrations/customer"
	"fantaco-agents/internal/mcpserver"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	v, err := config.New(".env")
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	settings := config.Load(v)
	logger := config.NewLogger(os.Stderr, settings.LogLevel, false)
	slog.SetDefault(logger)

	// ---- Clients ----
	api, err := customer.NewClient(settings.CustomerAPIBaseURL, nil)
	if err != nil {
		logger.Error("failed to create customer client", "err", err)
		os.Exit(1)
	}

	// ---- Server ----
	s := mcpserver.NewCustomerServer(api, version)
	logger.Info("customer MCP server starting", "addr", settings.CustomerMCPAddr, "upstream", settings.CustomerAPIBaseURL)
	if err := mcpserver.Serve(ctx, settings.CustomerMCPAddr, s, logger); err != nil {
		logger.Error("customer MCP server failed", "err", err)
		os.Exit(1)
	}
}
