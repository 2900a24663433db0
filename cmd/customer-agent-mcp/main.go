package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fantaco-agents/internal/app"
	"fantaco-agents/internal/config"
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

	if settings.CustomerMCPServerURL == "" {
		logger.Error("required environment variable is not set", "key", "CUSTOMER_MCP_SERVER_URL")
		os.Exit(1)
	}

	llm, err := app.New(settings, logger).LlamaStack(ctx)
	if err != nil {
		logger.Error("failed to create Llama Stack client", "err", err)
		os.Exit(1)
	}

	s := mcpserver.NewAgentServer(llm, mcpserver.AgentConfig{
		Agent:     mcpserver.CustomerAgent,
		Model:     settings.InferenceModel,
		MCPServer: settings.CustomerMCPServerURL,
		Logger:    logger,
	}, version)
	logger.Info("customer agent MCP server starting", "addr", settings.CustomerAgentAddr, "model", settings.InferenceModel)
	if err := mcpserver.Serve(ctx, settings.CustomerAgentAddr, s, logger); err != nil {
		logger.Error("customer agent MCP server failed", "err", err)
		os.Exit(1)
	}
}
