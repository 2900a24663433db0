package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"fantaco-agents/handler"
	"fantaco-agents/internal/app"
	"fantaco-agents/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	v, err := config.New("")
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	settings := config.Load(v)
	mustSet("STATE_TABLE", settings.StateTable)
	mustSet("PARAM_PREFIX", settings.ParamPrefix)

	logger := config.NewLogger(os.Stdout, settings.LogLevel, false)
	slog.SetDefault(logger)

	// ---- Handler ----
	chat, err := app.New(settings, logger).ChatService(ctx)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chat)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustSet(key, value string) {
	if value == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
}
