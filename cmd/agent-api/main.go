package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fantaco-agents/handler"
	"fantaco-agents/internal/app"
	"fantaco-agents/internal/config"
	"fantaco-agents/internal/integrations/customer"
	"fantaco-agents/internal/integrations/finance"
	"fantaco-agents/internal/usecase"
)

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
	deps := app.New(settings, logger)

	// ---- Clients ----
	customers, err := customer.NewClient(settings.CustomerAPIBaseURL, nil)
	if err != nil {
		fatal(logger, "failed to create customer client", err)
	}
	fin, err := finance.NewClient(settings.FinanceAPIBaseURL, nil)
	if err != nil {
		fatal(logger, "failed to create finance client", err)
	}
	llm, err := deps.LlamaStack(ctx)
	if err != nil {
		fatal(logger, "failed to create Llama Stack client", err)
	}

	// ---- Services ----
	lookup, err := usecase.NewLookupService(customers, fin)
	if err != nil {
		fatal(logger, "failed to create lookup service", err)
	}
	cfg := handler.RouterConfig{
		Lookup:         lookup,
		Logger:         logger,
		AllowedOrigins: []string{settings.CORSOrigin},
	}

	if settings.CustomerMCPServerURL != "" && settings.FinanceMCPServerURL != "" {
		questions, err := usecase.NewQuestionService(llm, usecase.QuestionConfig{
			Model:             settings.InferenceModel,
			CustomerMCPServer: settings.CustomerMCPServerURL,
			FinanceMCPServer:  settings.FinanceMCPServerURL,
		}, logger)
		if err != nil {
			fatal(logger, "failed to create question service", err)
		}
		cfg.Questioner = questions
	} else {
		logger.Warn("MCP server URLs not set, /question disabled")
	}

	chat, err := deps.ChatService(ctx)
	if err != nil {
		fatal(logger, "failed to create chat service", err)
	}
	cfg.Chat = chat

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cfg.Registry = reg

	router, err := handler.NewRouter(cfg)
	if err != nil {
		fatal(logger, "failed to create router", err)
	}

	// ---- Server ----
	srv := &http.Server{
		Addr:              settings.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", settings.APIAddr)
	if err != nil {
		fatal(logger, "failed to listen", err)
	}

	logger.Info("agent API starting", "addr", settings.APIAddr, "model", settings.InferenceModel)
	if err := handler.Serve(ctx, ln, srv, logger); err != nil {
		fatal(logger, "agent API failed", err)
	}
	logger.Info("agent API stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
