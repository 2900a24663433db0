package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fantaco-agents/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 << 10
)

type Lookup interface {
	FindOrders(ctx context.Context, email string) (usecase.OrdersResult, error)
	FindInvoices(ctx context.Context, email string) (usecase.InvoicesResult, error)
}

type Questioner interface {
	Ask(ctx context.Context, question string) (usecase.QuestionResult, error)
}

type Chatter interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

// RouterConfig selects the routes to mount. A nil service leaves its routes
// unregistered.
type RouterConfig struct {
	Lookup         Lookup
	Questioner     Questioner
	Chat           Chatter
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	AllowedOrigins []string
}

type routes struct {
	lookup     Lookup
	questioner Questioner
	chat       Chatter
	logger     *slog.Logger
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type chatResponse struct {
	Message   string             `json:"message"`
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	TraceID   string             `json:"trace_id,omitempty"`
	ToolCalls []usecase.ToolCall `json:"tool_calls,omitempty"`
}

type questionResponse struct {
	Question  string             `json:"question"`
	Answer    string             `json:"answer"`
	ToolCalls []usecase.ToolCall `json:"tool_calls,omitempty"`
}

func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Lookup == nil && cfg.Questioner == nil && cfg.Chat == nil {
		return nil, errors.New("handler: at least one service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	rt := &routes{lookup: cfg.Lookup, questioner: cfg.Questioner, chat: cfg.Chat, logger: logger}

	r := chi.NewRouter()
	r.Use(
		m.middleware,
		middleware.Recoverer,
		correlationID,
		rt.accessLog,
	)

	r.Get("/", rt.index)
	r.Get("/health", rt.health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if cfg.Lookup != nil {
		r.Get("/find_orders", rt.findOrders)
		r.Get("/find_invoices", rt.findInvoices)
	}
	if cfg.Questioner != nil {
		r.Get("/question", rt.question)
	}
	if cfg.Chat != nil {
		r.Post("/api/v1/chat", rt.chatMessage)
	}

	if len(cfg.AllowedOrigins) == 0 {
		return r, nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r), nil
}

func (rt *routes) index(w http.ResponseWriter, _ *http.Request) {
	endpoints := map[string]string{}
	if rt.lookup != nil {
		endpoints["find_orders"] = "/find_orders?email=<customer_email>"
		endpoints["find_invoices"] = "/find_invoices?email=<customer_email>"
	}
	if rt.questioner != nil {
		endpoints["question"] = "/question?q=<your_question>"
	}
	if rt.chat != nil {
		endpoints["chat"] = "POST /api/v1/chat"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Customer Orders and Invoices API",
		"endpoints": endpoints,
	})
}

func (rt *routes) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (rt *routes) findOrders(w http.ResponseWriter, r *http.Request) {
	out, err := rt.lookup.FindOrders(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *routes) findInvoices(w http.ResponseWriter, r *http.Request) {
	out, err := rt.lookup.FindInvoices(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *routes) question(w http.ResponseWriter, r *http.Request) {
	out, err := rt.questioner.Ask(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questionResponse{Question: out.Question, Answer: out.Answer, ToolCalls: out.ToolCalls})
}

func (rt *routes) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		rt.fail(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
		return
	}
	out, err := rt.chat.Chat(r.Context(), usecase.ChatInput{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Message:   out.Message,
		SessionID: out.SessionID,
		UserID:    out.UserID,
		TraceID:   out.TraceID,
		ToolCalls: out.ToolCalls,
	})
}

func (rt *routes) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	rt.logger.Log(r.Context(), level, "request failed",
		"path", r.URL.Path,
		"status", status,
		"code", body.Error,
		"reason", body.Message,
		"correlation_id", w.Header().Get(correlationHeader),
		"error", err,
	)
	writeJSON(w, status, body)
}

func (rt *routes) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		rt.logger.DebugContext(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", w.Header().Get(correlationHeader),
		)
	})
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
