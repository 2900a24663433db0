package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"fantaco-agents/internal/usecase"
)

// Handler serves the chatbot behind API Gateway.
type Handler struct {
	chat   Chatter
	logger *slog.Logger
}

func NewHandler(chat Chatter) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	return &Handler{chat: chat, logger: slog.Default()}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	if event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost {
		return h.respond(correlationID, http.StatusMethodNotAllowed, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "method_not_allowed",
		}), nil
	}

	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		return h.respond(correlationID, http.StatusBadRequest, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "invalid_body",
		}), nil
	}

	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		status, body := mapError(err)
		logger.ErrorContext(ctx, "chat failed", "status", status, "code", body.Error, "reason", body.Message, "error", err)
		return h.respond(correlationID, status, body), nil
	}

	logger.InfoContext(ctx, "chat answered", "session_id", out.SessionID)
	return h.respond(correlationID, http.StatusOK, chatResponse{
		Message:   out.Message,
		SessionID: out.SessionID,
		UserID:    out.UserID,
		TraceID:   out.TraceID,
		ToolCalls: out.ToolCalls,
	}), nil
}

func (h *Handler) respond(correlationID string, status int, body any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR","message":"encode_error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(b),
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
