package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fantaco-agents/internal/domain"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	Stream      bool                 `json:"stream"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                `json:"index"`
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is the token accounting reported by the server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the first choice of a chat completion.
type Completion struct {
	ID      string
	Model   string
	Content string
	Usage   *Usage
}

// Chat sends messages to /v1/chat/completions and returns the first choice.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	out, err := c.Complete(ctx, model, messages, nil)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// Complete is Chat with an optional temperature and full result metadata.
func (c *Client) Complete(ctx context.Context, model string, messages []domain.ChatMessage, temperature *float64) (Completion, error) {
	if model == "" {
		return Completion{}, errors.New("llamastack: model must not be empty")
	}
	if len(messages) == 0 {
		return Completion{}, errors.New("llamastack: at least one message is required")
	}

	var payload chatResponse
	err := c.do(ctx, http.MethodPost, "/chat/completions", nil, chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	}, &payload)
	if err != nil {
		return Completion{}, fmt.Errorf("llamastack: chat completion: %w", err)
	}
	if len(payload.Choices) == 0 {
		return Completion{}, errors.New("llamastack: no choices in response")
	}
	return Completion{
		ID:      payload.ID,
		Model:   payload.Model,
		Content: payload.Choices[0].Message.Content,
		Usage:   payload.Usage,
	}, nil
}

// Float is a convenience for optional numeric request fields.
func Float(v float64) *float64 { return &v }
