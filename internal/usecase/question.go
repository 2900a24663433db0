package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/llamastack"
)

const (
	customerToolLabel = "customer_mcp"
	financeToolLabel  = "finance_mcp"
	noResponseAnswer  = "No response generated"
	maxQuestionLength = 4000
)

type Responder interface {
	CreateResponse(ctx context.Context, req llamastack.ResponseRequest) (llamastack.Response, error)
}

type QuestionConfig struct {
	Model             string
	CustomerMCPServer string
	FinanceMCPServer  string
	Instructions      string
}

type ToolCall struct {
	Server    string `json:"server"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Error     string `json:"error,omitempty"`
}

type QuestionResult struct {
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	ToolCalls []ToolCall        `json:"tool_calls,omitempty"`
	Customer  *domain.Customer  `json:"customer,omitempty"`
	Data      []json.RawMessage `json:"data,omitempty"`
}

// QuestionService answers free-form questions with the customer and finance
// MCP servers bound as tools.
type QuestionService struct {
	llm    Responder
	cfg    QuestionConfig
	logger *slog.Logger
}

func NewQuestionService(llm Responder, cfg QuestionConfig, logger *slog.Logger) (*QuestionService, error) {
	if llm == nil {
		return nil, errors.New("usecase: responses client must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: inference model must not be empty")
	}
	if cfg.CustomerMCPServer == "" || cfg.FinanceMCPServer == "" {
		return nil, errors.New("usecase: customer and finance MCP server URLs are required")
	}
	if cfg.Instructions == "" {
		cfg.Instructions = questionInstructions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionService{llm: llm, cfg: cfg, logger: logger}, nil
}

func (s *QuestionService) Ask(ctx context.Context, question string) (QuestionResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return QuestionResult{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if len(question) > maxQuestionLength {
		return QuestionResult{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}

	resp, err := s.llm.CreateResponse(ctx, llamastack.ResponseRequest{
		Model:        s.cfg.Model,
		Input:        question,
		Instructions: s.cfg.Instructions,
		Tools:        FantacoMCPTools(s.cfg.CustomerMCPServer, s.cfg.FinanceMCPServer),
	})
	if err != nil {
		return QuestionResult{}, upstreamError("llm", err)
	}

	calls := resp.MCPCalls()
	out := QuestionResult{Question: question, Answer: strings.TrimSpace(resp.OutputText())}
	if out.Answer == "" {
		out.Answer = noResponseAnswer
	}
	out.ToolCalls = toToolCalls(calls)
	out.Customer, out.Data = extractCustomerAndData(calls)

	s.logger.InfoContext(ctx, "question answered", "response_id", resp.ID, "tool_calls", len(out.ToolCalls))
	return out, nil
}

// FantacoMCPTools binds the customer and finance MCP servers under the labels
// the prompts refer to.
func FantacoMCPTools(customerURL, financeURL string) []llamastack.Tool {
	return []llamastack.Tool{
		llamastack.MCPTool(customerToolLabel, customerURL),
		llamastack.MCPTool(financeToolLabel, financeURL),
	}
}

func toToolCalls(calls []llamastack.OutputItem) []ToolCall {
	var out []ToolCall
	for _, c := range calls {
		out = append(out, ToolCall{Server: c.ServerLabel, Name: c.Name, Arguments: c.Arguments, Error: c.Error})
	}
	return out
}

// extractCustomerAndData scans mcp_call outputs for the customer search result
// and the finance history list. Later calls win, but an empty list never
// replaces one already found.
func extractCustomerAndData(calls []llamastack.OutputItem) (*domain.Customer, []json.RawMessage) {
	var (
		found *domain.Customer
		data  []json.RawMessage
	)
	for _, call := range calls {
		if call.Error != "" || strings.TrimSpace(call.Output) == "" {
			continue
		}
		var payload map[string]json.RawMessage
		if err := json.Unmarshal([]byte(call.Output), &payload); err != nil {
			continue
		}

		var results []domain.Customer
		var single domain.Customer
		switch {
		case payload["results"] != nil && json.Unmarshal(payload["results"], &results) == nil && len(results) > 0:
			found = &results[0]
		case json.Unmarshal([]byte(call.Output), &single) == nil && single.CustomerID != "" && single.ContactEmail != "":
			found = &single
		}

		for _, key := range []string{"data", "orders", "invoices"} {
			var list []json.RawMessage
			if raw, ok := payload[key]; ok && json.Unmarshal(raw, &list) == nil && len(list) > 0 {
				data = list
				break
			}
		}
	}
	return found, data
}
