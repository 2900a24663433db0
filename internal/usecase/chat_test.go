package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/httpapi"
	"fantaco-agents/internal/integrations/langfuse"
	"fantaco-agents/internal/integrations/llamastack"
)

type mockLLM struct {
	answer    string
	err       error
	captured  []domain.ChatMessage
	temp      *float64
	callCount int
}

func (m *mockLLM) Complete(_ context.Context, model string, msgs []domain.ChatMessage, temperature *float64) (llamastack.Completion, error) {
	m.callCount++
	m.captured = msgs
	m.temp = temperature
	if m.err != nil {
		return llamastack.Completion{}, m.err
	}
	return llamastack.Completion{
		ID:      "cmpl-1",
		Model:   model,
		Content: m.answer,
		Usage:   &llamastack.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}, nil
}

type mockModerator struct {
	flagged bool
	err     error
	input   string
}

func (m *mockModerator) Moderate(_ context.Context, _ string, input string) (bool, error) {
	m.input = input
	return m.flagged, m.err
}

type mockTracer struct {
	trace langfuse.Trace
	gen   langfuse.Generation
	spans []langfuse.Span
	err   error
}

func (m *mockTracer) TraceGeneration(_ context.Context, trace langfuse.Trace, gen langfuse.Generation, spans ...langfuse.Span) (string, error) {
	m.trace = trace
	m.gen = gen
	m.spans = spans
	if m.err != nil {
		return "", m.err
	}
	return "trace-1", nil
}

type mockState struct {
	history              []domain.Turn
	turnCount            int
	historyErr           error
	turnCountErr         error
	saveErr              error
	savedSessionID       string
	savedUserID          string
	savedQuestion        string
	savedAnswer          string
	savedTurns           int
	saveCompletedInvoked bool
}

func (m *mockState) GetSessionTurnCount(_ context.Context, _ string) (int, error) {
	return m.turnCount, m.turnCountErr
}

func (m *mockState) GetHistory(_ context.Context, _ string, _ int) ([]domain.Turn, error) {
	return m.history, m.historyErr
}

func (m *mockState) SaveCompletedTurn(_ context.Context, sessionID, userID, question, answer string, turns int) error {
	m.savedSessionID = sessionID
	m.savedUserID = userID
	m.savedQuestion = question
	m.savedAnswer = answer
	m.savedTurns = turns
	m.saveCompletedInvoked = true
	return m.saveErr
}

func newTestChat(t *testing.T, llm ChatModel, s StateReadWriter, opts ...ChatOption) *ChatService {
	t.Helper()
	svc, err := NewChatService(llm, s, ChatConfig{Model: "llama3.2:3b", MaxSessionTurns: 10}, opts...)
	require.NoError(t, err)
	return svc
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func completedTurn(q, a string) domain.Turn {
	return domain.Turn{Question: q, Answer: a, Status: statusComplete}
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, &mockState{}, ChatConfig{Model: "m"})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, nil, ChatConfig{Model: "m"})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, &mockState{}, ChatConfig{Model: " "})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, &mockState{}, ChatConfig{Model: "m", ShieldID: "llama-guard"})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, &mockState{}, ChatConfig{Model: "m", Temperature: llamastack.Float(-0.1)})
	require.Error(t, err)

	_, err = NewChatService(&mockLLM{}, &mockState{}, ChatConfig{Model: "m"},
		WithMCPTools(nil, llamastack.MCPTool("customer_mcp", "http://customer-mcp:9001/mcp")))
	require.Error(t, err)
}

func TestChat_HappyPath(t *testing.T) {
	state := &mockState{turnCount: 2}
	llm := &mockLLM{answer: "We sell party supplies."}
	svc := newTestChat(t, llm, state)

	out, err := svc.Chat(context.Background(), ChatInput{Message: " What do you sell? ", SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	require.Equal(t, "We sell party supplies.", out.Message)
	require.Equal(t, "s-1", out.SessionID)
	require.Equal(t, "u-1", out.UserID)
	require.Empty(t, out.TraceID)

	require.True(t, state.saveCompletedInvoked)
	require.Equal(t, "s-1", state.savedSessionID)
	require.Equal(t, "u-1", state.savedUserID)
	require.Equal(t, "What do you sell?", state.savedQuestion)
	require.Equal(t, 3, state.savedTurns)

	require.NotNil(t, llm.temp)
	require.InDelta(t, 0.7, *llm.temp, 1e-9)
	require.Equal(t, domain.RoleSystem, llm.captured[0].Role)
	require.Equal(t, defaultSystemPrompt, llm.captured[0].Content)
}

func TestChat_DefaultsSessionAndUser(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = orig })

	state := &mockState{turnCount: 99}
	svc := newTestChat(t, &mockLLM{answer: "hi"}, state)

	out, err := svc.Chat(context.Background(), ChatInput{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, "generated-id", out.SessionID)
	require.Equal(t, "anonymous", out.UserID)
	// a fresh session skips the turn count lookup
	require.Equal(t, 1, state.savedTurns)
}

func TestChat_ValidationErrors(t *testing.T) {
	svc := newTestChat(t, &mockLLM{answer: "ok"}, &mockState{})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "   "})
	expectError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Chat(context.Background(), ChatInput{Message: strings.Repeat("a", 2001)})
	expectError(t, err, ErrorInvalidInput, "message_too_long")
}

func TestChat_SessionTurnLimit(t *testing.T) {
	state := &mockState{turnCount: 10}
	llm := &mockLLM{answer: "ok"}
	svc := newTestChat(t, llm, state)

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi", SessionID: "s-1"})
	expectError(t, err, ErrorInvalidInput, "session_turn_limit")
	require.Zero(t, llm.callCount)
	require.False(t, state.saveCompletedInvoked)
}

func TestChat_ShieldErrors(t *testing.T) {
	cfg := ChatConfig{Model: "m", ShieldID: "llama-guard"}

	mod := &mockModerator{flagged: true}
	llm := &mockLLM{answer: "ok"}
	svc, err := NewChatService(llm, &mockState{}, cfg, WithModerator(mod))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatInput{Message: "unsafe"})
	expectError(t, err, ErrorInvalidQuestion, "shield_flagged")
	require.Equal(t, "unsafe", mod.input)
	require.Zero(t, llm.callCount)

	svc, err = NewChatService(llm, &mockState{}, cfg, WithModerator(&mockModerator{err: &httpapi.HTTPStatusError{StatusCode: http.StatusInternalServerError}}))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorUpstream, "shield_error")

	svc, err = NewChatService(llm, &mockState{}, cfg, WithModerator(&mockModerator{err: &httpapi.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorRateLimited, "shield_rate_limited")
}

func TestChat_StateErrors(t *testing.T) {
	svc := newTestChat(t, &mockLLM{answer: "ok"}, &mockState{historyErr: errors.New("dynamodb down")})
	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorInternal, "state_history_error")

	svc = newTestChat(t, &mockLLM{answer: "ok"}, &mockState{turnCountErr: errors.New("meta read failed")})
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi", SessionID: "s-1"})
	expectError(t, err, ErrorInternal, "state_turn_count_error")

	svc = newTestChat(t, &mockLLM{answer: "ok"}, &mockState{saveErr: errors.New("write failed")})
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorInternal, "state_write_error")
}

func TestChat_LLMErrors(t *testing.T) {
	svc := newTestChat(t, &mockLLM{err: &httpapi.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}, &mockState{})
	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorRateLimited, "llm_rate_limited")

	svc = newTestChat(t, &mockLLM{err: errors.New("connection refused")}, &mockState{})
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorUpstream, "llm_error")

	svc = newTestChat(t, &mockLLM{answer: "  "}, &mockState{})
	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorUpstream, "llm_empty_response")
}

func TestChat_ReplaysOnlyCompletedTurns(t *testing.T) {
	history := []domain.Turn{
		completedTurn("Do you sell balloons?", "Yes, in many colors."),
		{Question: "pending question", Status: "pending"},
		completedTurn("Any discounts?", "Ten percent on bulk orders."),
	}
	llm := &mockLLM{answer: "ok"}
	svc := newTestChat(t, llm, &mockState{history: history})

	_, err := svc.Chat(context.Background(), ChatInput{Message: "Thanks"})
	require.NoError(t, err)
	require.Len(t, llm.captured, 6)
	require.Equal(t, "Do you sell balloons?", llm.captured[1].Content)
	require.Equal(t, domain.RoleAssistant, llm.captured[2].Role)
	require.Equal(t, "Any discounts?", llm.captured[3].Content)
	require.Equal(t, "Thanks", llm.captured[5].Content)
}

func TestChat_TracesGeneration(t *testing.T) {
	tracer := &mockTracer{}
	svc := newTestChat(t, &mockLLM{answer: "hello"}, &mockState{}, WithTracer(tracer))

	out, err := svc.Chat(context.Background(), ChatInput{Message: "hi", SessionID: "s-1", UserID: "u-1"})
	require.NoError(t, err)
	require.Equal(t, "trace-1", out.TraceID)
	require.Equal(t, "s-1", tracer.trace.SessionID)
	require.Equal(t, "u-1", tracer.trace.UserID)
	require.Equal(t, "hello", tracer.trace.Output)
	require.Equal(t, "llama3.2:3b", tracer.gen.Model)
	require.NotNil(t, tracer.gen.Usage)
	require.Equal(t, 16, tracer.gen.Usage.Total)
}

func TestChat_TracerFailureIsNotFatal(t *testing.T) {
	tracer := &mockTracer{err: errors.New("langfuse down")}
	svc := newTestChat(t, &mockLLM{answer: "hello"}, &mockState{}, WithTracer(tracer))

	out, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "hello", out.Message)
	require.Empty(t, out.TraceID)
}

func TestChat_TracesFailedGeneration(t *testing.T) {
	tracer := &mockTracer{}
	svc := newTestChat(t, &mockLLM{err: errors.New("boom")}, &mockState{}, WithTracer(tracer))

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.Error(t, err)
	require.Equal(t, "ERROR", tracer.gen.Level)
	require.Equal(t, "boom", tracer.gen.StatusMessage)
}

func TestChat_ZeroTemperatureIsKept(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	svc, err := NewChatService(llm, &mockState{}, ChatConfig{Model: "m", Temperature: llamastack.Float(0)})
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.NotNil(t, llm.temp)
	require.Zero(t, *llm.temp)
}

func TestChat_ConcurrentTurnIsAConflict(t *testing.T) {
	state := &mockState{turnCount: 3, saveErr: fmt.Errorf("repository: SaveTurn: %w", domain.ErrSessionConflict)}
	svc := newTestChat(t, &mockLLM{answer: "ok"}, state)

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi", SessionID: "s-1"})
	expectError(t, err, ErrorInvalidInput, "session_turn_conflict")
	require.Equal(t, 4, state.savedTurns)
}

func TestChat_WithMCPToolsAnswersThroughResponses(t *testing.T) {
	llm := &mockLLM{answer: "unused"}
	responder := &mockResponder{responses: []llamastack.Response{{
		ID:    "resp-1",
		Model: "vllm/qwen3-14b",
		Output: []llamastack.OutputItem{
			mcpCall("customer_mcp", "search_customers", `{"contact_email":"thomashardy@example.com"}`,
				`{"results":[{"customerId":"AROUT"}]}`),
			{Type: llamastack.OutputMCPCall, ServerLabel: "finance_mcp", Name: "fetch_order_history", Arguments: `{"customer_id":"AROUT"}`, Error: "HTTP 500"},
			textMessage("Thomas Hardy is customer AROUT."),
		},
	}}}
	state := &mockState{turnCount: 1, history: []domain.Turn{completedTurn("Hello", "Hi! How can I help?")}}
	tracer := &mockTracer{}
	svc := newTestChat(t, llm, state,
		WithTracer(tracer),
		WithMCPTools(responder, FantacoMCPTools("http://customer-mcp:9001/mcp", "http://finance-mcp:9002/mcp")...))

	out, err := svc.Chat(context.Background(), ChatInput{Message: "Who is thomashardy@example.com?", SessionID: "s-1"})
	require.NoError(t, err)
	require.Equal(t, "Thomas Hardy is customer AROUT.", out.Message)
	require.Len(t, out.ToolCalls, 2)
	require.Equal(t, "search_customers", out.ToolCalls[0].Name)
	require.Equal(t, "HTTP 500", out.ToolCalls[1].Error)
	require.Zero(t, llm.callCount)
	require.Equal(t, 2, state.savedTurns)

	require.Len(t, responder.requests, 1)
	req := responder.requests[0]
	require.Equal(t, toolSystemPrompt, req.Instructions)
	require.Len(t, req.Tools, 2)
	require.Equal(t, "customer_mcp", req.Tools[0].ServerLabel)
	require.Equal(t, "finance_mcp", req.Tools[1].ServerLabel)
	require.NotNil(t, req.Temperature)
	require.Equal(t, 0.7, *req.Temperature)
	input, ok := req.Input.([]domain.ChatMessage)
	require.True(t, ok)
	require.Len(t, input, 3)
	require.Equal(t, domain.RoleUser, input[0].Role)
	require.Equal(t, "Who is thomashardy@example.com?", input[2].Content)

	require.Equal(t, "vllm/qwen3-14b", tracer.gen.Model)
	require.Len(t, tracer.spans, 2)
	require.Equal(t, "customer_mcp/search_customers", tracer.spans[0].Name)
	require.Equal(t, `{"results":[{"customerId":"AROUT"}]}`, tracer.spans[0].Output)
	require.Equal(t, "ERROR", tracer.spans[1].Level)
}

func TestChat_WithMCPToolsUpstreamError(t *testing.T) {
	responder := &mockResponder{err: &httpapi.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}
	svc := newTestChat(t, &mockLLM{}, &mockState{},
		WithMCPTools(responder, FantacoMCPTools("http://c/mcp", "http://f/mcp")...))

	_, err := svc.Chat(context.Background(), ChatInput{Message: "hi"})
	expectError(t, err, ErrorRateLimited, "llm_rate_limited")
}
