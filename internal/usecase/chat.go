package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/langfuse"
	"fantaco-agents/internal/integrations/llamastack"
)

const (
	defaultMaxMessageLength = 2000
	defaultMaxSessionTurns  = 20
	defaultMaxHistory       = 20
	defaultTemperature      = 0.7
	defaultUserID           = "anonymous"
	statusComplete          = "complete"
)

type ChatModel interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage, temperature *float64) (llamastack.Completion, error)
}

type Moderator interface {
	Moderate(ctx context.Context, shieldID, input string) (bool, error)
}

type Tracer interface {
	TraceGeneration(ctx context.Context, trace langfuse.Trace, gen langfuse.Generation, spans ...langfuse.Span) (string, error)
}

type StateReadWriter interface {
	GetSessionTurnCount(ctx context.Context, sessionID string) (int, error)
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	SaveCompletedTurn(ctx context.Context, sessionID, userID, question, answer string, turns int) error
}

// ChatConfig holds the chatbot limits. Zero values take the defaults; a nil
// Temperature means 0.7.
type ChatConfig struct {
	Model            string
	SystemPrompt     string
	ShieldID         string
	MaxMessageLength int
	MaxSessionTurns  int
	MaxHistory       int
	Temperature      *float64
}

type ChatService struct {
	llm       ChatModel
	state     StateReadWriter
	moderator Moderator
	tracer    Tracer
	responder Responder
	tools     []llamastack.Tool
	logger    *slog.Logger
	cfg       ChatConfig
	now       func() time.Time
}

type ChatOption func(*ChatService)

// WithModerator enables the shield check when ChatConfig.ShieldID is set.
func WithModerator(m Moderator) ChatOption {
	return func(s *ChatService) { s.moderator = m }
}

// WithTracer records every model call. Tracing failures are logged only.
func WithTracer(t Tracer) ChatOption {
	return func(s *ChatService) { s.tracer = t }
}

// WithMCPTools answers through the Responses API with the given MCP servers
// bound, so the model can look customers up and fetch their history.
func WithMCPTools(r Responder, tools ...llamastack.Tool) ChatOption {
	return func(s *ChatService) {
		s.responder = r
		s.tools = tools
	}
}

func WithLogger(l *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

type ChatInput struct {
	Message   string
	SessionID string
	UserID    string
}

type ChatOutput struct {
	Message   string
	SessionID string
	UserID    string
	TraceID   string
	ToolCalls []ToolCall
}

func NewChatService(llm ChatModel, state StateReadWriter, cfg ChatConfig, opts ...ChatOption) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if state == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, errors.New("usecase: inference model must not be empty")
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if cfg.MaxSessionTurns <= 0 {
		cfg.MaxSessionTurns = defaultMaxSessionTurns
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.Temperature == nil {
		cfg.Temperature = llamastack.Float(defaultTemperature)
	} else if *cfg.Temperature < 0 {
		return nil, errors.New("usecase: temperature must not be negative")
	}
	s := &ChatService{
		llm:    llm,
		state:  state,
		logger: slog.Default(),
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if strings.TrimSpace(cfg.ShieldID) != "" && s.moderator == nil {
		return nil, errors.New("usecase: shield id set without a moderator")
	}
	if len(s.tools) > 0 {
		if s.responder == nil {
			return nil, errors.New("usecase: mcp tools set without a responder")
		}
		if strings.TrimSpace(s.cfg.SystemPrompt) == "" {
			s.cfg.SystemPrompt = toolSystemPrompt
		}
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = defaultUserID
	}

	existingTurns := 0
	if strings.TrimSpace(in.SessionID) != "" {
		turnCount, err := s.state.GetSessionTurnCount(ctx, sessionID)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "state_turn_count_error", err)
		}
		existingTurns = turnCount
		if existingTurns >= s.cfg.MaxSessionTurns {
			return ChatOutput{}, newError(ErrorInvalidInput, "session_turn_limit", nil)
		}
	}

	if s.cfg.ShieldID != "" {
		flagged, err := s.moderator.Moderate(ctx, s.cfg.ShieldID, message)
		if err != nil {
			return ChatOutput{}, upstreamError("shield", err)
		}
		if flagged {
			return ChatOutput{}, newError(ErrorInvalidQuestion, "shield_flagged", nil)
		}
	}

	history, err := s.state.GetHistory(ctx, sessionID, s.cfg.MaxHistory)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "state_history_error", err)
	}

	messages := buildChatMessages(s.cfg.SystemPrompt, message, history)
	temperature := *s.cfg.Temperature
	start := s.now()
	reply, err := s.generate(ctx, messages, temperature)
	end := s.now()
	traceID := s.trace(ctx, traceRecord{
		sessionID:   sessionID,
		userID:      userID,
		input:       message,
		messages:    messages,
		reply:       reply,
		temperature: temperature,
		start:       start,
		end:         end,
		err:         err,
	})
	if err != nil {
		return ChatOutput{}, upstreamError("llm", err)
	}
	answer := strings.TrimSpace(reply.content)
	if answer == "" {
		return ChatOutput{}, newError(ErrorUpstream, "llm_empty_response", nil)
	}

	if err := s.state.SaveCompletedTurn(ctx, sessionID, userID, message, answer, existingTurns+1); err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			return ChatOutput{}, newError(ErrorInvalidInput, "session_turn_conflict", err)
		}
		return ChatOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	return ChatOutput{
		Message:   answer,
		SessionID: sessionID,
		UserID:    userID,
		TraceID:   traceID,
		ToolCalls: reply.toolCalls,
	}, nil
}

// modelReply is what either model path produced for one chat turn.
type modelReply struct {
	content   string
	model     string
	usage     *langfuse.Usage
	toolCalls []ToolCall
	calls     []llamastack.OutputItem
}

func (s *ChatService) generate(ctx context.Context, messages []domain.ChatMessage, temperature float64) (modelReply, error) {
	if len(s.tools) == 0 {
		completion, err := s.llm.Complete(ctx, s.cfg.Model, messages, &temperature)
		if err != nil {
			return modelReply{}, err
		}
		reply := modelReply{content: completion.Content, model: completion.Model}
		if u := completion.Usage; u != nil {
			reply.usage = &langfuse.Usage{Input: u.PromptTokens, Output: u.CompletionTokens, Total: u.TotalTokens}
		}
		return reply, nil
	}

	// The system prompt travels as instructions; the rest is the input.
	resp, err := s.responder.CreateResponse(ctx, llamastack.ResponseRequest{
		Model:        s.cfg.Model,
		Instructions: messages[0].Content,
		Input:        messages[1:],
		Tools:        s.tools,
		Temperature:  &temperature,
	})
	if err != nil {
		return modelReply{}, err
	}
	calls := resp.MCPCalls()
	reply := modelReply{
		content:   resp.OutputText(),
		model:     resp.Model,
		toolCalls: toToolCalls(calls),
		calls:     calls,
	}
	if u := resp.Usage; u != nil {
		reply.usage = &langfuse.Usage{Input: u.InputTokens, Output: u.OutputTokens, Total: u.TotalTokens}
	}
	for _, c := range calls {
		s.logger.InfoContext(ctx, "tool called", "server", c.ServerLabel, "tool", c.Name, "failed", c.Error != "")
	}
	return reply, nil
}

type traceRecord struct {
	sessionID   string
	userID      string
	input       string
	messages    []domain.ChatMessage
	reply       modelReply
	temperature float64
	start, end  time.Time
	err         error
}

func (s *ChatService) trace(ctx context.Context, r traceRecord) string {
	if s.tracer == nil {
		return ""
	}
	trace := langfuse.Trace{
		Name:      "chat",
		SessionID: r.sessionID,
		UserID:    r.userID,
		Input:     r.input,
		Timestamp: &r.start,
	}
	gen := langfuse.Generation{
		Name:            "agent",
		Model:           s.cfg.Model,
		ModelParameters: map[string]any{"temperature": r.temperature},
		Input:           r.messages,
		StartTime:       &r.start,
		EndTime:         &r.end,
	}
	var spans []langfuse.Span
	if r.err != nil {
		gen.Level = "ERROR"
		gen.StatusMessage = r.err.Error()
	} else {
		trace.Output = r.reply.content
		gen.Output = r.reply.content
		if r.reply.model != "" {
			gen.Model = r.reply.model
		}
		gen.Usage = r.reply.usage
		for _, c := range r.reply.calls {
			sp := langfuse.Span{
				Name:     c.ServerLabel + "/" + c.Name,
				Input:    c.Arguments,
				Output:   c.Output,
				Metadata: map[string]any{"server": c.ServerLabel, "tool": c.Name},
			}
			if c.Error != "" {
				sp.Level = "ERROR"
				sp.StatusMessage = c.Error
			}
			spans = append(spans, sp)
		}
	}

	traceID, err := s.tracer.TraceGeneration(ctx, trace, gen, spans...)
	if err != nil {
		s.logger.WarnContext(ctx, "langfuse trace failed", "session_id", r.sessionID, "error", err)
	}
	return traceID
}

var newUUID = func() string {
	return uuid.NewString()
}
