package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"fantaco-agents/internal/integrations/llamastack"
)

// AgentSession is a multi-turn conversation carried by previous_response_id.
type AgentSession struct {
	llm          Responder
	model        string
	instructions string
	tools        []llamastack.Tool

	mu     sync.Mutex
	lastID string
}

type AgentReply struct {
	ResponseID string
	Text       string
	ToolCalls  []ToolCall
}

func NewAgentSession(llm Responder, model, instructions string, tools ...llamastack.Tool) (*AgentSession, error) {
	if llm == nil {
		return nil, errors.New("usecase: responses client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: inference model must not be empty")
	}
	return &AgentSession{llm: llm, model: model, instructions: instructions, tools: tools}, nil
}

// Turn sends one user message and remembers the response id for the next turn.
func (a *AgentSession) Turn(ctx context.Context, text string) (AgentReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return AgentReply{}, newError(ErrorInvalidInput, "empty_message", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.llm.CreateResponse(ctx, llamastack.ResponseRequest{
		Model:              a.model,
		Input:              text,
		Instructions:       a.instructions,
		Tools:              a.tools,
		PreviousResponseID: a.lastID,
	})
	if err != nil {
		return AgentReply{}, upstreamError("llm", err)
	}
	a.lastID = resp.ID

	reply := AgentReply{ResponseID: resp.ID, Text: strings.TrimSpace(resp.OutputText())}
	if reply.Text == "" {
		reply.Text = noResponseAnswer
	}
	for _, c := range resp.MCPCalls() {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{Server: c.ServerLabel, Name: c.Name, Arguments: c.Arguments, Error: c.Error})
	}
	return reply, nil
}

func (a *AgentSession) LastResponseID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastID
}

// Reset starts a fresh conversation on the next turn.
func (a *AgentSession) Reset() {
	a.mu.Lock()
	a.lastID = ""
	a.mu.Unlock()
}

func isExitCommand(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

// Interact reads user lines from in and prints agent replies to out until an
// exit command or EOF. Failed turns are reported and the loop continues.
func (a *AgentSession) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "User> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if isExitCommand(line) {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		reply, err := a.Turn(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		for _, c := range reply.ToolCalls {
			fmt.Fprintf(out, "  [tool] %s.%s %s\n", c.Server, c.Name, c.Arguments)
		}
		fmt.Fprintf(out, "Agent> %s\n", reply.Text)
	}
}
