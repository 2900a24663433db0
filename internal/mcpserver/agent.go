package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fantaco-agents/internal/integrations/llamastack"
)

// Responder runs one Responses API call.
type Responder interface {
	CreateResponse(ctx context.Context, req llamastack.ResponseRequest) (llamastack.Response, error)
}

// Agent describes one agent tool server: Name prefixes the server name
// ("<name>-agent") and both tools ("<name>_agent", "<name>_agent_detailed").
type Agent struct {
	Name        string
	ServerLabel string
	Description string
}

var (
	FinanceAgent = Agent{
		Name:        "finance",
		ServerLabel: "FINANCE",
		Description: "Execute the finance agent with the given prompt. The agent uses the finance service tools to answer questions about orders and invoices, e.g. \"Get order history for customer TRADH\".",
	}
	CustomerAgent = Agent{
		Name:        "customer",
		ServerLabel: "customer",
		Description: "Execute the customer agent with the given prompt. The agent uses the customer service tools to answer questions about customers, e.g. \"Search customer with name Anabela Domingues\" or \"Find customer with email john@example.com\".",
	}
)

// AgentConfig wires an agent to a model and the MCP server the model may
// call. A zero Agent means FinanceAgent.
type AgentConfig struct {
	Agent     Agent
	Model     string
	MCPServer string
	Logger    *slog.Logger
}

// TraceStep describes one output item of an agent run.
type TraceStep struct {
	Step      int      `json:"step"`
	Type      string   `json:"type"`
	Server    string   `json:"server,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	ToolName  string   `json:"tool_name,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
	Error     string   `json:"error,omitempty"`
	Role      string   `json:"role,omitempty"`
	Content   string   `json:"content,omitempty"`
}

// NewAgentServer exposes a Llama Stack agent that answers questions through
// one MCP server's tools.
func NewAgentServer(llm Responder, cfg AgentConfig, version string) *server.MCPServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Agent.Name == "" {
		cfg.Agent = FinanceAgent
	}
	name := cfg.Agent.Name
	s := server.NewMCPServer(name+"-agent", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	a := agentTools{llm: llm, cfg: cfg}
	promptDesc := "The question or instruction for the " + name + " agent"

	s.AddTool(mcp.NewTool(name+"_agent",
		mcp.WithDescription(cfg.Agent.Description),
		mcp.WithString("prompt", mcp.Required(), mcp.Description(promptDesc)),
	), a.run)

	s.AddTool(mcp.NewTool(name+"_agent_detailed",
		mcp.WithDescription("Execute the "+name+" agent and return a JSON execution trace (tool discovery, tool calls, messages) with the final response."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description(promptDesc)),
	), a.runDetailed)

	return s
}

type agentTools struct {
	llm Responder
	cfg AgentConfig
}

func (a agentTools) respond(ctx context.Context, prompt string) (llamastack.Response, error) {
	if strings.TrimSpace(a.cfg.MCPServer) == "" {
		return llamastack.Response{}, fmt.Errorf("%s MCP server URL not configured", a.cfg.Agent.Name)
	}
	return a.llm.CreateResponse(ctx, llamastack.ResponseRequest{
		Model: a.cfg.Model,
		Input: prompt,
		Tools: []llamastack.Tool{llamastack.MCPTool(a.cfg.Agent.ServerLabel, a.cfg.MCPServer)},
	})
}

func (a agentTools) failure(err error) string {
	return "Error executing " + a.cfg.Agent.Name + " agent: " + err.Error()
}

func (a agentTools) run(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	a.cfg.Logger.InfoContext(ctx, "agent called", "agent", a.cfg.Agent.Name, "prompt_len", len(prompt))

	resp, err := a.respond(ctx, prompt)
	if err != nil {
		a.cfg.Logger.ErrorContext(ctx, "agent failed", "agent", a.cfg.Agent.Name, "error", err)
		return mcp.NewToolResultText(a.failure(err)), nil
	}
	return mcp.NewToolResultText(resp.OutputText()), nil
}

func (a agentTools) runDetailed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	a.cfg.Logger.InfoContext(ctx, "agent called", "agent", a.cfg.Agent.Name, "detailed", true, "prompt_len", len(prompt))

	resp, err := a.respond(ctx, prompt)
	if err != nil {
		a.cfg.Logger.ErrorContext(ctx, "agent failed", "agent", a.cfg.Agent.Name, "error", err)
		return toolResult(map[string]any{"error": a.failure(err)}), nil
	}
	steps := BuildTrace(resp)
	return toolResult(map[string]any{
		"response_id":    resp.ID,
		"trace":          steps,
		"final_response": resp.OutputText(),
	}), nil
}

// BuildTrace summarizes every output item of resp in order.
func BuildTrace(resp llamastack.Response) []TraceStep {
	steps := make([]TraceStep, 0, len(resp.Output))
	for i, item := range resp.Output {
		step := TraceStep{Step: i + 1, Type: item.Type}
		switch item.Type {
		case llamastack.OutputMCPListTools:
			step.Server = item.ServerLabel
			for _, t := range item.Tools {
				step.Tools = append(step.Tools, t.Name)
			}
		case llamastack.OutputMCPCall:
			step.Server = item.ServerLabel
			step.ToolName = item.Name
			step.Arguments = item.Arguments
			step.Output = item.Output
			step.Error = item.Error
		case llamastack.OutputMessage:
			step.Role = item.Role
			if len(item.Content) > 0 {
				step.Content = item.Content[0].Text
			}
		}
		steps = append(steps, step)
	}
	return steps
}
