package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Output item types returned by the Responses API.
const (
	OutputMessage        = "message"
	OutputMCPCall        = "mcp_call"
	OutputMCPListTools   = "mcp_list_tools"
	OutputFileSearchCall = "file_search_call"
	OutputWebSearchCall  = "web_search_call"
	OutputFunctionCall   = "function_call"
)

// Tool is a tool definition passed to the Responses API.
type Tool struct {
	Type            string   `json:"type"`
	ServerLabel     string   `json:"server_label,omitempty"`
	ServerURL       string   `json:"server_url,omitempty"`
	RequireApproval string   `json:"require_approval,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	VectorStoreIDs  []string `json:"vector_store_ids,omitempty"`
}

// MCPTool binds a remote MCP server that the model may call without approval.
func MCPTool(label, serverURL string) Tool {
	return Tool{Type: "mcp", ServerLabel: label, ServerURL: serverURL, RequireApproval: "never"}
}

// FileSearchTool enables retrieval over the given vector stores.
func FileSearchTool(vectorStoreIDs ...string) Tool {
	return Tool{Type: "file_search", VectorStoreIDs: vectorStoreIDs}
}

// WebSearchTool enables the server-side web search tool.
func WebSearchTool() Tool {
	return Tool{Type: "web_search"}
}

// ResponseRequest is the body of POST /v1/responses. Input is either a string
// or a list of domain.ChatMessage values.
type ResponseRequest struct {
	Model              string   `json:"model"`
	Input              any      `json:"input"`
	Instructions       string   `json:"instructions,omitempty"`
	Tools              []Tool   `json:"tools,omitempty"`
	PreviousResponseID string   `json:"previous_response_id,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	Stream             bool     `json:"stream"`
}

// ContentPart is one piece of a message output item.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ListedTool is a tool reported by an mcp_list_tools output item.
type ListedTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// OutputItem is the union of the output item kinds; only the fields matching
// Type are populated.
type OutputItem struct {
	Type        string        `json:"type"`
	ID          string        `json:"id,omitempty"`
	Status      string        `json:"status,omitempty"`
	Role        string        `json:"role,omitempty"`
	Content     []ContentPart `json:"content,omitempty"`
	ServerLabel string        `json:"server_label,omitempty"`
	Name        string        `json:"name,omitempty"`
	Arguments   string        `json:"arguments,omitempty"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Tools       []ListedTool  `json:"tools,omitempty"`
	Queries     []string      `json:"queries,omitempty"`
}

// Response is the result of POST /v1/responses.
type Response struct {
	ID     string       `json:"id"`
	Model  string       `json:"model"`
	Status string       `json:"status"`
	Output []OutputItem `json:"output"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// OutputText concatenates the text parts of every message output item.
func (r Response) OutputText() string {
	var parts []string
	for _, item := range r.Output {
		if item.Type != OutputMessage {
			continue
		}
		for _, c := range item.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// MCPCalls returns the mcp_call output items in order.
func (r Response) MCPCalls() []OutputItem {
	var calls []OutputItem
	for _, item := range r.Output {
		if item.Type == OutputMCPCall {
			calls = append(calls, item)
		}
	}
	return calls
}

// CreateResponse calls the Responses API in non-streaming mode.
func (c *Client) CreateResponse(ctx context.Context, req ResponseRequest) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llamastack: model must not be empty")
	}
	if req.Input == nil {
		return Response{}, errors.New("llamastack: input must not be empty")
	}
	req.Stream = false

	var out Response
	if err := c.do(ctx, http.MethodPost, "/responses", nil, req, &out); err != nil {
		return Response{}, fmt.Errorf("llamastack: create response: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return out, fmt.Errorf("llamastack: response %s failed: %s", out.ID, out.Error.Message)
	}
	return out, nil
}
