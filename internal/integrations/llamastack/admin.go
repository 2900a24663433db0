package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"fantaco-agents/internal/integrations/httpapi"
)

// MCPProviderID is the tool-runtime provider that serves MCP toolgroups.
const MCPProviderID = "model-context-protocol"

// Model is a registered model. Older servers fill Identifier, OpenAI-style
// listings fill ID.
type Model struct {
	ID                 string         `json:"id,omitempty"`
	Identifier         string         `json:"identifier,omitempty"`
	ProviderID         string         `json:"provider_id,omitempty"`
	ProviderResourceID string         `json:"provider_resource_id,omitempty"`
	ModelType          string         `json:"model_type,omitempty"`
	OwnedBy            string         `json:"owned_by,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

func (m Model) Name() string {
	if m.Identifier != "" {
		return m.Identifier
	}
	return m.ID
}

// Provider is an API provider configured on the server.
type Provider struct {
	API          string `json:"api"`
	ProviderID   string `json:"provider_id"`
	ProviderType string `json:"provider_type"`
}

// MCPEndpoint locates an MCP server.
type MCPEndpoint struct {
	URI string `json:"uri"`
}

// ToolGroup is a registered toolgroup.
type ToolGroup struct {
	Identifier  string       `json:"identifier"`
	ProviderID  string       `json:"provider_id"`
	MCPEndpoint *MCPEndpoint `json:"mcp_endpoint,omitempty"`
}

// ToolDef is a tool exposed by a toolgroup.
type ToolDef struct {
	Identifier  string `json:"identifier,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ToolgroupID string `json:"toolgroup_id,omitempty"`
	ProviderID  string `json:"provider_id,omitempty"`
}

func (t ToolDef) DisplayName() string {
	if t.Identifier != "" {
		return t.Identifier
	}
	return t.Name
}

// ToolInvocation is the result of the tool runtime.
type ToolInvocation struct {
	Content      any    `json:"content"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    int    `json:"error_code,omitempty"`
}

func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	models, err := list[Model](ctx, c, "/models", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list models: %w", err)
	}
	return models, nil
}

func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	providers, err := list[Provider](ctx, c, "/providers", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list providers: %w", err)
	}
	return providers, nil
}

func (c *Client) ListToolGroups(ctx context.Context) ([]ToolGroup, error) {
	groups, err := list[ToolGroup](ctx, c, "/toolgroups", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list toolgroups: %w", err)
	}
	return groups, nil
}

// RegisterToolGroup registers an MCP server as a toolgroup.
func (c *Client) RegisterToolGroup(ctx context.Context, toolgroupID, providerID, mcpURI string) error {
	toolgroupID = strings.TrimSpace(toolgroupID)
	if toolgroupID == "" {
		return errors.New("llamastack: toolgroup id is required")
	}
	if strings.TrimSpace(mcpURI) == "" {
		return errors.New("llamastack: mcp endpoint uri is required")
	}
	if providerID == "" {
		providerID = MCPProviderID
	}
	body := map[string]any{
		"toolgroup_id": toolgroupID,
		"provider_id":  providerID,
		"mcp_endpoint": MCPEndpoint{URI: mcpURI},
	}
	if err := c.do(ctx, http.MethodPost, "/toolgroups", nil, body, nil); err != nil {
		return fmt.Errorf("llamastack: register toolgroup %q: %w", toolgroupID, err)
	}
	return nil
}

func (c *Client) UnregisterToolGroup(ctx context.Context, toolgroupID string) error {
	toolgroupID = strings.TrimSpace(toolgroupID)
	if toolgroupID == "" {
		return errors.New("llamastack: toolgroup id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/toolgroups/"+url.PathEscape(toolgroupID), nil, nil, nil); err != nil {
		return fmt.Errorf("llamastack: unregister toolgroup %q: %w", toolgroupID, err)
	}
	return nil
}

// ListTools lists tools, optionally restricted to one toolgroup.
func (c *Client) ListTools(ctx context.Context, toolgroupID string) ([]ToolDef, error) {
	var q url.Values
	if toolgroupID = strings.TrimSpace(toolgroupID); toolgroupID != "" {
		q = url.Values{"toolgroup_id": {toolgroupID}}
	}
	tools, err := list[ToolDef](ctx, c, "/tools", q)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list tools: %w", err)
	}
	return tools, nil
}

// InvokeTool runs a tool through the server's tool runtime, e.g.
// "customer_mcp::search_customers".
func (c *Client) InvokeTool(ctx context.Context, toolName string, kwargs map[string]any) (ToolInvocation, error) {
	if strings.TrimSpace(toolName) == "" {
		return ToolInvocation{}, errors.New("llamastack: tool name is required")
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	var out ToolInvocation
	body := map[string]any{"tool_name": toolName, "kwargs": kwargs}
	if err := c.do(ctx, http.MethodPost, "/tool-runtime/invoke", nil, body, &out); err != nil {
		return ToolInvocation{}, fmt.Errorf("llamastack: invoke tool %q: %w", toolName, err)
	}
	return out, nil
}

// WaitReady probes /v1/models with exponential backoff until the server
// answers, maxTries is exhausted or ctx ends. Client errors other than 429
// stop the probe immediately.
func (c *Client) WaitReady(ctx context.Context, maxTries uint, initial time.Duration) error {
	if maxTries == 0 {
		maxTries = 1
	}
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initial
	expBackoff.MaxInterval = 20 * initial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := c.ListModels(ctx)
		if status, ok := httpapi.StatusCode(err); ok && status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		return fmt.Errorf("llamastack: server at %s not ready: %w", c.BaseURL(), err)
	}
	return nil
}
