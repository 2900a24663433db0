// Package mcpclient is a thin streamable HTTP MCP client used by the CLI to
// list and call tools on the FantaCo MCP servers.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "fantaco-workshop"
	clientVersion = "1.0.0"
)

// Tool is a tool advertised by a server.
type Tool struct {
	Name        string
	Description string
	Required    []string
	Properties  []string
}

// Result is the outcome of a tool call.
type Result struct {
	Text       string
	Structured any
	IsError    bool
}

// Client holds one initialized MCP session.
type Client struct {
	mcp        *client.Client
	serverName string
}

// Dial connects to serverURL (e.g. http://localhost:9001/mcp) and performs
// the initialize handshake.
func Dial(ctx context.Context, serverURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, errors.New("mcpclient: server URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c, err := client.NewStreamableHttpClient(serverURL, transport.WithHTTPTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mcpclient: create client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcpclient: start transport: %w", err)
	}

	init, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcpclient: initialize %s: %w", serverURL, err)
	}
	return &Client{mcp: c, serverName: init.ServerInfo.Name}, nil
}

// ServerName is the name the server reported during initialization.
func (c *Client) ServerName() string {
	return c.serverName
}

func (c *Client) Close() error {
	return c.mcp.Close()
}

// ListTools returns the server's tools in the order it reports them.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list tools: %w", err)
	}
	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tool := Tool{Name: t.Name, Description: t.Description, Required: t.InputSchema.Required}
		for prop := range t.InputSchema.Properties {
			tool.Properties = append(tool.Properties, prop)
		}
		slices.Sort(tool.Properties)
		tools = append(tools, tool)
	}
	return tools, nil
}

// CallTool invokes name with args. A tool-level failure is reported through
// Result.IsError, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, errors.New("mcpclient: tool name is required")
	}
	res, err := c.mcp.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return Result{}, fmt.Errorf("mcpclient: call %s: %w", name, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return Result{
		Text:       strings.Join(parts, "\n"),
		Structured: res.StructuredContent,
		IsError:    res.IsError,
	}, nil
}
