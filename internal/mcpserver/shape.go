// Package mcpserver exposes the FantaCo REST services and the finance agent
// as MCP tools over streamable HTTP.
package mcpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// shapeResponse turns an upstream exchange into the object handed back to
// the model. Upstream failures are reported in-band so the model can read
// them; they are never MCP protocol errors.
func shapeResponse(status int, body []byte, err error) map[string]any {
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		var detail any
		if jsonErr := json.Unmarshal(body, &detail); jsonErr != nil {
			detail = string(body)
		}
		return map[string]any{
			"error":       fmt.Sprintf("HTTP %d", status),
			"detail":      detail,
			"status_code": status,
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{"status": "success", "status_code": status}
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return map[string]any{"error": fmt.Sprintf("decode response: %v", err)}
	}
	switch v := data.(type) {
	case map[string]any:
		return v
	case []any:
		return map[string]any{"results": v}
	default:
		return map[string]any{"result": v}
	}
}

// toolResult carries obj as structured content plus its JSON text.
func toolResult(obj map[string]any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(obj)
}
