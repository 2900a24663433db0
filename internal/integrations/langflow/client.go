// Package langflow calls the Langflow run API for a published flow.
package langflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fantaco-agents/internal/integrations/httpapi"
)

// Flows that call MCP tools through an agent component regularly take
// longer than the shared default.
const runTimeout = 120 * time.Second

type runRequest struct {
	OutputType string `json:"output_type"`
	InputType  string `json:"input_type"`
	InputValue string `json:"input_value"`
	SessionID  string `json:"session_id"`
}

// RunResult is the decoded part of a run response plus the raw body.
type RunResult struct {
	SessionID string          `json:"session_id"`
	Text      string          `json:"-"`
	Raw       json.RawMessage `json:"-"`
}

type runResponse struct {
	SessionID string `json:"session_id"`
	Outputs   []struct {
		Outputs []struct {
			Results struct {
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"results"`
			Messages []struct {
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"outputs"`
	} `json:"outputs"`
}

// firstText returns the first chat message text found in the response.
func (r runResponse) firstText() string {
	for _, o := range r.Outputs {
		for _, inner := range o.Outputs {
			if inner.Results.Message.Text != "" {
				return inner.Results.Message.Text
			}
			for _, m := range inner.Messages {
				if m.Message != "" {
					return m.Message
				}
			}
		}
	}
	return ""
}

type Client struct {
	api *httpapi.Client
}

// NewClient returns a client for the Langflow server at baseURL
// (LANGFLOW_URL) authenticating with apiKey (LANGFLOW_API_KEY).
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("langflow: base URL is required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("langflow: api key is required")
	}
	api := httpapi.New(baseURL)
	api.HTTPClient = &http.Client{Timeout: runTimeout}
	if httpClient != nil {
		api.HTTPClient = httpClient
	}
	api.Header = func(_ context.Context, h http.Header) error {
		h.Set("x-api-key", apiKey)
		return nil
	}
	return &Client{api: api}, nil
}

// Run sends input to the flow as a chat message. An empty sessionID starts
// a new session.
func (c *Client) Run(ctx context.Context, flowID, input, sessionID string) (RunResult, error) {
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		return RunResult{}, errors.New("langflow: flow id is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	req := runRequest{
		OutputType: "chat",
		InputType:  "chat",
		InputValue: input,
		SessionID:  sessionID,
	}

	var raw json.RawMessage
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/run/"+url.PathEscape(flowID), nil, req, &raw); err != nil {
		return RunResult{}, fmt.Errorf("langflow: run flow %s: %w", flowID, err)
	}

	var decoded runResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return RunResult{}, fmt.Errorf("langflow: run flow %s: decode: %w", flowID, err)
		}
	}
	out := RunResult{SessionID: decoded.SessionID, Text: decoded.firstText(), Raw: raw}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	return out, nil
}
