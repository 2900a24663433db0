// Package llamastack is a focused client for the Llama Stack HTTP API: the
// OpenAI-compatible chat and responses endpoints plus the admin surface the
// workshop scripts use (models, toolgroups, shields, vector stores).
package llamastack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fantaco-agents/internal/integrations/httpapi"
)

const (
	defaultBaseURL = "http://localhost:8321"
	// Inference calls run long when the model invokes MCP tools.
	defaultTimeout = 120 * time.Second
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// Getter is the subset of the parameter store used to resolve the API key.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client is a Llama Stack client. The zero value is not usable; use NewClient.
type Client struct {
	api *httpapi.Client

	apiKey     string
	getter     Getter
	tokenParam string

	keyOnce     sync.Once
	resolvedKey string
	keyErr      error
}

type Option func(*Client)

// WithAPIKey sets a static bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithParamStore resolves the bearer token from the parameter store on first
// use. The parameter holds JSON of the form {"token": "..."}.
func WithParamStore(g Getter, parameterName string) Option {
	return func(c *Client) {
		c.getter = g
		c.tokenParam = strings.TrimSpace(parameterName)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.api.HTTPClient = httpClient
		}
	}
}

// NewClient creates a Client for baseURL (LLAMA_STACK_BASE_URL). A trailing
// /v1 or /v1/openai/v1 is accepted and stripped.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{api: httpapi.New(normalizeBaseURL(baseURL))}
	c.api.HTTPClient = &http.Client{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.getter != nil && c.tokenParam == "" {
		return nil, errors.New("llamastack: token parameter name must not be empty")
	}
	c.api.Header = c.authorize
	return c, nil
}

// BaseURL is the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.api.BaseURL
}

func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	for _, suffix := range []string{"/v1/openai/v1", "/v1"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

func (c *Client) authorize(ctx context.Context, h http.Header) error {
	key, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}
	if key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return nil
}

// resolveAPIKey returns the static key, or fetches it from the parameter store
// once and caches the result for the lifetime of the process.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.apiKey != "" || c.getter == nil {
		return c.apiKey, nil
	}
	c.keyOnce.Do(func() {
		c.resolvedKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParam)
	})
	return c.resolvedKey, c.keyErr
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("llamastack: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("llamastack: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("llamastack: API token is empty")
	}
	return tp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.api.Do(ctx, method, "/v1"+path, query, body, out)
}

// list decodes either {"data": [...]} or a bare array.
func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []T{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode list envelope: %w", err)
	}
	if envelope.Data == nil {
		return []T{}, nil
	}
	return envelope.Data, nil
}
