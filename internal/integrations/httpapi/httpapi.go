// Package httpapi holds the JSON-over-HTTP plumbing shared by the integration
// clients: request construction, status checking and bounded body reads.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	errorBodyLimit   = 4096
	successBodyLimit = 8 << 20
	defaultTimeout   = 30 * time.Second
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// StatusCode reports the upstream status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.StatusCode, true
}

// Client issues JSON requests against a single base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Header, when set, decorates every outgoing request (auth, api keys).
	Header func(ctx context.Context, h http.Header) error
}

// New returns a Client for baseURL with a 30s timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Raw performs the request and returns status and body without judging the
// status. Transport failures are the only errors.
func (c *Client) Raw(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	req, target, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return 0, nil, err
	}
	if err := c.decorate(req); err != nil {
		return 0, nil, err
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, successBodyLimit))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response body from %s: %w", target, err)
	}
	return res.StatusCode, buf, nil
}

// Do performs the request, fails with *HTTPStatusError on non-2xx and decodes
// the body into out when out is non-nil and the body is not empty.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, target, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.Send(req, target, out)
}

// Send executes an already built request, used for non-JSON bodies such as
// multipart uploads.
func (c *Client) Send(req *http.Request, target string, out any) error {
	if err := c.decorate(req); err != nil {
		return err
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, errorBodyLimit))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, successBodyLimit))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if out == nil || len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", target, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, string, error) {
	target := c.URL(path, query)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, target, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, target, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, target, nil
}

func (c *Client) decorate(req *http.Request) error {
	if c.Header == nil {
		return nil
	}
	return c.Header(req.Context(), req.Header)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}
