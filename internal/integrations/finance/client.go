// Package finance is a client for the Fantaco Finance Service REST API.
package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/httpapi"
)

const (
	ordersHistoryPath   = "/api/finance/orders/history"
	invoicesHistoryPath = "/api/finance/invoices/history"

	// DefaultLimit is the page size used when the caller does not set one.
	DefaultLimit = 50
)

// History is the envelope returned by the history endpoints.
type History[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    []T    `json:"data"`
	Count   int    `json:"count"`
}

// Client talks to the finance service.
type Client struct {
	api *httpapi.Client
}

// NewClient creates a Client rooted at baseURL (FINANCE_API_BASE_URL).
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("finance: base URL must not be empty")
	}
	api := httpapi.New(baseURL)
	if httpClient != nil {
		api.HTTPClient = httpClient
	}
	return &Client{api: api}, nil
}

// NormalizeRequest trims the request and applies the default limit.
func NormalizeRequest(req domain.HistoryRequest) (domain.HistoryRequest, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return req, errors.New("finance: customer id is required")
	}
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.EndDate = strings.TrimSpace(req.EndDate)
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	return req, nil
}

// OrderHistory fetches the orders of one customer.
func (c *Client) OrderHistory(ctx context.Context, req domain.HistoryRequest) (History[domain.Order], error) {
	return fetchHistory[domain.Order](ctx, c.api, ordersHistoryPath, "orders", req)
}

// InvoiceHistory fetches the invoices of one customer.
func (c *Client) InvoiceHistory(ctx context.Context, req domain.HistoryRequest) (History[domain.Invoice], error) {
	return fetchHistory[domain.Invoice](ctx, c.api, invoicesHistoryPath, "invoices", req)
}

// RawOrderHistory posts the request and returns the untouched upstream response.
func (c *Client) RawOrderHistory(ctx context.Context, req domain.HistoryRequest) (int, []byte, error) {
	return c.raw(ctx, ordersHistoryPath, req)
}

// RawInvoiceHistory posts the request and returns the untouched upstream response.
func (c *Client) RawInvoiceHistory(ctx context.Context, req domain.HistoryRequest) (int, []byte, error) {
	return c.raw(ctx, invoicesHistoryPath, req)
}

func (c *Client) raw(ctx context.Context, path string, req domain.HistoryRequest) (int, []byte, error) {
	req, err := NormalizeRequest(req)
	if err != nil {
		return 0, nil, err
	}
	return c.api.Raw(ctx, http.MethodPost, path, nil, req)
}

func fetchHistory[T any](ctx context.Context, api *httpapi.Client, path, listKey string, req domain.HistoryRequest) (History[T], error) {
	req, err := NormalizeRequest(req)
	if err != nil {
		return History[T]{}, err
	}
	var raw json.RawMessage
	if err := api.Do(ctx, http.MethodPost, path, nil, req, &raw); err != nil {
		return History[T]{}, fmt.Errorf("finance: %s history: %w", listKey, err)
	}
	out, err := decodeHistory[T](raw, listKey)
	if err != nil {
		return History[T]{}, fmt.Errorf("finance: %s history: %w", listKey, err)
	}
	return out, nil
}

// decodeHistory accepts the documented envelope, an envelope keyed by the
// record kind ("orders"/"invoices") or a bare array.
func decodeHistory[T any](raw json.RawMessage, listKey string) (History[T], error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return History[T]{Data: []T{}}, nil
	}
	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return History[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return History[T]{Success: true, Data: items, Count: len(items)}, nil
	}

	var out History[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return History[T]{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(out.Data) == 0 {
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keyed); err == nil {
			if alt, ok := keyed[listKey]; ok {
				if err := json.Unmarshal(alt, &out.Data); err != nil {
					return History[T]{}, fmt.Errorf("decode %s: %w", listKey, err)
				}
			}
		}
	}
	if out.Data == nil {
		out.Data = []T{}
	}
	if out.Count == 0 {
		out.Count = len(out.Data)
	}
	return out, nil
}
