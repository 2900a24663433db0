// Package customer is a client for the Fantaco Customer Service REST API.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/httpapi"
)

const customersPath = "/api/customers"

// SearchParams filters customers by partial match. Empty fields are not sent.
type SearchParams struct {
	CompanyName  string
	ContactName  string
	ContactEmail string
	Phone        string
}

func (p SearchParams) query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	set("companyName", p.CompanyName)
	set("contactName", p.ContactName)
	set("contactEmail", p.ContactEmail)
	set("phone", p.Phone)
	return q
}

// Client talks to the customer service.
type Client struct {
	api *httpapi.Client
}

// NewClient creates a Client rooted at baseURL (CUSTOMER_API_BASE_URL).
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("customer: base URL must not be empty")
	}
	api := httpapi.New(baseURL)
	if httpClient != nil {
		api.HTTPClient = httpClient
	}
	return &Client{api: api}, nil
}

// Search lists customers matching every non-empty field.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]domain.Customer, error) {
	var out []domain.Customer
	if err := c.api.Do(ctx, http.MethodGet, customersPath, p.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("customer: search: %w", err)
	}
	return out, nil
}

// Get returns one customer by its identifier.
func (c *Client) Get(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer: customer id is required")
	}
	var out domain.Customer
	if err := c.api.Do(ctx, http.MethodGet, customersPath+"/"+url.PathEscape(customerID), nil, nil, &out); err != nil {
		return domain.Customer{}, fmt.Errorf("customer: get %q: %w", customerID, err)
	}
	return out, nil
}

// RawSearch performs the search and hands back the untouched upstream
// response, for adapters that forward it verbatim.
func (c *Client) RawSearch(ctx context.Context, p SearchParams) (int, []byte, error) {
	return c.api.Raw(ctx, http.MethodGet, customersPath, p.query(), nil)
}

// RawGet is the verbatim counterpart of Get.
func (c *Client) RawGet(ctx context.Context, customerID string) (int, []byte, error) {
	return c.api.Raw(ctx, http.MethodGet, customersPath+"/"+url.PathEscape(strings.TrimSpace(customerID)), nil, nil)
}
