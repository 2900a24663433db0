package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/customer"
	"fantaco-agents/internal/integrations/llamastack"
	"fantaco-agents/internal/integrations/mcpclient"
)

// The fakes are called from the server goroutine; mu orders those writes
// with the test's reads.
type fakeCustomerAPI struct {
	mu         sync.Mutex
	lastSearch customer.SearchParams
	lastID     string
	status     int
	body       string
	err        error
}

func (f *fakeCustomerAPI) RawSearch(_ context.Context, p customer.SearchParams) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSearch = p
	return f.status, []byte(f.body), f.err
}

func (f *fakeCustomerAPI) RawGet(_ context.Context, id string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID = id
	return f.status, []byte(f.body), f.err
}

func (f *fakeCustomerAPI) calls() (customer.SearchParams, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSearch, f.lastID
}

type fakeFinanceAPI struct {
	mu       sync.Mutex
	orders   []domain.HistoryRequest
	invoices []domain.HistoryRequest
	status   int
	body     string
}

func (f *fakeFinanceAPI) RawOrderHistory(_ context.Context, req domain.HistoryRequest) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return f.status, []byte(f.body), nil
}

func (f *fakeFinanceAPI) RawInvoiceHistory(_ context.Context, req domain.HistoryRequest) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, req)
	return f.status, []byte(f.body), nil
}

func (f *fakeFinanceAPI) calls() (orders, invoices []domain.HistoryRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders, f.invoices
}

type fakeResponder struct {
	mu      sync.Mutex
	lastReq llamastack.ResponseRequest
	resp    llamastack.Response
	err     error
}

func (f *fakeResponder) CreateResponse(_ context.Context, req llamastack.ResponseRequest) (llamastack.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeResponder) last() llamastack.ResponseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func connect(t *testing.T, s *server.MCPServer) *mcpclient.Client {
	t.Helper()
	srv := httptest.NewServer(Handler(s))
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := mcpclient.Dial(ctx, srv.URL+EndpointPath, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func toolNames(t *testing.T, c *mcpclient.Client) []string {
	t.Helper()
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestCustomerServer_Tools(t *testing.T) {
	c := connect(t, NewCustomerServer(&fakeCustomerAPI{}, "test"))
	require.Equal(t, CustomerServerName, c.ServerName())
	require.ElementsMatch(t, []string{"search_customers", "get_customer"}, toolNames(t, c))
}

func TestCustomerServer_SearchWrapsList(t *testing.T) {
	api := &fakeCustomerAPI{status: 200, body: `[{"customerId":"AROUT","contactEmail":"thomashardy@example.com"}]`}
	c := connect(t, NewCustomerServer(api, "test"))

	res, err := c.CallTool(context.Background(), "search_customers", map[string]any{"contact_email": "thomashardy@example.com"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	search, _ := api.calls()
	require.Equal(t, "thomashardy@example.com", search.ContactEmail)
	require.Empty(t, search.CompanyName)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Text), &got))
	results := got["results"].([]any)
	require.Equal(t, "AROUT", results[0].(map[string]any)["customerId"])
}

func TestCustomerServer_GetNotFoundIsInBand(t *testing.T) {
	api := &fakeCustomerAPI{status: 404, body: `{"message":"not found"}`}
	c := connect(t, NewCustomerServer(api, "test"))

	res, err := c.CallTool(context.Background(), "get_customer", map[string]any{"customer_id": "ZZZZZ"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	_, id := api.calls()
	require.Equal(t, "ZZZZZ", id)
	require.JSONEq(t, `{"error":"HTTP 404","detail":{"message":"not found"},"status_code":404}`, res.Text)
}

func TestCustomerServer_GetRequiresID(t *testing.T) {
	c := connect(t, NewCustomerServer(&fakeCustomerAPI{}, "test"))
	res, err := c.CallTool(context.Background(), "get_customer", map[string]any{})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestCustomerServer_TransportError(t *testing.T) {
	api := &fakeCustomerAPI{err: errors.New("connection refused")}
	c := connect(t, NewCustomerServer(api, "test"))
	res, err := c.CallTool(context.Background(), "search_customers", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"connection refused"}`, res.Text)
}

func TestFinanceServer_OrderHistoryDefaults(t *testing.T) {
	api := &fakeFinanceAPI{status: 200, body: `{"success":true,"message":"ok","data":[],"count":0}`}
	c := connect(t, NewFinanceServer(api, "test"))
	require.Equal(t, FinanceServerName, c.ServerName())
	require.ElementsMatch(t, []string{"fetch_order_history", "fetch_invoice_history"}, toolNames(t, c))

	res, err := c.CallTool(context.Background(), "fetch_order_history", map[string]any{"customer_id": "AROUT"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	orders, _ := api.calls()
	require.Len(t, orders, 1)
	require.Equal(t, domain.HistoryRequest{CustomerID: "AROUT", Limit: 50}, orders[0])
	require.JSONEq(t, `{"success":true,"message":"ok","data":[],"count":0}`, res.Text)
}

func TestFinanceServer_InvoiceHistoryWithDates(t *testing.T) {
	api := &fakeFinanceAPI{status: 200, body: `{"success":true,"data":[{"invoiceNumber":"INV-1"}],"count":1}`}
	c := connect(t, NewFinanceServer(api, "test"))

	_, err := c.CallTool(context.Background(), "fetch_invoice_history", map[string]any{
		"customer_id": "AROUT",
		"start_date":  "2024-01-01T00:00:00",
		"end_date":    "2024-12-31T23:59:59",
		"limit":       10,
	})
	require.NoError(t, err)
	_, invoices := api.calls()
	require.Equal(t, domain.HistoryRequest{
		CustomerID: "AROUT",
		StartDate:  "2024-01-01T00:00:00",
		EndDate:    "2024-12-31T23:59:59",
		Limit:      10,
	}, invoices[0])
}

func TestFinanceServer_RequiresCustomerID(t *testing.T) {
	api := &fakeFinanceAPI{}
	c := connect(t, NewFinanceServer(api, "test"))
	res, err := c.CallTool(context.Background(), "fetch_order_history", map[string]any{"limit": 5})
	require.NoError(t, err)
	require.True(t, res.IsError)
	orders, _ := api.calls()
	require.Empty(t, orders)
}

var agentResponse = llamastack.Response{
	ID: "resp_42",
	Output: []llamastack.OutputItem{
		{Type: llamastack.OutputMCPListTools, ServerLabel: "FINANCE", Tools: []llamastack.ListedTool{{Name: "fetch_order_history"}}},
		{Type: llamastack.OutputMCPCall, ServerLabel: "FINANCE", Name: "fetch_order_history", Arguments: `{"customer_id":"TRADH"}`, Output: `{"data":[]}`},
		{Type: llamastack.OutputMessage, Role: "assistant", Content: []llamastack.ContentPart{{Type: "output_text", Text: "TRADH has no orders."}}},
	},
}

func TestAgentServer_FinanceAgent(t *testing.T) {
	llm := &fakeResponder{resp: agentResponse}
	c := connect(t, NewAgentServer(llm, AgentConfig{Agent: FinanceAgent, Model: "vllm/qwen3-14b", MCPServer: "http://finance-mcp:9002/mcp"}, "test"))

	res, err := c.CallTool(context.Background(), "finance_agent", map[string]any{"prompt": "Get order history for customer TRADH"})
	require.NoError(t, err)
	require.Equal(t, "TRADH has no orders.", res.Text)

	req := llm.last()
	require.Equal(t, "vllm/qwen3-14b", req.Model)
	require.Equal(t, "Get order history for customer TRADH", req.Input)
	require.Len(t, req.Tools, 1)
	require.Equal(t, "FINANCE", req.Tools[0].ServerLabel)
	require.Equal(t, "http://finance-mcp:9002/mcp", req.Tools[0].ServerURL)
}

func TestAgentServer_FinanceAgentErrorIsText(t *testing.T) {
	llm := &fakeResponder{err: errors.New("model unavailable")}
	c := connect(t, NewAgentServer(llm, AgentConfig{Model: "m", MCPServer: "http://f/mcp"}, "test"))

	res, err := c.CallTool(context.Background(), "finance_agent", map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "Error executing finance agent: model unavailable", res.Text)
}

func TestAgentServer_MissingFinanceURL(t *testing.T) {
	llm := &fakeResponder{}
	c := connect(t, NewAgentServer(llm, AgentConfig{Model: "m"}, "test"))

	res, err := c.CallTool(context.Background(), "finance_agent_detailed", map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.Contains(t, res.Text, "not configured")
	require.Empty(t, llm.last().Model)
}

func TestAgentServer_Detailed(t *testing.T) {
	llm := &fakeResponder{resp: agentResponse}
	c := connect(t, NewAgentServer(llm, AgentConfig{Model: "m", MCPServer: "http://f/mcp"}, "test"))

	res, err := c.CallTool(context.Background(), "finance_agent_detailed", map[string]any{"prompt": "orders for TRADH"})
	require.NoError(t, err)

	var got struct {
		ResponseID    string      `json:"response_id"`
		Trace         []TraceStep `json:"trace"`
		FinalResponse string      `json:"final_response"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Text), &got))
	require.Equal(t, "resp_42", got.ResponseID)
	require.Equal(t, "TRADH has no orders.", got.FinalResponse)
	require.Len(t, got.Trace, 3)
	require.Equal(t, []string{"fetch_order_history"}, got.Trace[0].Tools)
	require.Equal(t, "fetch_order_history", got.Trace[1].ToolName)
	require.Equal(t, "assistant", got.Trace[2].Role)
}

func TestAgentServer_RequiresPrompt(t *testing.T) {
	c := connect(t, NewAgentServer(&fakeResponder{}, AgentConfig{Model: "m", MCPServer: "http://f/mcp"}, "test"))
	res, err := c.CallTool(context.Background(), "finance_agent", map[string]any{"prompt": "  "})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestAgentServer_CustomerAgent(t *testing.T) {
	llm := &fakeResponder{resp: llamastack.Response{
		ID: "resp_7",
		Output: []llamastack.OutputItem{
			{Type: llamastack.OutputMCPCall, ServerLabel: "customer", Name: "search_customers", Arguments: `{"contact_name":"Anabela Domingues"}`, Output: `{"results":[]}`},
			{Type: llamastack.OutputMessage, Role: "assistant", Content: []llamastack.ContentPart{{Type: "output_text", Text: "No customer named Anabela Domingues."}}},
		},
	}}
	c := connect(t, NewAgentServer(llm, AgentConfig{Agent: CustomerAgent, Model: "m", MCPServer: "http://customer-mcp:9001/mcp"}, "test"))

	require.Equal(t, "customer-agent", c.ServerName())
	require.ElementsMatch(t, []string{"customer_agent", "customer_agent_detailed"}, toolNames(t, c))

	res, err := c.CallTool(context.Background(), "customer_agent", map[string]any{"prompt": "Search customer with name Anabela Domingues"})
	require.NoError(t, err)
	require.Equal(t, "No customer named Anabela Domingues.", res.Text)
	req := llm.last()
	require.Len(t, req.Tools, 1)
	require.Equal(t, "customer", req.Tools[0].ServerLabel)
	require.Equal(t, "http://customer-mcp:9001/mcp", req.Tools[0].ServerURL)

	llm.mu.Lock()
	llm.err = errors.New("model unavailable")
	llm.mu.Unlock()
	res, err = c.CallTool(context.Background(), "customer_agent_detailed", map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.Contains(t, res.Text, "Error executing customer agent: model unavailable")
}
