package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fantaco-agents/internal/integrations/llamastack"
)

type mockResponder struct {
	responses []llamastack.Response
	err       error
	requests  []llamastack.ResponseRequest
}

func (m *mockResponder) CreateResponse(_ context.Context, req llamastack.ResponseRequest) (llamastack.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llamastack.Response{}, m.err
	}
	if len(m.responses) == 0 {
		return llamastack.Response{ID: "resp-empty"}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func textMessage(text string) llamastack.OutputItem {
	return llamastack.OutputItem{
		Type:    llamastack.OutputMessage,
		Role:    "assistant",
		Content: []llamastack.ContentPart{{Type: "output_text", Text: text}},
	}
}

func mcpCall(label, name, args, output string) llamastack.OutputItem {
	return llamastack.OutputItem{Type: llamastack.OutputMCPCall, ServerLabel: label, Name: name, Arguments: args, Output: output}
}

func newTestQuestion(t *testing.T, llm Responder) *QuestionService {
	t.Helper()
	svc, err := NewQuestionService(llm, QuestionConfig{
		Model:             "llama3.2:3b",
		CustomerMCPServer: "http://customer-mcp:9001/mcp",
		FinanceMCPServer:  "http://finance-mcp:9002/mcp",
	}, nil)
	require.NoError(t, err)
	return svc
}

func TestNewQuestionService_Validates(t *testing.T) {
	_, err := NewQuestionService(nil, QuestionConfig{Model: "m", CustomerMCPServer: "a", FinanceMCPServer: "b"}, nil)
	require.Error(t, err)
	_, err = NewQuestionService(&mockResponder{}, QuestionConfig{CustomerMCPServer: "a", FinanceMCPServer: "b"}, nil)
	require.Error(t, err)
	_, err = NewQuestionService(&mockResponder{}, QuestionConfig{Model: "m", CustomerMCPServer: "a"}, nil)
	require.Error(t, err)
}

func TestAsk_BindsBothMCPServers(t *testing.T) {
	llm := &mockResponder{responses: []llamastack.Response{{
		ID: "resp-1",
		Output: []llamastack.OutputItem{
			mcpCall("customer_mcp", "search_customers", `{"contact_email":"thomashardy@example.com"}`,
				`{"results":[{"customerId":"AROUT","contactName":"Thomas Hardy","contactEmail":"thomashardy@example.com"}]}`),
			mcpCall("finance_mcp", "fetch_order_history", `{"customer_id":"AROUT"}`,
				`{"success":true,"data":[{"orderNumber":"ORD-001"},{"orderNumber":"ORD-002"}],"count":2}`),
			textMessage("Thomas Hardy has two orders."),
		},
	}}}
	svc := newTestQuestion(t, llm)

	out, err := svc.Ask(context.Background(), " What orders does thomashardy@example.com have? ")
	require.NoError(t, err)
	require.Equal(t, "What orders does thomashardy@example.com have?", out.Question)
	require.Equal(t, "Thomas Hardy has two orders.", out.Answer)
	require.Len(t, out.ToolCalls, 2)
	require.Equal(t, "finance_mcp", out.ToolCalls[1].Server)
	require.NotNil(t, out.Customer)
	require.Equal(t, "AROUT", out.Customer.CustomerID)
	require.Len(t, out.Data, 2)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	require.Equal(t, "llama3.2:3b", req.Model)
	require.Equal(t, questionInstructions, req.Instructions)
	require.Len(t, req.Tools, 2)
	require.Equal(t, "customer_mcp", req.Tools[0].ServerLabel)
	require.Equal(t, "http://finance-mcp:9002/mcp", req.Tools[1].ServerURL)
	require.Equal(t, "never", req.Tools[1].RequireApproval)
}

func TestAsk_NoOutputFallsBack(t *testing.T) {
	svc := newTestQuestion(t, &mockResponder{})

	out, err := svc.Ask(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "No response generated", out.Answer)
	require.Empty(t, out.ToolCalls)
	require.Nil(t, out.Customer)
}

func TestAsk_Errors(t *testing.T) {
	svc := newTestQuestion(t, &mockResponder{})
	_, err := svc.Ask(context.Background(), "  ")
	expectError(t, err, ErrorInvalidInput, "empty_question")

	svc = newTestQuestion(t, &mockResponder{err: errors.New("llama stack down")})
	_, err = svc.Ask(context.Background(), "hi")
	expectError(t, err, ErrorUpstream, "llm_error")
}

func TestExtractCustomerAndData(t *testing.T) {
	customer, data := extractCustomerAndData([]llamastack.OutputItem{
		{Type: llamastack.OutputMCPCall, Error: "boom", Output: `{"results":[{"customerId":"SKIP"}]}`},
		mcpCall("customer_mcp", "get_customer", "", `{"customerId":"AROUT","contactEmail":"thomashardy@example.com"}`),
		mcpCall("finance_mcp", "fetch_invoice_history", "", `{"invoices":[{"invoiceNumber":"INV-1"}]}`),
		mcpCall("finance_mcp", "fetch_invoice_history", "", `not json`),
	})
	require.NotNil(t, customer)
	require.Equal(t, "AROUT", customer.CustomerID)
	require.Len(t, data, 1)
	require.JSONEq(t, `{"invoiceNumber":"INV-1"}`, string(data[0]))

	customer, data = extractCustomerAndData(nil)
	require.Nil(t, customer)
	require.Nil(t, data)
}

func TestExtractCustomerAndData_LaterCallsWinButEmptyListsDoNot(t *testing.T) {
	customer, data := extractCustomerAndData([]llamastack.OutputItem{
		mcpCall("customer_mcp", "search_customers", "", `{"results":[{"customerId":"ALFKI","contactEmail":"maria@example.com"}]}`),
		mcpCall("finance_mcp", "fetch_order_history", "", `{"data":[{"id":1},{"id":2}]}`),
		mcpCall("finance_mcp", "fetch_order_history", "", `{"data":[]}`),
		mcpCall("customer_mcp", "search_customers", "", `{"results":[{"customerId":"AROUT","contactEmail":"thomashardy@example.com"}]}`),
	})
	require.NotNil(t, customer)
	require.Equal(t, "AROUT", customer.CustomerID)
	require.Len(t, data, 2)
}

func TestExtractCustomerAndData_CustomerAndListInOnePayload(t *testing.T) {
	customer, data := extractCustomerAndData([]llamastack.OutputItem{
		mcpCall("customer_mcp", "search_customers", "", `{"results":[{"customerId":"AROUT"}],"data":[{"id":7}]}`),
	})
	require.NotNil(t, customer)
	require.Equal(t, "AROUT", customer.CustomerID)
	require.Len(t, data, 1)
}
