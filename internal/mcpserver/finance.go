package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/finance"
)

const FinanceServerName = "finance-api"

// FinanceAPI is the part of the finance client the tools need.
type FinanceAPI interface {
	RawOrderHistory(ctx context.Context, req domain.HistoryRequest) (int, []byte, error)
	RawInvoiceHistory(ctx context.Context, req domain.HistoryRequest) (int, []byte, error)
}

// NewFinanceServer builds the order and invoice history tool server.
func NewFinanceServer(api FinanceAPI, version string) *server.MCPServer {
	s := server.NewMCPServer(FinanceServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	t := financeTools{api: api}

	s.AddTool(historyTool("fetch_order_history", "orders",
		"Get order history for a customer with optional date filtering. Returns success, message, data (orders with id, orderNumber, customerId, totalAmount, status, orderDate) and count."),
		t.orders)
	s.AddTool(historyTool("fetch_invoice_history", "invoices",
		"Get invoice history for a customer with optional date filtering. Returns success, message, data (invoices with id, invoiceNumber, orderId, customerId, amount, status, invoiceDate, dueDate, paidDate) and count."),
		t.invoices)

	return s
}

func historyTool(name, noun, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("Unique identifier for the customer (e.g. \"AROUT\")")),
		mcp.WithString("start_date", mcp.Description("Start date in ISO 8601 format (e.g. \"2024-01-15T10:30:00\")")),
		mcp.WithString("end_date", mcp.Description("End date in ISO 8601 format (e.g. \"2024-01-31T23:59:59\")")),
		mcp.WithNumber("limit", mcp.DefaultNumber(finance.DefaultLimit), mcp.Description(fmt.Sprintf("Maximum number of %s to return", noun))),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

type financeTools struct {
	api FinanceAPI
}

func (t financeTools) orders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hr, errResult := historyArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	status, body, err := t.api.RawOrderHistory(ctx, hr)
	return toolResult(shapeResponse(status, body, err)), nil
}

func (t financeTools) invoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hr, errResult := historyArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	status, body, err := t.api.RawInvoiceHistory(ctx, hr)
	return toolResult(shapeResponse(status, body, err)), nil
}

func historyArgs(req mcp.CallToolRequest) (domain.HistoryRequest, *mcp.CallToolResult) {
	id, err := req.RequireString("customer_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return domain.HistoryRequest{}, mcp.NewToolResultError("customer_id is required")
	}
	return domain.HistoryRequest{
		CustomerID: strings.TrimSpace(id),
		StartDate:  req.GetString("start_date", ""),
		EndDate:    req.GetString("end_date", ""),
		Limit:      req.GetInt("limit", finance.DefaultLimit),
	}, nil
}
