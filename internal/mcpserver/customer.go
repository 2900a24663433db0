package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"fantaco-agents/internal/integrations/customer"
)

const CustomerServerName = "customer-api"

// CustomerAPI is the part of the customer client the tools need.
type CustomerAPI interface {
	RawSearch(ctx context.Context, p customer.SearchParams) (int, []byte, error)
	RawGet(ctx context.Context, customerID string) (int, []byte, error)
}

// NewCustomerServer builds the read-only customer tool server.
func NewCustomerServer(api CustomerAPI, version string) *server.MCPServer {
	s := server.NewMCPServer(CustomerServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	t := customerTools{api: api}

	s.AddTool(mcp.NewTool("search_customers",
		mcp.WithDescription("Search for customers by various fields with partial matching. Returns the list of customers matching the search criteria."),
		mcp.WithString("company_name", mcp.Description("Filter by company name (partial matching, optional)")),
		mcp.WithString("contact_name", mcp.Description("Filter by contact person name (partial matching, optional)")),
		mcp.WithString("contact_email", mcp.Description("Filter by contact email address (partial matching, optional)")),
		mcp.WithString("phone", mcp.Description("Filter by phone number (partial matching, optional)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.search)

	s.AddTool(mcp.NewTool("get_customer",
		mcp.WithDescription("Get customer by ID. Returns customerId, companyName, contactName, contactTitle, address, city, region, postalCode, country, phone, fax, contactEmail, createdAt and updatedAt."),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("The unique 5-character identifier of the customer")),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.get)

	return s
}

type customerTools struct {
	api CustomerAPI
}

func (t customerTools) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		CompanyName  string `json:"company_name"`
		ContactName  string `json:"contact_name"`
		ContactEmail string `json:"contact_email"`
		Phone        string `json:"phone"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	status, body, err := t.api.RawSearch(ctx, customer.SearchParams{
		CompanyName:  args.CompanyName,
		ContactName:  args.ContactName,
		ContactEmail: args.ContactEmail,
		Phone:        args.Phone,
	})
	return toolResult(shapeResponse(status, body, err)), nil
}

func (t customerTools) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("customer_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	status, body, err := t.api.RawGet(ctx, id)
	return toolResult(shapeResponse(status, body, err)), nil
}
