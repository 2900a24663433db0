package usecase

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/customer"
	"fantaco-agents/internal/integrations/finance"
)

type CustomerSearcher interface {
	Search(ctx context.Context, p customer.SearchParams) ([]domain.Customer, error)
}

type HistoryFetcher interface {
	OrderHistory(ctx context.Context, req domain.HistoryRequest) (finance.History[domain.Order], error)
	InvoiceHistory(ctx context.Context, req domain.HistoryRequest) (finance.History[domain.Invoice], error)
}

type OrdersResult struct {
	Customer    domain.Customer `json:"customer"`
	Orders      []domain.Order  `json:"orders"`
	TotalOrders int             `json:"total_orders"`
}

type InvoicesResult struct {
	Customer      domain.Customer  `json:"customer"`
	Invoices      []domain.Invoice `json:"invoices"`
	TotalInvoices int              `json:"total_invoices"`
}

// LookupService resolves an email to a customer and then to its finance
// history. Each lookup issues exactly two upstream calls.
type LookupService struct {
	customers CustomerSearcher
	finance   HistoryFetcher
}

func NewLookupService(customers CustomerSearcher, fin HistoryFetcher) (*LookupService, error) {
	if customers == nil {
		return nil, errors.New("usecase: customer client must not be nil")
	}
	if fin == nil {
		return nil, errors.New("usecase: finance client must not be nil")
	}
	return &LookupService{customers: customers, finance: fin}, nil
}

func (s *LookupService) FindOrders(ctx context.Context, email string) (OrdersResult, error) {
	c, err := s.resolveCustomer(ctx, email)
	if err != nil {
		return OrdersResult{}, err
	}
	history, err := s.finance.OrderHistory(ctx, historyRequest(c))
	if err != nil {
		return OrdersResult{}, upstreamError("finance", err)
	}
	orders := history.Data
	if orders == nil {
		orders = []domain.Order{}
	}
	return OrdersResult{Customer: c, Orders: orders, TotalOrders: len(orders)}, nil
}

func (s *LookupService) FindInvoices(ctx context.Context, email string) (InvoicesResult, error) {
	c, err := s.resolveCustomer(ctx, email)
	if err != nil {
		return InvoicesResult{}, err
	}
	history, err := s.finance.InvoiceHistory(ctx, historyRequest(c))
	if err != nil {
		return InvoicesResult{}, upstreamError("finance", err)
	}
	invoices := enrichInvoices(history.Data, c)
	return InvoicesResult{Customer: c, Invoices: invoices, TotalInvoices: len(invoices)}, nil
}

func (s *LookupService) resolveCustomer(ctx context.Context, email string) (domain.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Customer{}, newError(ErrorInvalidInput, "email_required", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.Customer{}, newError(ErrorInvalidInput, "invalid_email", err)
	}

	matches, err := s.customers.Search(ctx, customer.SearchParams{ContactEmail: email})
	if err != nil {
		return domain.Customer{}, upstreamError("customer", err)
	}
	if len(matches) == 0 {
		return domain.Customer{}, newError(ErrorNotFound, "customer_not_found", nil)
	}
	return matches[0], nil
}

func historyRequest(c domain.Customer) domain.HistoryRequest {
	return domain.HistoryRequest{CustomerID: c.CustomerID, Limit: finance.DefaultLimit}
}

// enrichInvoices fills customer fields the finance service leaves out.
// contactName is always taken from the customer record.
func enrichInvoices(invoices []domain.Invoice, c domain.Customer) []domain.Invoice {
	out := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.CustomerID == "" {
			inv.CustomerID = c.CustomerID
		}
		if inv.CustomerEmail == "" {
			inv.CustomerEmail = c.ContactEmail
		}
		inv.ContactName = c.ContactName
		out = append(out, inv)
	}
	return out
}
