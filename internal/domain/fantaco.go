package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Customer is a record owned by the Fantaco customer service.
type Customer struct {
	CustomerID   string `json:"customerId"`
	CompanyName  string `json:"companyName,omitempty"`
	ContactName  string `json:"contactName,omitempty"`
	ContactTitle string `json:"contactTitle,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Fax          string `json:"fax,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Order is a record owned by the Fantaco finance service.
type Order struct {
	ID          Flex   `json:"id,omitempty"`
	OrderID     Flex   `json:"orderId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	CustomerID  string `json:"customerId,omitempty"`
	OrderDate   string `json:"orderDate,omitempty"`
	Status      string `json:"status,omitempty"`
	TotalAmount Flex   `json:"totalAmount,omitempty"`
	Freight     Flex   `json:"freight,omitempty"`
}

// Invoice is a record owned by the Fantaco finance service.
type Invoice struct {
	ID            Flex   `json:"id,omitempty"`
	InvoiceID     Flex   `json:"invoiceId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	OrderID       Flex   `json:"orderId,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	ContactName   string `json:"contactName,omitempty"`
	Amount        Flex   `json:"amount,omitempty"`
	TotalAmount   Flex   `json:"totalAmount,omitempty"`
	Status        string `json:"status,omitempty"`
	InvoiceDate   string `json:"invoiceDate,omitempty"`
	DueDate       string `json:"dueDate,omitempty"`
	PaidDate      string `json:"paidDate,omitempty"`
}

// HistoryRequest is the body accepted by the finance history endpoints.
type HistoryRequest struct {
	CustomerID string `json:"customerId"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Limit      int    `json:"limit"`
}

// Flex holds a scalar that the upstream services emit either as a JSON string
// or as a JSON number. It is kept in its textual form.
type Flex string

func (f *Flex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("domain: flex value %s is neither string nor number", b)
	}
	*f = Flex(n.String())
	return nil
}

func (f Flex) String() string { return string(f) }
