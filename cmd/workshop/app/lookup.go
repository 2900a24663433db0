package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/domain"
	"fantaco-agents/internal/integrations/customer"
	"fantaco-agents/internal/integrations/finance"
	"fantaco-agents/internal/ui"
	"fantaco-agents/internal/usecase"
)

func (c *cli) lookup() (*usecase.LookupService, error) {
	customers, err := customer.NewClient(c.settings.CustomerAPIBaseURL, nil)
	if err != nil {
		return nil, err
	}
	fin, err := finance.NewClient(c.settings.FinanceAPIBaseURL, nil)
	if err != nil {
		return nil, err
	}
	return usecase.NewLookupService(customers, fin)
}

func newOrdersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "orders EMAIL",
		Short: "Find a customer's orders by contact email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.lookup()
			if err != nil {
				return err
			}
			out, err := svc.FindOrders(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printCustomer(cmd, out.Customer)
			rows := make([][]string, 0, len(out.Orders))
			for _, o := range out.Orders {
				rows = append(rows, []string{o.OrderNumber, o.OrderDate, o.Status, string(o.TotalAmount)})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Order", "Date", "Status", "Total"}, rows, "No orders found.")
		},
	}
}

func newInvoicesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "invoices EMAIL",
		Short: "Find a customer's invoices by contact email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.lookup()
			if err != nil {
				return err
			}
			out, err := svc.FindInvoices(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printCustomer(cmd, out.Customer)
			rows := make([][]string, 0, len(out.Invoices))
			for _, inv := range out.Invoices {
				amount := inv.TotalAmount
				if amount == "" {
					amount = inv.Amount
				}
				rows = append(rows, []string{inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.Status, string(amount)})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Invoice", "Date", "Due", "Status", "Amount"}, rows, "No invoices found.")
		},
	}
}

func printCustomer(cmd *cobra.Command, cust domain.Customer) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) <%s>, %s\n", cust.ContactName, cust.CustomerID, cust.ContactEmail, cust.CompanyName)
}
