package usecase

import (
	"strings"

	"fantaco-agents/internal/domain"
)

const defaultSystemPrompt = "You are a helpful assistant for FantaCo, a company that sells toys and party supplies. " +
	"Answer clearly and concisely. If you do not know the answer, say so."

// toolSystemPrompt is the chatbot prompt when the customer and finance MCP
// servers are bound.
const toolSystemPrompt = `You are a helpful customer service assistant with access to customer and order information.

Available tools:
- search_customers: Search for customers by name, company, email, or phone
- get_customer: Get customer details by customer ID
- fetch_order_history: Get order history for a customer by customer ID
- fetch_invoice_history: Get invoice history for a customer by customer ID

When a user asks about a customer:
1. First search for the customer to get their customer ID
2. Then fetch their orders if needed
3. Provide a clear, friendly summary

Be concise and helpful.`

// questionInstructions steer the model through the two-hop lookup when both
// MCP servers are bound.
const questionInstructions = "You help FantaCo staff with customer questions. " +
	"To find orders or invoices for an email address, first call the customer tools to search customers by contact_email, " +
	"then call the finance tools with the customerId of the first match. " +
	"Answer only from tool results."

func buildChatMessages(systemPrompt, message string, history []domain.Turn) []domain.ChatMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	messages := []domain.ChatMessage{{Role: domain.RoleSystem, Content: systemPrompt}}
	for _, t := range history {
		messages = append(messages, historyToPromptMessages(t)...)
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}

func historyToPromptMessages(t domain.Turn) []domain.ChatMessage {
	if t.Status != statusComplete {
		return nil
	}
	question := strings.TrimSpace(t.Question)
	answer := strings.TrimSpace(t.Answer)
	if question == "" || answer == "" {
		return nil
	}
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: question},
		{Role: domain.RoleAssistant, Content: answer},
	}
}
