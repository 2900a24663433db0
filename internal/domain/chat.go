package domain

// ChatMessage is the provider-agnostic chat message shape shared by the
// use cases and the Llama Stack integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
