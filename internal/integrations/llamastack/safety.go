package llamastack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fantaco-agents/internal/domain"
)

// Shield is a registered safety shield.
type Shield struct {
	Identifier         string         `json:"identifier"`
	ProviderID         string         `json:"provider_id"`
	ProviderResourceID string         `json:"provider_resource_id,omitempty"`
	Params             map[string]any `json:"params,omitempty"`
}

// Violation is reported by a shield when content is unsafe.
type Violation struct {
	ViolationLevel string         `json:"violation_level"`
	UserMessage    string         `json:"user_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type runShieldResponse struct {
	Violation *Violation `json:"violation"`
}

func (c *Client) ListShields(ctx context.Context) ([]Shield, error) {
	shields, err := list[Shield](ctx, c, "/shields", nil)
	if err != nil {
		return nil, fmt.Errorf("llamastack: list shields: %w", err)
	}
	return shields, nil
}

// RegisterShield registers shieldID backed by providerShieldID (usually a
// guard model) on providerID.
func (c *Client) RegisterShield(ctx context.Context, shieldID, providerID, providerShieldID string) (Shield, error) {
	if strings.TrimSpace(shieldID) == "" {
		return Shield{}, errors.New("llamastack: shield id is required")
	}
	body := map[string]any{
		"shield_id":          shieldID,
		"provider_id":        providerID,
		"provider_shield_id": providerShieldID,
	}
	var out Shield
	if err := c.do(ctx, http.MethodPost, "/shields", nil, body, &out); err != nil {
		return Shield{}, fmt.Errorf("llamastack: register shield %q: %w", shieldID, err)
	}
	return out, nil
}

// RunShield runs messages through a shield. A nil Violation means safe.
func (c *Client) RunShield(ctx context.Context, shieldID string, messages []domain.ChatMessage) (*Violation, error) {
	if strings.TrimSpace(shieldID) == "" {
		return nil, errors.New("llamastack: shield id is required")
	}
	body := map[string]any{
		"shield_id": shieldID,
		"messages":  messages,
		"params":    map[string]any{},
	}
	var out runShieldResponse
	if err := c.do(ctx, http.MethodPost, "/safety/run-shield", nil, body, &out); err != nil {
		return nil, fmt.Errorf("llamastack: run shield %q: %w", shieldID, err)
	}
	return out.Violation, nil
}

// Moderate reports whether the shield flags input as a user message.
func (c *Client) Moderate(ctx context.Context, shieldID, input string) (bool, error) {
	v, err := c.RunShield(ctx, shieldID, []domain.ChatMessage{{Role: domain.RoleUser, Content: input}})
	if err != nil {
		return false, err
	}
	return v != nil && v.ViolationLevel != "" && v.ViolationLevel != "info", nil
}
