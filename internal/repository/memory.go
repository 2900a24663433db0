package repository

import (
	"context"
	"fmt"
	"sync"

	"fantaco-agents/internal/domain"
)

// Memory is an in-process ReadWriter for local runs without a DynamoDB table.
// Sessions live until the process exits.
type Memory struct {
	mu       sync.Mutex
	turns    map[string][]domain.Turn
	sessions map[string]domain.SessionMeta
}

func NewMemory() *Memory {
	return &Memory{
		turns:    make(map[string][]domain.Turn),
		sessions: make(map[string]domain.SessionMeta),
	}
}

func (m *Memory) GetSessionTurnCount(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID].Turns, nil
}

func (m *Memory) GetHistory(_ context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.turns[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (m *Memory) SaveCompletedTurn(_ context.Context, sessionID, userID, question, answer string, turns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.sessions[sessionID].Turns; prev != turns-1 {
		return fmt.Errorf("repository: SaveCompletedTurn: %w", domain.ErrSessionConflict)
	}
	m.turns[sessionID] = append(m.turns[sessionID], NewTurn(sessionID, userID, question, answer))
	m.sessions[sessionID] = NewSessionMeta(sessionID, userID, turns)
	return nil
}
