package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/viper/internal/domain"
)

// Memory is an in-process Service. It backs offline chat and tests.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]domain.ChatSession
	messages map[string][]domain.Message
}

// Ensure Memory implements Service interface.
var _ Service = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]domain.ChatSession),
		messages: make(map[string][]domain.Message),
	}
}

// CreateSession implements Service.
func (m *Memory) CreateSession(_ context.Context, title string) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	s := domain.ChatSession{ID: uuid.New().String(), Title: title, CreatedAt: now, UpdatedAt: now}
	m.sessions[s.ID] = s
	return &s, nil
}

// PatchSession implements Service.
func (m *Memory) PatchSession(_ context.Context, id string, patch domain.SessionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	s.UpdatedAt = time.Now().UTC()
	if patch.UpdatedAt != nil {
		s.UpdatedAt = *patch.UpdatedAt
	}
	m.sessions[id] = s
	return nil
}

// DeleteSession implements Service.
func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// AppendMessage implements Service.
func (m *Memory) AppendMessage(_ context.Context, sessionID string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("chat %s: %w", sessionID, ErrNotFound)
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return nil
}

// PatchMessage implements Service.
func (m *Memory) PatchMessage(_ context.Context, sessionID, messageID string, patch domain.MessagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[sessionID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if patch.Content != nil {
			msgs[i].Content = *patch.Content
		}
		if patch.Status != nil {
			msgs[i].Status = *patch.Status
		}
		if patch.Error != nil {
			msgs[i].Error = *patch.Error
		}
		return nil
	}
	return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
}

// ListSessions implements Service.
func (m *Memory) ListSessions(_ context.Context) ([]domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ChatSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// ListMessages implements Service.
func (m *Memory) ListMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("chat %s: %w", sessionID, ErrNotFound)
	}
	return append([]domain.Message(nil), m.messages[sessionID]...), nil
}
