// Package persistence is the client side of the persistence backend.
package persistence

import (
	"context"
	"errors"

	"github.com/xiaot623/viper/internal/domain"
)

// ErrNotFound is returned when the backend reports a missing chat or message.
var ErrNotFound = errors.New("not found")

// Service is the persistence contract the session store relies on.
type Service interface {
	CreateSession(ctx context.Context, title string) (*domain.ChatSession, error)
	PatchSession(ctx context.Context, id string, patch domain.SessionPatch) error
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error
	PatchMessage(ctx context.Context, sessionID, messageID string, patch domain.MessagePatch) error
	ListSessions(ctx context.Context) ([]domain.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// Ensure Client implements Service interface.
var _ Service = (*Client)(nil)
