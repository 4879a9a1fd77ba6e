package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/repository"
)

// CreateChat creates a chat. A blank title becomes the default title.
func (s *Service) CreateChat(ctx context.Context, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	now := s.now()
	chat := &domain.ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

// ListChats returns all chats, most recently updated first.
func (s *Service) ListChats(ctx context.Context) ([]domain.ChatSession, error) {
	chats, err := s.store.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// UpdateChat renames a chat and refreshes its update time.
func (s *Service) UpdateChat(ctx context.Context, id string, patch domain.SessionPatch) error {
	updatedAt := s.now()
	if patch.UpdatedAt != nil {
		updatedAt = patch.UpdatedAt.UTC()
	}
	if err := s.store.UpdateChat(ctx, id, patch.Title, updatedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("failed to update chat: %w", err)
	}
	return nil
}

// DeleteChat deletes a chat and its messages.
func (s *Service) DeleteChat(ctx context.Context, id string) error {
	if err := s.store.DeleteChat(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// ListMessages returns a chat's messages in creation order.
// An unknown chat has no messages.
func (s *Service) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// CreateMessage stores a client-identified message under chatID.
func (s *Service) CreateMessage(ctx context.Context, chatID string, msg domain.Message) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return ErrChatNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if err := s.store.CreateMessage(ctx, chatID, &msg); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// UpdateMessage applies patch to a message.
func (s *Service) UpdateMessage(ctx context.Context, chatID, messageID string, patch domain.MessagePatch) error {
	if err := s.store.UpdateMessage(ctx, chatID, messageID, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}
