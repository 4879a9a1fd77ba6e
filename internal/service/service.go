// Package service implements the persistence backend and completion proxy.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/observability"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrModelNotFound   = errors.New("model not found")
	// ErrInvalidInput wraps request problems the caller can fix.
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the storage contract of the backend.
type Store interface {
	Ping(ctx context.Context) error

	CreateChat(ctx context.Context, chat *domain.ChatSession) error
	GetChat(ctx context.Context, id string) (*domain.ChatSession, error)
	ListChats(ctx context.Context) ([]domain.ChatSession, error)
	UpdateChat(ctx context.Context, id string, title *string, updatedAt time.Time) error
	DeleteChat(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, chatID string, msg *domain.Message) error
	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	UpdateMessage(ctx context.Context, chatID, messageID string, patch domain.MessagePatch) error

	CreateModel(ctx context.Context, m *domain.ModelConfig, now time.Time) error
	GetModel(ctx context.Context, id string) (*domain.ModelConfig, error)
	ListModels(ctx context.Context) ([]domain.ModelConfig, error)
	UpdateModel(ctx context.Context, m *domain.ModelConfig, now time.Time) error
	DeleteModel(ctx context.Context, id string) error

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Service holds the backend's business logic.
type Service struct {
	store      Store
	dispatcher llm.Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new service.
func New(store Store, dispatcher llm.Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Health checks the store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
