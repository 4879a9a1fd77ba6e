package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/viper/internal/domain"
)

const (
	selectedModelKey = "selectedModelName"
	sourceCustom     = "custom"
)

type selectedModel struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// ListModels returns all models and the selected model's name.
func (s *Service) ListModels(ctx context.Context) (*domain.ModelsResponse, error) {
	models, err := s.store.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	selected, err := s.selectedName(ctx, models)
	if err != nil {
		return nil, err
	}
	return &domain.ModelsResponse{Models: models, SelectedModel: selected}, nil
}

// CreateModel stores a model configuration. Missing ids are generated and
// the source defaults to "custom".
func (s *Service) CreateModel(ctx context.Context, m domain.ModelConfig) (*domain.ModelConfig, error) {
	if err := validateModel(&m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Source == "" {
		m.Source = sourceCustom
	}
	if err := s.store.CreateModel(ctx, &m, s.now()); err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return &m, nil
}

// UpdateModel applies a partial update to a model.
func (s *Service) UpdateModel(ctx context.Context, id string, patch domain.ModelPatch) (*domain.ModelConfig, error) {
	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if m == nil {
		return nil, ErrModelNotFound
	}
	patch.Apply(m)
	if err := validateModel(m); err != nil {
		return nil, err
	}
	if err := s.store.UpdateModel(ctx, m, s.now()); err != nil {
		return nil, fmt.Errorf("failed to update model: %w", err)
	}
	return m, nil
}

// DeleteModel removes a model. Unknown ids are ignored.
func (s *Service) DeleteModel(ctx context.Context, id string) error {
	if err := s.store.DeleteModel(ctx, id); err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

// SelectModel records the selected model.
func (s *Service) SelectModel(ctx context.Context, req domain.SelectModelRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	data, err := json.Marshal(selectedModel{Name: name, ID: req.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	if err := s.store.SetSetting(ctx, selectedModelKey, string(data)); err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// Bootstrap returns everything a client needs at startup.
func (s *Service) Bootstrap(ctx context.Context) (*domain.BootstrapResponse, error) {
	models, err := s.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := s.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &domain.BootstrapResponse{
		Models:        models.Models,
		Chats:         chats,
		SelectedModel: models.SelectedModel,
	}
	if len(chats) > 0 {
		resp.CurrentChatID = chats[0].ID
	}
	return resp, nil
}

// selectedName resolves the stored selection. A selection saved with an id
// follows renames of that model.
func (s *Service) selectedName(ctx context.Context, models []domain.ModelConfig) (string, error) {
	raw, ok, err := s.store.GetSetting(ctx, selectedModelKey)
	if err != nil {
		return "", fmt.Errorf("failed to get selection: %w", err)
	}
	if !ok {
		return "", nil
	}
	var sel selectedModel
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		// Older rows stored the bare name.
		return raw, nil
	}
	if sel.ID != "" {
		for _, m := range models {
			if m.ID == sel.ID {
				return m.Name, nil
			}
		}
	}
	return sel.Name, nil
}

func validateModel(m *domain.ModelConfig) error {
	m.Name = strings.TrimSpace(m.Name)
	m.BaseURL = strings.TrimSpace(m.BaseURL)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if m.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidInput)
	}
	if _, err := m.ParseHeaders(); err != nil {
		return fmt.Errorf("%w: headers must be a JSON object: %v", ErrInvalidInput, err)
	}
	return nil
}
