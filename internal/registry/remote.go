package registry

import (
	"context"
	"fmt"

	"github.com/xiaot623/viper/internal/domain"
)

// BootstrapSource returns the backend's startup state.
type BootstrapSource interface {
	Bootstrap(ctx context.Context) (*domain.BootstrapResponse, error)
}

// Remote reads models and the selection from the persistence backend on every call.
type Remote struct {
	source BootstrapSource
}

// NewRemote creates a registry backed by source.
func NewRemote(source BootstrapSource) *Remote {
	return &Remote{source: source}
}

// Selected implements Registry.
func (r *Remote) Selected(ctx context.Context) (*domain.ModelConfig, error) {
	boot, err := r.source.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return findModel(boot.Models, boot.SelectedModel), nil
}

// List implements Registry.
func (r *Remote) List(ctx context.Context) ([]domain.ModelConfig, error) {
	boot, err := r.source.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return cloneModels(boot.Models), nil
}
