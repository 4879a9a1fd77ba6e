// Package registry exposes model configurations and the current selection.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/xiaot623/viper/internal/domain"
)

// Registry is the read side used by the orchestrator. Returned values are
// copies; edits to the source only affect later calls.
type Registry interface {
	// Selected returns the selected model, or nil when none is selected.
	Selected(ctx context.Context) (*domain.ModelConfig, error)
	List(ctx context.Context) ([]domain.ModelConfig, error)
}

var (
	_ Registry = (*Static)(nil)
	_ Registry = (*File)(nil)
	_ Registry = (*Remote)(nil)
)

// Static is an in-memory registry.
type Static struct {
	mu       sync.RWMutex
	models   []domain.ModelConfig
	selected string
}

// NewStatic creates a registry holding models with selected chosen by id or name.
func NewStatic(models []domain.ModelConfig, selected string) *Static {
	return &Static{models: cloneModels(models), selected: selected}
}

// Selected implements Registry.
func (s *Static) Selected(_ context.Context) (*domain.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findModel(s.models, s.selected), nil
}

// List implements Registry.
func (s *Static) List(_ context.Context) ([]domain.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneModels(s.models), nil
}

// Select changes the selected model.
func (s *Static) Select(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if findModel(s.models, key) == nil {
		return false
	}
	s.selected = key
	return true
}

// Put adds or replaces a model by name.
func (s *Static) Put(m domain.ModelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.models {
		if s.models[i].Name == m.Name {
			s.models[i] = cloneModel(m)
			return
		}
	}
	s.models = append(s.models, cloneModel(m))
}

// findModel returns a copy of the model whose id or name matches key.
// An empty key selects nothing.
func findModel(models []domain.ModelConfig, key string) *domain.ModelConfig {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	for _, m := range models {
		if m.ID == key || m.Name == key {
			c := cloneModel(m)
			return &c
		}
	}
	return nil
}

func cloneModel(m domain.ModelConfig) domain.ModelConfig {
	if m.Temperature != nil {
		t := *m.Temperature
		m.Temperature = &t
	}
	if m.MaxTokens != nil {
		n := *m.MaxTokens
		m.MaxTokens = &n
	}
	return m
}

func cloneModels(models []domain.ModelConfig) []domain.ModelConfig {
	out := make([]domain.ModelConfig, len(models))
	for i, m := range models {
		out[i] = cloneModel(m)
	}
	return out
}
