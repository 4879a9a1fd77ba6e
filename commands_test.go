package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/viper/internal/adapter/persistence"
	"github.com/xiaot623/viper/internal/config"
)

func withConfig(t *testing.T, env map[string]string) {
	t.Helper()
	loaded, err := config.Parse(env)
	require.NoError(t, err)
	old := cfg
	cfg = loaded
	t.Cleanup(func() { cfg = old })
}

func TestNewRegistryMockMode(t *testing.T) {
	withConfig(t, map[string]string{"VIPER_MODE": "mock"})

	reg, err := newRegistry(context.Background(), nil, newLogger())
	require.NoError(t, err)
	selected, err := reg.Selected(context.Background())
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, mockBaseURL, selected.BaseURL)
}

func TestNewRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected: local\nmodels:\n  - name: local\n    base_url: http://localhost:11434\n"), 0o644))
	withConfig(t, map[string]string{"VIPER_MODELS_FILE": path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg, err := newRegistry(ctx, nil, newLogger())
	require.NoError(t, err)
	selected, err := reg.Selected(ctx)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "http://localhost:11434", selected.BaseURL)
}

func TestNewPersistence(t *testing.T) {
	withConfig(t, map[string]string{})
	svc, client := newPersistence(newLogger())
	assert.IsType(t, &persistence.Memory{}, svc)
	assert.Nil(t, client)

	withConfig(t, map[string]string{"VIPER_BACKEND_URL": "http://localhost:8080"})
	svc, client = newPersistence(newLogger())
	assert.NotNil(t, client)
	assert.Same(t, client, svc)
}
