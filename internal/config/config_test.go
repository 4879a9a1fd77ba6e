package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout)
	assert.Empty(t, cfg.BackendURL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"VIPER_HTTP_ADDR":       "127.0.0.1:9000",
		"VIPER_BACKEND_URL":     "http://localhost:9000",
		"VIPER_MODELS_FILE":     "/etc/viper/models.yaml",
		"VIPER_REQUEST_TIMEOUT": "5s",
		"VIPER_LOG_LEVEL":       "DEBUG",
		"VIPER_MODE":            "MOCK",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:9000", cfg.BackendURL)
	assert.Equal(t, "/etc/viper/models.yaml", cfg.ModelsFile)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "MOCK", cfg.Mode)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse(map[string]string{"VIPER_REQUEST_TIMEOUT": "soon"})
	assert.Error(t, err)

	_, err = Parse(map[string]string{"VIPER_SYNC_TIMEOUT": "0s"})
	assert.Error(t, err)
}
