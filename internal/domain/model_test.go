package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestClampTemperature(t *testing.T) {
	assert.Equal(t, 1.0, ClampTemperature(nil))
	assert.Equal(t, 1.0, ClampTemperature(ptr(math.NaN())))
	assert.Equal(t, 0.0, ClampTemperature(ptr(-3.0)))
	assert.Equal(t, 2.0, ClampTemperature(ptr(7.5)))
	assert.Equal(t, 0.7, ClampTemperature(ptr(0.7)))
}

func TestClampMaxTokens(t *testing.T) {
	assert.Equal(t, 1024, ClampMaxTokens(nil))
	assert.Equal(t, 1024, ClampMaxTokens(ptr(0)))
	assert.Equal(t, 1024, ClampMaxTokens(ptr(-5)))
	assert.Equal(t, 200000, ClampMaxTokens(ptr(999999)))
	assert.Equal(t, 4096, ClampMaxTokens(ptr(4096)))
}

func TestRequestModel(t *testing.T) {
	assert.Equal(t, "deepseek-chat", ModelConfig{Name: "DeepSeek", ModelID: " deepseek-chat "}.RequestModel())
	assert.Equal(t, "gpt-4o", ModelConfig{Name: "gpt-4o"}.RequestModel())
}

func TestParseHeaders(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		h, err := ModelConfig{Headers: "  "}.ParseHeaders()
		require.NoError(t, err)
		assert.Empty(t, h)
	})

	t.Run("scalars are stringified", func(t *testing.T) {
		h, err := ModelConfig{Headers: `{"X-Org":"acme","X-Retry":3,"X-Debug":true,"X-Skip":null}`}.ParseHeaders()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"X-Org": "acme", "X-Retry": "3", "X-Debug": "true"}, h)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ModelConfig{Headers: `{"X-Org":`}.ParseHeaders()
		assert.Error(t, err)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ModelConfig{Headers: `["a","b"]`}.ParseHeaders()
		assert.Error(t, err)
		_, err = ModelConfig{Headers: `null`}.ParseHeaders()
		assert.Error(t, err)
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		_, err := ModelConfig{Headers: `{"a":"b"} junk`}.ParseHeaders()
		assert.Error(t, err)
		_, err = ModelConfig{Headers: `{"a":"b"}{"c":"d"}`}.ParseHeaders()
		assert.Error(t, err)
		h, err := ModelConfig{Headers: "{\"a\":\"b\"}\n"}.ParseHeaders()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "b"}, h)
	})

	t.Run("nested values rejected", func(t *testing.T) {
		_, err := ModelConfig{Headers: `{"X-Obj":{"a":1}}`}.ParseHeaders()
		assert.Error(t, err)
	})
}
