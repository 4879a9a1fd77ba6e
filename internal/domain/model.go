package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultCompletionsPath = "/v1/chat/completions"
	DefaultTemperature     = 1.0
	MinTemperature         = 0.0
	MaxTemperature         = 2.0
	DefaultMaxTokens       = 1024
	MinMaxTokens           = 1
	MaxMaxTokens           = 200000
)

// ModelConfig holds the connection parameters of one completion endpoint.
// The orchestrator copies it by value when a request starts; edits only
// affect later requests.
type ModelConfig struct {
	ID              string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string   `json:"name" yaml:"name" validate:"required,max=128"`
	BaseURL         string   `json:"base_url" yaml:"base_url"`
	APIKey          string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	ModelID         string   `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	CompletionsPath string   `json:"completions_path,omitempty" yaml:"completions_path,omitempty"`
	Headers         string   `json:"headers,omitempty" yaml:"headers,omitempty"` // raw JSON object text
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens       *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=200000"`
	Source          string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// RequestModel returns the model identifier sent upstream.
func (c ModelConfig) RequestModel() string {
	if id := strings.TrimSpace(c.ModelID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Name)
}

// EffectiveTemperature returns the configured temperature clamped to [0, 2].
func (c ModelConfig) EffectiveTemperature() float64 {
	return ClampTemperature(c.Temperature)
}

// EffectiveMaxTokens returns the configured max tokens clamped to [1, 200000].
func (c ModelConfig) EffectiveMaxTokens() int {
	return ClampMaxTokens(c.MaxTokens)
}

// ClampTemperature clamps t to [0, 2]. Missing or NaN values yield the default.
func ClampTemperature(t *float64) float64 {
	if t == nil || math.IsNaN(*t) {
		return DefaultTemperature
	}
	return min(max(*t, MinTemperature), MaxTemperature)
}

// ClampMaxTokens clamps n to [1, 200000]. Missing or non-positive values yield the default.
func ClampMaxTokens(n *int) int {
	if n == nil || *n <= 0 {
		return DefaultMaxTokens
	}
	return min(max(*n, MinMaxTokens), MaxMaxTokens)
}

// ParseHeaders decodes the raw headers text into a header map.
// Empty text yields no headers. Null values are dropped; strings, numbers
// and booleans are stringified; anything else is rejected.
func (c ModelConfig) ParseHeaders() (map[string]string, error) {
	text := strings.TrimSpace(c.Headers)
	if text == "" {
		return map[string]string{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode headers: unexpected data after object")
	}
	if raw == nil {
		return nil, fmt.Errorf("headers must be an object")
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("header %q has a non-scalar value", k)
		}
	}
	return out, nil
}
