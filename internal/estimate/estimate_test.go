package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/viper/internal/domain"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one rune", "a", 1},
		{"four runes", "abcd", 1},
		{"five runes", "abcde", 2},
		{"cjk only", "你好世界", 4},
		{"mixed", "你好 hello", 2 + 2},
		{"kana", "こんにちは", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokens(tt.text))
		})
	}
}

func TestContext(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
		{Role: domain.RoleAssistant, Content: "Hello there"},
	}
	// (4 + 1) + (4 + 3)
	assert.Equal(t, 12, Context(msgs))
	assert.Equal(t, 0, Context(nil))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100.0, Percent(1024, 1024))
	assert.Equal(t, 0.0, Percent(0, 1024))
	assert.Equal(t, 0.0, Percent(10, 0))
	assert.Equal(t, 0.0, Percent(10, -5))
	assert.Equal(t, 100.0, Percent(5000, 1024))
	assert.InDelta(t, 50.0, Percent(512, 1024), 1e-9)
}

func TestForMessages(t *testing.T) {
	u := ForMessages([]domain.Message{{Content: "abcd"}}, 10)
	assert.Equal(t, Usage{Tokens: 5, Budget: 10, Percent: 50}, u)
}
