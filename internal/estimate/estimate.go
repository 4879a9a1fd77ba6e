// Package estimate approximates token usage of a conversation against a model's budget.
package estimate

import (
	"unicode"

	"github.com/xiaot623/viper/internal/domain"
)

// MessageOverhead is the per-message framing cost added by Context.
const MessageOverhead = 4

// Tokens estimates the token count of text: one token per CJK rune plus
// one token per four other runes, rounded up.
func Tokens(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+3)/4
}

// Context estimates the tokens used by a message list.
func Context(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += MessageOverhead + Tokens(m.Content)
	}
	return total
}

// Percent returns tokens as a share of budget, clamped to [0, 100].
// A non-positive budget yields 0.
func Percent(tokens, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	p := float64(tokens) / float64(budget) * 100
	return min(max(p, 0), 100)
}

// Usage is the context estimate for one session.
type Usage struct {
	Tokens  int     `json:"tokens"`
	Budget  int     `json:"budget"`
	Percent float64 `json:"percent"`
}

// ForMessages builds a Usage for messages against budget.
func ForMessages(messages []domain.Message, budget int) Usage {
	tokens := Context(messages)
	return Usage{Tokens: tokens, Budget: budget, Percent: Percent(tokens, budget)}
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // extension A
		return true
	case r >= 0xF900 && r <= 0xFAFF: // compatibility ideographs
		return true
	}
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
