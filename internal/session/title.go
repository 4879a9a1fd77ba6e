package session

import (
	"strings"
	"unicode/utf8"
)

// MaxTitleRunes is the longest derived title before truncation.
const MaxTitleRunes = 36

// DeriveTitle builds a session title from the first user message: the first
// line with whitespace collapsed, truncated to MaxTitleRunes runes plus an
// ellipsis. It returns "" when text has nothing usable.
func DeriveTitle(text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= MaxTitleRunes {
		return title
	}
	return string([]rune(title)[:MaxTitleRunes]) + "…"
}
