package search

import (
	"strings"
	"unicode/utf8"
)

// Snippet returns at most maxLen bytes of text, centred on the first query term
// found in it, with "..." marking cut ends. It never splits a UTF-8 sequence.
func Snippet(text, query string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	lower := strings.ToLower(text)
	start := 0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 {
			start = i - maxLen/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(text)-maxLen {
		start = len(text) - maxLen
	}
	end := start + maxLen
	for start > 0 && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
