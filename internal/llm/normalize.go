package llm

import (
	"regexp"
	"strings"
)

var (
	thinkBlock  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	answerLabel = regexp.MustCompile(`(?i)^\s*answer\s*:\s*`)
)

// Normalize cleans raw model output for display: reasoning blocks and a
// leading "Answer:" label are removed and whitespace is trimmed.
func Normalize(raw string) string {
	s := thinkBlock.ReplaceAllString(raw, "")
	// An unterminated block means the model ran out of tokens while thinking.
	if i := strings.Index(strings.ToLower(s), "<think>"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	s = answerLabel.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
