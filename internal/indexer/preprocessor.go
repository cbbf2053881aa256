package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes page text for chunking: joins words hyphenated across line
// breaks, trims and collapses whitespace.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "-\r\n", "")
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
