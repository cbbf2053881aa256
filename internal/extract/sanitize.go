package extract

import (
	"strings"
	"unicode/utf8"
)

// sanitize replaces invalid UTF-8 and NUL bytes that some PDF encoders emit.
func sanitize(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	return strings.ReplaceAll(text, "\x00", "")
}
