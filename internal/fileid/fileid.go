// Package fileid provides deterministic passage IDs derived from their provenance.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const prefix = "psg:"

// PassageID returns a stable ID for the passage at (filename, page, ordinal).
// Re-chunking an unchanged document yields the same IDs.
func PassageID(filename string, page, ordinal int) string {
	hash := sha256.Sum256([]byte(filename))
	return fmt.Sprintf("%s%s:%d:%d", prefix, hex.EncodeToString(hash[:8]), page, ordinal)
}
