// Package fingerprint derives stable cache keys from message text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const separator = "\x1f"

// Normalize canonicalises text before hashing: Unicode NFC, LF line endings
// and no surrounding whitespace. Case and inner whitespace are significant.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// Of returns the hex SHA-256 digest of the normalised text.
func Of(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Combine fingerprints several fields at once. Each part is normalised and
// the parts are joined with a unit separator so ("ab","c") and ("a","bc")
// never collide.
func Combine(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, separator)))
	return hex.EncodeToString(sum[:])
}
