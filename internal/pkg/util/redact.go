// Package util holds small shared helpers.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RedactPII returns a SHA-256 hash of the input string.
// It is used to avoid logging raw personally identifiable information.
func RedactPII(s string) string {
	if s == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// MaskRecipient keeps just enough of a payout identifier to recognize
// it in logs: the first two and last two characters of the local part.
func MaskRecipient(s string) string {
	if s == "" {
		return ""
	}
	local := s
	domain := ""
	if at := strings.IndexByte(s, '@'); at >= 0 {
		local, domain = s[:at], s[at:]
	}
	if len(local) <= 4 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-4) + local[len(local)-2:] + domain
}
