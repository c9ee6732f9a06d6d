package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Redact returns a deterministic SHA-256 hash of the input string.
// It is used to avoid logging raw PII while still allowing correlation of logs.
func Redact(input string) string {
	if input == "" {
		return ""
	}
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// RedactEmail keeps the first character and the domain: a***@example.com
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return Redact(email)
	}
	return email[:1] + "***" + email[at:]
}

// MaskTail shows only the last n characters of a token or address
func MaskTail(value string, n int) string {
	if len(value) <= n {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 4) + value[len(value)-n:]
}
