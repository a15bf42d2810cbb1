package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ISO formats t the way the sheet stores timestamps.
func ISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseBool accepts the usual English spellings plus Bangla "হ্যাঁ".
func ParseBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "yes", "true", "1", "y", "on", "হ্যাঁ":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACEqual checks token against the HMAC of msg in constant time.
func HMACEqual(secret, msg, token string) bool {
	return hmac.Equal([]byte(HMACSHA256Hex(secret, msg)), []byte(token))
}
