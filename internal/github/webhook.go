package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ValidatePayloadSignature checks a GitHub x-hub-signature-256 header value
// against the shared webhook secret. Comparison is constant time.
func ValidatePayloadSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	expected := signature[len("sha256="):]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	calc := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(calc))
}
