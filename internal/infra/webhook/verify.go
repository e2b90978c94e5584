package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "Linear-Signature"

// ErrInvalidSignature is the only detail a rejected sender ever sees.
var ErrInvalidSignature = errors.New("invalid signature")

// VerifySignature checks the signature against the exact wire bytes of the
// body using HMAC SHA-256 and constant-time comparison. The body must not be
// re-encoded before this call.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	received, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(received) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(received, mac.Sum(nil))
}

// Sign returns the signature a sender would attach to payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignatureHeader validates the Linear-Signature header format.
func ValidateSignatureHeader(header string) error {
	if header == "" {
		return fmt.Errorf("missing %s header", SignatureHeader)
	}
	if _, err := hex.DecodeString(strings.TrimSpace(header)); err != nil {
		return fmt.Errorf("invalid signature format, expected hex digest")
	}
	return nil
}
