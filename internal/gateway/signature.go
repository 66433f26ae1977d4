package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "X-Paystack-Signature"

// Sign returns the hex HMAC-SHA512 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return domain.ErrInvalidSignature
	}
	expected := []byte(Sign(secret, body))
	if !hmac.Equal(expected, []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return domain.ErrInvalidSignature
	}
	return nil
}
