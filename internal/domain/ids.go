package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RandomHex returns n upper-case hex characters taken from a random UUID (n <= 32)
func RandomHex(n int) string {
	h := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(h[:n])
}

// NewPurchaseID returns an order id such as ORD-1A2B3C4D5E6F
func NewPurchaseID() string {
	return "ORD-" + RandomHex(12)
}

// NewPaymentID returns a payment id such as PAY-1A2B3C4D5E6F
func NewPaymentID() string {
	return "PAY-" + RandomHex(12)
}

// NewTicketID returns a ticket number such as TKT-1A2B3C4D5E6F7A8B
func NewTicketID() string {
	return "TKT-" + RandomHex(16)
}

// NewPaymentReference returns a gateway reference unique per attempt: CAFA-{purchase}-{6 hex}
func NewPaymentReference(purchaseID string) string {
	return "CAFA-" + purchaseID + "-" + RandomHex(6)
}

// NewVerificationReference returns a bank verification reference such as VER-1A2B3C4D5E6F
func NewVerificationReference() string {
	return "VER-" + RandomHex(12)
}
