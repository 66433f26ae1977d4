package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment (matches DB ENUM)
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is the gateway transaction backing exactly one purchase
type Payment struct {
	ID               string          `json:"id"`
	PurchaseID       string          `json:"purchase_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Provider         string          `json:"provider"`
	Reference        string          `json:"reference"`
	AccessCode       string          `json:"access_code,omitempty"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	Channel          string          `json:"channel,omitempty"`
	Status           PaymentStatus   `json:"status"`
	GatewayResponse  map[string]any  `json:"gateway_response,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	NeedsRefund      bool            `json:"needs_refund"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewPayment creates a pending payment for the purchase total
func NewPayment(purchase *Purchase, provider string, now time.Time) *Payment {
	return &Payment{
		ID:         NewPaymentID(),
		PurchaseID: purchase.ID,
		Amount:     purchase.Total,
		Currency:   purchase.Currency,
		Provider:   provider,
		Reference:  NewPaymentReference(purchase.ID),
		Status:     PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetCheckout stores what the buyer needs to complete payment at the provider
func (p *Payment) SetCheckout(authorizationURL, accessCode string, now time.Time) {
	p.AuthorizationURL = authorizationURL
	p.AccessCode = accessCode
	p.UpdatedAt = now
}

// Complete marks the payment as completed
func (p *Payment) Complete(channel string, response map[string]any, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return fmt.Errorf("%w: payment %s is %s, want pending", ErrInvalidStatusTransition, p.Reference, p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.Channel = channel
	p.GatewayResponse = response
	p.FailureReason = ""
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// CaptureLate records a charge that succeeded after the payment was failed by
// reservation expiry or cancellation
func (p *Payment) CaptureLate(channel string, response map[string]any, now time.Time) error {
	if p.Status != PaymentStatusFailed {
		return fmt.Errorf("%w: payment %s is %s, want failed", ErrInvalidStatusTransition, p.Reference, p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.Channel = channel
	p.GatewayResponse = response
	p.FailureReason = ""
	p.FailedAt = nil
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// Fail marks the payment as failed
func (p *Payment) Fail(reason string, response map[string]any, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return fmt.Errorf("%w: payment %s is %s, want pending", ErrInvalidStatusTransition, p.Reference, p.Status)
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	if response != nil {
		p.GatewayResponse = response
	}
	p.FailedAt = &now
	p.UpdatedAt = now
	return nil
}

// FlagRefund records that money was captured for a purchase that could not be honoured
func (p *Payment) FlagRefund(reason string, now time.Time) {
	p.NeedsRefund = true
	p.FailureReason = reason
	p.UpdatedAt = now
}

// IsFinal returns true if the payment is in a final state
func (p *Payment) IsFinal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}
