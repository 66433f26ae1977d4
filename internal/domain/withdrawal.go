package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the status of a withdrawal request (matches DB ENUM)
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
)

// ReversedReason is recorded when a completed or processing transfer is reversed
const ReversedReason = "Transfer was reversed"

// WithdrawalRequest is one payout request from an organizer to a verified payment profile
type WithdrawalRequest struct {
	ID                string           `json:"id"`
	OrganizerID       string           `json:"organizer_id"`
	PaymentProfileID  string           `json:"payment_profile_id"`
	RequestedAmount   decimal.Decimal  `json:"requested_amount"`
	TransferFee       decimal.Decimal  `json:"transfer_fee"`
	FinalAmount       decimal.Decimal  `json:"final_amount"`
	Status            WithdrawalStatus `json:"status"`
	TransferCode      string           `json:"transfer_code,omitempty"`
	TransferReference string           `json:"transfer_reference,omitempty"`
	TransferResponse  map[string]any   `json:"transfer_response,omitempty"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	AdminNotes        string           `json:"admin_notes,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewWithdrawalRequest creates a pending request with its fee and final amount computed
func NewWithdrawalRequest(organizerID, profileID string, amount decimal.Decimal, fees TransferFeePolicy, now time.Time) *WithdrawalRequest {
	w := &WithdrawalRequest{
		ID:               uuid.New().String(),
		OrganizerID:      organizerID,
		PaymentProfileID: profileID,
		RequestedAmount:  RoundMoney(amount),
		Status:           WithdrawalStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	w.Recompute(fees)
	return w
}

// Recompute sets transfer_fee from the policy and final_amount = requested - fee
func (w *WithdrawalRequest) Recompute(fees TransferFeePolicy) {
	w.TransferFee = fees.Fee(w.RequestedAmount)
	w.FinalAmount = w.RequestedAmount.Sub(w.TransferFee)
}

// IsActive returns true while the request still holds ledger entries
func (w *WithdrawalRequest) IsActive() bool {
	return w.Status == WithdrawalStatusPending || w.Status == WithdrawalStatusProcessing
}

// StartProcessing records an initiated transfer
func (w *WithdrawalRequest) StartProcessing(transferCode, reference string, response map[string]any, now time.Time) error {
	if w.Status != WithdrawalStatusPending {
		return fmt.Errorf("%w: withdrawal %s is %s, want pending", ErrInvalidStatusTransition, w.ID, w.Status)
	}
	w.Status = WithdrawalStatusProcessing
	w.TransferCode = transferCode
	w.TransferReference = reference
	w.TransferResponse = response
	w.ProcessedAt = &now
	w.UpdatedAt = now
	return nil
}

// AttachTransfer records the provider's transfer code on a claimed request
func (w *WithdrawalRequest) AttachTransfer(transferCode string, response map[string]any, now time.Time) error {
	if w.Status != WithdrawalStatusProcessing {
		return fmt.Errorf("%w: withdrawal %s is %s, want processing", ErrInvalidStatusTransition, w.ID, w.Status)
	}
	w.TransferCode = transferCode
	if response != nil {
		w.TransferResponse = response
	}
	w.UpdatedAt = now
	return nil
}

// Reopen moves a failed request back to processing when the provider reports
// that its transfer went through after all. Reversed transfers stay failed.
func (w *WithdrawalRequest) Reopen(now time.Time) error {
	if w.Status != WithdrawalStatusFailed || w.FailureReason == ReversedReason {
		return fmt.Errorf("%w: cannot reopen %s withdrawal %s", ErrInvalidStatusTransition, w.Status, w.ID)
	}
	w.Status = WithdrawalStatusProcessing
	w.FailureReason = ""
	w.UpdatedAt = now
	return nil
}

// Complete marks a processing transfer as paid out
func (w *WithdrawalRequest) Complete(response map[string]any, now time.Time) error {
	if w.Status != WithdrawalStatusProcessing {
		return fmt.Errorf("%w: withdrawal %s is %s, want processing", ErrInvalidStatusTransition, w.ID, w.Status)
	}
	w.Status = WithdrawalStatusCompleted
	if response != nil {
		w.TransferResponse = response
	}
	w.CompletedAt = &now
	w.UpdatedAt = now
	return nil
}

// Fail marks an active request as failed
func (w *WithdrawalRequest) Fail(reason string, response map[string]any, now time.Time) error {
	if !w.IsActive() {
		return fmt.Errorf("%w: withdrawal %s is %s", ErrInvalidStatusTransition, w.ID, w.Status)
	}
	w.markFailed(reason, response, now)
	return nil
}

// Reverse fails a processing or completed transfer that the provider reversed
func (w *WithdrawalRequest) Reverse(response map[string]any, now time.Time) error {
	if w.Status != WithdrawalStatusProcessing && w.Status != WithdrawalStatusCompleted {
		return fmt.Errorf("%w: cannot reverse %s withdrawal %s", ErrInvalidStatusTransition, w.Status, w.ID)
	}
	w.markFailed(ReversedReason, response, now)
	w.CompletedAt = nil
	return nil
}

func (w *WithdrawalRequest) markFailed(reason string, response map[string]any, now time.Time) {
	w.Status = WithdrawalStatusFailed
	w.FailureReason = reason
	if response != nil {
		w.TransferResponse = response
	}
	w.UpdatedAt = now
}

// Reject is the manual rejection of a pending request
func (w *WithdrawalRequest) Reject(notes string, now time.Time) error {
	if w.Status != WithdrawalStatusPending {
		return fmt.Errorf("%w: only pending withdrawals can be rejected, %s is %s", ErrInvalidStatusTransition, w.ID, w.Status)
	}
	w.Status = WithdrawalStatusRejected
	w.AdminNotes = notes
	w.UpdatedAt = now
	return nil
}

// CanCancel returns true if the owner may still cancel the request
func (w *WithdrawalRequest) CanCancel() bool {
	return w.Status == WithdrawalStatusPending
}

// TransferReason is the narration sent with the payout
func (w *WithdrawalRequest) TransferReason() string {
	return "Withdrawal: " + w.ID
}
