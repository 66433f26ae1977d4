package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// RevenueEntryResponse represents one ledger entry
type RevenueEntryResponse struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	PurchaseID        string          `json:"purchase_id"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	OrganizerEarnings decimal.Decimal `json:"organizer_earnings"`
	Status            string          `json:"status"`
	AvailableAt       time.Time       `json:"available_at"`
	WithdrawalID      *string         `json:"withdrawal_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RevenueListResponse is a page of ledger entries
type RevenueListResponse struct {
	Entries []RevenueEntryResponse `json:"entries"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// RequestWithdrawalRequest represents request to withdraw available revenue
type RequestWithdrawalRequest struct {
	PaymentProfileID string          `json:"payment_profile_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
}

// WithdrawalResponse represents a withdrawal request
type WithdrawalResponse struct {
	ID                string          `json:"id"`
	PaymentProfileID  string          `json:"payment_profile_id"`
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	TransferFee       decimal.Decimal `json:"transfer_fee"`
	FinalAmount       decimal.Decimal `json:"final_amount"`
	Status            string          `json:"status"`
	TransferReference string          `json:"transfer_reference,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	AdminNotes        string          `json:"admin_notes,omitempty"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// WithdrawalListResponse is a page of withdrawal requests
type WithdrawalListResponse struct {
	Withdrawals []WithdrawalResponse `json:"withdrawals"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// RejectWithdrawalRequest carries the admin's reason
type RejectWithdrawalRequest struct {
	AdminNotes string `json:"admin_notes" binding:"required"`
}

// CreatePaymentProfileRequest represents request to add a payout destination
type CreatePaymentProfileRequest struct {
	Method         string                `json:"method" binding:"required,oneof=mobile_money bank_transfer"`
	Name           string                `json:"name" binding:"required"`
	Description    string                `json:"description"`
	AccountDetails domain.AccountDetails `json:"account_details" binding:"required"`
}

// PaymentProfileResponse represents a payout destination with masked details
type PaymentProfileResponse struct {
	ID                   string                `json:"id"`
	Method               string                `json:"method"`
	Name                 string                `json:"name"`
	Description          string                `json:"description,omitempty"`
	AccountDetails       domain.AccountDetails `json:"account_details"`
	FeePercentage        decimal.Decimal       `json:"fee_percentage"`
	Status               string                `json:"status"`
	IsVerified           bool                  `json:"is_verified"`
	VerifiedAt           *time.Time            `json:"verified_at,omitempty"`
	VerificationAttempts int                   `json:"verification_attempts"`
	FailureReason        string                `json:"failure_reason,omitempty"`
	ResolvedAccountName  string                `json:"resolved_account_name,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}

// RevenueEntryFromDomain converts a ledger entry
func RevenueEntryFromDomain(r *domain.OrganizerRevenue) RevenueEntryResponse {
	return RevenueEntryResponse{
		ID:                r.ID,
		EventID:           r.EventID,
		PurchaseID:        r.PurchaseID,
		GrossAmount:       r.GrossAmount,
		PlatformFee:       r.PlatformFee,
		OrganizerEarnings: r.OrganizerEarnings,
		Status:            string(r.Status),
		AvailableAt:       r.AvailableAt,
		WithdrawalID:      r.WithdrawalID,
		CreatedAt:         r.CreatedAt,
	}
}

// WithdrawalFromDomain converts a withdrawal request
func WithdrawalFromDomain(w *domain.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:                w.ID,
		PaymentProfileID:  w.PaymentProfileID,
		RequestedAmount:   w.RequestedAmount,
		TransferFee:       w.TransferFee,
		FinalAmount:       w.FinalAmount,
		Status:            string(w.Status),
		TransferReference: w.TransferReference,
		FailureReason:     w.FailureReason,
		AdminNotes:        w.AdminNotes,
		ProcessedAt:       w.ProcessedAt,
		CompletedAt:       w.CompletedAt,
		CreatedAt:         w.CreatedAt,
	}
}

// PaymentProfileFromDomain converts a profile, masking its account details
func PaymentProfileFromDomain(p *domain.PaymentProfile) PaymentProfileResponse {
	return PaymentProfileResponse{
		ID:                   p.ID,
		Method:               string(p.Method),
		Name:                 p.Name,
		Description:          p.Description,
		AccountDetails:       p.MaskedDetails(),
		FeePercentage:        p.FeePercentage,
		Status:               string(p.Status),
		IsVerified:           p.IsVerified,
		VerifiedAt:           p.VerifiedAt,
		VerificationAttempts: p.VerificationAttempts,
		FailureReason:        p.FailureReason,
		ResolvedAccountName:  p.ResolvedAccountName,
		CreatedAt:            p.CreatedAt,
	}
}
