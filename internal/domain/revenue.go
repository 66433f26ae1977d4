package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RevenueStatus represents the status of a revenue ledger entry (matches DB ENUM)
type RevenueStatus string

const (
	RevenueStatusPending   RevenueStatus = "pending"
	RevenueStatusAvailable RevenueStatus = "available"
	RevenueStatusOnHold    RevenueStatus = "on_hold"
	RevenueStatusWithdrawn RevenueStatus = "withdrawn"
)

// OrganizerRevenue is the ledger entry created for one completed purchase
type OrganizerRevenue struct {
	ID                string          `json:"id"`
	OrganizerID       string          `json:"organizer_id"`
	EventID           string          `json:"event_id"`
	PurchaseID        string          `json:"purchase_id"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	OrganizerEarnings decimal.Decimal `json:"organizer_earnings"`
	Status            RevenueStatus   `json:"status"`
	AvailableAt       time.Time       `json:"available_at"`
	WithdrawalID      *string         `json:"withdrawal_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewOrganizerRevenue books the purchase subtotal net of the platform fee.
// The entry becomes withdrawable after the holding period.
func NewOrganizerRevenue(p *Purchase, platformFeeRate decimal.Decimal, holding time.Duration, now time.Time) *OrganizerRevenue {
	fee, net := SplitPlatformFee(p.Subtotal, platformFeeRate)
	return &OrganizerRevenue{
		ID:                uuid.New().String(),
		OrganizerID:       p.OrganizerID,
		EventID:           p.EventID,
		PurchaseID:        p.ID,
		GrossAmount:       p.Subtotal,
		PlatformFee:       fee,
		OrganizerEarnings: net,
		Status:            RevenueStatusPending,
		AvailableAt:       now.Add(holding),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Release makes a matured pending entry withdrawable
func (r *OrganizerRevenue) Release(now time.Time) bool {
	if r.Status != RevenueStatusPending || now.Before(r.AvailableAt) {
		return false
	}
	r.Status = RevenueStatusAvailable
	r.UpdatedAt = now
	return true
}

// Hold reserves an available entry for a withdrawal
func (r *OrganizerRevenue) Hold(withdrawalID string, now time.Time) error {
	if r.Status != RevenueStatusAvailable || r.WithdrawalID != nil {
		return fmt.Errorf("%w: revenue %s is %s", ErrInvalidStatusTransition, r.ID, r.Status)
	}
	r.Status = RevenueStatusOnHold
	r.WithdrawalID = &withdrawalID
	r.UpdatedAt = now
	return nil
}

// MarkWithdrawn settles an on-hold entry once its transfer succeeded
func (r *OrganizerRevenue) MarkWithdrawn(now time.Time) error {
	if r.Status != RevenueStatusOnHold {
		return fmt.Errorf("%w: revenue %s is %s, want on_hold", ErrInvalidStatusTransition, r.ID, r.Status)
	}
	r.Status = RevenueStatusWithdrawn
	r.UpdatedAt = now
	return nil
}

// Unhold returns an on-hold entry to available and clears its withdrawal link.
// With includeWithdrawn it also reverses entries already marked withdrawn.
func (r *OrganizerRevenue) Unhold(includeWithdrawn bool, now time.Time) bool {
	switch {
	case r.Status == RevenueStatusOnHold:
	case includeWithdrawn && r.Status == RevenueStatusWithdrawn:
	default:
		return false
	}
	r.Status = RevenueStatusAvailable
	r.WithdrawalID = nil
	r.UpdatedAt = now
	return true
}

// RevenueSummary is an organizer's balance split by ledger status
type RevenueSummary struct {
	OrganizerID          string          `json:"organizer_id"`
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
	AvailableBalance     decimal.Decimal `json:"available_balance"`
	PendingBalance       decimal.Decimal `json:"pending_balance"`
	OnHoldBalance        decimal.Decimal `json:"on_hold_balance"`
	WithdrawnBalance     decimal.Decimal `json:"withdrawn_balance"`
	TotalPlatformFees    decimal.Decimal `json:"total_platform_fees"`
	EntryCount           int             `json:"entry_count"`
	ActiveWithdrawals    int             `json:"active_withdrawals"`
	CompletedWithdrawals int             `json:"completed_withdrawals"`
}

// Summarize puts each entry into exactly one balance bucket
func Summarize(organizerID string, entries []*OrganizerRevenue) *RevenueSummary {
	s := &RevenueSummary{
		OrganizerID:       organizerID,
		TotalEarnings:     decimal.Zero,
		AvailableBalance:  decimal.Zero,
		PendingBalance:    decimal.Zero,
		OnHoldBalance:     decimal.Zero,
		WithdrawnBalance:  decimal.Zero,
		TotalPlatformFees: decimal.Zero,
		EntryCount:        len(entries),
	}
	for _, e := range entries {
		s.TotalEarnings = s.TotalEarnings.Add(e.OrganizerEarnings)
		s.TotalPlatformFees = s.TotalPlatformFees.Add(e.PlatformFee)
		switch e.Status {
		case RevenueStatusAvailable:
			s.AvailableBalance = s.AvailableBalance.Add(e.OrganizerEarnings)
		case RevenueStatusPending:
			s.PendingBalance = s.PendingBalance.Add(e.OrganizerEarnings)
		case RevenueStatusOnHold:
			s.OnHoldBalance = s.OnHoldBalance.Add(e.OrganizerEarnings)
		case RevenueStatusWithdrawn:
			s.WithdrawnBalance = s.WithdrawnBalance.Add(e.OrganizerEarnings)
		}
	}
	return s
}
