package domain

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus represents the status of a purchase (matches DB ENUM)
type PurchaseStatus string

const (
	PurchaseStatusReserved  PurchaseStatus = "reserved"
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusExpired   PurchaseStatus = "expired"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Attendee is the contact info collected for a purchase
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate checks the attendee's required fields and phone format
func (a Attendee) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Email) == "" {
		return ErrInvalidAttendee
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidAttendee)
	}
	if !e164Pattern.MatchString(a.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// Purchase is one buyer's attempt to acquire N tickets of one ticket type
type Purchase struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id"`
	EventID       string          `json:"event_id"`
	TicketTypeID  string          `json:"ticket_type_id"`
	OrganizerID   string          `json:"organizer_id"`
	Attendee      Attendee        `json:"attendee"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        PurchaseStatus  `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPurchase creates a reserved purchase holding inventory until now + ttl
func NewPurchase(buyerID string, event *Event, ticketType *TicketType, attendee Attendee, pricing Pricing, ttl time.Duration, now time.Time) *Purchase {
	return &Purchase{
		ID:           NewPurchaseID(),
		BuyerID:      buyerID,
		EventID:      event.ID,
		TicketTypeID: ticketType.ID,
		OrganizerID:  event.OrganizerID,
		Attendee:     attendee,
		Quantity:     pricing.Quantity,
		UnitPrice:    pricing.UnitPrice,
		Subtotal:     pricing.Subtotal,
		ServiceFee:   pricing.ServiceFee,
		Total:        pricing.Total,
		Currency:     pricing.Currency,
		Status:       PurchaseStatusReserved,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Pricing returns the purchase's price breakdown
func (p *Purchase) Pricing() Pricing {
	return Pricing{
		UnitPrice:  p.UnitPrice,
		Quantity:   p.Quantity,
		Subtotal:   p.Subtotal,
		ServiceFee: p.ServiceFee,
		Total:      p.Total,
		Currency:   p.Currency,
	}
}

// IsOpen returns true while the purchase still holds inventory
func (p *Purchase) IsOpen() bool {
	return p.Status == PurchaseStatusReserved || p.Status == PurchaseStatusPending
}

// IsFinal returns true if the purchase is in a terminal state
func (p *Purchase) IsFinal() bool {
	return !p.IsOpen()
}

// IsOverdue reports whether an open purchase has passed its reservation expiry
func (p *Purchase) IsOverdue(now time.Time) bool {
	return p.IsOpen() && now.After(p.ExpiresAt)
}

// ExpiresIn returns the whole seconds left on the reservation, never negative
func (p *Purchase) ExpiresIn(now time.Time) int64 {
	d := p.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// MarkPending records that the gateway transaction was initialized
func (p *Purchase) MarkPending(now time.Time) error {
	if p.Status != PurchaseStatusReserved {
		return fmt.Errorf("%w: purchase %s is %s, want reserved", ErrInvalidStatusTransition, p.ID, p.Status)
	}
	p.Status = PurchaseStatusPending
	p.UpdatedAt = now
	return nil
}

// Complete marks an open purchase as paid
func (p *Purchase) Complete(now time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: cannot complete %s purchase %s", ErrInvalidStatusTransition, p.Status, p.ID)
	}
	p.complete(now)
	return nil
}

// CompleteLate completes an expired purchase whose payment arrived after expiry.
// The caller must have re-reserved the inventory first.
func (p *Purchase) CompleteLate(now time.Time) error {
	if p.Status != PurchaseStatusExpired {
		return fmt.Errorf("%w: late completion needs an expired purchase, %s is %s", ErrInvalidStatusTransition, p.ID, p.Status)
	}
	p.complete(now)
	return nil
}

func (p *Purchase) complete(now time.Time) {
	p.Status = PurchaseStatusCompleted
	p.FailureReason = ""
	p.CompletedAt = &now
	p.UpdatedAt = now
}

// Fail marks an open purchase as failed
func (p *Purchase) Fail(reason string, now time.Time) error {
	return p.close(PurchaseStatusFailed, reason, now)
}

// Expire marks an open purchase as expired
func (p *Purchase) Expire(now time.Time) error {
	return p.close(PurchaseStatusExpired, "reservation expired", now)
}

// Cancel marks an open purchase as cancelled by the buyer
func (p *Purchase) Cancel(now time.Time) error {
	if !p.IsOpen() {
		return ErrPurchaseNotCancellable
	}
	return p.close(PurchaseStatusCancelled, "cancelled by buyer", now)
}

func (p *Purchase) close(status PurchaseStatus, reason string, now time.Time) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: cannot move %s purchase %s to %s", ErrInvalidStatusTransition, p.Status, p.ID, status)
	}
	p.Status = status
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}
