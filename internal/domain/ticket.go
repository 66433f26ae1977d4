package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus represents the status of a ticket (matches DB ENUM)
type TicketStatus string

const (
	TicketStatusReserved  TicketStatus = "reserved"
	TicketStatusPaid      TicketStatus = "paid"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusExpired   TicketStatus = "expired"
)

// Ticket is one admission credential
type Ticket struct {
	ID           string          `json:"id"`
	PurchaseID   string          `json:"purchase_id"`
	EventID      string          `json:"event_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	Attendee     Attendee        `json:"attendee"`
	Price        decimal.Decimal `json:"price"`
	Status       TicketStatus    `json:"status"`
	QRPayload    string          `json:"qr_payload,omitempty"`
	CheckedInAt  *time.Time      `json:"checked_in_at,omitempty"`
	CheckedInBy  string          `json:"checked_in_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// QRPayload is the structured data embedded in a ticket's QR code
type QRPayload struct {
	TicketID     string `json:"ticket_id"`
	EventID      string `json:"event_id"`
	AttendeeName string `json:"attendee_name"`
	PurchaseID   string `json:"purchase_id"`
}

// NewPlaceholderTickets mints qty reserved tickets for a purchase
func NewPlaceholderTickets(p *Purchase, now time.Time) []*Ticket {
	tickets := make([]*Ticket, 0, p.Quantity)
	for i := 0; i < p.Quantity; i++ {
		tickets = append(tickets, &Ticket{
			ID:           NewTicketID(),
			PurchaseID:   p.ID,
			EventID:      p.EventID,
			TicketTypeID: p.TicketTypeID,
			Attendee:     p.Attendee,
			Price:        p.UnitPrice,
			Status:       TicketStatusReserved,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return tickets
}

// BuildQRPayload encodes the ticket's QR payload as JSON
func (t *Ticket) BuildQRPayload() (string, error) {
	b, err := json.Marshal(QRPayload{
		TicketID:     t.ID,
		EventID:      t.EventID,
		AttendeeName: t.Attendee.Name,
		PurchaseID:   t.PurchaseID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode qr payload: %w", err)
	}
	return string(b), nil
}

// MarkPaid issues a reserved ticket and attaches its QR payload
func (t *Ticket) MarkPaid(now time.Time) error {
	if t.Status != TicketStatusReserved {
		return fmt.Errorf("%w: ticket %s is %s, want reserved", ErrInvalidStatusTransition, t.ID, t.Status)
	}
	qr, err := t.BuildQRPayload()
	if err != nil {
		return err
	}
	t.Status = TicketStatusPaid
	t.QRPayload = qr
	t.UpdatedAt = now
	return nil
}

// Release moves a reserved ticket to a non-paid terminal status (expired or cancelled).
// Tickets that are not reserved are left untouched.
func (t *Ticket) Release(status TicketStatus, now time.Time) bool {
	if t.Status != TicketStatusReserved {
		return false
	}
	t.Status = status
	t.UpdatedAt = now
	return true
}

// Revive returns an expired placeholder to reserved for a late payment
func (t *Ticket) Revive(now time.Time) bool {
	if t.Status != TicketStatusExpired {
		return false
	}
	t.Status = TicketStatusReserved
	t.UpdatedAt = now
	return true
}

// CheckIn admits the ticket holder once
func (t *Ticket) CheckIn(actorID string, now time.Time) error {
	if t.Status != TicketStatusPaid || t.CheckedInAt != nil {
		return fmt.Errorf("%w: ticket %s is %s", ErrTicketNotCheckable, t.ID, t.Status)
	}
	t.Status = TicketStatusUsed
	t.CheckedInAt = &now
	t.CheckedInBy = actorID
	t.UpdatedAt = now
	return nil
}
