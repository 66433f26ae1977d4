// Package event carries committed state changes to the outside world.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// Type names a committed state change
type Type string

const (
	PurchaseCompleted Type = "purchase.completed"
	PurchaseFailed    Type = "purchase.failed"
	PurchaseExpired   Type = "purchase.expired"
	PurchaseCancelled Type = "purchase.cancelled"
	TicketsResent     Type = "purchase.tickets_resent"
	WithdrawalUpdated Type = "withdrawal.updated"
)

// Kafka topics
const (
	TopicPurchaseCompleted = "ticket.purchase.completed"
	TopicPurchaseFailed    = "ticket.purchase.failed"
	TopicPurchaseExpired   = "ticket.purchase.expired"
	TopicWithdrawalUpdated = "payout.withdrawal.updated"
)

// Topics lists every topic events are published to
var Topics = []string{
	TopicPurchaseCompleted,
	TopicPurchaseFailed,
	TopicPurchaseExpired,
	TopicWithdrawalUpdated,
}

// Topic returns the topic an event type is published to
func (t Type) Topic() string {
	switch t {
	case PurchaseCompleted, TicketsResent:
		return TopicPurchaseCompleted
	case PurchaseFailed, PurchaseCancelled:
		return TopicPurchaseFailed
	case PurchaseExpired:
		return TopicPurchaseExpired
	default:
		return TopicWithdrawalUpdated
	}
}

// Event is the message emitted after a transaction commits
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	PurchaseID  string    `json:"purchase_id,omitempty"`
	BuyerID     string    `json:"buyer_id,omitempty"`
	BuyerEmail  string    `json:"buyer_email,omitempty"`
	BuyerName   string    `json:"buyer_name,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	OrganizerID string    `json:"organizer_id,omitempty"`
	TicketIDs   []string  `json:"ticket_ids,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`

	WithdrawalID string `json:"withdrawal_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Key is the partition key, keeping one aggregate's events in order
func (e *Event) Key() string {
	if e.WithdrawalID != "" {
		return e.WithdrawalID
	}
	return e.PurchaseID
}

// NewPurchaseEvent builds an event for a purchase transition
func NewPurchaseEvent(t Type, p *domain.Purchase, tickets []*domain.Ticket, now time.Time) *Event {
	evt := &Event{
		ID:          uuid.New().String(),
		Type:        t,
		OccurredAt:  now,
		PurchaseID:  p.ID,
		BuyerID:     p.BuyerID,
		BuyerEmail:  p.Attendee.Email,
		BuyerName:   p.Attendee.Name,
		EventID:     p.EventID,
		OrganizerID: p.OrganizerID,
		Amount:      p.Total.StringFixed(2),
		Currency:    p.Currency,
		Status:      string(p.Status),
		Reason:      p.FailureReason,
	}
	for _, t := range tickets {
		evt.TicketIDs = append(evt.TicketIDs, t.ID)
	}
	return evt
}

// NewWithdrawalEvent builds an event for a withdrawal transition
func NewWithdrawalEvent(w *domain.WithdrawalRequest, now time.Time) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Type:         WithdrawalUpdated,
		OccurredAt:   now,
		OrganizerID:  w.OrganizerID,
		WithdrawalID: w.ID,
		Amount:       w.FinalAmount.StringFixed(2),
		Status:       string(w.Status),
		Reason:       w.FailureReason,
	}
}
