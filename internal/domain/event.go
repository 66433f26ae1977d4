package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus represents the publication state of an event
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event is the read model of an event that tickets are sold for.
// Event management lives outside this service.
type Event struct {
	ID          string      `json:"id"`
	OrganizerID string      `json:"organizer_id"`
	Title       string      `json:"title"`
	Venue       string      `json:"venue,omitempty"`
	Status      EventStatus `json:"status"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsOnSale reports whether the event is published and has not started yet
func (e *Event) IsOnSale(now time.Time) bool {
	return e.Status == EventStatusPublished && now.Before(e.StartsAt)
}

// IsRunning reports whether now falls inside the event's start and end
func (e *Event) IsRunning(now time.Time) bool {
	return !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}

// TicketType is one pricing tier of an event and the inventory counter for it
type TicketType struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Capacity       int             `json:"capacity"`
	Sold           int             `json:"sold"`
	MinPurchase    int             `json:"min_purchase"`
	MaxPurchase    int             `json:"max_purchase"`
	AvailableFrom  *time.Time      `json:"available_from,omitempty"`
	AvailableUntil *time.Time      `json:"available_until,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Remaining returns capacity - sold
func (t *TicketType) Remaining() int {
	if r := t.Capacity - t.Sold; r > 0 {
		return r
	}
	return 0
}

// CheckPurchasable validates quantity bounds, the sale window and remaining capacity
func (t *TicketType) CheckPurchasable(qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if t.MinPurchase > 0 && qty < t.MinPurchase {
		return ErrBelowMinPurchase
	}
	if t.MaxPurchase > 0 && qty > t.MaxPurchase {
		return ErrAboveMaxPurchase
	}
	if !t.IsActive {
		return ErrSaleWindowClosed
	}
	if t.AvailableFrom != nil && now.Before(*t.AvailableFrom) {
		return ErrSaleWindowClosed
	}
	if t.AvailableUntil != nil && now.After(*t.AvailableUntil) {
		return ErrSaleWindowClosed
	}
	if t.Remaining() < qty {
		return ErrInsufficientInventory
	}
	return nil
}

// Reserve checks the ticket type and takes qty units out of inventory
func (t *TicketType) Reserve(qty int, now time.Time) error {
	if err := t.CheckPurchasable(qty, now); err != nil {
		return err
	}
	t.Sold += qty
	t.UpdatedAt = now
	return nil
}

// Release returns qty units to inventory. Sold never drops below zero.
func (t *TicketType) Release(qty int, now time.Time) {
	t.Sold -= qty
	if t.Sold < 0 {
		t.Sold = 0
	}
	t.UpdatedAt = now
}
