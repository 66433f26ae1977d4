package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// InitiatePurchaseRequest represents request to reserve tickets and start payment
type InitiatePurchaseRequest struct {
	EventID      string `json:"event_id" binding:"required"`
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,min=1"`
	BuyerName    string `json:"buyer_name" binding:"required"`
	BuyerEmail   string `json:"buyer_email" binding:"required"`
	BuyerPhone   string `json:"buyer_phone" binding:"required"`
}

// Attendee returns the attendee captured by the request
func (r *InitiatePurchaseRequest) Attendee() domain.Attendee {
	return domain.Attendee{Name: r.BuyerName, Email: r.BuyerEmail, Phone: r.BuyerPhone}
}

// PricingResponse is the price breakdown of a purchase
type PricingResponse struct {
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ServiceFee decimal.Decimal `json:"service_fee"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

// PaymentInfo tells the buyer where to pay
type PaymentInfo struct {
	Provider         string `json:"provider"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}

// ReservationInfo describes the inventory hold
type ReservationInfo struct {
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
}

// InitiatePurchaseResponse represents response after a purchase is reserved
type InitiatePurchaseResponse struct {
	PurchaseID   string          `json:"purchase_id"`
	Status       string          `json:"status"`
	EventID      string          `json:"event_id"`
	EventTitle   string          `json:"event_title"`
	TicketTypeID string          `json:"ticket_type_id"`
	TicketType   string          `json:"ticket_type"`
	Pricing      PricingResponse `json:"pricing"`
	Payment      PaymentInfo     `json:"payment"`
	Reservation  ReservationInfo `json:"reservation"`
}

// TicketResponse represents an issued ticket
type TicketResponse struct {
	ID           string     `json:"ticket_id"`
	TicketTypeID string     `json:"ticket_type_id"`
	AttendeeName string     `json:"attendee_name"`
	Status       string     `json:"status"`
	QRPayload    string     `json:"qr_code_data,omitempty"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
}

// SettlementResponse is the outcome of verifying a payment
type SettlementResponse struct {
	PurchaseID    string           `json:"purchase_id"`
	Reference     string           `json:"reference"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Message       string           `json:"message,omitempty"`
	NeedsRefund   bool             `json:"needs_refund,omitempty"`
	Tickets       []TicketResponse `json:"tickets,omitempty"`
}

// PurchaseStatusResponse is returned by the status endpoint
type PurchaseStatusResponse struct {
	PurchaseID       string           `json:"purchase_id"`
	Status           string           `json:"status"`
	Pricing          PricingResponse  `json:"pricing"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	AuthorizationURL string           `json:"authorization_url,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	ExpiresInSeconds *int64           `json:"expires_in_seconds,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	Tickets          []TicketResponse `json:"tickets,omitempty"`
}

// CancelPurchaseResponse represents response after a buyer cancels a purchase
type CancelPurchaseResponse struct {
	PurchaseID string `json:"purchase_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// ResendTicketsResponse represents response after tickets are re-sent
type ResendTicketsResponse struct {
	PurchaseID  string `json:"purchase_id"`
	Email       string `json:"email"`
	TicketCount int    `json:"ticket_count"`
}

// CheckInResponse represents a successful ticket check-in
type CheckInResponse struct {
	TicketID     string    `json:"ticket_id"`
	AttendeeName string    `json:"attendee_name"`
	EventID      string    `json:"event_id"`
	Status       string    `json:"status"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// PricingFromDomain converts a domain pricing breakdown
func PricingFromDomain(p domain.Pricing) PricingResponse {
	return PricingResponse{
		UnitPrice:  p.UnitPrice,
		Quantity:   p.Quantity,
		Subtotal:   p.Subtotal,
		ServiceFee: p.ServiceFee,
		Total:      p.Total,
		Currency:   p.Currency,
	}
}

// TicketFromDomain converts a domain ticket
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		TicketTypeID: t.TicketTypeID,
		AttendeeName: t.Attendee.Name,
		Status:       string(t.Status),
		QRPayload:    t.QRPayload,
		CheckedInAt:  t.CheckedInAt,
	}
}

// TicketsFromDomain converts a list of domain tickets
func TicketsFromDomain(tickets []*domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketFromDomain(t))
	}
	return out
}
