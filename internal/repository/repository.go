package repository

import (
	"context"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// EventRepository reads events from the catalog
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

// TicketTypeRepository owns the inventory counters
type TicketTypeRepository interface {
	Create(ctx context.Context, tt *domain.TicketType) error
	GetByID(ctx context.Context, id string) (*domain.TicketType, error)

	// GetForUpdate loads the ticket type and locks it until the transaction ends
	GetForUpdate(ctx context.Context, id string) (*domain.TicketType, error)

	// UpdateSold persists the sold counter
	UpdateSold(ctx context.Context, tt *domain.TicketType) error
}

// PurchaseRepository defines the interface for purchase data access
type PurchaseRepository interface {
	Create(ctx context.Context, p *domain.Purchase) error
	GetByID(ctx context.Context, id string) (*domain.Purchase, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Purchase, error)
	Update(ctx context.Context, p *domain.Purchase) error

	// ListOverdueIDs returns reserved or pending purchases whose expiry is before now
	ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByReference(ctx context.Context, reference string) (*domain.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.Payment, error)
	GetByPurchaseID(ctx context.Context, purchaseID string) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
}

// TicketRepository defines the interface for ticket data access
type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []*domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListByPurchase(ctx context.Context, purchaseID string) ([]*domain.Ticket, error)
	Update(ctx context.Context, t *domain.Ticket) error
}

// RevenueFilter narrows ListByOrganizer
type RevenueFilter struct {
	Status *domain.RevenueStatus
	Limit  int
	Offset int
}

// RevenueRepository is the organizer revenue ledger
type RevenueRepository interface {
	Create(ctx context.Context, r *domain.OrganizerRevenue) error
	GetByPurchaseID(ctx context.Context, purchaseID string) (*domain.OrganizerRevenue, error)
	ListByOrganizer(ctx context.Context, organizerID string, filter RevenueFilter) ([]*domain.OrganizerRevenue, error)

	// ListAvailableForUpdate locks available, unlinked entries oldest first
	ListAvailableForUpdate(ctx context.Context, organizerID string) ([]*domain.OrganizerRevenue, error)

	// ListByWithdrawalForUpdate locks the entries linked to a withdrawal
	ListByWithdrawalForUpdate(ctx context.Context, withdrawalID string) ([]*domain.OrganizerRevenue, error)

	Update(ctx context.Context, r *domain.OrganizerRevenue) error

	// ReleaseMatured moves pending entries with available_at <= now to available
	ReleaseMatured(ctx context.Context, now time.Time) (int, error)
}

// WithdrawalRepository defines the interface for withdrawal request data access
type WithdrawalRepository interface {
	Create(ctx context.Context, w *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	Update(ctx context.Context, w *domain.WithdrawalRequest) error
	Delete(ctx context.Context, id string) error

	// LockOrganizer serializes withdrawal creation per organizer for the rest of the transaction
	LockOrganizer(ctx context.Context, organizerID string) error

	// GetActiveByOrganizer returns the pending or processing request, or ErrWithdrawalNotFound
	GetActiveByOrganizer(ctx context.Context, organizerID string) (*domain.WithdrawalRequest, error)

	ListByOrganizer(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error)
	CountByOrganizer(ctx context.Context, organizerID string) (map[domain.WithdrawalStatus]int, error)

	// ListProcessingBefore returns processing requests last updated before the cutoff
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*domain.WithdrawalRequest, error)
}

// PaymentProfileRepository defines the interface for payout profile data access
type PaymentProfileRepository interface {
	Create(ctx context.Context, p *domain.PaymentProfile) error
	GetByID(ctx context.Context, id string) (*domain.PaymentProfile, error)
	GetForUpdate(ctx context.Context, id string) (*domain.PaymentProfile, error)
	Update(ctx context.Context, p *domain.PaymentProfile) error
}

// Repositories groups every repository bound to one connection or transaction
type Repositories struct {
	Events      EventRepository
	TicketTypes TicketTypeRepository
	Purchases   PurchaseRepository
	Payments    PaymentRepository
	Tickets     TicketRepository
	Revenue     RevenueRepository
	Withdrawals WithdrawalRepository
	Profiles    PaymentProfileRepository
}

// Store hands out repositories and runs units of work
type Store interface {
	// Repos returns repositories outside any transaction
	Repos() *Repositories

	// WithinTx runs fn with repositories bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error

	// Ping checks the underlying storage
	Ping(ctx context.Context) error
}
