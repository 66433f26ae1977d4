package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// InventoryService guards the sold counter of each ticket type.
// Reserve and Release take the caller's transaction so they commit or roll back with it.
type InventoryService interface {
	// Reserve locks the ticket type, re-checks capacity inside the lock and takes qty units
	Reserve(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) (*domain.TicketType, error)

	// Reacquire takes qty units back for a late payment, checking capacity only
	Reacquire(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) error

	// Release returns qty units to the ticket type
	Release(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) error

	// Remaining returns capacity - sold without locking
	Remaining(ctx context.Context, ticketTypeID string) (int, error)
}

type inventoryService struct {
	store repository.Store
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store repository.Store) InventoryService {
	return &inventoryService{store: store}
}

func (s *inventoryService) Reserve(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("quantity", qty),
	)

	tt, err := tx.TicketTypes.GetForUpdate(ctx, ticketTypeID)
	if err != nil {
		span.SetStatus(codes.Error, "ticket type lookup failed")
		return nil, err
	}
	if err := tt.Reserve(qty, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := tx.TicketTypes.UpdateSold(ctx, tt); err != nil {
		span.SetStatus(codes.Error, "failed to update sold count")
		return nil, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	span.SetAttributes(attribute.Int("remaining", tt.Remaining()))
	span.SetStatus(codes.Ok, "")
	return tt, nil
}

func (s *inventoryService) Reacquire(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.reacquire")
	defer span.End()

	tt, err := tx.TicketTypes.GetForUpdate(ctx, ticketTypeID)
	if err != nil {
		span.SetStatus(codes.Error, "ticket type lookup failed")
		return err
	}
	if tt.Remaining() < qty {
		span.SetStatus(codes.Error, "insufficient inventory")
		return domain.ErrInsufficientInventory
	}
	tt.Sold += qty
	tt.UpdatedAt = now
	if err := tx.TicketTypes.UpdateSold(ctx, tt); err != nil {
		span.SetStatus(codes.Error, "failed to update sold count")
		return fmt.Errorf("failed to reacquire inventory: %w", err)
	}
	return nil
}

func (s *inventoryService) Release(ctx context.Context, tx *repository.Repositories, ticketTypeID string, qty int, now time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("quantity", qty),
	)

	tt, err := tx.TicketTypes.GetForUpdate(ctx, ticketTypeID)
	if err != nil {
		span.SetStatus(codes.Error, "ticket type lookup failed")
		return err
	}
	tt.Release(qty, now)
	if err := tx.TicketTypes.UpdateSold(ctx, tt); err != nil {
		span.SetStatus(codes.Error, "failed to update sold count")
		return fmt.Errorf("failed to release inventory: %w", err)
	}
	return nil
}

func (s *inventoryService) Remaining(ctx context.Context, ticketTypeID string) (int, error) {
	tt, err := s.store.Repos().TicketTypes.GetByID(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	return tt.Remaining(), nil
}
