package repository

import (
	"context"
	"fmt"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// PostgresEventRepository implements EventRepository using PostgreSQL
type PostgresEventRepository struct {
	q DBTX
}

// Create inserts an event
func (r *PostgresEventRepository) Create(ctx context.Context, e *domain.Event) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO events (id, organizer_id, title, venue, status, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OrganizerID, e.Title, e.Venue, string(e.Status), e.StartsAt, e.EndsAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var e domain.Event
	var status string
	err := r.q.QueryRow(ctx, `
		SELECT id, organizer_id, title, venue, status, starts_at, ends_at, created_at, updated_at
		FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Venue, &status, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrEventNotFound, "event")
	}
	e.Status = domain.EventStatus(status)
	return &e, nil
}

// PostgresTicketTypeRepository implements TicketTypeRepository using PostgreSQL
type PostgresTicketTypeRepository struct {
	q DBTX
}

const ticketTypeColumns = `
	id, event_id, name, price, capacity, sold, min_purchase, max_purchase,
	available_from, available_until, is_active, created_at, updated_at
`

// Create inserts a ticket type
func (r *PostgresTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ticket_types (`+ticketTypeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tt.ID, tt.EventID, tt.Name, tt.Price, tt.Capacity, tt.Sold, tt.MinPurchase, tt.MaxPurchase,
		tt.AvailableFrom, tt.AvailableUntil, tt.IsActive, tt.CreatedAt, tt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket type: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket type without locking it
func (r *PostgresTicketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	return r.get(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id)
}

// GetForUpdate retrieves a ticket type and takes a row lock on it
func (r *PostgresTicketTypeRepository) GetForUpdate(ctx context.Context, id string) (*domain.TicketType, error) {
	return r.get(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresTicketTypeRepository) get(ctx context.Context, query, id string) (*domain.TicketType, error) {
	var tt domain.TicketType
	err := r.q.QueryRow(ctx, query, id).Scan(
		&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.Capacity, &tt.Sold, &tt.MinPurchase, &tt.MaxPurchase,
		&tt.AvailableFrom, &tt.AvailableUntil, &tt.IsActive, &tt.CreatedAt, &tt.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrTicketTypeNotFound, "ticket type")
	}
	return &tt, nil
}

// UpdateSold persists the sold counter. The CHECK constraint rejects sold > capacity.
func (r *PostgresTicketTypeRepository) UpdateSold(ctx context.Context, tt *domain.TicketType) error {
	result, err := r.q.Exec(ctx,
		`UPDATE ticket_types SET sold = $2, updated_at = $3 WHERE id = $1`,
		tt.ID, tt.Sold, tt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket type inventory: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}
