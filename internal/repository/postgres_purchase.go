package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// PostgresPurchaseRepository implements PurchaseRepository using PostgreSQL
type PostgresPurchaseRepository struct {
	q DBTX
}

const purchaseColumns = `
	id, buyer_id, event_id, ticket_type_id, organizer_id,
	attendee_name, attendee_email, attendee_phone,
	quantity, unit_price, subtotal, service_fee, total, currency,
	status, failure_reason, expires_at, completed_at, created_at, updated_at
`

// Create inserts a purchase
func (r *PostgresPurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		p.ID, p.BuyerID, p.EventID, p.TicketTypeID, p.OrganizerID,
		p.Attendee.Name, p.Attendee.Email, p.Attendee.Phone,
		p.Quantity, p.UnitPrice, p.Subtotal, p.ServiceFee, p.Total, p.Currency,
		string(p.Status), p.FailureReason, p.ExpiresAt, p.CompletedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// GetByID retrieves a purchase by its ID
func (r *PostgresPurchaseRepository) GetByID(ctx context.Context, id string) (*domain.Purchase, error) {
	p, err := scanPurchase(r.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrPurchaseNotFound, "purchase")
	}
	return p, nil
}

// GetForUpdate retrieves a purchase and takes a row lock on it
func (r *PostgresPurchaseRepository) GetForUpdate(ctx context.Context, id string) (*domain.Purchase, error) {
	p, err := scanPurchase(r.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrPurchaseNotFound, "purchase")
	}
	return p, nil
}

// Update persists the mutable purchase fields
func (r *PostgresPurchaseRepository) Update(ctx context.Context, p *domain.Purchase) error {
	result, err := r.q.Exec(ctx, `
		UPDATE purchases
		SET status = $2, failure_reason = $3, completed_at = $4, updated_at = $5
		WHERE id = $1`,
		p.ID, string(p.Status), p.FailureReason, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

// ListOverdueIDs returns open purchases whose reservation has expired, oldest expiry first
func (r *PostgresPurchaseRepository) ListOverdueIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id FROM purchases
		WHERE status IN ('reserved', 'pending') AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue purchases: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan purchase id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var status string
	err := row.Scan(
		&p.ID, &p.BuyerID, &p.EventID, &p.TicketTypeID, &p.OrganizerID,
		&p.Attendee.Name, &p.Attendee.Email, &p.Attendee.Phone,
		&p.Quantity, &p.UnitPrice, &p.Subtotal, &p.ServiceFee, &p.Total, &p.Currency,
		&status, &p.FailureReason, &p.ExpiresAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PurchaseStatus(status)
	return &p, nil
}

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	q DBTX
}

const paymentColumns = `
	id, purchase_id, amount, currency, provider, reference, access_code, authorization_url,
	channel, status, gateway_response, failure_reason, needs_refund,
	completed_at, failed_at, created_at, updated_at
`

// Create inserts a payment. Reference and purchase_id are unique.
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	resp, err := marshalJSON(p.GatewayResponse, "gateway_response")
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.PurchaseID, p.Amount, p.Currency, p.Provider, p.Reference, p.AccessCode, p.AuthorizationURL,
		p.Channel, string(p.Status), resp, p.FailureReason, p.NeedsRefund,
		p.CompletedAt, p.FailedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment reference %s already exists: %w", p.Reference, err)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByReference retrieves a payment by its gateway reference
func (r *PostgresPaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference)
}

// GetByReferenceForUpdate retrieves a payment and takes a row lock on it
func (r *PostgresPaymentRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1 FOR UPDATE`, reference)
}

// GetByPurchaseID retrieves the payment of a purchase
func (r *PostgresPaymentRepository) GetByPurchaseID(ctx context.Context, purchaseID string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE purchase_id = $1`, purchaseID)
}

func (r *PostgresPaymentRepository) get(ctx context.Context, query string, arg string) (*domain.Payment, error) {
	var p domain.Payment
	var status string
	var resp []byte
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.PurchaseID, &p.Amount, &p.Currency, &p.Provider, &p.Reference, &p.AccessCode, &p.AuthorizationURL,
		&p.Channel, &status, &resp, &p.FailureReason, &p.NeedsRefund,
		&p.CompletedAt, &p.FailedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound, "payment")
	}
	p.Status = domain.PaymentStatus(status)
	if p.GatewayResponse, err = unmarshalMap(resp, "gateway_response"); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update persists the mutable payment fields
func (r *PostgresPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	resp, err := marshalJSON(p.GatewayResponse, "gateway_response")
	if err != nil {
		return err
	}
	result, err := r.q.Exec(ctx, `
		UPDATE payments
		SET access_code = $2, authorization_url = $3, channel = $4, status = $5,
		    gateway_response = $6, failure_reason = $7, needs_refund = $8,
		    completed_at = $9, failed_at = $10, updated_at = $11
		WHERE id = $1`,
		p.ID, p.AccessCode, p.AuthorizationURL, p.Channel, string(p.Status),
		resp, p.FailureReason, p.NeedsRefund,
		p.CompletedAt, p.FailedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// PostgresTicketRepository implements TicketRepository using PostgreSQL
type PostgresTicketRepository struct {
	q DBTX
}

const ticketColumns = `
	id, purchase_id, event_id, ticket_type_id, attendee_name, attendee_email, attendee_phone,
	price, status, qr_payload, checked_in_at, checked_in_by, created_at, updated_at
`

// CreateBatch inserts all tickets of a purchase
func (r *PostgresTicketRepository) CreateBatch(ctx context.Context, tickets []*domain.Ticket) error {
	for _, t := range tickets {
		_, err := r.q.Exec(ctx, `
			INSERT INTO tickets (`+ticketColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			t.ID, t.PurchaseID, t.EventID, t.TicketTypeID, t.Attendee.Name, t.Attendee.Email, t.Attendee.Phone,
			t.Price, string(t.Status), t.QRPayload, t.CheckedInAt, t.CheckedInBy, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket %s: %w", t.ID, err)
		}
	}
	return nil
}

// GetByID retrieves a ticket by its ID
func (r *PostgresTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := scanTicket(r.q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrTicketNotFound, "ticket")
	}
	return t, nil
}

// GetForUpdate retrieves a ticket and takes a row lock on it
func (r *PostgresTicketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := scanTicket(r.q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrTicketNotFound, "ticket")
	}
	return t, nil
}

// ListByPurchase returns the tickets of a purchase in creation order
func (r *PostgresTicketRepository) ListByPurchase(ctx context.Context, purchaseID string) ([]*domain.Ticket, error) {
	rows, err := r.q.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE purchase_id = $1 ORDER BY created_at, id`, purchaseID)
	return collect(rows, err, "tickets", scanTicket)
}

// Update persists the mutable ticket fields
func (r *PostgresTicketRepository) Update(ctx context.Context, t *domain.Ticket) error {
	result, err := r.q.Exec(ctx, `
		UPDATE tickets
		SET status = $2, qr_payload = $3, checked_in_at = $4, checked_in_by = $5, updated_at = $6
		WHERE id = $1`,
		t.ID, string(t.Status), t.QRPayload, t.CheckedInAt, t.CheckedInBy, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var status string
	err := row.Scan(
		&t.ID, &t.PurchaseID, &t.EventID, &t.TicketTypeID, &t.Attendee.Name, &t.Attendee.Email, &t.Attendee.Phone,
		&t.Price, &status, &t.QRPayload, &t.CheckedInAt, &t.CheckedInBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return &t, nil
}
