package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// PostgresRevenueRepository implements RevenueRepository using PostgreSQL
type PostgresRevenueRepository struct {
	q DBTX
}

const revenueColumns = `
	id, organizer_id, event_id, purchase_id, gross_amount, platform_fee, organizer_earnings,
	status, available_at, withdrawal_id, created_at, updated_at
`

// Create inserts a ledger entry. purchase_id is unique, one entry per purchase.
func (r *PostgresRevenueRepository) Create(ctx context.Context, rev *domain.OrganizerRevenue) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO organizer_revenues (`+revenueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rev.ID, rev.OrganizerID, rev.EventID, rev.PurchaseID, rev.GrossAmount, rev.PlatformFee, rev.OrganizerEarnings,
		string(rev.Status), rev.AvailableAt, rev.WithdrawalID, rev.CreatedAt, rev.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("revenue for purchase %s already exists: %w", rev.PurchaseID, err)
		}
		return fmt.Errorf("failed to create revenue entry: %w", err)
	}
	return nil
}

// GetByPurchaseID retrieves the ledger entry of a purchase
func (r *PostgresRevenueRepository) GetByPurchaseID(ctx context.Context, purchaseID string) (*domain.OrganizerRevenue, error) {
	rev, err := scanRevenue(r.q.QueryRow(ctx, `SELECT `+revenueColumns+` FROM organizer_revenues WHERE purchase_id = $1`, purchaseID))
	if err != nil {
		return nil, notFound(err, domain.ErrRevenueNotFound, "revenue entry")
	}
	return rev, nil
}

// ListByOrganizer returns an organizer's entries newest first
func (r *PostgresRevenueRepository) ListByOrganizer(ctx context.Context, organizerID string, filter RevenueFilter) ([]*domain.OrganizerRevenue, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+revenueColumns+` FROM organizer_revenues
		WHERE organizer_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		organizerID, status, limit, filter.Offset,
	)
	return collect(rows, err, "revenue entries", scanRevenue)
}

// ListAvailableForUpdate locks available, unlinked entries oldest first
func (r *PostgresRevenueRepository) ListAvailableForUpdate(ctx context.Context, organizerID string) ([]*domain.OrganizerRevenue, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+revenueColumns+` FROM organizer_revenues
		WHERE organizer_id = $1 AND status = 'available' AND withdrawal_id IS NULL
		ORDER BY created_at, id
		FOR UPDATE`, organizerID)
	return collect(rows, err, "available revenue", scanRevenue)
}

// ListByWithdrawalForUpdate locks the entries linked to a withdrawal
func (r *PostgresRevenueRepository) ListByWithdrawalForUpdate(ctx context.Context, withdrawalID string) ([]*domain.OrganizerRevenue, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+revenueColumns+` FROM organizer_revenues
		WHERE withdrawal_id = $1
		ORDER BY created_at, id
		FOR UPDATE`, withdrawalID)
	return collect(rows, err, "linked revenue", scanRevenue)
}

// Update persists status and withdrawal link
func (r *PostgresRevenueRepository) Update(ctx context.Context, rev *domain.OrganizerRevenue) error {
	result, err := r.q.Exec(ctx, `
		UPDATE organizer_revenues
		SET status = $2, withdrawal_id = $3, updated_at = $4
		WHERE id = $1`,
		rev.ID, string(rev.Status), rev.WithdrawalID, rev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update revenue entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRevenueNotFound
	}
	return nil
}

// ReleaseMatured moves pending entries past their holding period to available
func (r *PostgresRevenueRepository) ReleaseMatured(ctx context.Context, now time.Time) (int, error) {
	result, err := r.q.Exec(ctx, `
		UPDATE organizer_revenues
		SET status = 'available', updated_at = $1
		WHERE status = 'pending' AND available_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release matured revenue: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanRevenue(row rowScanner) (*domain.OrganizerRevenue, error) {
	var rev domain.OrganizerRevenue
	var status string
	err := row.Scan(
		&rev.ID, &rev.OrganizerID, &rev.EventID, &rev.PurchaseID, &rev.GrossAmount, &rev.PlatformFee, &rev.OrganizerEarnings,
		&status, &rev.AvailableAt, &rev.WithdrawalID, &rev.CreatedAt, &rev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rev.Status = domain.RevenueStatus(status)
	return &rev, nil
}

// PostgresWithdrawalRepository implements WithdrawalRepository using PostgreSQL
type PostgresWithdrawalRepository struct {
	q DBTX
}

const withdrawalColumns = `
	id, organizer_id, payment_profile_id, requested_amount, transfer_fee, final_amount,
	status, transfer_code, transfer_reference, transfer_response, failure_reason, admin_notes,
	processed_at, completed_at, created_at, updated_at
`

// Create inserts a withdrawal request. A partial unique index allows one active request per organizer.
func (r *PostgresWithdrawalRepository) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	resp, err := marshalJSON(w.TransferResponse, "transfer_response")
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO withdrawal_requests (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		w.ID, w.OrganizerID, w.PaymentProfileID, w.RequestedAmount, w.TransferFee, w.FinalAmount,
		string(w.Status), w.TransferCode, w.TransferReference, resp, w.FailureReason, w.AdminNotes,
		w.ProcessedAt, w.CompletedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrWithdrawalInFlight
		}
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal request by its ID
func (r *PostgresWithdrawalRepository) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrWithdrawalNotFound, "withdrawal request")
	}
	return w, nil
}

// GetForUpdate retrieves a withdrawal request and takes a row lock on it
func (r *PostgresWithdrawalRepository) GetForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrWithdrawalNotFound, "withdrawal request")
	}
	return w, nil
}

// Update persists the mutable withdrawal fields
func (r *PostgresWithdrawalRepository) Update(ctx context.Context, w *domain.WithdrawalRequest) error {
	resp, err := marshalJSON(w.TransferResponse, "transfer_response")
	if err != nil {
		return err
	}
	result, err := r.q.Exec(ctx, `
		UPDATE withdrawal_requests
		SET transfer_fee = $2, final_amount = $3, status = $4, transfer_code = $5, transfer_reference = $6,
		    transfer_response = $7, failure_reason = $8, admin_notes = $9,
		    processed_at = $10, completed_at = $11, updated_at = $12
		WHERE id = $1`,
		w.ID, w.TransferFee, w.FinalAmount, string(w.Status), w.TransferCode, w.TransferReference,
		resp, w.FailureReason, w.AdminNotes,
		w.ProcessedAt, w.CompletedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrWithdrawalNotFound
	}
	return nil
}

// Delete removes a withdrawal request. Linked entries must be released first.
func (r *PostgresWithdrawalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, `DELETE FROM withdrawal_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete withdrawal request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrWithdrawalNotFound
	}
	return nil
}

// LockOrganizer takes a transaction-scoped advisory lock keyed by organizer
func (r *PostgresWithdrawalRepository) LockOrganizer(ctx context.Context, organizerID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "withdrawal:"+organizerID); err != nil {
		return fmt.Errorf("failed to lock organizer %s: %w", organizerID, err)
	}
	return nil
}

// GetActiveByOrganizer returns the organizer's pending or processing request
func (r *PostgresWithdrawalRepository) GetActiveByOrganizer(ctx context.Context, organizerID string) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.q.QueryRow(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE organizer_id = $1 AND status IN ('pending', 'processing')
		LIMIT 1`, organizerID))
	if err != nil {
		return nil, notFound(err, domain.ErrWithdrawalNotFound, "active withdrawal request")
	}
	return w, nil
}

// ListByOrganizer returns an organizer's requests newest first
func (r *PostgresWithdrawalRepository) ListByOrganizer(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE organizer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, organizerID, limit, offset)
	return collect(rows, err, "withdrawal requests", scanWithdrawal)
}

// CountByOrganizer counts an organizer's requests per status
func (r *PostgresWithdrawalRepository) CountByOrganizer(ctx context.Context, organizerID string) (map[domain.WithdrawalStatus]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT status, COUNT(*) FROM withdrawal_requests
		WHERE organizer_id = $1
		GROUP BY status`, organizerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count withdrawal requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.WithdrawalStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal count: %w", err)
		}
		counts[domain.WithdrawalStatus(status)] = n
	}
	return counts, rows.Err()
}

// ListProcessingBefore returns processing requests not updated since the cutoff
func (r *PostgresWithdrawalRepository) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*domain.WithdrawalRequest, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, before, limit)
	return collect(rows, err, "processing withdrawals", scanWithdrawal)
}

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var status string
	var resp []byte
	err := row.Scan(
		&w.ID, &w.OrganizerID, &w.PaymentProfileID, &w.RequestedAmount, &w.TransferFee, &w.FinalAmount,
		&status, &w.TransferCode, &w.TransferReference, &resp, &w.FailureReason, &w.AdminNotes,
		&w.ProcessedAt, &w.CompletedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WithdrawalStatus(status)
	if w.TransferResponse, err = unmarshalMap(resp, "transfer_response"); err != nil {
		return nil, err
	}
	return &w, nil
}

// PostgresProfileRepository implements PaymentProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	q DBTX
}

const profileColumns = `
	id, organizer_id, method, name, description, account_details, fee_percentage,
	status, is_verified, verified_at, verification_initiated_at, verification_attempts,
	last_verification_attempt, verification_reference, resolved_account_name, failure_reason,
	recipient_code, is_default, created_at, updated_at
`

// Create inserts a payment profile
func (r *PostgresProfileRepository) Create(ctx context.Context, p *domain.PaymentProfile) error {
	details, err := marshalJSON(p.AccountDetails, "account_details")
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO payment_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		p.ID, p.OrganizerID, string(p.Method), p.Name, p.Description, details, p.FeePercentage,
		string(p.Status), p.IsVerified, p.VerifiedAt, p.VerificationInitiatedAt, p.VerificationAttempts,
		p.LastVerificationAttempt, p.VerificationReference, p.ResolvedAccountName, p.FailureReason,
		p.RecipientCode, p.IsDefault, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment profile: %w", err)
	}
	return nil
}

// GetByID retrieves a payment profile by its ID
func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*domain.PaymentProfile, error) {
	p, err := scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM payment_profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrProfileNotFound, "payment profile")
	}
	return p, nil
}

// GetForUpdate retrieves a payment profile and takes a row lock on it
func (r *PostgresProfileRepository) GetForUpdate(ctx context.Context, id string) (*domain.PaymentProfile, error) {
	p, err := scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM payment_profiles WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, domain.ErrProfileNotFound, "payment profile")
	}
	return p, nil
}

// Update persists verification state and the recipient code
func (r *PostgresProfileRepository) Update(ctx context.Context, p *domain.PaymentProfile) error {
	result, err := r.q.Exec(ctx, `
		UPDATE payment_profiles
		SET status = $2, is_verified = $3, verified_at = $4, verification_initiated_at = $5,
		    verification_attempts = $6, last_verification_attempt = $7, verification_reference = $8,
		    resolved_account_name = $9, failure_reason = $10, recipient_code = $11, is_default = $12,
		    updated_at = $13
		WHERE id = $1`,
		p.ID, string(p.Status), p.IsVerified, p.VerifiedAt, p.VerificationInitiatedAt,
		p.VerificationAttempts, p.LastVerificationAttempt, p.VerificationReference,
		p.ResolvedAccountName, p.FailureReason, p.RecipientCode, p.IsDefault,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func scanProfile(row rowScanner) (*domain.PaymentProfile, error) {
	var p domain.PaymentProfile
	var method, status string
	var details []byte
	err := row.Scan(
		&p.ID, &p.OrganizerID, &method, &p.Name, &p.Description, &details, &p.FeePercentage,
		&status, &p.IsVerified, &p.VerifiedAt, &p.VerificationInitiatedAt, &p.VerificationAttempts,
		&p.LastVerificationAttempt, &p.VerificationReference, &p.ResolvedAccountName, &p.FailureReason,
		&p.RecipientCode, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Method = domain.PayoutMethod(method)
	p.Status = domain.VerificationStatus(status)
	if err := json.Unmarshal(details, &p.AccountDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account_details: %w", err)
	}
	return &p, nil
}
