package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Klasique-art/cafa-tickets-backend/pkg/database"
)

// PostgreSQL error code for unique violation
const pgUniqueViolationCode = "23505"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db    *database.PostgresDB
	repos *Repositories
}

// NewPostgresStore creates a store on top of the connection pool
func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		repos: newPostgresRepositories(db.Pool()),
	}
}

func newPostgresRepositories(q DBTX) *Repositories {
	return &Repositories{
		Events:      &PostgresEventRepository{q: q},
		TicketTypes: &PostgresTicketTypeRepository{q: q},
		Purchases:   &PostgresPurchaseRepository{q: q},
		Payments:    &PostgresPaymentRepository{q: q},
		Tickets:     &PostgresTicketRepository{q: q},
		Revenue:     &PostgresRevenueRepository{q: q},
		Withdrawals: &PostgresWithdrawalRepository{q: q},
		Profiles:    &PostgresProfileRepository{q: q},
	}
}

// Repos returns repositories running on the pool, one statement per transaction
func (s *PostgresStore) Repos() *Repositories {
	return s.repos
}

// WithinTx runs fn with repositories bound to one read-committed transaction.
// Row locks taken with the ForUpdate methods are held until fn returns.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return database.WithTx(ctx, s.db.Pool(), func(tx pgx.Tx) error {
		return fn(ctx, newPostgresRepositories(tx))
	})
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}

// notFound maps pgx.ErrNoRows to the domain error
func notFound(err error, domainErr error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErr
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func marshalJSON(v any, field string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
	}
	return b, nil
}

func unmarshalMap(b []byte, field string) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", field, err)
	}
	return m, nil
}

// collect scans every row with scan and closes rows
func collect[T any](rows pgx.Rows, err error, what string, scan func(rowScanner) (*T, error)) ([]*T, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return out, nil
}
