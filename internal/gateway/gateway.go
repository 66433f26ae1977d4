// Package gateway adapts external payment and payout providers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// PaymentGateway collects buyer payments
type PaymentGateway interface {
	// Initialize opens a checkout for the reference and returns where to send the buyer
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)

	// Verify asks the provider for the outcome of a checkout
	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// Name returns the provider name stored on payments
	Name() string
}

// TransferProvider pays organizers out
type TransferProvider interface {
	// CreateRecipient registers a payout destination and returns its recipient code
	CreateRecipient(ctx context.Context, req *RecipientRequest) (string, error)

	// InitiateTransfer starts a transfer from the platform balance
	InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)

	// VerifyTransfer fetches the current state of the transfer sent with reference.
	// It returns an error wrapping ErrTransferNotFound when the provider has none.
	VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error)

	// ResolveAccount looks up the holder name of a bank account
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
}

// InitializeRequest opens a checkout
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Description string
	Metadata    map[string]string
}

// InitializeResult is returned by Initialize
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyStatus is the normalized outcome of a checkout
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

// VerifyResult is returned by Verify
type VerifyResult struct {
	Reference       string
	Status          VerifyStatus
	ProviderStatus  string
	Channel         string
	Amount          decimal.Decimal
	PaidAt          *time.Time
	GatewayResponse string
	Raw             map[string]any
}

// RecipientRequest describes a payout destination
type RecipientRequest struct {
	Type          string // nuban or mobile_money
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

// TransferRequest starts a payout
type TransferRequest struct {
	Amount        decimal.Decimal
	RecipientCode string
	Reference     string
	Reason        string
	Currency      string
}

// TransferStatus is the normalized state of a transfer
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferSuccess  TransferStatus = "success"
	TransferFailed   TransferStatus = "failed"
	TransferReversed TransferStatus = "reversed"
)

// TransferResult is returned by InitiateTransfer and VerifyTransfer
type TransferResult struct {
	TransferCode string
	Reference    string
	Status       TransferStatus
	Reason       string
	Raw          map[string]any
}

// ResolvedAccount is returned by ResolveAccount
type ResolvedAccount struct {
	AccountNumber string
	AccountName   string
}

// ErrorKind separates retryable provider failures from final ones
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindRejected  ErrorKind = "rejected"
)

// Error is a classified provider failure
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap exposes both the domain sentinel for the kind and the cause
func (e *Error) Unwrap() []error {
	sentinel := domain.ErrGatewayRejected
	if e.Kind == KindTransient {
		sentinel = domain.ErrGatewayTransient
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func transient(op, msg string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: msg, Err: err}
}

func rejected(op, msg string, err error) *Error {
	return &Error{Kind: KindRejected, Op: op, Message: msg, Err: err}
}

// ErrTransferNotFound means the provider holds no transfer for a reference
var ErrTransferNotFound = errors.New("transfer not found")

// IsTransient reports whether err is a provider failure worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrGatewayTransient)
}

// Reason returns the provider message of a classified error, or err's text
func Reason(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return err.Error()
}
