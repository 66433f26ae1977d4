package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// MockGateway implements PaymentGateway and TransferProvider in process.
// Outcomes are derived from the reference, so repeated calls agree.
type MockGateway struct {
	config    *MockGatewayConfig
	checkouts sync.Map // reference -> *mockCheckout
	transfers sync.Map // reference -> *TransferResult
	mu        sync.RWMutex
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// SuccessRate is the share of references that settle successfully (0.0 to 1.0)
	SuccessRate float64

	// DelayMs is the simulated provider latency in milliseconds
	DelayMs int

	// CheckoutURL is the base of the generated authorization urls
	CheckoutURL string

	// AccountName is returned by ResolveAccount
	AccountName string

	// FailureReason is reported for failed charges
	FailureReason string
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		SuccessRate:   1.0,
		DelayMs:       0,
		CheckoutURL:   "https://checkout.mock.local/pay/",
		AccountName:   "Mock Account Holder",
		FailureReason: "Declined",
	}
}

type mockCheckout struct {
	amount int64
	status VerifyStatus
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}

	// Validate success rate
	if config.SuccessRate < 0 {
		config.SuccessRate = 0
	}
	if config.SuccessRate > 1 {
		config.SuccessRate = 1
	}

	return &MockGateway{config: config}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// Initialize records a checkout and returns a fake authorization url
func (g *MockGateway) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("initialize request is required")
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	status := VerifyFailed
	if g.succeeds(req.Reference) {
		status = VerifySuccess
	}
	g.checkouts.Store(req.Reference, &mockCheckout{
		amount: domain.ToMinorUnits(req.Amount),
		status: status,
	})

	accessCode := "mock_" + domain.RandomHex(10)
	return &InitializeResult{
		AuthorizationURL: g.config.CheckoutURL + accessCode,
		AccessCode:       accessCode,
		Reference:        req.Reference,
	}, nil
}

// Verify returns the outcome chosen for the reference
func (g *MockGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	v, ok := g.checkouts.Load(reference)
	if !ok {
		return nil, rejected("verify", "Transaction reference not found", nil)
	}
	co := v.(*mockCheckout)

	res := &VerifyResult{
		Reference:      reference,
		Status:         co.status,
		ProviderStatus: string(co.status),
		Channel:        "mock",
		Amount:         domain.FromMinorUnits(co.amount),
		Raw:            map[string]any{"status": string(co.status), "reference": reference},
	}
	if co.status == VerifySuccess {
		paidAt := time.Now()
		res.PaidAt = &paidAt
		res.GatewayResponse = "Approved"
	} else {
		res.GatewayResponse = g.config.FailureReason
	}
	return res, nil
}

// SetOutcome overrides the outcome of a reference
func (g *MockGateway) SetOutcome(reference string, status VerifyStatus) {
	if v, ok := g.checkouts.Load(reference); ok {
		co := *v.(*mockCheckout)
		co.status = status
		g.checkouts.Store(reference, &co)
		return
	}
	g.checkouts.Store(reference, &mockCheckout{status: status})
}

// SetSuccessRate updates the success rate for new checkouts
func (g *MockGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.config.SuccessRate = rate
}

// CreateRecipient returns a fake recipient code
func (g *MockGateway) CreateRecipient(ctx context.Context, req *RecipientRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("recipient request is required")
	}
	if err := g.delay(ctx); err != nil {
		return "", err
	}
	return "RCP_" + domain.RandomHex(12), nil
}

// InitiateTransfer accepts every transfer as pending. A repeated reference returns
// the transfer already created for it.
func (g *MockGateway) InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req == nil {
		return nil, fmt.Errorf("transfer request is required")
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	if v, ok := g.transfers.Load(req.Reference); ok {
		copied := *v.(*TransferResult)
		return &copied, nil
	}

	res := &TransferResult{
		TransferCode: "TRF_" + domain.RandomHex(12),
		Reference:    req.Reference,
		Status:       TransferPending,
		Reason:       req.Reason,
	}
	res.Raw = map[string]any{
		"transfer_code": res.TransferCode,
		"reference":     res.Reference,
		"status":        string(res.Status),
		"amount":        domain.ToMinorUnits(req.Amount),
	}
	g.transfers.Store(res.Reference, res)

	copied := *res
	return &copied, nil
}

// VerifyTransfer returns the stored transfer state
func (g *MockGateway) VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	v, ok := g.transfers.Load(reference)
	if !ok {
		return nil, rejected("verify_transfer", "Transfer not found", ErrTransferNotFound)
	}
	copied := *v.(*TransferResult)
	return &copied, nil
}

// SetTransferStatus moves the transfer sent with reference to status, as the provider would
func (g *MockGateway) SetTransferStatus(reference string, status TransferStatus) {
	if v, ok := g.transfers.Load(reference); ok {
		updated := *v.(*TransferResult)
		updated.Status = status
		g.transfers.Store(reference, &updated)
	}
}

// ResolveAccount resolves every account to the configured holder name
func (g *MockGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	if accountNumber == "" {
		return nil, rejected("resolve_account", "Could not resolve account name", nil)
	}
	return &ResolvedAccount{AccountNumber: accountNumber, AccountName: g.config.AccountName}, nil
}

func (g *MockGateway) succeeds(reference string) bool {
	g.mu.RLock()
	rate := g.config.SuccessRate
	g.mu.RUnlock()

	h := fnv.New32a()
	_, _ = h.Write([]byte(reference))
	return float64(h.Sum32()%1000) < rate*1000
}

func (g *MockGateway) delay(ctx context.Context) error {
	if g.config.DelayMs <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		return nil
	}
}
