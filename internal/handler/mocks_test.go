package handler

import (
	"context"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
)

// MockReservationService is a mock implementation of ReservationService for testing
type MockReservationService struct {
	InitiatePurchaseFunc  func(ctx context.Context, buyerID string, req *dto.InitiatePurchaseRequest) (*dto.InitiatePurchaseResponse, error)
	GetPurchaseStatusFunc func(ctx context.Context, buyerID, purchaseID string) (*dto.PurchaseStatusResponse, error)
	CancelPurchaseFunc    func(ctx context.Context, buyerID, purchaseID string) (*dto.CancelPurchaseResponse, error)
}

func (m *MockReservationService) InitiatePurchase(ctx context.Context, buyerID string, req *dto.InitiatePurchaseRequest) (*dto.InitiatePurchaseResponse, error) {
	if m.InitiatePurchaseFunc != nil {
		return m.InitiatePurchaseFunc(ctx, buyerID, req)
	}
	return nil, nil
}

func (m *MockReservationService) GetPurchaseStatus(ctx context.Context, buyerID, purchaseID string) (*dto.PurchaseStatusResponse, error) {
	if m.GetPurchaseStatusFunc != nil {
		return m.GetPurchaseStatusFunc(ctx, buyerID, purchaseID)
	}
	return nil, nil
}

func (m *MockReservationService) CancelPurchase(ctx context.Context, buyerID, purchaseID string) (*dto.CancelPurchaseResponse, error) {
	if m.CancelPurchaseFunc != nil {
		return m.CancelPurchaseFunc(ctx, buyerID, purchaseID)
	}
	return nil, nil
}

func (m *MockReservationService) ExpireStale(ctx context.Context, now time.Time, batch int) (int, error) {
	return 0, nil
}

// MockSettlementService is a mock implementation of SettlementService for testing
type MockSettlementService struct {
	VerifyPaymentFunc       func(ctx context.Context, reference string) (*dto.SettlementResponse, error)
	HandleChargeWebhookFunc func(ctx context.Context, evt *gateway.WebhookEvent) error
	ResendTicketsFunc       func(ctx context.Context, buyerID, purchaseID string) (*dto.ResendTicketsResponse, error)
}

func (m *MockSettlementService) VerifyPayment(ctx context.Context, reference string) (*dto.SettlementResponse, error) {
	if m.VerifyPaymentFunc != nil {
		return m.VerifyPaymentFunc(ctx, reference)
	}
	return nil, nil
}

func (m *MockSettlementService) HandleChargeWebhook(ctx context.Context, evt *gateway.WebhookEvent) error {
	if m.HandleChargeWebhookFunc != nil {
		return m.HandleChargeWebhookFunc(ctx, evt)
	}
	return nil
}

func (m *MockSettlementService) ResendTickets(ctx context.Context, buyerID, purchaseID string) (*dto.ResendTicketsResponse, error) {
	if m.ResendTicketsFunc != nil {
		return m.ResendTicketsFunc(ctx, buyerID, purchaseID)
	}
	return nil, nil
}

// MockWithdrawalService is a mock implementation of WithdrawalService for testing
type MockWithdrawalService struct {
	RequestWithdrawalFunc     func(ctx context.Context, organizerID string, req *dto.RequestWithdrawalRequest) (*domain.WithdrawalRequest, error)
	ProcessWithdrawalFunc     func(ctx context.Context, withdrawalID string) (*domain.WithdrawalRequest, error)
	HandleTransferWebhookFunc func(ctx context.Context, evt *gateway.WebhookEvent) error
	CancelWithdrawalFunc      func(ctx context.Context, organizerID, withdrawalID string) error
	RejectWithdrawalFunc      func(ctx context.Context, withdrawalID, notes string) (*domain.WithdrawalRequest, error)
	ListWithdrawalsFunc       func(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error)
}

func (m *MockWithdrawalService) RequestWithdrawal(ctx context.Context, organizerID string, req *dto.RequestWithdrawalRequest) (*domain.WithdrawalRequest, error) {
	if m.RequestWithdrawalFunc != nil {
		return m.RequestWithdrawalFunc(ctx, organizerID, req)
	}
	return nil, nil
}

func (m *MockWithdrawalService) ProcessWithdrawal(ctx context.Context, withdrawalID string) (*domain.WithdrawalRequest, error) {
	if m.ProcessWithdrawalFunc != nil {
		return m.ProcessWithdrawalFunc(ctx, withdrawalID)
	}
	return nil, nil
}

func (m *MockWithdrawalService) HandleTransferWebhook(ctx context.Context, evt *gateway.WebhookEvent) error {
	if m.HandleTransferWebhookFunc != nil {
		return m.HandleTransferWebhookFunc(ctx, evt)
	}
	return nil
}

func (m *MockWithdrawalService) CancelWithdrawal(ctx context.Context, organizerID, withdrawalID string) error {
	if m.CancelWithdrawalFunc != nil {
		return m.CancelWithdrawalFunc(ctx, organizerID, withdrawalID)
	}
	return nil
}

func (m *MockWithdrawalService) RejectWithdrawal(ctx context.Context, withdrawalID, notes string) (*domain.WithdrawalRequest, error) {
	if m.RejectWithdrawalFunc != nil {
		return m.RejectWithdrawalFunc(ctx, withdrawalID, notes)
	}
	return nil, nil
}

func (m *MockWithdrawalService) ListWithdrawals(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	if m.ListWithdrawalsFunc != nil {
		return m.ListWithdrawalsFunc(ctx, organizerID, limit, offset)
	}
	return nil, nil
}

func (m *MockWithdrawalService) ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// MockRevenueService is a mock implementation of RevenueService for testing
type MockRevenueService struct {
	BalancesFunc    func(ctx context.Context, organizerID string) (*domain.RevenueSummary, error)
	ListEntriesFunc func(ctx context.Context, organizerID string, filter repository.RevenueFilter) ([]*domain.OrganizerRevenue, error)
}

func (m *MockRevenueService) Balances(ctx context.Context, organizerID string) (*domain.RevenueSummary, error) {
	if m.BalancesFunc != nil {
		return m.BalancesFunc(ctx, organizerID)
	}
	return &domain.RevenueSummary{OrganizerID: organizerID}, nil
}

func (m *MockRevenueService) ReleaseMatured(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (m *MockRevenueService) ListEntries(ctx context.Context, organizerID string, filter repository.RevenueFilter) ([]*domain.OrganizerRevenue, error) {
	if m.ListEntriesFunc != nil {
		return m.ListEntriesFunc(ctx, organizerID, filter)
	}
	return nil, nil
}

// MockPaymentProfileService is a mock implementation of PaymentProfileService for testing
type MockPaymentProfileService struct {
	CreateFunc func(ctx context.Context, organizerID string, req *dto.CreatePaymentProfileRequest) (*domain.PaymentProfile, error)
	GetFunc    func(ctx context.Context, organizerID, profileID string) (*domain.PaymentProfile, error)
	VerifyFunc func(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error)
}

func (m *MockPaymentProfileService) Create(ctx context.Context, organizerID string, req *dto.CreatePaymentProfileRequest) (*domain.PaymentProfile, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, organizerID, req)
	}
	return nil, nil
}

func (m *MockPaymentProfileService) Get(ctx context.Context, organizerID, profileID string) (*domain.PaymentProfile, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, organizerID, profileID)
	}
	return nil, nil
}

func (m *MockPaymentProfileService) Verify(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, organizerID, profileID, isRetry)
	}
	return nil, nil
}

// MockTicketService is a mock implementation of TicketService for testing
type MockTicketService struct {
	CheckInFunc func(ctx context.Context, ticketID, actorID string) (*dto.CheckInResponse, error)
}

func (m *MockTicketService) CheckIn(ctx context.Context, ticketID, actorID string) (*dto.CheckInResponse, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, ticketID, actorID)
	}
	return nil, nil
}
