package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockPaymentGateway is a mock implementation of gateway.PaymentGateway
type MockPaymentGateway struct {
	InitializeFunc func(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error)
	VerifyFunc     func(ctx context.Context, reference string) (*gateway.VerifyResult, error)

	mu          sync.Mutex
	initialized []*gateway.InitializeRequest
	verified    []string
}

func (m *MockPaymentGateway) Name() string { return "mock" }

func (m *MockPaymentGateway) Initialize(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	m.mu.Lock()
	m.initialized = append(m.initialized, req)
	m.mu.Unlock()
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, req)
	}
	return &gateway.InitializeResult{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "AC_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (m *MockPaymentGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	m.mu.Lock()
	m.verified = append(m.verified, reference)
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, reference)
	}
	return &gateway.VerifyResult{Reference: reference, Status: gateway.VerifySuccess, Channel: "card"}, nil
}

func (m *MockPaymentGateway) verifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.verified)
}

// MockTransferProvider is a mock implementation of gateway.TransferProvider
type MockTransferProvider struct {
	CreateRecipientFunc  func(ctx context.Context, req *gateway.RecipientRequest) (string, error)
	InitiateTransferFunc func(ctx context.Context, req *gateway.TransferRequest) (*gateway.TransferResult, error)
	VerifyTransferFunc   func(ctx context.Context, reference string) (*gateway.TransferResult, error)
	ResolveAccountFunc   func(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error)

	mu        sync.Mutex
	transfers []*gateway.TransferRequest
}

func (m *MockTransferProvider) CreateRecipient(ctx context.Context, req *gateway.RecipientRequest) (string, error) {
	if m.CreateRecipientFunc != nil {
		return m.CreateRecipientFunc(ctx, req)
	}
	return "RCP_test", nil
}

func (m *MockTransferProvider) InitiateTransfer(ctx context.Context, req *gateway.TransferRequest) (*gateway.TransferResult, error) {
	m.mu.Lock()
	m.transfers = append(m.transfers, req)
	m.mu.Unlock()
	if m.InitiateTransferFunc != nil {
		return m.InitiateTransferFunc(ctx, req)
	}
	return &gateway.TransferResult{TransferCode: "TRF_test", Reference: req.Reference, Status: gateway.TransferPending}, nil
}

func (m *MockTransferProvider) VerifyTransfer(ctx context.Context, reference string) (*gateway.TransferResult, error) {
	if m.VerifyTransferFunc != nil {
		return m.VerifyTransferFunc(ctx, reference)
	}
	return &gateway.TransferResult{TransferCode: "TRF_test", Reference: reference, Status: gateway.TransferPending}, nil
}

func (m *MockTransferProvider) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

func (m *MockTransferProvider) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
	if m.ResolveAccountFunc != nil {
		return m.ResolveAccountFunc(ctx, accountNumber, bankCode)
	}
	return &gateway.ResolvedAccount{AccountNumber: accountNumber, AccountName: "Kofi Mensah"}, nil
}

// recordingHooks collects committed events
type recordingHooks struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingHooks) hooks() *event.Hooks {
	return event.NewHooks(nil).Register("record", func(ctx context.Context, evt *event.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, evt)
		return nil
	})
}

func (r *recordingHooks) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture wires the purchase services against an in-memory store
type fixture struct {
	store      *repository.MemoryStore
	gateway    *MockPaymentGateway
	recorder   *recordingHooks
	clock      time.Time
	inventory  InventoryService
	reserve    ReservationService
	settlement SettlementService
	event      *domain.Event
	ticketType *domain.TicketType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		gateway:  &MockPaymentGateway{},
		recorder: &recordingHooks{},
		clock:    testNow,
	}
	clock := func() time.Time { return f.clock }
	hooks := f.recorder.hooks()

	f.inventory = NewInventoryService(f.store)
	f.reserve = NewReservationService(f.store, f.inventory, f.gateway, hooks, nil, &ReservationServiceConfig{Clock: clock})
	f.settlement = NewSettlementService(f.store, f.inventory, f.gateway, hooks, nil, &SettlementServiceConfig{Clock: clock})

	f.event = &domain.Event{
		ID:          "evt-1",
		OrganizerID: "org-1",
		Title:       "Highlife Night",
		Status:      domain.EventStatusPublished,
		StartsAt:    testNow.Add(48 * time.Hour),
		EndsAt:      testNow.Add(52 * time.Hour),
	}
	f.ticketType = &domain.TicketType{
		ID:          "tt-1",
		EventID:     "evt-1",
		Name:        "Regular",
		Price:       dec("100"),
		Capacity:    5,
		MinPurchase: 1,
		MaxPurchase: 5,
		IsActive:    true,
	}
	ctx := context.Background()
	require.NoError(t, f.store.Repos().Events.Create(ctx, f.event))
	require.NoError(t, f.store.Repos().TicketTypes.Create(ctx, f.ticketType))
	return f
}

func (f *fixture) request(qty int) *dto.InitiatePurchaseRequest {
	return &dto.InitiatePurchaseRequest{
		EventID:      f.event.ID,
		TicketTypeID: f.ticketType.ID,
		Quantity:     qty,
		BuyerName:    "Ama Owusu",
		BuyerEmail:   "ama@example.com",
		BuyerPhone:   "+233241234567",
	}
}

func (f *fixture) purchase(t *testing.T, qty int) *dto.InitiatePurchaseResponse {
	t.Helper()
	resp, err := f.reserve.InitiatePurchase(context.Background(), "buyer-1", f.request(qty))
	require.NoError(t, err)
	return resp
}

func (f *fixture) sold(t *testing.T) int {
	t.Helper()
	tt, err := f.store.Repos().TicketTypes.GetByID(context.Background(), f.ticketType.ID)
	require.NoError(t, err)
	return tt.Sold
}

func (f *fixture) tickets(t *testing.T, purchaseID string) []*domain.Ticket {
	t.Helper()
	tickets, err := f.store.Repos().Tickets.ListByPurchase(context.Background(), purchaseID)
	require.NoError(t, err)
	return tickets
}

func (f *fixture) revenue(t *testing.T) []*domain.OrganizerRevenue {
	t.Helper()
	entries, err := f.store.Repos().Revenue.ListByOrganizer(context.Background(), f.event.OrganizerID, repository.RevenueFilter{})
	require.NoError(t, err)
	return entries
}
