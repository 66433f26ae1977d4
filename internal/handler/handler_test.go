package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/response"
)

const (
	testSecret        = "test-jwt-secret"
	testIssuer        = "cafa-tickets"
	testWebhookSecret = "sk_test_webhook"
)

type testServices struct {
	reservations *MockReservationService
	settlement   *MockSettlementService
	withdrawals  *MockWithdrawalService
	revenue      *MockRevenueService
	profiles     *MockPaymentProfileService
	tickets      *MockTicketService
	checks       map[string]HealthCheck
}

func newTestServices() *testServices {
	return &testServices{
		reservations: &MockReservationService{},
		settlement:   &MockSettlementService{},
		withdrawals:  &MockWithdrawalService{},
		revenue:      &MockRevenueService{},
		profiles:     &MockPaymentProfileService{},
		tickets:      &MockTicketService{},
	}
}

func (s *testServices) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&Handlers{
		Health:          NewHealthHandler(s.checks),
		Purchase:        NewPurchaseHandler(s.reservations, s.settlement),
		Webhook:         NewWebhookHandler(s.settlement, s.withdrawals, testWebhookSecret, nil),
		Payout:          NewPayoutHandler(s.revenue, s.withdrawals),
		PaymentProfiles: NewPaymentProfileHandler(s.profiles),
		Tickets:         NewTicketHandler(s.tickets),
	}, &RouterConfig{
		ServiceName: "cafa-tickets-test",
		JWTSecret:   testSecret,
		JWTIssuer:   testIssuer,
	})
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     testIssuer,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorData `json:"error"`
}

func do(t *testing.T, router *gin.Engine, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func validPurchaseBody() map[string]any {
	return map[string]any{
		"event_id":       "evt-1",
		"ticket_type_id": "tt-1",
		"quantity":       2,
		"buyer_name":     "Ama Mensah",
		"buyer_email":    "ama@example.com",
		"buyer_phone":    "+233241234567",
	}
}

func TestPurchaseHandler_InitiatePurchase(t *testing.T) {
	tests := []struct {
		name       string
		bearer     bool
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "missing token", body: validPurchaseBody(), wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "malformed body", bearer: true, body: `{"event_id":`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "missing quantity", bearer: true, body: map[string]any{"event_id": "evt-1"}, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "validation error", bearer: true, body: validPurchaseBody(), serviceErr: domain.ErrInvalidPhone, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "sold out", bearer: true, body: validPurchaseBody(), serviceErr: fmt.Errorf("reserve: %w", domain.ErrInsufficientInventory), wantStatus: http.StatusConflict, wantCode: "TICKETS_UNAVAILABLE"},
		{name: "unknown ticket type", bearer: true, body: validPurchaseBody(), serviceErr: domain.ErrTicketTypeNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "provider down", bearer: true, body: validPurchaseBody(), serviceErr: &gateway.Error{Kind: gateway.KindTransient, Op: "initialize", Message: "provider timeout"}, wantStatus: http.StatusBadGateway, wantCode: "PAYMENT_PROVIDER_ERROR"},
		{name: "unexpected error", bearer: true, body: validPurchaseBody(), serviceErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{name: "created", bearer: true, body: validPurchaseBody(), wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcs := newTestServices()
			var gotBuyer string
			svcs.reservations.InitiatePurchaseFunc = func(ctx context.Context, buyerID string, req *dto.InitiatePurchaseRequest) (*dto.InitiatePurchaseResponse, error) {
				gotBuyer = buyerID
				if tt.serviceErr != nil {
					return nil, tt.serviceErr
				}
				return &dto.InitiatePurchaseResponse{PurchaseID: "ORD-1", Status: "reserved", Payment: dto.PaymentInfo{Reference: "ref-1"}}, nil
			}

			bearer := ""
			if tt.bearer {
				bearer = token(t, "buyer-1", "")
			}
			w, env := do(t, svcs.router(), http.MethodPost, "/api/v1/purchases", bearer, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				return
			}
			assert.True(t, env.Success)
			assert.Equal(t, "buyer-1", gotBuyer)

			var out dto.InitiatePurchaseResponse
			require.NoError(t, json.Unmarshal(env.Data, &out))
			assert.Equal(t, "ORD-1", out.PurchaseID)
		})
	}
}

func TestPurchaseHandler_StatusCancelResend(t *testing.T) {
	svcs := newTestServices()
	svcs.reservations.GetPurchaseStatusFunc = func(ctx context.Context, buyerID, purchaseID string) (*dto.PurchaseStatusResponse, error) {
		if purchaseID != "ORD-1" || buyerID != "buyer-1" {
			return nil, domain.ErrPurchaseNotFound
		}
		return &dto.PurchaseStatusResponse{PurchaseID: purchaseID, Status: "pending"}, nil
	}
	svcs.reservations.CancelPurchaseFunc = func(ctx context.Context, buyerID, purchaseID string) (*dto.CancelPurchaseResponse, error) {
		return nil, domain.ErrPurchaseNotCancellable
	}
	svcs.settlement.ResendTicketsFunc = func(ctx context.Context, buyerID, purchaseID string) (*dto.ResendTicketsResponse, error) {
		return &dto.ResendTicketsResponse{PurchaseID: purchaseID, Email: "ama@example.com", TicketCount: 2}, nil
	}
	router := svcs.router()
	buyer := token(t, "buyer-1", "")

	w, env := do(t, router, http.MethodGet, "/api/v1/purchases/ORD-1/status", buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"pending"`)

	w, _ = do(t, router, http.MethodGet, "/api/v1/purchases/ORD-1/status", token(t, "buyer-2", ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/purchases/ORD-1/cancel", buyer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/purchases/ORD-1/resend-tickets", buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"ticket_count":2`)
}

func TestPurchaseHandler_VerifyPayment(t *testing.T) {
	svcs := newTestServices()
	svcs.settlement.VerifyPaymentFunc = func(ctx context.Context, reference string) (*dto.SettlementResponse, error) {
		if reference == "down" {
			return nil, &gateway.Error{Kind: gateway.KindTransient, Op: "verify", Message: "provider timeout"}
		}
		return &dto.SettlementResponse{Reference: reference, Status: "completed", Amount: decimal.NewFromInt(210)}, nil
	}
	router := svcs.router()

	w, env := do(t, router, http.MethodGet, "/api/v1/payments/verify/ref-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "no token needed for the checkout callback")
	assert.Contains(t, string(env.Data), `"status":"completed"`)

	w, env = do(t, router, http.MethodGet, "/api/v1/payments/verify/down", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "provider timeout", env.Error.Message)
}

func signedRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader([]byte(body)))
	if signature != "" {
		req.Header.Set(gateway.SignatureHeader, signature)
	}
	return req
}

func TestWebhookHandler_Payment(t *testing.T) {
	body := `{"event":"charge.success","data":{"reference":"ref-1","status":"success","amount":21000}}`

	tests := []struct {
		name       string
		body       string
		signature  string
		processErr error
		wantStatus int
		wantCalled bool
	}{
		{name: "missing signature", body: body, wantStatus: http.StatusBadRequest},
		{name: "wrong signature", body: body, signature: gateway.Sign("other-secret", []byte(body)), wantStatus: http.StatusBadRequest},
		{name: "tampered body", body: body, signature: gateway.Sign(testWebhookSecret, []byte(`{"event":"charge.success"}`)), wantStatus: http.StatusBadRequest},
		{name: "signed but not json", body: "nope", signature: gateway.Sign(testWebhookSecret, []byte("nope")), wantStatus: http.StatusBadRequest},
		{name: "processing error is retried", body: body, signature: gateway.Sign(testWebhookSecret, []byte(body)), processErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCalled: true},
		{name: "processed", body: body, signature: gateway.Sign(testWebhookSecret, []byte(body)), wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcs := newTestServices()
			var got *gateway.WebhookEvent
			svcs.settlement.HandleChargeWebhookFunc = func(ctx context.Context, evt *gateway.WebhookEvent) error {
				got = evt
				return tt.processErr
			}

			w := httptest.NewRecorder()
			svcs.router().ServeHTTP(w, signedRequest(tt.body, tt.signature))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalled, got != nil)
			if got != nil {
				assert.Equal(t, gateway.EventChargeSuccess, got.Event)
			}
		})
	}
}

func TestWebhookHandler_Transfer(t *testing.T) {
	svcs := newTestServices()
	var got *gateway.WebhookEvent
	svcs.withdrawals.HandleTransferWebhookFunc = func(ctx context.Context, evt *gateway.WebhookEvent) error {
		got = evt
		return nil
	}
	svcs.settlement.HandleChargeWebhookFunc = func(ctx context.Context, evt *gateway.WebhookEvent) error {
		t.Fatal("transfer events must not reach settlement")
		return nil
	}

	body := `{"event":"transfer.success","data":{"reference":"wd-1","transfer_code":"TRF_1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack/transfer", bytes.NewReader([]byte(body)))
	req.Header.Set(gateway.SignatureHeader, gateway.Sign(testWebhookSecret, []byte(body)))
	w := httptest.NewRecorder()
	svcs.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	transfer, err := got.Transfer()
	require.NoError(t, err)
	assert.Equal(t, "wd-1", transfer.Reference)
}

func TestPayoutHandler_Revenue(t *testing.T) {
	svcs := newTestServices()
	var gotFilter repository.RevenueFilter
	svcs.revenue.ListEntriesFunc = func(ctx context.Context, organizerID string, filter repository.RevenueFilter) ([]*domain.OrganizerRevenue, error) {
		gotFilter = filter
		return []*domain.OrganizerRevenue{{ID: "rev-1", Status: domain.RevenueStatusAvailable}}, nil
	}
	svcs.revenue.BalancesFunc = func(ctx context.Context, organizerID string) (*domain.RevenueSummary, error) {
		return &domain.RevenueSummary{OrganizerID: organizerID, AvailableBalance: decimal.NewFromInt(190)}, nil
	}
	router := svcs.router()
	org := token(t, "org-1", "")

	w, env := do(t, router, http.MethodGet, "/api/v1/revenue/stats", org, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"organizer_id":"org-1"`)

	w, env = do(t, router, http.MethodGet, "/api/v1/revenue?status=available&limit=5&offset=10", org, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotFilter.Status)
	assert.Equal(t, domain.RevenueStatusAvailable, *gotFilter.Status)
	assert.Equal(t, 5, gotFilter.Limit)
	assert.Equal(t, 10, gotFilter.Offset)

	var list dto.RevenueListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Entries, 1)

	w, _ = do(t, router, http.MethodGet, "/api/v1/revenue?status=refunded", org, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayoutHandler_Withdrawals(t *testing.T) {
	svcs := newTestServices()
	svcs.withdrawals.RequestWithdrawalFunc = func(ctx context.Context, organizerID string, req *dto.RequestWithdrawalRequest) (*domain.WithdrawalRequest, error) {
		if req.Amount.GreaterThan(decimal.NewFromInt(1000)) {
			return nil, domain.ErrInsufficientBalance
		}
		return &domain.WithdrawalRequest{ID: "wd-1", OrganizerID: organizerID, RequestedAmount: req.Amount, Status: domain.WithdrawalStatusProcessing}, nil
	}
	svcs.withdrawals.CancelWithdrawalFunc = func(ctx context.Context, organizerID, withdrawalID string) error {
		return domain.ErrWithdrawalNotCancellable
	}
	router := svcs.router()
	org := token(t, "org-1", "")

	w, env := do(t, router, http.MethodPost, "/api/v1/withdrawals", org, map[string]any{"payment_profile_id": "pp-1", "amount": "250.00"})
	assert.Equal(t, http.StatusCreated, w.Code)
	var out dto.WithdrawalResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "wd-1", out.ID)
	assert.True(t, out.RequestedAmount.Equal(decimal.NewFromInt(250)))

	w, env = do(t, router, http.MethodPost, "/api/v1/withdrawals", org, map[string]any{"payment_profile_id": "pp-1", "amount": "5000"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ErrInsufficientBalance.Error(), env.Error.Message)

	w, _ = do(t, router, http.MethodDelete, "/api/v1/withdrawals/wd-1", org, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPayoutHandler_RejectRequiresAdmin(t *testing.T) {
	svcs := newTestServices()
	var gotNotes string
	svcs.withdrawals.RejectWithdrawalFunc = func(ctx context.Context, withdrawalID, notes string) (*domain.WithdrawalRequest, error) {
		gotNotes = notes
		return &domain.WithdrawalRequest{ID: withdrawalID, Status: domain.WithdrawalStatusRejected, AdminNotes: notes}, nil
	}
	router := svcs.router()
	body := map[string]any{"admin_notes": "Account under review"}

	w, _ := do(t, router, http.MethodPost, "/api/v1/admin/withdrawals/wd-1/reject", token(t, "org-1", ""), body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, gotNotes)

	w, env := do(t, router, http.MethodPost, "/api/v1/admin/withdrawals/wd-1/reject", token(t, "admin-1", "admin"), body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Account under review", gotNotes)
	assert.Contains(t, string(env.Data), `"status":"rejected"`)
}

func TestPayoutHandler_ProcessWithdrawal(t *testing.T) {
	svcs := newTestServices()
	var processed []string
	svcs.withdrawals.ProcessWithdrawalFunc = func(ctx context.Context, withdrawalID string) (*domain.WithdrawalRequest, error) {
		processed = append(processed, withdrawalID)
		if withdrawalID == "missing" {
			return nil, domain.ErrWithdrawalNotFound
		}
		return &domain.WithdrawalRequest{ID: withdrawalID, Status: domain.WithdrawalStatusProcessing, TransferReference: withdrawalID}, nil
	}
	router := svcs.router()
	admin := token(t, "admin-1", "admin")

	w, _ := do(t, router, http.MethodPost, "/api/v1/admin/withdrawals/wd-1/process", token(t, "org-1", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, processed)

	w, env := do(t, router, http.MethodPost, "/api/v1/admin/withdrawals/wd-1/process", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"processing"`)

	w, _ = do(t, router, http.MethodPost, "/api/v1/admin/withdrawals/missing/process", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"wd-1", "missing"}, processed)
}

func TestPaymentProfileHandler(t *testing.T) {
	profile := &domain.PaymentProfile{
		ID:             "pp-1",
		OrganizerID:    "org-1",
		Method:         domain.PayoutMethodBankTransfer,
		AccountDetails: domain.AccountDetails{AccountName: "Kofi Boateng", AccountNumber: "0123456789", BankCode: "GCB"},
		Status:         domain.VerificationFailed,
		FailureReason:  "Failed after 5 attempts: Could not resolve account name",
	}

	svcs := newTestServices()
	var gotRetry bool
	svcs.profiles.VerifyFunc = func(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error) {
		gotRetry = isRetry
		return profile, fmt.Errorf("%w: could not resolve", domain.ErrVerificationExhausted)
	}
	svcs.profiles.GetFunc = func(ctx context.Context, organizerID, profileID string) (*domain.PaymentProfile, error) {
		return profile, nil
	}
	router := svcs.router()
	org := token(t, "org-1", "")

	w, env := do(t, router, http.MethodPost, "/api/v1/payment-profiles/pp-1/verify?retry=true", org, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, gotRetry)
	assert.Equal(t, "VERIFICATION_EXHAUSTED", env.Error.Code)
	assert.Equal(t, profile.FailureReason, env.Error.Message)
	assert.Contains(t, string(env.Data), `"id":"pp-1"`)

	w, env = do(t, router, http.MethodGet, "/api/v1/payment-profiles/pp-1", org, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "0123456789", "account numbers are masked")

	w, _ = do(t, router, http.MethodPost, "/api/v1/payment-profiles", org, map[string]any{"method": "crypto", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTicketHandler_CheckIn(t *testing.T) {
	svcs := newTestServices()
	svcs.tickets.CheckInFunc = func(ctx context.Context, ticketID, actorID string) (*dto.CheckInResponse, error) {
		if actorID != "org-1" {
			return nil, domain.ErrNotEventOrganizer
		}
		return &dto.CheckInResponse{TicketID: ticketID, Status: "used"}, nil
	}
	router := svcs.router()

	w, _ := do(t, router, http.MethodPost, "/api/v1/tickets/TKT-1/check-in", token(t, "buyer-1", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := do(t, router, http.MethodPost, "/api/v1/tickets/TKT-1/check-in", token(t, "org-1", ""), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"used"`)
}

func TestHealthHandler(t *testing.T) {
	svcs := newTestServices()
	svcs.checks = map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		"kafka":    nil,
	}
	router := svcs.router()

	w, _ := do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "healthy", ready.Components["database"])
	assert.Equal(t, "unhealthy: connection refused", ready.Components["redis"])
	assert.Equal(t, "not configured", ready.Components["kafka"])

	w, _ = do(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
