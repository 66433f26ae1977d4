package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *PaystackClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewPaystackClient(&PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewPaystackClient_RequiresSecret(t *testing.T) {
	_, err := NewPaystackClient(&PaystackConfig{})
	assert.Error(t, err)

	_, err = NewPaystackClient(nil)
	assert.Error(t, err)
}

func TestPaystack_Initialize(t *testing.T) {
	var got map[string]any
	c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "CAFA-ORD-1-AAAAAA",
			},
		})
	})

	res, err := c.Initialize(context.Background(), &InitializeRequest{
		Email:     "buyer@example.com",
		Amount:    decimal.RequireFromString("210.50"),
		Currency:  "GHS",
		Reference: "CAFA-ORD-1-AAAAAA",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "abc", res.AccessCode)
	assert.Equal(t, float64(21050), got["amount"], "amount is sent in minor units")
	assert.Equal(t, "GHS", got["currency"])
}

func TestPaystack_Verify(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected VerifyStatus
	}{
		{"success", "success", VerifySuccess},
		{"failed", "failed", VerifyFailed},
		{"reversed", "reversed", VerifyFailed},
		{"abandoned is still open", "abandoned", VerifyPending},
		{"ongoing", "ongoing", VerifyPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/REF-1", r.URL.Path)
				writeJSON(w, http.StatusOK, map[string]any{
					"status":  true,
					"message": "Verification successful",
					"data": map[string]any{
						"status":           tt.status,
						"reference":        "REF-1",
						"amount":           10500,
						"channel":          "card",
						"gateway_response": "Approved",
						"paid_at":          "2025-03-01T12:00:00Z",
					},
				})
			})

			res, err := c.Verify(context.Background(), "REF-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Status)
			assert.Equal(t, "card", res.Channel)
			assert.True(t, decimal.NewFromInt(105).Equal(res.Amount))
			require.NotNil(t, res.PaidAt)
			assert.Equal(t, tt.status, res.Raw["status"])
		})
	}
}

func TestPaystack_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		transient bool
		message   string
	}{
		{"server error", http.StatusBadGateway, map[string]any{"status": false, "message": "upstream"}, true, "upstream"},
		{"rate limited", http.StatusTooManyRequests, map[string]any{"status": false}, true, "429 Too Many Requests"},
		{"bad request", http.StatusBadRequest, map[string]any{"status": false, "message": "Invalid key"}, false, "Invalid key"},
		{"status false", http.StatusOK, map[string]any{"status": false, "message": "Duplicate reference"}, false, "Duplicate reference"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.Verify(context.Background(), "REF-1")
			require.Error(t, err)

			var gwErr *Error
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, tt.message, gwErr.Message)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, errors.Is(err, domain.ErrGatewayRejected))
			assert.True(t, domain.IsGatewayError(err))
		})
	}
}

func TestPaystack_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewPaystackClient(&PaystackConfig{SecretKey: "sk_test", BaseURL: url})
	require.NoError(t, err)

	_, err = c.Verify(context.Background(), "REF-1")
	assert.True(t, IsTransient(err))
}

func TestPaystack_Transfers(t *testing.T) {
	c := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transferrecipient":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "mobile_money", body["type"])
			assert.Equal(t, "MTN", body["bank_code"])
			writeJSON(w, http.StatusCreated, map[string]any{
				"status": true,
				"data":   map[string]any{"recipient_code": "RCP_1"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/transfer":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "balance", body["source"])
			assert.Equal(t, float64(49000), body["amount"])
			assert.Equal(t, "Withdrawal: w-1", body["reason"])
			writeJSON(w, http.StatusOK, map[string]any{
				"status": true,
				"data":   map[string]any{"transfer_code": "TRF_1", "reference": "w-1", "status": "pending"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/transfer/verify/w-1":
			writeJSON(w, http.StatusOK, map[string]any{
				"status": true,
				"data":   map[string]any{"transfer_code": "TRF_1", "reference": "w-1", "status": "reversed"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/bank/resolve":
			assert.Equal(t, "0123456789", r.URL.Query().Get("account_number"))
			assert.Equal(t, "GCB", r.URL.Query().Get("bank_code"))
			writeJSON(w, http.StatusOK, map[string]any{
				"status": true,
				"data":   map[string]any{"account_number": "0123456789", "account_name": "KOFI MENSAH"},
			})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	code, err := c.CreateRecipient(ctx, &RecipientRequest{
		Type: "mobile_money", Name: "Kofi", AccountNumber: "0241234567", BankCode: "MTN", Currency: "GHS",
	})
	require.NoError(t, err)
	assert.Equal(t, "RCP_1", code)

	tr, err := c.InitiateTransfer(ctx, &TransferRequest{
		Amount: decimal.NewFromInt(490), RecipientCode: code, Reference: "w-1", Reason: "Withdrawal: w-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRF_1", tr.TransferCode)
	assert.Equal(t, TransferPending, tr.Status)

	tr, err = c.VerifyTransfer(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, TransferReversed, tr.Status)
	assert.Equal(t, "TRF_1", tr.TransferCode)

	_, err = c.VerifyTransfer(ctx, "w-unknown")
	assert.ErrorIs(t, err, ErrTransferNotFound)
	assert.False(t, IsTransient(err))

	acct, err := c.ResolveAccount(ctx, "0123456789", "GCB")
	require.NoError(t, err)
	assert.Equal(t, "KOFI MENSAH", acct.AccountName)
}

func TestTransferStatusOf(t *testing.T) {
	assert.Equal(t, TransferSuccess, TransferStatusOf("success"))
	assert.Equal(t, TransferFailed, TransferStatusOf("failed"))
	assert.Equal(t, TransferReversed, TransferStatusOf("reversed"))
	assert.Equal(t, TransferPending, TransferStatusOf("otp"))
}
