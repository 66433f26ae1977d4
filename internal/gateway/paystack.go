package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

const (
	defaultPaystackBaseURL = "https://api.paystack.co"
	defaultPaystackTimeout = 10 * time.Second
)

// PaystackConfig holds configuration for the Paystack client
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration

	// HTTPClient overrides the default client built from Timeout
	HTTPClient *http.Client
}

// PaystackClient talks to the Paystack REST API. It serves both buyer
// payments and organizer payouts.
type PaystackClient struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewPaystackClient creates a new Paystack client
func NewPaystackClient(cfg *PaystackConfig) (*PaystackClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("paystack config is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("paystack secret key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid paystack base url %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultPaystackTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &PaystackClient{
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Name returns the gateway name
func (c *PaystackClient) Name() string {
	return "paystack"
}

// envelope is the shape of every Paystack response
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Initialize opens a Paystack checkout
func (c *PaystackClient) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("initialize request is required")
	}

	payload := map[string]any{
		"email":     req.Email,
		"amount":    domain.ToMinorUnits(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data initializeData
	if _, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}

	ref := data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        ref,
	}, nil
}

type verifyData struct {
	Status          string  `json:"status"`
	Reference       string  `json:"reference"`
	Amount          int64   `json:"amount"`
	Channel         string  `json:"channel"`
	GatewayResponse string  `json:"gateway_response"`
	PaidAt          *string `json:"paid_at"`
}

// Verify fetches the outcome of a checkout
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	var data verifyData
	raw, err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		Reference:       reference,
		Status:          chargeStatus(data.Status),
		ProviderStatus:  data.Status,
		Channel:         data.Channel,
		Amount:          domain.FromMinorUnits(data.Amount),
		GatewayResponse: data.GatewayResponse,
		Raw:             raw,
	}
	if data.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *data.PaidAt); err == nil {
			res.PaidAt = &t
		}
	}
	return res, nil
}

// chargeStatus normalizes a Paystack transaction status. "abandoned" is
// reported for checkouts the buyer has not finished yet.
func chargeStatus(s string) VerifyStatus {
	switch s {
	case "success":
		return VerifySuccess
	case "failed", "reversed":
		return VerifyFailed
	default:
		return VerifyPending
	}
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

// CreateRecipient registers a transfer recipient
func (c *PaystackClient) CreateRecipient(ctx context.Context, req *RecipientRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("recipient request is required")
	}

	payload := map[string]any{
		"type":           req.Type,
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	}

	var data recipientData
	if _, err := c.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", rejected("create_recipient", "no recipient code returned", nil)
	}
	return data.RecipientCode, nil
}

type transferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

// InitiateTransfer starts a transfer from the Paystack balance
func (c *PaystackClient) InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req == nil {
		return nil, fmt.Errorf("transfer request is required")
	}

	payload := map[string]any{
		"source":    "balance",
		"amount":    domain.ToMinorUnits(req.Amount),
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	if req.Currency != "" {
		payload["currency"] = req.Currency
	}

	var data transferData
	raw, err := c.do(ctx, "transfer", http.MethodPost, "/transfer", payload, &data)
	if err != nil {
		return nil, err
	}
	return newTransferResult(&data, raw), nil
}

// VerifyTransfer fetches a transfer by the reference it was initiated with
func (c *PaystackClient) VerifyTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("transfer reference is required")
	}

	var data transferData
	raw, err := c.do(ctx, "verify_transfer", http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data)
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Kind == KindRejected &&
		(gwErr.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(gwErr.Message), "not found")) {
		gwErr.Err = ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return newTransferResult(&data, raw), nil
}

func newTransferResult(data *transferData, raw map[string]any) *TransferResult {
	return &TransferResult{
		TransferCode: data.TransferCode,
		Reference:    data.Reference,
		Status:       TransferStatusOf(data.Status),
		Reason:       data.Reason,
		Raw:          raw,
	}
}

// TransferStatusOf normalizes a Paystack transfer status
func TransferStatusOf(s string) TransferStatus {
	switch s {
	case "success":
		return TransferSuccess
	case "failed", "abandoned", "rejected":
		return TransferFailed
	case "reversed":
		return TransferReversed
	default:
		return TransferPending
	}
}

type resolveData struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// ResolveAccount looks up the holder of a bank account
func (c *PaystackClient) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)

	var data resolveData
	if _, err := c.do(ctx, "resolve_account", http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return &ResolvedAccount{AccountNumber: data.AccountNumber, AccountName: data.AccountName}, nil
}

// do sends one request and decodes the envelope's data into out. It returns
// the data object as a map so callers can keep the provider response.
func (c *PaystackClient) do(ctx context.Context, op, method, path string, payload any, out any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transient(op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transient(op, "failed to read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		e := transient(op, providerMessage(env.Message, resp.Status), nil)
		e.StatusCode = resp.StatusCode
		return nil, e
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := rejected(op, providerMessage(env.Message, resp.Status), nil)
		e.StatusCode = resp.StatusCode
		return nil, e
	}
	if decodeErr != nil {
		return nil, transient(op, "malformed response", decodeErr)
	}
	if !env.Status {
		e := rejected(op, providerMessage(env.Message, "request not successful"), nil)
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	var raw map[string]any
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, transient(op, "malformed response data", err)
		}
		// data may be a non-object for some endpoints
		_ = json.Unmarshal(env.Data, &raw)
	}
	return raw, nil
}

func providerMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
