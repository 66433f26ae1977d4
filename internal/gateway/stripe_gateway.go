package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

// StripeGateway implements PaymentGateway with Stripe Checkout
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.SuccessURL == "" {
		return nil, fmt.Errorf("stripe success url is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// Initialize creates a Checkout Session carrying the payment reference
func (g *StripeGateway) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("initialize request is required")
	}

	metadata := map[string]string{"reference": req.Reference}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	description := req.Description
	if description == "" {
		description = "Tickets " + req.Reference
	}

	successURL := g.config.SuccessURL
	if req.CallbackURL != "" {
		successURL = req.CallbackURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(domain.ToMinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if g.config.CancelURL != "" {
		params.CancelURL = stripe.String(g.config.CancelURL)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, classifyStripeError("initialize", err)
	}

	return &InitializeResult{
		AuthorizationURL: s.URL,
		AccessCode:       s.ID,
		Reference:        req.Reference,
	}, nil
}

// Verify finds the payment intent created by the checkout for reference
func (g *StripeGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['reference']:'%s'", strings.ReplaceAll(reference, "'", ""))

	var pi *stripe.PaymentIntent
	iter := paymentintent.Search(params)
	for iter.Next() {
		candidate := iter.PaymentIntent()
		// a succeeded intent wins over abandoned attempts for the same reference
		if pi == nil || candidate.Status == stripe.PaymentIntentStatusSucceeded {
			pi = candidate
		}
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStripeError("verify", err)
	}

	// Checkout has not created an intent yet
	if pi == nil {
		return &VerifyResult{Reference: reference, Status: VerifyPending, ProviderStatus: "open"}, nil
	}

	res := &VerifyResult{
		Reference:      reference,
		Status:         intentStatus(pi.Status),
		ProviderStatus: string(pi.Status),
		Channel:        "card",
		Amount:         domain.FromMinorUnits(pi.Amount),
		Raw: map[string]any{
			"payment_intent": pi.ID,
			"status":         string(pi.Status),
			"amount":         pi.Amount,
			"currency":       string(pi.Currency),
		},
	}
	if len(pi.PaymentMethodTypes) > 0 {
		res.Channel = pi.PaymentMethodTypes[0]
	}
	if pi.LastPaymentError != nil {
		res.GatewayResponse = pi.LastPaymentError.Msg
	}
	return res, nil
}

func intentStatus(s stripe.PaymentIntentStatus) VerifyStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return VerifySuccess
	case stripe.PaymentIntentStatusCanceled:
		return VerifyFailed
	default:
		return VerifyPending
	}
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			e := transient(op, stripeErr.Msg, err)
			e.StatusCode = status
			return e
		}
		e := rejected(op, stripeErr.Msg, err)
		e.StatusCode = status
		return e
	}
	return transient(op, "request failed", err)
}
