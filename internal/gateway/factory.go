package gateway

import (
	"fmt"

	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
)

// Supported gateway kinds
const (
	KindPaystack = "paystack"
	KindStripe   = "stripe"
	KindMock     = "mock"
)

// NewPaymentGateway builds the buyer-facing gateway named by kind
func NewPaymentGateway(kind string, cfg *config.Config) (PaymentGateway, error) {
	switch kind {
	case KindPaystack:
		return NewPaystackClient(paystackConfigFrom(cfg))
	case KindStripe:
		return NewStripeGateway(&StripeGatewayConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		})
	case KindMock:
		return NewMockGateway(nil), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", kind)
	}
}

// NewTransferProvider builds the payout provider. Payouts always go through
// Paystack unless the mock gateway is selected; pass the mock payment gateway
// as shared so one in-process instance serves both roles.
func NewTransferProvider(kind string, cfg *config.Config, shared PaymentGateway) (TransferProvider, error) {
	if kind == KindMock {
		if m, ok := shared.(*MockGateway); ok {
			return m, nil
		}
		return NewMockGateway(nil), nil
	}
	if p, ok := shared.(*PaystackClient); ok {
		return p, nil
	}
	return NewPaystackClient(paystackConfigFrom(cfg))
}

func paystackConfigFrom(cfg *config.Config) *PaystackConfig {
	return &PaystackConfig{
		SecretKey: cfg.Paystack.SecretKey,
		BaseURL:   cfg.Paystack.BaseURL,
		Timeout:   cfg.Paystack.Timeout,
	}
}
