package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
)

// Rules contains the business rules shared by the marketplace services
type Rules struct {
	Currency                string
	CallbackURL             string
	ServiceFeeRate          decimal.Decimal
	PlatformFeeRate         decimal.Decimal
	ReservationTTL          time.Duration
	HoldingPeriod           time.Duration
	MinWithdrawal           decimal.Decimal
	TransferFees            domain.TransferFeePolicy
	VerificationMaxAttempts int
	VerificationRetryDelay  time.Duration
}

// DefaultRules returns the production rules: 5% fees, 10 minute holds, 7 day revenue hold
func DefaultRules() *Rules {
	return &Rules{
		Currency:        "GHS",
		ServiceFeeRate:  decimal.RequireFromString("0.05"),
		PlatformFeeRate: decimal.RequireFromString("0.05"),
		ReservationTTL:  10 * time.Minute,
		HoldingPeriod:   7 * 24 * time.Hour,
		MinWithdrawal:   decimal.NewFromInt(50),
		TransferFees: domain.TransferFeePolicy{
			Threshold: decimal.NewFromInt(5000),
			FlatFee:   decimal.NewFromInt(10),
		},
		VerificationMaxAttempts: 5,
		VerificationRetryDelay:  2 * time.Second,
	}
}

// RulesFromConfig builds rules from configuration, keeping defaults for unset values
func RulesFromConfig(cfg *config.MarketplaceConfig) *Rules {
	r := DefaultRules()
	if cfg == nil {
		return r
	}
	if cfg.Currency != "" {
		r.Currency = cfg.Currency
	}
	r.CallbackURL = cfg.CallbackURL
	if cfg.ServiceFeeRate.IsPositive() {
		r.ServiceFeeRate = cfg.ServiceFeeRate
	}
	if cfg.PlatformFeeRate.IsPositive() {
		r.PlatformFeeRate = cfg.PlatformFeeRate
	}
	if cfg.ReservationTTL > 0 {
		r.ReservationTTL = cfg.ReservationTTL
	}
	if cfg.HoldingPeriod > 0 {
		r.HoldingPeriod = cfg.HoldingPeriod
	}
	if cfg.MinWithdrawal.IsPositive() {
		r.MinWithdrawal = cfg.MinWithdrawal
	}
	if cfg.TransferFeeThreshold.IsPositive() {
		r.TransferFees.Threshold = cfg.TransferFeeThreshold
	}
	if !cfg.TransferFlatFee.IsNegative() && !cfg.TransferFlatFee.IsZero() {
		r.TransferFees.FlatFee = cfg.TransferFlatFee
	}
	if cfg.VerificationMaxAttempts > 0 {
		r.VerificationMaxAttempts = cfg.VerificationMaxAttempts
	}
	if cfg.VerificationRetryDelay > 0 {
		r.VerificationRetryDelay = cfg.VerificationRetryDelay
	}
	return r
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
