package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutMethod is how an organizer receives withdrawals
type PayoutMethod string

const (
	PayoutMethodMobileMoney  PayoutMethod = "mobile_money"
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
)

// VerificationStatus represents the verification state of a payment profile
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending_verification"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "verification_failed"
)

var (
	ghanaMobilePattern   = regexp.MustCompile(`^\+233[0-9]{9}$`)
	accountNumberPattern = regexp.MustCompile(`^[0-9]{8,17}$`)

	// mobileNetworkCodes maps a mobile money network to the provider's bank code
	mobileNetworkCodes = map[string]string{
		"MTN":        "MTN",
		"Vodafone":   "VOD",
		"AirtelTigo": "ATL",
	}
)

// AccountDetails holds the destination of a payout
type AccountDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`
	Network       string `json:"network,omitempty"`
}

// PaymentProfile is an organizer's payout destination
type PaymentProfile struct {
	ID                      string             `json:"id"`
	OrganizerID             string             `json:"organizer_id"`
	Method                  PayoutMethod       `json:"method"`
	Name                    string             `json:"name"`
	Description             string             `json:"description,omitempty"`
	AccountDetails          AccountDetails     `json:"account_details"`
	FeePercentage           decimal.Decimal    `json:"fee_percentage"`
	Status                  VerificationStatus `json:"status"`
	IsVerified              bool               `json:"is_verified"`
	VerifiedAt              *time.Time         `json:"verified_at,omitempty"`
	VerificationInitiatedAt *time.Time         `json:"verification_initiated_at,omitempty"`
	VerificationAttempts    int                `json:"verification_attempts"`
	LastVerificationAttempt *time.Time         `json:"last_verification_attempt,omitempty"`
	VerificationReference   string             `json:"verification_reference,omitempty"`
	ResolvedAccountName     string             `json:"resolved_account_name,omitempty"`
	FailureReason           string             `json:"failure_reason,omitempty"`
	RecipientCode           string             `json:"recipient_code,omitempty"`
	IsDefault               bool               `json:"is_default"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// NewPaymentProfile validates the account details for the method and creates an unverified profile
func NewPaymentProfile(organizerID string, method PayoutMethod, name, description string, details AccountDetails, now time.Time) (*PaymentProfile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAccount)
	}
	if strings.TrimSpace(details.AccountName) == "" {
		return nil, fmt.Errorf("%w: account_name is required", ErrInvalidAccount)
	}

	var fee decimal.Decimal
	switch method {
	case PayoutMethodMobileMoney:
		if !ghanaMobilePattern.MatchString(details.MobileNumber) {
			return nil, fmt.Errorf("%w: mobile number must be in format +233XXXXXXXXX", ErrInvalidAccount)
		}
		if _, ok := mobileNetworkCodes[details.Network]; !ok {
			return nil, fmt.Errorf("%w: network must be one of MTN, Vodafone, AirtelTigo", ErrInvalidAccount)
		}
		fee = decimal.RequireFromString("1.5")
	case PayoutMethodBankTransfer:
		if details.BankName == "" || details.BankCode == "" {
			return nil, fmt.Errorf("%w: bank_name and bank_code are required for bank transfer", ErrInvalidAccount)
		}
		if !accountNumberPattern.MatchString(details.AccountNumber) {
			return nil, fmt.Errorf("%w: account number must be 8 to 17 digits", ErrInvalidAccount)
		}
		fee = decimal.RequireFromString("2.0")
	default:
		return nil, ErrUnsupportedPayoutMethod
	}

	return &PaymentProfile{
		ID:             uuid.New().String(),
		OrganizerID:    organizerID,
		Method:         method,
		Name:           name,
		Description:    description,
		AccountDetails: details,
		FeePercentage:  fee,
		Status:         VerificationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MaskedDetails hides all but the edges of the account or mobile number
func (p *PaymentProfile) MaskedDetails() AccountDetails {
	d := p.AccountDetails
	if n := d.MobileNumber; len(n) > 7 {
		d.MobileNumber = n[:4] + "***" + n[len(n)-4:]
	}
	if a := d.AccountNumber; len(a) > 6 {
		d.AccountNumber = "******" + a[len(a)-4:]
	}
	return d
}

// DestinationNumber is the account or mobile number transfers are sent to
func (p *PaymentProfile) DestinationNumber() string {
	if p.Method == PayoutMethodMobileMoney {
		return p.AccountDetails.MobileNumber
	}
	return p.AccountDetails.AccountNumber
}

// DestinationBankCode is the bank code, or the network code for mobile money
func (p *PaymentProfile) DestinationBankCode() string {
	if p.Method == PayoutMethodMobileMoney {
		return mobileNetworkCodes[p.AccountDetails.Network]
	}
	return p.AccountDetails.BankCode
}

// RecipientType is the provider's recipient type for this method
func (p *PaymentProfile) RecipientType() string {
	if p.Method == PayoutMethodMobileMoney {
		return "mobile_money"
	}
	return "nuban"
}

// CheckWithdrawable returns an error if payouts cannot be sent to this profile
func (p *PaymentProfile) CheckWithdrawable(organizerID string) error {
	if p.OrganizerID != organizerID {
		return ErrProfileNotOwned
	}
	if !p.IsVerified || p.Status != VerificationVerified {
		return ErrProfileNotVerified
	}
	if p.Method != PayoutMethodBankTransfer && p.Method != PayoutMethodMobileMoney {
		return ErrUnsupportedPayoutMethod
	}
	return nil
}

// BeginVerification starts a verification run. A fresh run resets the attempt counter.
func (p *PaymentProfile) BeginVerification(isRetry bool, now time.Time) {
	if !isRetry {
		p.VerificationAttempts = 0
	}
	p.Status = VerificationPending
	p.VerificationInitiatedAt = &now
	p.UpdatedAt = now
}

// RecordAttempt counts one resolve attempt
func (p *PaymentProfile) RecordAttempt(now time.Time) {
	p.VerificationAttempts++
	p.LastVerificationAttempt = &now
	p.UpdatedAt = now
}

// RecordAttemptFailure keeps the profile pending with "Attempt n/max: msg"
func (p *PaymentProfile) RecordAttemptFailure(msg string, maxAttempts int, now time.Time) {
	p.Status = VerificationPending
	p.FailureReason = fmt.Sprintf("Attempt %d/%d: %s", p.VerificationAttempts, maxAttempts, msg)
	p.UpdatedAt = now
}

// MarkVerificationFailed is the terminal outcome once attempts are exhausted
func (p *PaymentProfile) MarkVerificationFailed(msg string, maxAttempts int, now time.Time) {
	p.Status = VerificationFailed
	p.IsVerified = false
	p.FailureReason = fmt.Sprintf("Failed after %d attempts: %s", maxAttempts, msg)
	p.UpdatedAt = now
}

// MarkVerified records a successful verification
func (p *PaymentProfile) MarkVerified(resolvedName, reference string, now time.Time) {
	p.Status = VerificationVerified
	p.IsVerified = true
	p.VerifiedAt = &now
	p.ResolvedAccountName = resolvedName
	p.VerificationReference = reference
	p.FailureReason = ""
	p.UpdatedAt = now
}

// NameMatches compares the resolved account name with the one the organizer entered
func (p *PaymentProfile) NameMatches(resolved string) bool {
	return strings.EqualFold(strings.TrimSpace(resolved), strings.TrimSpace(p.AccountDetails.AccountName))
}

// SetRecipient stores the provider's saved recipient identifier
func (p *PaymentProfile) SetRecipient(code string, now time.Time) {
	p.RecipientCode = code
	p.UpdatedAt = now
}
