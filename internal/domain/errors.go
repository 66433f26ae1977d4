package domain

import "errors"

// Domain errors
var (
	// Validation errors
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrBelowMinPurchase   = errors.New("quantity is below the minimum per purchase")
	ErrAboveMaxPurchase   = errors.New("quantity is above the maximum per purchase")
	ErrInvalidAttendee    = errors.New("attendee name and email are required")
	ErrInvalidPhone       = errors.New("phone number must be in E.164 format (e.g., +233241234567)")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrBelowMinWithdrawal = errors.New("amount is below the minimum withdrawal")
	ErrInvalidAccount     = errors.New("invalid payout account details")

	// Inventory errors
	ErrInsufficientInventory = errors.New("not enough tickets available")
	ErrSaleWindowClosed      = errors.New("ticket sales are not open for this ticket type")
	ErrEventNotOnSale        = errors.New("event is not published or has already started")

	// Gateway errors
	ErrGatewayTransient = errors.New("payment provider temporarily unavailable")
	ErrGatewayRejected  = errors.New("payment provider rejected the request")

	// Verification errors
	ErrVerificationExhausted = errors.New("account verification failed after maximum attempts")

	// Not found errors
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrProfileNotFound    = errors.New("payment profile not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrRevenueNotFound    = errors.New("revenue entry not found")

	// State errors
	ErrInvalidStatusTransition  = errors.New("invalid status transition")
	ErrWithdrawalInFlight       = errors.New("a withdrawal request is already pending or processing")
	ErrInsufficientBalance      = errors.New("insufficient available balance")
	ErrProfileNotVerified       = errors.New("payment profile is not verified")
	ErrProfileNotOwned          = errors.New("payment profile does not belong to this organizer")
	ErrUnsupportedPayoutMethod  = errors.New("payout method is not supported for withdrawals")
	ErrWithdrawalNotCancellable = errors.New("only pending withdrawal requests can be cancelled")
	ErrPurchaseNotCancellable   = errors.New("only reserved or pending purchases can be cancelled")
	ErrPurchaseNotCompleted     = errors.New("purchase is not completed")
	ErrTicketNotCheckable       = errors.New("ticket cannot be checked in")

	// Permission errors
	ErrNotEventOrganizer = errors.New("only the event organizer can do this")

	// Webhook errors
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrBelowMinPurchase) ||
		errors.Is(err, ErrAboveMaxPurchase) ||
		errors.Is(err, ErrInvalidAttendee) ||
		errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBelowMinWithdrawal) ||
		errors.Is(err, ErrInvalidAccount)
}

// IsInventoryError checks if the error means the tickets cannot be sold
func IsInventoryError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrSaleWindowClosed) ||
		errors.Is(err, ErrEventNotOnSale)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRevenueNotFound)
}

// IsConflictError checks if the error is a state conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrWithdrawalInFlight) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrProfileNotVerified) ||
		errors.Is(err, ErrProfileNotOwned) ||
		errors.Is(err, ErrUnsupportedPayoutMethod) ||
		errors.Is(err, ErrWithdrawalNotCancellable) ||
		errors.Is(err, ErrPurchaseNotCancellable) ||
		errors.Is(err, ErrPurchaseNotCompleted) ||
		errors.Is(err, ErrTicketNotCheckable)
}

// IsGatewayError checks if the error came from an external provider
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrGatewayTransient) ||
		errors.Is(err, ErrGatewayRejected)
}

// IsForbiddenError checks if the caller is not allowed to act on the resource
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotEventOrganizer) ||
		errors.Is(err, ErrProfileNotOwned)
}
