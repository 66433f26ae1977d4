package domain

import "github.com/shopspring/decimal"

// moneyPlaces is the number of decimal places kept for currency amounts
const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds an amount half away from zero to two decimal places
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// ToMinorUnits converts an amount to the provider's smallest currency unit (pesewas, cents)
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts a smallest-currency-unit amount back to a decimal amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// Pricing is the price breakdown of a purchase
type Pricing struct {
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ServiceFee decimal.Decimal `json:"service_fee"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
}

// ComputePricing computes subtotal = unit x qty, fee = round(subtotal x rate), total = subtotal + fee
func ComputePricing(unitPrice decimal.Decimal, quantity int, serviceFeeRate decimal.Decimal, currency string) Pricing {
	subtotal := RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	fee := RoundMoney(subtotal.Mul(serviceFeeRate))
	return Pricing{
		UnitPrice:  unitPrice,
		Quantity:   quantity,
		Subtotal:   subtotal,
		ServiceFee: fee,
		Total:      subtotal.Add(fee),
		Currency:   currency,
	}
}

// SplitPlatformFee splits a gross amount into the platform fee and the organizer's net earnings
func SplitPlatformFee(gross, platformFeeRate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = RoundMoney(gross.Mul(platformFeeRate))
	return fee, gross.Sub(fee)
}

// TransferFeePolicy decides the fee charged on a payout
type TransferFeePolicy struct {
	Threshold decimal.Decimal
	FlatFee   decimal.Decimal
}

// Fee returns zero below the threshold and the flat fee at or above it
func (p TransferFeePolicy) Fee(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(p.Threshold) {
		return decimal.Zero
	}
	return p.FlatFee
}
