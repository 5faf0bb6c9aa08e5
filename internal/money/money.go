// Package money holds the pure price, discount and tolerance arithmetic used
// by the cart and the order lifecycle. Every amount is a decimal; rounding to
// cents happens only at display and persistence boundaries.
package money

import "github.com/shopspring/decimal"

// PercentPrecision is the number of decimal digits retained for discount
// percentages derived from prices. They are later reused as scale factors.
const PercentPrecision = 15

var (
	// RoundingTolerance is the slack allowed when deciding whether the amount
	// collected covers the total due.
	RoundingTolerance = decimal.RequireFromString("0.05")

	// PaymentReconciliationTolerance is the slack allowed when matching
	// recorded payments and voucher balances against an amount owed.
	PaymentReconciliationTolerance = decimal.RequireFromString("0.01")

	// PartialPaymentThreshold is the shortfall above which a checkout is
	// treated as a partial payment.
	PartialPaymentThreshold = decimal.RequireFromString("0.02")

	// VATDivisor backs the 22% VAT out of a gross amount.
	VATDivisor = decimal.RequireFromString("1.22")

	// roundingEpsilon nudges values sitting a hair under a half-cent
	// boundary, which happens with 15-digit quotients.
	roundingEpsilon = decimal.New(1, -9)

	Hundred = decimal.NewFromInt(100)
)

// Round2 rounds x half away from zero to cents.
func Round2(x decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		return Round2(x.Neg()).Neg()
	}
	return x.Add(roundingEpsilon).Round(2)
}

// RoundPercent trims a derived percentage to PercentPrecision digits.
func RoundPercent(x decimal.Decimal) decimal.Decimal {
	return x.Round(PercentPrecision)
}

func Clamp(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.LessThan(lo) {
		return lo
	}
	if x.GreaterThan(hi) {
		return hi
	}
	return x
}

func ClampPercent(x decimal.Decimal) decimal.Decimal {
	return Clamp(x, decimal.Zero, Hundred)
}

// ValidPercent reports whether p lies in [0, 100].
func ValidPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(Hundred)
}

// DiscountedUnitPrice is listPrice × (1 − discountPercent/100).
func DiscountedUnitPrice(listPrice, discountPercent decimal.Decimal) decimal.Decimal {
	return listPrice.Sub(DiscountAmount(listPrice, discountPercent))
}

// DiscountAmount is the part of listPrice removed by discountPercent.
func DiscountAmount(listPrice, discountPercent decimal.Decimal) decimal.Decimal {
	return listPrice.Mul(discountPercent).Div(Hundred)
}

// DiscountFromPrices returns the percentage that turns original into
// discounted, clamped to [0, 100]. Prices equal at cent precision yield 0.
func DiscountFromPrices(original, discounted decimal.Decimal) decimal.Decimal {
	if Round2(original).Equal(Round2(discounted)) {
		return decimal.Zero
	}
	if !original.IsPositive() {
		return decimal.Zero
	}
	pct := original.Sub(discounted).Mul(Hundred).DivRound(original, PercentPrecision)
	return ClampPercent(pct)
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Mean returns the arithmetic mean at PercentPrecision digits, or zero for
// an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return Sum(values...).DivRound(decimal.NewFromInt(int64(len(values))), PercentPrecision)
}

// Within reports whether |a − b| ≤ tolerance.
func Within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// BackOutVAT returns the VAT contained in a gross amount, in cents.
func BackOutVAT(gross decimal.Decimal) decimal.Decimal {
	net := gross.DivRound(VATDivisor, PercentPrecision)
	return Round2(gross.Sub(net))
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
