package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrPricingOverflow indicates an amount exceeded the representable range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
	// ErrPricingInvalidLine indicates a line with a non-positive quantity or
	// negative unit price.
	ErrPricingInvalidLine = errors.New("pricing: invalid line")
	// ErrDiscountNotRedeemable indicates the discount code cannot be applied.
	ErrDiscountNotRedeemable = errors.New("pricing: discount not redeemable")
	// ErrDiscountMalformed indicates the discount definition itself is broken.
	ErrDiscountMalformed = errors.New("pricing: malformed discount")
)

// LineTotal multiplies a unit price by quantity with overflow protection.
func LineTotal(unitPrice, quantity int64) (int64, error) {
	if quantity <= 0 || unitPrice < 0 {
		return 0, ErrPricingInvalidLine
	}
	if unitPrice > 0 && quantity > math.MaxInt64/unitPrice {
		return 0, ErrPricingOverflow
	}
	return unitPrice * quantity, nil
}

// Subtotal sums line totals, recomputing each from its unit price so a stale
// LineTotal field can never skew the result.
func Subtotal(lines []OrderLine) (int64, error) {
	var subtotal int64
	for i, line := range lines {
		total, err := LineTotal(line.UnitPrice, line.Quantity)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", i, err)
		}
		if subtotal > math.MaxInt64-total {
			return 0, ErrPricingOverflow
		}
		subtotal += total
	}
	return subtotal, nil
}

// DiscountAmount computes the value a redeemable code takes off the subtotal.
// Percentage discounts apply once to the full subtotal and round half-up at
// the minor-unit boundary; fixed discounts are capped at the subtotal so the
// total can never go negative.
func DiscountAmount(code DiscountCode, subtotal int64) (int64, error) {
	if subtotal < 0 {
		return 0, ErrPricingInvalidLine
	}
	switch code.Kind {
	case DiscountKindPercentage:
		if code.Value < 0 || code.Value > 100 {
			return 0, ErrDiscountMalformed
		}
		if code.Value > 0 && subtotal > (math.MaxInt64-50)/code.Value {
			return 0, ErrPricingOverflow
		}
		return (subtotal*code.Value + 50) / 100, nil
	case DiscountKindFixed:
		if code.Value < 0 {
			return 0, ErrDiscountMalformed
		}
		if code.Value > subtotal {
			return subtotal, nil
		}
		return code.Value, nil
	default:
		return 0, ErrDiscountMalformed
	}
}

// PriceOrder resolves the totals for a set of committed lines and an optional
// discount code. The code, when present, must be redeemable at the supplied
// instant.
func PriceOrder(lines []OrderLine, code *DiscountCode, now time.Time) (OrderTotals, error) {
	subtotal, err := Subtotal(lines)
	if err != nil {
		return OrderTotals{}, err
	}

	totals := OrderTotals{Subtotal: subtotal, Total: subtotal}
	if code == nil {
		return totals, nil
	}

	if !code.Redeemable(now) {
		return OrderTotals{}, ErrDiscountNotRedeemable
	}

	discount, err := DiscountAmount(*code, subtotal)
	if err != nil {
		return OrderTotals{}, err
	}

	totals.DiscountAmount = discount
	totals.Total = subtotal - discount
	return totals, nil
}
