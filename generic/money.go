/*
Package generic provides the domain-agnostic primitives of the forecast engine.

PURPOSE:
  Money arithmetic, calendar dates and the error taxonomy shared by the
  forecast and reconcile packages. Nothing in here knows about categories,
  periods or cost centers.

KEY CONCEPTS IN THIS FILE (money.go):
  - Amounts are decimal.Decimal, never float64
  - ApplyPercent: percentage of a base, rounded to cents (half-up)
  - PercentVariance: signed variance of executed vs projected

ROUNDING POLICY:
  Only "total" fields are rounded, and only when stored or displayed.
  Intermediate sums keep full precision so rounding error never compounds:

    total := generic.Sum(a, b, c)            // exact
    stored := generic.RoundMoney(total)      // 2 places, at the edge

  ApplyPercent is the one helper that rounds on its own: a surcharge is a
  currency value the administrator sees and bills, so it is cents-exact
  from the start.

SEE ALSO:
  - forecast/consolidate.go: Surcharge and rate-per-area
  - reconcile/engine.go: Variance classification
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places of a currency amount.
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// =============================================================================
// PERCENTAGES
// =============================================================================

// ApplyPercent returns base * percent / 100 rounded to cents.
// decimal.Round rounds half away from zero, which is half-up for the
// non-negative amounts this is used with.
func ApplyPercent(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred).Round(MoneyPlaces)
}

// PercentVariance returns (executed - projected) / projected * 100.
// A zero projection yields 0 instead of a division by zero: money spent on a
// category nobody forecast is reported through its absolute difference.
func PercentVariance(executed, projected decimal.Decimal) decimal.Decimal {
	if projected.IsZero() {
		return decimal.Zero
	}
	return executed.Sub(projected).Div(projected).Mul(hundred)
}

// =============================================================================
// SUMS & ROUNDING
// =============================================================================

// Sum adds values without intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// RoundMoney rounds a total for storage or display.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustParseDecimal parses s, returning zero on malformed input.
// Intended for constants and test fixtures.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ApproxEqual reports whether a and b differ by at most tolerance.
func ApproxEqual(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
