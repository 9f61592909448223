package forecast

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// SUMMARY - Output of a consolidation run
// =============================================================================

// Summary is the consolidated forecast of one period. It is also the shape of
// the snapshot stored alongside the period.
type Summary struct {
	TotalsByCategory          map[Category]decimal.Decimal `json:"totals_by_category"`
	GrandTotalBeforeSurcharge decimal.Decimal              `json:"grand_total_before_surcharge"`
	SurchargePercent          decimal.Decimal              `json:"surcharge_percent"`
	SurchargeAmount           decimal.Decimal              `json:"surcharge_amount"`
	GrandTotalWithSurcharge   decimal.Decimal              `json:"grand_total_with_surcharge"`
	TotalAreaM2               decimal.Decimal              `json:"total_area_m2"`
	RatePerArea               decimal.Decimal              `json:"rate_per_area"`
}

// CategoryTotal is one row of Summary.Rows().
type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Rows returns the category totals in the fixed forecast order.
func (s Summary) Rows() []CategoryTotal {
	rows := make([]CategoryTotal, 0, len(ForecastCategories))
	for _, c := range ForecastCategories {
		rows = append(rows, CategoryTotal{Category: c, Total: s.TotalsByCategory[c]})
	}
	return rows
}

// MarshalSnapshot encodes the summary for storage next to its period.
func (s Summary) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a stored summary.
func UnmarshalSnapshot(data []byte) (Summary, error) {
	var s Summary
	err := json.Unmarshal(data, &s)
	return s, err
}

// =============================================================================
// CONSOLIDATOR
// =============================================================================

// Consolidate groups items by category and derives the period totals:
//
//	grandTotalBeforeSurcharge = Σ totalsByCategory
//	surchargeAmount           = ApplyPercent(grandTotalBeforeSurcharge, surchargePercent)
//	grandTotalWithSurcharge   = grandTotalBeforeSurcharge + surchargeAmount
//	ratePerArea               = grandTotalWithSurcharge / totalAreaM2
//
// Empty items are valid and produce an all-zero summary.
func Consolidate(items []LineItem, totalAreaM2, surchargePercent decimal.Decimal) (Summary, error) {
	if err := ValidateParameters(totalAreaM2, surchargePercent); err != nil {
		return Summary{}, err
	}

	totals := make(map[Category]decimal.Decimal, len(ForecastCategories))
	for _, c := range ForecastCategories {
		totals[c] = decimal.Zero
	}
	for _, item := range items {
		if !item.Category.IsForecast() {
			return Summary{}, generic.Invalid("category", string(item.Category), "not a forecast category")
		}
		totals[item.Category] = totals[item.Category].Add(item.Amount)
	}

	before := decimal.Zero
	for _, c := range ForecastCategories {
		before = before.Add(totals[c])
	}
	surcharge := generic.ApplyPercent(before, surchargePercent)
	with := before.Add(surcharge)

	return Summary{
		TotalsByCategory:          totals,
		GrandTotalBeforeSurcharge: before,
		SurchargePercent:          surchargePercent,
		SurchargeAmount:           surcharge,
		GrandTotalWithSurcharge:   with,
		TotalAreaM2:               totalAreaM2,
		RatePerArea:               with.Div(totalAreaM2),
	}, nil
}

// ValidateParameters checks the period-level inputs of a consolidation.
func ValidateParameters(totalAreaM2, surchargePercent decimal.Decimal) error {
	if !totalAreaM2.IsPositive() {
		return generic.Invalid("total_area_m2", totalAreaM2.String(), "must be greater than zero")
	}
	if surchargePercent.IsNegative() {
		return generic.Invalid("surcharge_percent", surchargePercent.String(), "must not be negative")
	}
	return nil
}
