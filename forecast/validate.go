package forecast

import (
	"strings"

	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// ITEM VALIDATION - What a save keeps, drops and refuses
// =============================================================================
//
// Saving a forecast is a full replacement of the period's item set. Rows the
// form left half-filled (no description, or a zero amount) are dropped, as
// the administrators expect; unlike a silent drop, each one is reported back
// in RejectedItem so the caller can show what was ignored.
//
// Anything that would corrupt the totals (negative amounts, unknown or
// cost-center categories) refuses the whole save instead.

// RejectedItem is an input row left out of a save.
type RejectedItem struct {
	Index  int      `json:"index"`
	Item   LineItem `json:"item"`
	Reason string   `json:"reason"`
}

const (
	reasonBlankDescription = "missing description"
	reasonZeroAmount       = "missing amount"
)

// ValidateItems splits items into those a save keeps and those it drops.
// It returns an InvalidParameterError, and nothing else, if any row is
// unacceptable.
func ValidateItems(items []LineItem) (kept []LineItem, rejected []RejectedItem, err error) {
	for _, item := range items {
		if !item.Category.IsForecast() {
			return nil, nil, generic.Invalid("items.category", string(item.Category), "not a forecast category")
		}
		if item.Amount.IsNegative() {
			return nil, nil, generic.Invalid("items.amount", item.Amount.String(), "must not be negative")
		}
	}

	kept = make([]LineItem, 0, len(items))
	for i, item := range items {
		switch {
		case strings.TrimSpace(item.Description) == "":
			rejected = append(rejected, RejectedItem{Index: i, Item: item, Reason: reasonBlankDescription})
		case item.Amount.IsZero():
			rejected = append(rejected, RejectedItem{Index: i, Item: item, Reason: reasonZeroAmount})
		default:
			kept = append(kept, item)
		}
	}
	return kept, rejected, nil
}

// ValidateCostCenterItems checks the items of one (period, cost center) pair.
func ValidateCostCenterItems(items []CostCenterItem) error {
	for _, item := range items {
		if !item.Category.IsCostCenter() {
			return generic.Invalid("items.category", string(item.Category), "not a cost center category")
		}
		if item.Amount.IsNegative() {
			return generic.Invalid("items.amount", item.Amount.String(), "must not be negative")
		}
	}
	return nil
}
