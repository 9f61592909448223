package forecast

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// PRORATION (rateio) - Area-proportional split of the grand total
// =============================================================================

// CenterInput is one cost center with its own itemized expenses for the period.
type CenterInput struct {
	Center   CostCenter
	OwnItems []CostCenterItem
}

// CenterAllocation is what one cost center owes for the period.
type CenterAllocation struct {
	Center            CostCenter       `json:"center"`
	OwnItems          []CostCenterItem `json:"own_items"`
	OwnSubtotal       decimal.Decimal  `json:"own_subtotal"`
	ProportionalShare decimal.Decimal  `json:"proportional_share"`
	CombinedTotal     decimal.Decimal  `json:"combined_total"`
}

// Allocation is the result of one proration run.
type Allocation struct {
	Centers []CenterAllocation `json:"centers"`

	// TotalShare is Σ ProportionalShare over participating centers.
	TotalShare decimal.Decimal `json:"total_share"`

	// AssignedAreaM2 is Σ AreaM2 over participating centers.
	AssignedAreaM2 decimal.Decimal `json:"assigned_area_m2"`

	// UnassignedShare is the part of the grand total that belongs to common
	// area not covered by any center. Negative when centers over-allocate.
	UnassignedShare decimal.Decimal `json:"unassigned_share"`

	Warnings []string `json:"warnings,omitempty"`
}

// Allocate distributes grandTotal across the active centers:
//
//	proportionalShare = areaM2 * grandTotal / totalAreaM2
//	combinedTotal     = Σ ownItems.amount + proportionalShare
//
// Shares only add up to grandTotal when the centers cover the whole area;
// otherwise the remainder is UnassignedShare. A center larger than the whole
// condominium is rejected. Centers that together exceed the total area are
// allowed but reported in Warnings.
func Allocate(grandTotal, totalAreaM2 decimal.Decimal, centers []CenterInput) (Allocation, error) {
	if !totalAreaM2.IsPositive() {
		return Allocation{}, generic.Invalid("total_area_m2", totalAreaM2.String(), "must be greater than zero")
	}

	result := Allocation{
		Centers:        make([]CenterAllocation, 0, len(centers)),
		TotalShare:     decimal.Zero,
		AssignedAreaM2: decimal.Zero,
	}

	for _, in := range centers {
		if !in.Center.Active {
			continue
		}
		if err := ValidateCenterArea(in.Center, totalAreaM2); err != nil {
			return Allocation{}, err
		}

		own := decimal.Zero
		for _, item := range in.OwnItems {
			own = own.Add(item.Amount)
		}
		share := in.Center.AreaM2.Mul(grandTotal).Div(totalAreaM2)

		items := in.OwnItems
		if items == nil {
			items = []CostCenterItem{}
		}
		result.Centers = append(result.Centers, CenterAllocation{
			Center:            in.Center,
			OwnItems:          items,
			OwnSubtotal:       own,
			ProportionalShare: share,
			CombinedTotal:     own.Add(share),
		})
		result.TotalShare = result.TotalShare.Add(share)
		result.AssignedAreaM2 = result.AssignedAreaM2.Add(in.Center.AreaM2)
	}

	result.UnassignedShare = grandTotal.Sub(result.TotalShare)
	if result.AssignedAreaM2.GreaterThan(totalAreaM2) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"cost centers cover %s m², more than the condominium total of %s m²",
			result.AssignedAreaM2.String(), totalAreaM2.String()))
	}
	return result, nil
}

// ValidateCenterArea rejects centers that cannot take a share of totalAreaM2.
func ValidateCenterArea(c CostCenter, totalAreaM2 decimal.Decimal) error {
	if !c.AreaM2.IsPositive() {
		return &generic.InvalidCostCenterError{
			CostCenterID: c.ID,
			AreaM2:       c.AreaM2.String(),
			Reason:       "area must be greater than zero",
		}
	}
	if c.AreaM2.GreaterThan(totalAreaM2) {
		return &generic.InvalidCostCenterError{
			CostCenterID: c.ID,
			AreaM2:       c.AreaM2.String(),
			Reason:       fmt.Sprintf("area exceeds the condominium total of %s m²", totalAreaM2.String()),
		}
	}
	return nil
}
