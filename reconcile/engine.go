package reconcile

import (
	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// RECONCILIATION ENGINE
// =============================================================================

// VarianceThreshold is the inclusive band, in percent, around the projection
// inside which a category counts as within budget.
var VarianceThreshold = decimal.NewFromInt(10)

// Reconcile compares projected items with what was executed.
//
// Executed amounts come from paid payments (AmountPaid, keyed by the
// payment's category) and from every extra expense, approved or not (keyed by
// its category, or CategoryUnclassified when it has none). Categories appear
// in first-seen order: projected items, then payments, then extras.
//
// Reconcile is pure: identical inputs give identical reports.
func Reconcile(projected []forecast.LineItem, payments []PaymentRecord, extras []ExtraExpense) Report {
	acc := newAccumulator()

	for _, item := range projected {
		acc.addProjected(item.Category, item.Amount)
	}
	for _, p := range payments {
		if amount, ok := p.executed(); ok {
			acc.addExecuted(p.Category, amount)
		}
	}
	for _, e := range extras {
		category := e.Category
		if category == "" {
			category = forecast.CategoryUnclassified
		}
		acc.addExecuted(category, e.Amount)
	}

	report := Report{Categories: make([]CategoryComparison, 0, len(acc.order))}
	totalProjected, totalExecuted := decimal.Zero, decimal.Zero
	for _, c := range acc.order {
		row := Compare(c, acc.projected[c], acc.executed[c])
		report.Categories = append(report.Categories, row)
		totalProjected = totalProjected.Add(row.Projected)
		totalExecuted = totalExecuted.Add(row.Executed)
	}
	report.Overall = Compare("", totalProjected, totalExecuted)
	return report
}

// Compare builds one comparison row.
func Compare(category forecast.Category, projected, executed decimal.Decimal) CategoryComparison {
	variance := generic.PercentVariance(executed, projected)
	return CategoryComparison{
		Category:        category,
		Projected:       projected,
		Executed:        executed,
		Difference:      executed.Sub(projected),
		VariancePercent: variance,
		Status:          Classify(variance),
	}
}

// Classify maps a variance percentage to a status. Exactly ±10 is within.
func Classify(variancePercent decimal.Decimal) VarianceStatus {
	switch {
	case variancePercent.GreaterThan(VarianceThreshold):
		return StatusAbove
	case variancePercent.LessThan(VarianceThreshold.Neg()):
		return StatusBelow
	default:
		return StatusWithin
	}
}

type accumulator struct {
	order     []forecast.Category
	seen      map[forecast.Category]bool
	projected map[forecast.Category]decimal.Decimal
	executed  map[forecast.Category]decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{
		seen:      make(map[forecast.Category]bool),
		projected: make(map[forecast.Category]decimal.Decimal),
		executed:  make(map[forecast.Category]decimal.Decimal),
	}
}

func (a *accumulator) touch(c forecast.Category) {
	if !a.seen[c] {
		a.seen[c] = true
		a.order = append(a.order, c)
		a.projected[c] = decimal.Zero
		a.executed[c] = decimal.Zero
	}
}

func (a *accumulator) addProjected(c forecast.Category, amount decimal.Decimal) {
	a.touch(c)
	a.projected[c] = a.projected[c].Add(amount)
}

func (a *accumulator) addExecuted(c forecast.Category, amount decimal.Decimal) {
	a.touch(c)
	a.executed[c] = a.executed[c].Add(amount)
}
