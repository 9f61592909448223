/*
Package forecast implements the forecasting half of the engine.

PURPOSE:
  A competence period (one month of one condominium) carries a list of
  expected expenses. This package turns them into category totals, a
  surcharge-adjusted grand total and a rate per m² (consolidate.go), spreads
  that total across cost centers by floor area (proration.go) and guards the
  period against edits once it is closed (lifecycle.go).

KEY TYPES (types.go):
  - Category:       Closed enum of expense labels (forecast + cost center sets)
  - Condominium:    Owner of periods and cost centers (only area matters here)
  - Period:         One month's forecast cycle, draft -> closed
  - LineItem:       One expected expense of a period
  - CostCenter:     Billable sub-entity sharing the condominium
  - CostCenterItem: Expense specific to one (period, cost center) pair

DATA FLOW:
  LineItems + area + surcharge -> Consolidate -> Summary
  Summary + CostCenters        -> Allocate    -> Allocation

SEE ALSO:
  - service.go: Persistence-facing orchestration (save, recalculate, close)
  - reconcile/: Projected vs executed comparison built on these types
*/
package forecast

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// CATEGORY - Closed label set
// =============================================================================

// Category is an expense label. Two disjoint sets exist: the five forecast
// categories used by LineItems and the three cost center categories used by
// CostCenterItems. Payments and extra expenses may carry either, and extras
// may carry none (CategoryUnclassified).
type Category string

// Forecast categories (LineItem).
const (
	CategoryPersonnel Category = "Despesas de Pessoal"
	CategoryContracts Category = "Contratos Mensais"
	CategoryUtilities Category = "Despesas Concessionárias (Estimado)"
	CategoryAnnual    Category = "Despesas Anuais (Estimado)"
	CategoryVariable  Category = "Despesas Mensais Variáveis (Estimado)"
)

// Cost center categories (CostCenterItem).
const (
	CenterPersonnel Category = "Pessoal"
	CenterContracts Category = "Contratos"
	CenterVariable  Category = "Variáveis"
)

// CategoryUnclassified keys executed amounts that came without a category.
const CategoryUnclassified Category = "Não Previstas"

// ForecastCategories lists the forecast set in display order.
var ForecastCategories = []Category{
	CategoryPersonnel,
	CategoryContracts,
	CategoryUtilities,
	CategoryAnnual,
	CategoryVariable,
}

// CostCenterCategories lists the cost center set in display order.
var CostCenterCategories = []Category{
	CenterPersonnel,
	CenterContracts,
	CenterVariable,
}

func (c Category) IsForecast() bool {
	switch c {
	case CategoryPersonnel, CategoryContracts, CategoryUtilities, CategoryAnnual, CategoryVariable:
		return true
	}
	return false
}

func (c Category) IsCostCenter() bool {
	switch c {
	case CenterPersonnel, CenterContracts, CenterVariable:
		return true
	}
	return false
}

func (c Category) IsUnclassified() bool { return c == CategoryUnclassified }

// Valid reports whether c belongs to any known set, sentinel included.
func (c Category) Valid() bool {
	return c.IsForecast() || c.IsCostCenter() || c.IsUnclassified()
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a label to a Category. The empty label is the
// unclassified sentinel; unknown labels are rejected.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryUnclassified, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", generic.Invalid("category", s, "unknown category")
	}
	return c, nil
}

// =============================================================================
// CONDOMINIUM
// =============================================================================

type Condominium struct {
	ID          string
	Name        string
	TotalAreaM2 decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// PERIOD (competência)
// =============================================================================

type PeriodStatus string

const (
	StatusDraft  PeriodStatus = "draft"
	StatusClosed PeriodStatus = "closed"
)

// Period is one month's forecast cycle for one condominium. It is the
// aggregation root of its LineItems.
type Period struct {
	ID               string
	CondominiumID    string
	Month            int
	Year             int
	TotalAreaM2      decimal.Decimal
	SurchargePercent decimal.Decimal

	// RatePerArea is nil until the first consolidation is saved.
	RatePerArea *decimal.Decimal

	Status PeriodStatus

	// Version increments on every write; stores reject stale updates.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Label renders the competence, e.g. "MARÇO/2025".
func (p Period) Label() string { return generic.CompetenceLabel(p.Month, p.Year) }

// =============================================================================
// LINE ITEM (previsão item)
// =============================================================================

type LineItem struct {
	ID          string
	PeriodID    string
	Category    Category
	Description string
	Amount      decimal.Decimal
	Notes       string
	Order       int
}

// =============================================================================
// COST CENTER (centro de custo)
// =============================================================================

type CostCenter struct {
	ID            string
	CondominiumID string
	Name          string
	AreaM2        decimal.Decimal
	Address       string
	TaxID         string
	Active        bool
	CreatedAt     time.Time
}

type CostCenterItem struct {
	ID           string
	PeriodID     string
	CostCenterID string
	Category     Category
	Description  string
	Amount       decimal.Decimal
	Order        int
}
