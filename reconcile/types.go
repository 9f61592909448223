/*
Package reconcile compares a period's forecast against what was actually spent.

PURPOSE:
  Payments (scheduled or executed) and extra expenses (unforeseen spending)
  are the executed side of a period. Reconcile aggregates both sides per
  category and classifies the variance; GenerateAlerts turns a reconciliation
  plus the raw records into alert events.

KEY TYPES:
  - PaymentRecord:      One payment, pending until paid with AmountPaid
  - ExtraExpense:       Unforeseen spending, approved or awaiting approval
  - CategoryComparison: Projected vs executed for one category
  - Report:             All categories plus an overall row
  - Alert:              Variance / overdue / unapproved notification

THRESHOLDS:
  variance >  +10%  -> above
  variance <  -10%  -> below
  otherwise         -> within (both bounds inclusive)

SEE ALSO:
  - forecast/: Projected side (LineItem, Category)
  - service.go: Persistence-facing orchestration
*/
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentOverdue, PaymentCancelled:
		return true
	}
	return false
}

// ReferenceKind says what a payment settles.
type ReferenceKind string

const (
	RefForecastItem   ReferenceKind = "forecast_item"
	RefCostCenterItem ReferenceKind = "cost_center_item"
	RefAdHoc          ReferenceKind = "ad_hoc"
)

func (k ReferenceKind) Valid() bool {
	switch k {
	case RefForecastItem, RefCostCenterItem, RefAdHoc:
		return true
	}
	return false
}

// PaymentRecord is a scheduled or executed payment of a period.
type PaymentRecord struct {
	ID            string
	PeriodID      string
	CostCenterID  string // empty when the payment belongs to the whole condominium
	ReferenceKind ReferenceKind
	ReferenceID   string
	Description   string
	Category      forecast.Category

	AmountProjected decimal.Decimal

	// AmountPaid is required once Status is paid.
	AmountPaid *decimal.Decimal

	DueDate  generic.Date
	PaidDate generic.Date
	Status   PaymentStatus
	Method   string
	Notes    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the record-level rules of a payment.
func (p PaymentRecord) Validate() error {
	if p.Description == "" {
		return generic.Invalid("description", "", "required")
	}
	if !p.Category.Valid() {
		return generic.Invalid("category", string(p.Category), "unknown category")
	}
	if !p.Status.Valid() {
		return generic.Invalid("status", string(p.Status), "unknown status")
	}
	if !p.ReferenceKind.Valid() {
		return generic.Invalid("reference_kind", string(p.ReferenceKind), "unknown reference kind")
	}
	if p.AmountProjected.IsNegative() {
		return generic.Invalid("amount_projected", p.AmountProjected.String(), "must not be negative")
	}
	if p.AmountPaid != nil && p.AmountPaid.IsNegative() {
		return generic.Invalid("amount_paid", p.AmountPaid.String(), "must not be negative")
	}
	if p.Status == PaymentPaid && p.AmountPaid == nil {
		return generic.Invalid("amount_paid", "", "required when status is paid")
	}
	return nil
}

// executed is the amount a payment contributes to the executed side.
func (p PaymentRecord) executed() (decimal.Decimal, bool) {
	if p.Status != PaymentPaid || p.AmountPaid == nil {
		return decimal.Zero, false
	}
	return *p.AmountPaid, true
}

// =============================================================================
// EXTRA EXPENSES
// =============================================================================

// ExtraExpense is spending that was not in the forecast.
type ExtraExpense struct {
	ID           string
	PeriodID     string
	CostCenterID string

	// Category may be CategoryUnclassified.
	Category      forecast.Category
	Description   string
	Amount        decimal.Decimal
	Kind          string // free text, e.g. "emergencial", "manutenção"
	OccurredOn    generic.Date
	Justification string
	Approved      bool

	CreatedAt time.Time
}

func (e ExtraExpense) Validate() error {
	if e.Description == "" {
		return generic.Invalid("description", "", "required")
	}
	if e.Category != "" && !e.Category.Valid() {
		return generic.Invalid("category", string(e.Category), "unknown category")
	}
	if !e.Amount.IsPositive() {
		return generic.Invalid("amount", e.Amount.String(), "must be greater than zero")
	}
	return nil
}

// =============================================================================
// RECONCILIATION OUTPUT
// =============================================================================

type VarianceStatus string

const (
	StatusWithin VarianceStatus = "within"
	StatusAbove  VarianceStatus = "above"
	StatusBelow  VarianceStatus = "below"
)

// CategoryComparison is projected vs executed for one category, or for the
// whole period in Report.Overall.
type CategoryComparison struct {
	Category        forecast.Category `json:"category"`
	Projected       decimal.Decimal   `json:"projected"`
	Executed        decimal.Decimal   `json:"executed"`
	Difference      decimal.Decimal   `json:"difference"`
	VariancePercent decimal.Decimal   `json:"variance_percent"`
	Status          VarianceStatus    `json:"status"`
}

type Report struct {
	Categories []CategoryComparison `json:"categories"`
	Overall    CategoryComparison   `json:"overall"`
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertKind string

const (
	AlertHighVariance      AlertKind = "high_variance"
	AlertOverduePayment    AlertKind = "overdue_payment"
	AlertUnapprovedExpense AlertKind = "unapproved_expense"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a notification about a period. GenerateAlerts fills everything
// but ID and CreatedAt, which the service assigns on insert.
type Alert struct {
	ID            string
	PeriodID      string
	Kind          AlertKind
	Severity      Severity
	Category      forecast.Category // empty for overdue/unapproved alerts
	Title         string
	Description   string
	RelatedAmount decimal.Decimal
	Read          bool
	CreatedAt     time.Time

	// DedupKey identifies "the same alert" across generation runs.
	DedupKey string
}
