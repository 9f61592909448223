package reconcile

import (
	"context"

	"github.com/warp/condo-engine/forecast"
)

// =============================================================================
// STORE - Persistence required by the reconciliation Service
// =============================================================================

// Store persists the executed side of periods and their alerts.
//
// Single-record lookups return (nil, nil) when nothing matches. An empty
// costCenterID in list filters means "all".
type Store interface {
	InsertPayments(ctx context.Context, payments []PaymentRecord) error
	UpdatePayment(ctx context.Context, p PaymentRecord) error
	GetPayment(ctx context.Context, id string) (*PaymentRecord, error)
	DeletePayment(ctx context.Context, id string) (bool, error)
	// ListPayments orders by due date (undated last), then creation.
	ListPayments(ctx context.Context, periodID, costCenterID string) ([]PaymentRecord, error)

	InsertExtraExpense(ctx context.Context, e ExtraExpense) error
	UpdateExtraExpense(ctx context.Context, e ExtraExpense) error
	GetExtraExpense(ctx context.Context, id string) (*ExtraExpense, error)
	DeleteExtraExpense(ctx context.Context, id string) (bool, error)
	// ListExtraExpenses orders by occurrence date, newest first.
	ListExtraExpenses(ctx context.Context, periodID, costCenterID string) ([]ExtraExpense, error)

	// InsertAlert stores a unless an alert with the same DedupKey exists.
	// It reports whether a row was written.
	InsertAlert(ctx context.Context, a Alert) (bool, error)
	// ListAlerts returns alerts newest first; read filters when non-nil.
	ListAlerts(ctx context.Context, periodID string, read *bool) ([]Alert, error)
	MarkAlertRead(ctx context.Context, id string) (bool, error)
	MarkAllAlertsRead(ctx context.Context, periodID string) (int64, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
}

// ForecastReader is the projected side the reconciliation needs.
// forecast.Store satisfies it.
type ForecastReader interface {
	GetCondominium(ctx context.Context, id string) (*forecast.Condominium, error)
	GetPeriod(ctx context.Context, id string) (*forecast.Period, error)
	ListPeriods(ctx context.Context, condominiumID string) ([]forecast.Period, error)
	ListLineItems(ctx context.Context, periodID string) ([]forecast.LineItem, error)
	GetCostCenter(ctx context.Context, id string) (*forecast.CostCenter, error)
	ListCostCenterItems(ctx context.Context, periodID, costCenterID string) ([]forecast.CostCenterItem, error)
}
