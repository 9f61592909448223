package forecast

import "context"

// =============================================================================
// STORE - Persistence required by the forecast Service
// =============================================================================

// Store persists condominiums, cost centers, periods and their items.
//
// Lookups of a single record return (nil, nil) when it does not exist; the
// Service turns that into a NotFoundError.
//
// IMPLEMENTATIONS:
//   - store/memory: In-memory, for tests and local runs
//   - store/sqlite: SQLite with versioned migrations
type Store interface {
	SaveCondominium(ctx context.Context, c Condominium) error
	GetCondominium(ctx context.Context, id string) (*Condominium, error)
	// ListCondominiums returns every condominium ordered by name.
	ListCondominiums(ctx context.Context) ([]Condominium, error)

	SaveCostCenter(ctx context.Context, c CostCenter) error
	GetCostCenter(ctx context.Context, id string) (*CostCenter, error)
	ListCostCenters(ctx context.Context, condominiumID string) ([]CostCenter, error)

	// CreatePeriod inserts a period with its initial items. Returns
	// generic.ErrAlreadyExists when the condominium already has a period for
	// the same month and year.
	CreatePeriod(ctx context.Context, p Period, items []LineItem) error
	GetPeriod(ctx context.Context, id string) (*Period, error)

	// ListPeriods returns the condominium's periods, newest first.
	ListPeriods(ctx context.Context, condominiumID string) ([]Period, error)

	// UpdatePeriod writes p if the stored version still equals
	// expectedVersion, otherwise returns generic.ErrConcurrentModification.
	UpdatePeriod(ctx context.Context, p Period, expectedVersion int64) error

	// ReplaceLineItems swaps the whole item set of a period.
	ReplaceLineItems(ctx context.Context, periodID string, items []LineItem) error
	// ListLineItems returns items ordered by category, then order.
	ListLineItems(ctx context.Context, periodID string) ([]LineItem, error)

	ReplaceCostCenterItems(ctx context.Context, periodID, costCenterID string, items []CostCenterItem) error
	ListCostCenterItems(ctx context.Context, periodID, costCenterID string) ([]CostCenterItem, error)

	// SaveSnapshot stores the encoded Summary of a period's last consolidation.
	SaveSnapshot(ctx context.Context, periodID string, data []byte) error
	// GetSnapshot returns nil when no consolidation has been saved yet.
	GetSnapshot(ctx context.Context, periodID string) ([]byte, error)

	// WithTx runs fn atomically. If fn returns an error nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(Store) error) error
}
