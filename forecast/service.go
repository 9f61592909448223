/*
service.go - Forecast operations against a Store

PURPOSE:
  Wraps the pure consolidation/proration code with the reads and writes an
  administrator's actions need: creating a period, saving its forecast,
  recalculating its rate, editing cost center items and closing it.

SAVE SEMANTICS:
  SaveForecast is a full replacement, not a patch:
  1. Period must be draft (PeriodClosedError otherwise, nothing written)
  2. Parameters and items are validated (InvalidParameterError, nothing written);
     a new area smaller than an active cost center is an InvalidCostCenterError
  3. Blank rows are dropped and reported in SaveResult.Rejected
  4. Kept rows are consolidated
  5. In ONE transaction: period (area, surcharge, rate, version+1),
     item set and summary snapshot are written

CONCURRENCY:
  Two saves on the same period would otherwise race (last writer wins).
  Writers on one period are serialized by a per-period mutex, and the store
  checks Period.Version so a writer in another process fails with
  ErrConcurrentModification instead of silently overwriting. Lock entries
  are reference counted and dropped once no writer holds or waits on them.

SEE ALSO:
  - consolidate.go, proration.go, lifecycle.go: The pure parts
  - store.go: Persistence contract
*/
package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/generic"
	"go.uber.org/zap"
)

// Service exposes the forecast use cases.
type Service struct {
	Store  Store
	Logger *zap.Logger

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string

	mu    sync.Mutex
	locks map[string]*periodLock
}

// periodLock is a per-period writer mutex. refs counts holders and waiters;
// the entry leaves the map when it drops to zero, so the map only holds
// periods being written right now.
type periodLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a Service. A nil logger disables logging.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:  store,
		Logger: logger.Named("forecast"),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
		locks:  make(map[string]*periodLock),
	}
}

// lockPeriod serializes writers of one period and returns the unlock func.
func (s *Service) lockPeriod(periodID string) func() {
	s.mu.Lock()
	l, ok := s.locks[periodID]
	if !ok {
		l = &periodLock{}
		s.locks[periodID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, periodID)
		}
		s.mu.Unlock()
	}
}

// =============================================================================
// CONDOMINIUMS & COST CENTERS
// =============================================================================

// CreateCondominium registers a condominium with its total floor area.
func (s *Service) CreateCondominium(ctx context.Context, name string, totalAreaM2 decimal.Decimal) (Condominium, error) {
	if name == "" {
		return Condominium{}, generic.Invalid("name", "", "required")
	}
	if !totalAreaM2.IsPositive() {
		return Condominium{}, generic.Invalid("total_area_m2", totalAreaM2.String(), "must be greater than zero")
	}

	c := Condominium{ID: s.NewID(), Name: name, TotalAreaM2: totalAreaM2, CreatedAt: s.Now()}
	if err := s.Store.SaveCondominium(ctx, c); err != nil {
		return Condominium{}, fmt.Errorf("save condominium: %w", err)
	}
	return c, nil
}

// GetCondominium returns a condominium or a NotFoundError.
func (s *Service) GetCondominium(ctx context.Context, id string) (Condominium, error) {
	c, err := s.Store.GetCondominium(ctx, id)
	if err != nil {
		return Condominium{}, fmt.Errorf("get condominium: %w", err)
	}
	if c == nil {
		return Condominium{}, generic.NotFound("condominium", id)
	}
	return *c, nil
}

// CreateCostCenter registers a cost center. Its area must be positive and
// must not exceed the condominium's total area.
func (s *Service) CreateCostCenter(ctx context.Context, c CostCenter) (CostCenter, error) {
	if c.Name == "" {
		return CostCenter{}, generic.Invalid("name", "", "required")
	}
	condo, err := s.GetCondominium(ctx, c.CondominiumID)
	if err != nil {
		return CostCenter{}, err
	}
	if err := ValidateCenterArea(c, condo.TotalAreaM2); err != nil {
		return CostCenter{}, err
	}
	if c.Active {
		// Periods keep their own area; the center must fit every one of them
		// or their consolidated view could no longer prorate.
		periods, err := s.Store.ListPeriods(ctx, c.CondominiumID)
		if err != nil {
			return CostCenter{}, fmt.Errorf("list periods: %w", err)
		}
		for _, p := range periods {
			if err := ValidateCenterArea(c, p.TotalAreaM2); err != nil {
				return CostCenter{}, err
			}
		}
	}

	c.ID = s.NewID()
	c.CreatedAt = s.Now()
	if err := s.Store.SaveCostCenter(ctx, c); err != nil {
		return CostCenter{}, fmt.Errorf("save cost center: %w", err)
	}
	return c, nil
}

// GetCostCenter returns a cost center or a NotFoundError.
func (s *Service) GetCostCenter(ctx context.Context, id string) (CostCenter, error) {
	c, err := s.Store.GetCostCenter(ctx, id)
	if err != nil {
		return CostCenter{}, fmt.Errorf("get cost center: %w", err)
	}
	if c == nil {
		return CostCenter{}, generic.NotFound("cost_center", id)
	}
	return *c, nil
}

func (s *Service) ListCondominiums(ctx context.Context) ([]Condominium, error) {
	condos, err := s.Store.ListCondominiums(ctx)
	if err != nil {
		return nil, fmt.Errorf("list condominiums: %w", err)
	}
	return condos, nil
}

// ListCostCenters returns all cost centers of a condominium, inactive included.
func (s *Service) ListCostCenters(ctx context.Context, condominiumID string) ([]CostCenter, error) {
	if _, err := s.GetCondominium(ctx, condominiumID); err != nil {
		return nil, err
	}
	centers, err := s.Store.ListCostCenters(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	return centers, nil
}

// =============================================================================
// PERIODS
// =============================================================================

// CreatePeriod opens a draft period for month/year. The total area comes from
// the condominium and the line items are copied from the most recent earlier
// period, so each month starts from last month's forecast.
func (s *Service) CreatePeriod(ctx context.Context, condominiumID string, month, year int) (Period, []LineItem, error) {
	if !generic.ValidMonth(month) {
		return Period{}, nil, generic.Invalid("month", fmt.Sprint(month), "must be between 1 and 12")
	}
	if year < 1 {
		return Period{}, nil, generic.Invalid("year", fmt.Sprint(year), "must be positive")
	}
	condo, err := s.GetCondominium(ctx, condominiumID)
	if err != nil {
		return Period{}, nil, err
	}

	existing, err := s.Store.ListPeriods(ctx, condominiumID)
	if err != nil {
		return Period{}, nil, fmt.Errorf("list periods: %w", err)
	}

	var previous *Period
	for i := range existing {
		p := existing[i]
		if p.Month == month && p.Year == year {
			return Period{}, nil, fmt.Errorf("period %s: %w", generic.CompetenceLabel(month, year), generic.ErrAlreadyExists)
		}
		if generic.CompetenceBefore(p.Year, p.Month, year, month) &&
			(previous == nil || generic.CompetenceBefore(previous.Year, previous.Month, p.Year, p.Month)) {
			previous = &existing[i]
		}
	}

	now := s.Now()
	period := Period{
		ID:               s.NewID(),
		CondominiumID:    condominiumID,
		Month:            month,
		Year:             year,
		TotalAreaM2:      condo.TotalAreaM2,
		SurchargePercent: decimal.Zero,
		Status:           StatusDraft,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var items []LineItem
	if previous != nil {
		prevItems, err := s.Store.ListLineItems(ctx, previous.ID)
		if err != nil {
			return Period{}, nil, fmt.Errorf("list previous items: %w", err)
		}
		items = make([]LineItem, 0, len(prevItems))
		for _, item := range prevItems {
			item.ID = s.NewID()
			item.PeriodID = period.ID
			items = append(items, item)
		}
	}

	if err := s.Store.CreatePeriod(ctx, period, items); err != nil {
		return Period{}, nil, fmt.Errorf("create period: %w", err)
	}

	s.Logger.Info("period created",
		zap.String("period_id", period.ID),
		zap.String("competence", period.Label()),
		zap.Int("copied_items", len(items)))
	return period, items, nil
}

// GetPeriod returns a period or a NotFoundError.
func (s *Service) GetPeriod(ctx context.Context, id string) (Period, error) {
	p, err := s.Store.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, fmt.Errorf("get period: %w", err)
	}
	if p == nil {
		return Period{}, generic.NotFound("period", id)
	}
	return *p, nil
}

// ListPeriods returns a condominium's periods, newest first.
func (s *Service) ListPeriods(ctx context.Context, condominiumID string) ([]Period, error) {
	if _, err := s.GetCondominium(ctx, condominiumID); err != nil {
		return nil, err
	}
	periods, err := s.Store.ListPeriods(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// ListLineItems returns the stored forecast items of a period.
func (s *Service) ListLineItems(ctx context.Context, periodID string) ([]LineItem, error) {
	if _, err := s.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	items, err := s.Store.ListLineItems(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// =============================================================================
// SAVE / RECALCULATE
// =============================================================================

// SaveForecastInput is the full new state of a period's forecast.
// Nil parameters keep the period's current values.
type SaveForecastInput struct {
	TotalAreaM2      *decimal.Decimal
	SurchargePercent *decimal.Decimal
	Items            []LineItem
}

// SaveResult reports what a save persisted and what it left out.
type SaveResult struct {
	Period   Period
	Summary  Summary
	Items    []LineItem
	Rejected []RejectedItem
}

// SaveForecast replaces the period's items and stores the new rate.
func (s *Service) SaveForecast(ctx context.Context, periodID string, in SaveForecastInput) (SaveResult, error) {
	unlock := s.lockPeriod(periodID)
	defer unlock()

	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return SaveResult{}, err
	}
	if err := period.EnsureMutable(); err != nil {
		return SaveResult{}, err
	}

	area := period.TotalAreaM2
	if in.TotalAreaM2 != nil {
		area = *in.TotalAreaM2
	}
	surcharge := period.SurchargePercent
	if in.SurchargePercent != nil {
		surcharge = *in.SurchargePercent
	}
	if err := ValidateParameters(area, surcharge); err != nil {
		return SaveResult{}, err
	}
	if !area.Equal(period.TotalAreaM2) {
		if err := s.checkActiveCentersFit(ctx, period.CondominiumID, area); err != nil {
			return SaveResult{}, err
		}
	}

	kept, rejected, err := ValidateItems(in.Items)
	if err != nil {
		return SaveResult{}, err
	}
	summary, err := Consolidate(kept, area, surcharge)
	if err != nil {
		return SaveResult{}, err
	}

	for i := range kept {
		kept[i].ID = s.NewID()
		kept[i].PeriodID = periodID
	}

	expected := period.Version
	period.TotalAreaM2 = area
	period.SurchargePercent = surcharge
	rate := summary.RatePerArea
	period.RatePerArea = &rate
	period.Version = expected + 1
	period.UpdatedAt = s.Now()

	if err := s.persistConsolidation(ctx, period, expected, summary, kept, true); err != nil {
		return SaveResult{}, err
	}

	if len(rejected) > 0 {
		s.Logger.Warn("forecast rows dropped on save",
			zap.String("period_id", periodID),
			zap.Int("dropped", len(rejected)))
	}
	s.Logger.Info("forecast saved",
		zap.String("period_id", periodID),
		zap.Int("items", len(kept)),
		zap.String("grand_total", summary.GrandTotalWithSurcharge.StringFixed(2)),
		zap.String("rate_per_area", summary.RatePerArea.String()))

	return SaveResult{Period: period, Summary: summary, Items: kept, Rejected: rejected}, nil
}

// Recalculate recomputes the rate of a draft period from its stored items.
func (s *Service) Recalculate(ctx context.Context, periodID string) (Summary, error) {
	unlock := s.lockPeriod(periodID)
	defer unlock()

	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return Summary{}, err
	}
	if err := period.EnsureMutable(); err != nil {
		return Summary{}, err
	}

	items, err := s.Store.ListLineItems(ctx, periodID)
	if err != nil {
		return Summary{}, fmt.Errorf("list items: %w", err)
	}
	summary, err := Consolidate(items, period.TotalAreaM2, period.SurchargePercent)
	if err != nil {
		return Summary{}, err
	}

	expected := period.Version
	rate := summary.RatePerArea
	period.RatePerArea = &rate
	period.Version = expected + 1
	period.UpdatedAt = s.Now()

	if err := s.persistConsolidation(ctx, period, expected, summary, nil, false); err != nil {
		return Summary{}, err
	}
	s.Logger.Info("rate recalculated",
		zap.String("period_id", periodID),
		zap.String("rate_per_area", summary.RatePerArea.String()))
	return summary, nil
}

// checkActiveCentersFit rejects a period area smaller than any active cost
// center of the condominium.
func (s *Service) checkActiveCentersFit(ctx context.Context, condominiumID string, area decimal.Decimal) error {
	centers, err := s.Store.ListCostCenters(ctx, condominiumID)
	if err != nil {
		return fmt.Errorf("list cost centers: %w", err)
	}
	for _, c := range centers {
		if !c.Active {
			continue
		}
		if err := ValidateCenterArea(c, area); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) persistConsolidation(ctx context.Context, period Period, expectedVersion int64, summary Summary, items []LineItem, replaceItems bool) error {
	snapshot, err := summary.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdatePeriod(ctx, period, expectedVersion); err != nil {
			return fmt.Errorf("update period: %w", err)
		}
		if replaceItems {
			if err := tx.ReplaceLineItems(ctx, period.ID, items); err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
		}
		if err := tx.SaveSnapshot(ctx, period.ID, snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
}

// SaveCostCenterItems replaces the items of one (period, cost center) pair.
func (s *Service) SaveCostCenterItems(ctx context.Context, periodID, costCenterID string, items []CostCenterItem) ([]CostCenterItem, error) {
	unlock := s.lockPeriod(periodID)
	defer unlock()

	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if err := period.EnsureMutable(); err != nil {
		return nil, err
	}
	center, err := s.GetCostCenter(ctx, costCenterID)
	if err != nil {
		return nil, err
	}
	if center.CondominiumID != period.CondominiumID {
		return nil, generic.Invalid("cost_center_id", costCenterID, "belongs to another condominium")
	}
	if err := ValidateCostCenterItems(items); err != nil {
		return nil, err
	}

	saved := make([]CostCenterItem, len(items))
	for i, item := range items {
		item.ID = s.NewID()
		item.PeriodID = periodID
		item.CostCenterID = costCenterID
		saved[i] = item
	}
	if err := s.Store.ReplaceCostCenterItems(ctx, periodID, costCenterID, saved); err != nil {
		return nil, fmt.Errorf("replace cost center items: %w", err)
	}
	return saved, nil
}

// =============================================================================
// CONSOLIDATED VIEW
// =============================================================================

// Consolidated is the full forecast picture of a period: totals plus the
// proration across its condominium's active cost centers.
type Consolidated struct {
	Period      Period
	Condominium Condominium
	Items       []LineItem
	Summary     Summary
	Allocation  Allocation
}

// Consolidated computes the live consolidation of a period. It reads only,
// so it works on closed periods too.
func (s *Service) Consolidated(ctx context.Context, periodID string) (Consolidated, error) {
	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return Consolidated{}, err
	}
	condo, err := s.GetCondominium(ctx, period.CondominiumID)
	if err != nil {
		return Consolidated{}, err
	}
	items, err := s.Store.ListLineItems(ctx, periodID)
	if err != nil {
		return Consolidated{}, fmt.Errorf("list items: %w", err)
	}
	summary, err := Consolidate(items, period.TotalAreaM2, period.SurchargePercent)
	if err != nil {
		return Consolidated{}, err
	}

	centers, err := s.Store.ListCostCenters(ctx, period.CondominiumID)
	if err != nil {
		return Consolidated{}, fmt.Errorf("list cost centers: %w", err)
	}
	inputs := make([]CenterInput, 0, len(centers))
	for _, c := range centers {
		if !c.Active {
			continue
		}
		own, err := s.Store.ListCostCenterItems(ctx, periodID, c.ID)
		if err != nil {
			return Consolidated{}, fmt.Errorf("list cost center items: %w", err)
		}
		inputs = append(inputs, CenterInput{Center: c, OwnItems: own})
	}

	allocation, err := Allocate(summary.GrandTotalWithSurcharge, period.TotalAreaM2, inputs)
	if err != nil {
		return Consolidated{}, err
	}
	for _, w := range allocation.Warnings {
		s.Logger.Warn("proration warning", zap.String("period_id", periodID), zap.String("warning", w))
	}

	return Consolidated{
		Period:      period,
		Condominium: condo,
		Items:       items,
		Summary:     summary,
		Allocation:  allocation,
	}, nil
}

// Snapshot returns the summary stored by the last save or recalculation.
func (s *Service) Snapshot(ctx context.Context, periodID string) (Summary, error) {
	if _, err := s.GetPeriod(ctx, periodID); err != nil {
		return Summary{}, err
	}
	data, err := s.Store.GetSnapshot(ctx, periodID)
	if err != nil {
		return Summary{}, fmt.Errorf("get snapshot: %w", err)
	}
	if data == nil {
		return Summary{}, generic.NotFound("snapshot", periodID)
	}
	summary, err := UnmarshalSnapshot(data)
	if err != nil {
		return Summary{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return summary, nil
}

// =============================================================================
// CLOSE
// =============================================================================

// ClosePeriod locks a draft period. Closing twice is a PeriodClosedError.
func (s *Service) ClosePeriod(ctx context.Context, periodID string) (Period, error) {
	unlock := s.lockPeriod(periodID)
	defer unlock()

	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	expected := period.Version
	period, err = ClosePeriod(period, s.Now())
	if err != nil {
		return Period{}, err
	}
	period.Version = expected + 1

	if err := s.Store.UpdatePeriod(ctx, period, expected); err != nil {
		return Period{}, fmt.Errorf("update period: %w", err)
	}
	s.Logger.Info("period closed", zap.String("period_id", periodID), zap.String("competence", period.Label()))
	return period, nil
}
