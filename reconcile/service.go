/*
service.go - Reconciliation operations against a Store

PURPOSE:
  Records the executed side of a period (payments, extra expenses), runs the
  reconciliation over stored data and persists the alerts it produces.

CLOSED PERIODS:
  Closing a period freezes its forecast only. Payments are usually settled
  after the month is closed, so payments, extras and alerts stay writable.

ALERT PERSISTENCE:
  Alerts are inserted by DedupKey: generating twice for unchanged data writes
  nothing the second time. A change in amounts yields a new key and a new
  alert; the old one stays until read or deleted.

SEE ALSO:
  - engine.go, alerts.go, report.go: The pure parts
  - api/scheduler.go: Periodic GenerateAlerts over open periods
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"go.uber.org/zap"
)

type Service struct {
	Store    Store
	Forecast ForecastReader
	Logger   *zap.Logger

	// Now is the clock behind "today" for overdue detection.
	Now   func() time.Time
	NewID func() string
}

func NewService(store Store, forecastReader ForecastReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:    store,
		Forecast: forecastReader,
		Logger:   logger.Named("reconcile"),
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

func (s *Service) period(ctx context.Context, id string) (forecast.Period, error) {
	p, err := s.Forecast.GetPeriod(ctx, id)
	if err != nil {
		return forecast.Period{}, fmt.Errorf("get period: %w", err)
	}
	if p == nil {
		return forecast.Period{}, generic.NotFound("period", id)
	}
	return *p, nil
}

// checkCostCenter verifies that a referenced center belongs to the period's
// condominium. An empty id is always fine.
func (s *Service) checkCostCenter(ctx context.Context, period forecast.Period, id string) error {
	if id == "" {
		return nil
	}
	c, err := s.Forecast.GetCostCenter(ctx, id)
	if err != nil {
		return fmt.Errorf("get cost center: %w", err)
	}
	if c == nil {
		return generic.NotFound("cost_center", id)
	}
	if c.CondominiumID != period.CondominiumID {
		return generic.Invalid("cost_center_id", id, "belongs to another condominium")
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment stores a new payment. Missing status defaults to pending and
// missing reference kind to ad_hoc.
func (s *Service) RecordPayment(ctx context.Context, p PaymentRecord) (PaymentRecord, error) {
	period, err := s.period(ctx, p.PeriodID)
	if err != nil {
		return PaymentRecord{}, err
	}
	if err := s.checkCostCenter(ctx, period, p.CostCenterID); err != nil {
		return PaymentRecord{}, err
	}
	if p.Status == "" {
		p.Status = PaymentPending
	}
	if p.ReferenceKind == "" {
		p.ReferenceKind = RefAdHoc
	}
	if err := p.Validate(); err != nil {
		return PaymentRecord{}, err
	}

	now := s.Now()
	p.ID = s.NewID()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.Store.InsertPayments(ctx, []PaymentRecord{p}); err != nil {
		return PaymentRecord{}, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

// PaymentUpdate carries the fields a payment may change after creation.
// Nil fields are left as they are.
type PaymentUpdate struct {
	Status     *PaymentStatus
	AmountPaid *decimal.Decimal
	PaidDate   *generic.Date
	Method     *string
	Notes      *string
}

// UpdatePayment applies u. Marking a payment paid without a paid date stamps
// today's date.
func (s *Service) UpdatePayment(ctx context.Context, id string, u PaymentUpdate) (PaymentRecord, error) {
	stored, err := s.Store.GetPayment(ctx, id)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("get payment: %w", err)
	}
	if stored == nil {
		return PaymentRecord{}, generic.NotFound("payment", id)
	}
	p := *stored

	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.AmountPaid != nil {
		amount := *u.AmountPaid
		p.AmountPaid = &amount
	}
	if u.PaidDate != nil {
		p.PaidDate = *u.PaidDate
	}
	if u.Method != nil {
		p.Method = *u.Method
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if p.Status == PaymentPaid && p.PaidDate.IsZero() {
		p.PaidDate = generic.DateOf(s.Now())
	}
	if err := p.Validate(); err != nil {
		return PaymentRecord{}, err
	}

	p.UpdatedAt = s.Now()
	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return PaymentRecord{}, fmt.Errorf("update payment: %w", err)
	}
	return p, nil
}

func (s *Service) DeletePayment(ctx context.Context, id string) error {
	ok, err := s.Store.DeletePayment(ctx, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if !ok {
		return generic.NotFound("payment", id)
	}
	return nil
}

// ListPayments lists a period's payments, optionally for one cost center.
func (s *Service) ListPayments(ctx context.Context, periodID, costCenterID string) ([]PaymentRecord, error) {
	if _, err := s.period(ctx, periodID); err != nil {
		return nil, err
	}
	payments, err := s.Store.ListPayments(ctx, periodID, costCenterID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// GeneratePaymentsFromForecast schedules one pending payment per line item of
// the period, plus one per item of costCenterID when given. All payments are
// written together or not at all.
func (s *Service) GeneratePaymentsFromForecast(ctx context.Context, periodID, costCenterID string, dueDate generic.Date) ([]PaymentRecord, error) {
	period, err := s.period(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCostCenter(ctx, period, costCenterID); err != nil {
		return nil, err
	}

	items, err := s.Forecast.ListLineItems(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var centerItems []forecast.CostCenterItem
	if costCenterID != "" {
		centerItems, err = s.Forecast.ListCostCenterItems(ctx, periodID, costCenterID)
		if err != nil {
			return nil, fmt.Errorf("list cost center items: %w", err)
		}
	}

	now := s.Now()
	payments := make([]PaymentRecord, 0, len(items)+len(centerItems))
	pending := func(kind ReferenceKind, refID, center, description string, category forecast.Category, amount decimal.Decimal) {
		payments = append(payments, PaymentRecord{
			ID:              s.NewID(),
			PeriodID:        periodID,
			CostCenterID:    center,
			ReferenceKind:   kind,
			ReferenceID:     refID,
			Description:     description,
			Category:        category,
			AmountProjected: amount,
			DueDate:         dueDate,
			Status:          PaymentPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	for _, item := range items {
		pending(RefForecastItem, item.ID, "", item.Description, item.Category, item.Amount)
	}
	for _, item := range centerItems {
		pending(RefCostCenterItem, item.ID, costCenterID, item.Description, item.Category, item.Amount)
	}

	if len(payments) == 0 {
		return payments, nil
	}
	if err := s.Store.InsertPayments(ctx, payments); err != nil {
		return nil, fmt.Errorf("insert payments: %w", err)
	}
	s.Logger.Info("payments generated from forecast",
		zap.String("period_id", periodID),
		zap.Int("count", len(payments)))
	return payments, nil
}

// =============================================================================
// EXTRA EXPENSES
// =============================================================================

// RecordExtraExpense stores an unforeseen expense. An empty category is
// stored as unclassified.
func (s *Service) RecordExtraExpense(ctx context.Context, e ExtraExpense) (ExtraExpense, error) {
	period, err := s.period(ctx, e.PeriodID)
	if err != nil {
		return ExtraExpense{}, err
	}
	if err := s.checkCostCenter(ctx, period, e.CostCenterID); err != nil {
		return ExtraExpense{}, err
	}
	if e.Category == "" {
		e.Category = forecast.CategoryUnclassified
	}
	if e.Kind == "" {
		e.Kind = "unforeseen"
	}
	if err := e.Validate(); err != nil {
		return ExtraExpense{}, err
	}

	e.ID = s.NewID()
	e.CreatedAt = s.Now()
	if err := s.Store.InsertExtraExpense(ctx, e); err != nil {
		return ExtraExpense{}, fmt.Errorf("insert extra expense: %w", err)
	}
	if !e.Approved {
		s.Logger.Info("extra expense awaiting approval",
			zap.String("period_id", e.PeriodID),
			zap.String("amount", e.Amount.StringFixed(2)))
	}
	return e, nil
}

// UpdateExtraExpense replaces the editable fields of an extra expense,
// approval included.
func (s *Service) UpdateExtraExpense(ctx context.Context, id string, e ExtraExpense) (ExtraExpense, error) {
	stored, err := s.Store.GetExtraExpense(ctx, id)
	if err != nil {
		return ExtraExpense{}, fmt.Errorf("get extra expense: %w", err)
	}
	if stored == nil {
		return ExtraExpense{}, generic.NotFound("extra_expense", id)
	}
	e.ID = stored.ID
	e.PeriodID = stored.PeriodID
	e.CostCenterID = stored.CostCenterID
	e.CreatedAt = stored.CreatedAt
	if e.Category == "" {
		e.Category = forecast.CategoryUnclassified
	}
	if e.Kind == "" {
		e.Kind = stored.Kind
	}
	if err := e.Validate(); err != nil {
		return ExtraExpense{}, err
	}
	if err := s.Store.UpdateExtraExpense(ctx, e); err != nil {
		return ExtraExpense{}, fmt.Errorf("update extra expense: %w", err)
	}
	return e, nil
}

func (s *Service) DeleteExtraExpense(ctx context.Context, id string) error {
	ok, err := s.Store.DeleteExtraExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete extra expense: %w", err)
	}
	if !ok {
		return generic.NotFound("extra_expense", id)
	}
	return nil
}

func (s *Service) ListExtraExpenses(ctx context.Context, periodID, costCenterID string) ([]ExtraExpense, error) {
	if _, err := s.period(ctx, periodID); err != nil {
		return nil, err
	}
	extras, err := s.Store.ListExtraExpenses(ctx, periodID, costCenterID)
	if err != nil {
		return nil, fmt.Errorf("list extra expenses: %w", err)
	}
	return extras, nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type periodRecords struct {
	period   forecast.Period
	items    []forecast.LineItem
	payments []PaymentRecord
	extras   []ExtraExpense
}

func (s *Service) load(ctx context.Context, periodID, costCenterID string) (periodRecords, error) {
	period, err := s.period(ctx, periodID)
	if err != nil {
		return periodRecords{}, err
	}
	items, err := s.Forecast.ListLineItems(ctx, periodID)
	if err != nil {
		return periodRecords{}, fmt.Errorf("list items: %w", err)
	}
	payments, err := s.Store.ListPayments(ctx, periodID, costCenterID)
	if err != nil {
		return periodRecords{}, fmt.Errorf("list payments: %w", err)
	}
	extras, err := s.Store.ListExtraExpenses(ctx, periodID, costCenterID)
	if err != nil {
		return periodRecords{}, fmt.Errorf("list extra expenses: %w", err)
	}
	return periodRecords{period: period, items: items, payments: payments, extras: extras}, nil
}

// Compare reconciles a period. With costCenterID set, only that center's
// payments and extras count as executed; the projected side stays the whole
// period forecast.
func (s *Service) Compare(ctx context.Context, periodID, costCenterID string) (Report, error) {
	r, err := s.load(ctx, periodID, costCenterID)
	if err != nil {
		return Report{}, err
	}
	return Reconcile(r.items, r.payments, r.extras), nil
}

// Summary returns the execution summary of a period.
func (s *Service) Summary(ctx context.Context, periodID string) (ExecutionSummary, error) {
	r, err := s.load(ctx, periodID, "")
	if err != nil {
		return ExecutionSummary{}, err
	}
	return Summarize(r.items, r.payments, r.extras), nil
}

// =============================================================================
// ALERTS
// =============================================================================

// GenerateResult reports one alert generation run.
type GenerateResult struct {
	Created           []Alert
	SkippedDuplicates int
}

// GenerateAlerts reconciles the period and stores any alert not already
// present.
func (s *Service) GenerateAlerts(ctx context.Context, periodID string) (GenerateResult, error) {
	r, err := s.load(ctx, periodID, "")
	if err != nil {
		return GenerateResult{}, err
	}

	now := s.Now()
	report := Reconcile(r.items, r.payments, r.extras)
	alerts := GenerateAlerts(periodID, report, r.payments, r.extras, generic.DateOf(now))

	result := GenerateResult{Created: []Alert{}}
	for _, a := range alerts {
		a.ID = s.NewID()
		a.CreatedAt = now
		inserted, err := s.Store.InsertAlert(ctx, a)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("insert alert: %w", err)
		}
		if !inserted {
			result.SkippedDuplicates++
			continue
		}
		result.Created = append(result.Created, a)
	}

	if result.SkippedDuplicates > 0 {
		s.Logger.Warn("duplicate alerts skipped",
			zap.String("period_id", periodID),
			zap.Int("skipped", result.SkippedDuplicates))
	}
	s.Logger.Info("alerts generated",
		zap.String("period_id", periodID),
		zap.Int("created", len(result.Created)))
	return result, nil
}

// ListAlerts returns a period's alerts, optionally only read or unread ones.
func (s *Service) ListAlerts(ctx context.Context, periodID string, read *bool) ([]Alert, error) {
	if _, err := s.period(ctx, periodID); err != nil {
		return nil, err
	}
	alerts, err := s.Store.ListAlerts(ctx, periodID, read)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (s *Service) MarkAlertRead(ctx context.Context, id string) error {
	ok, err := s.Store.MarkAlertRead(ctx, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if !ok {
		return generic.NotFound("alert", id)
	}
	return nil
}

// MarkAllAlertsRead marks every alert of the period read and returns how
// many changed.
func (s *Service) MarkAllAlertsRead(ctx context.Context, periodID string) (int64, error) {
	if _, err := s.period(ctx, periodID); err != nil {
		return 0, err
	}
	n, err := s.Store.MarkAllAlertsRead(ctx, periodID)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	return n, nil
}

func (s *Service) DeleteAlert(ctx context.Context, id string) error {
	ok, err := s.Store.DeleteAlert(ctx, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if !ok {
		return generic.NotFound("alert", id)
	}
	return nil
}

// =============================================================================
// MULTI-PERIOD REPORTS
// =============================================================================

// Comparative compares projected and paid totals across every period of a
// condominium, oldest first.
func (s *Service) Comparative(ctx context.Context, condominiumID string) (Comparative, error) {
	if _, err := s.condominium(ctx, condominiumID); err != nil {
		return Comparative{}, err
	}
	periods, err := s.Forecast.ListPeriods(ctx, condominiumID)
	if err != nil {
		return Comparative{}, fmt.Errorf("list periods: %w", err)
	}

	data := make([]PeriodData, 0, len(periods))
	for i := len(periods) - 1; i >= 0; i-- {
		p := periods[i]
		items, err := s.Forecast.ListLineItems(ctx, p.ID)
		if err != nil {
			return Comparative{}, fmt.Errorf("list items: %w", err)
		}
		payments, err := s.Store.ListPayments(ctx, p.ID, "")
		if err != nil {
			return Comparative{}, fmt.Errorf("list payments: %w", err)
		}
		data = append(data, PeriodData{Period: p, Items: items, Payments: payments})
	}
	return BuildComparative(data), nil
}

// CostCenterHistory summarizes one cost center over its condominium's
// periods, newest first.
func (s *Service) CostCenterHistory(ctx context.Context, costCenterID string) (CostCenterHistory, error) {
	center, err := s.Forecast.GetCostCenter(ctx, costCenterID)
	if err != nil {
		return CostCenterHistory{}, fmt.Errorf("get cost center: %w", err)
	}
	if center == nil {
		return CostCenterHistory{}, generic.NotFound("cost_center", costCenterID)
	}
	periods, err := s.Forecast.ListPeriods(ctx, center.CondominiumID)
	if err != nil {
		return CostCenterHistory{}, fmt.Errorf("list periods: %w", err)
	}

	data := make([]PeriodData, 0, len(periods))
	for _, p := range periods {
		items, err := s.Forecast.ListCostCenterItems(ctx, p.ID, costCenterID)
		if err != nil {
			return CostCenterHistory{}, fmt.Errorf("list cost center items: %w", err)
		}
		payments, err := s.Store.ListPayments(ctx, p.ID, costCenterID)
		if err != nil {
			return CostCenterHistory{}, fmt.Errorf("list payments: %w", err)
		}
		data = append(data, PeriodData{Period: p, CostCenterItems: items, Payments: payments})
	}
	return BuildCostCenterHistory(*center, data), nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Analytics summarizes the condominium's periods inside the window ending at
// the current month, oldest first.
func (s *Service) Analytics(ctx context.Context, condominiumID string, r AnalyticsRange) (Analytics, error) {
	if _, err := s.condominium(ctx, condominiumID); err != nil {
		return Analytics{}, err
	}
	now := s.Now()
	end := generic.Competence{Month: int(now.Month()), Year: now.Year()}
	start := r.Start(end)

	periods, err := s.Forecast.ListPeriods(ctx, condominiumID)
	if err != nil {
		return Analytics{}, fmt.Errorf("list periods: %w", err)
	}

	data := make([]PeriodData, 0, len(periods))
	for i := len(periods) - 1; i >= 0; i-- {
		p := periods[i]
		c := generic.Competence{Month: p.Month, Year: p.Year}
		if c.Before(start) || end.Before(c) {
			continue
		}
		items, err := s.Forecast.ListLineItems(ctx, p.ID)
		if err != nil {
			return Analytics{}, fmt.Errorf("list items: %w", err)
		}
		data = append(data, PeriodData{Period: p, Items: items})
	}

	a := BuildAnalytics(data)
	a.Range = r
	a.From = start.Label()
	a.To = end.Label()
	return a, nil
}

// ComparePeriods compares the forecasts of two competences of a
// condominium; second is the baseline.
func (s *Service) ComparePeriods(ctx context.Context, condominiumID string, first, second generic.Competence) (PeriodComparison, error) {
	if _, err := s.condominium(ctx, condominiumID); err != nil {
		return PeriodComparison{}, err
	}
	periods, err := s.Forecast.ListPeriods(ctx, condominiumID)
	if err != nil {
		return PeriodComparison{}, fmt.Errorf("list periods: %w", err)
	}

	load := func(c generic.Competence) (PeriodData, error) {
		for _, p := range periods {
			if p.Month != c.Month || p.Year != c.Year {
				continue
			}
			items, err := s.Forecast.ListLineItems(ctx, p.ID)
			if err != nil {
				return PeriodData{}, fmt.Errorf("list items: %w", err)
			}
			return PeriodData{Period: p, Items: items}, nil
		}
		return PeriodData{}, generic.NotFound("period", c.String())
	}

	a, err := load(first)
	if err != nil {
		return PeriodComparison{}, err
	}
	b, err := load(second)
	if err != nil {
		return PeriodComparison{}, err
	}
	return ComparePeriods(a, b), nil
}

func (s *Service) condominium(ctx context.Context, id string) (forecast.Condominium, error) {
	c, err := s.Forecast.GetCondominium(ctx, id)
	if err != nil {
		return forecast.Condominium{}, fmt.Errorf("get condominium: %w", err)
	}
	if c == nil {
		return forecast.Condominium{}, generic.NotFound("condominium", id)
	}
	return *c, nil
}
