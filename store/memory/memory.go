// Package memory provides an in-memory implementation of forecast.Store and
// reconcile.Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex
	st *state
}

var (
	_ forecast.Store  = (*Store)(nil)
	_ reconcile.Store = (*Store)(nil)
)

func New() *Store {
	return &Store{st: newState()}
}

type centerKey struct {
	PeriodID     string
	CostCenterID string
}

type paymentRow struct {
	seq int64
	rec reconcile.PaymentRecord
}

type extraRow struct {
	seq int64
	rec reconcile.ExtraExpense
}

type alertRow struct {
	seq int64
	rec reconcile.Alert
}

type state struct {
	seq int64

	condos      map[string]forecast.Condominium
	centers     map[string]forecast.CostCenter
	periods     map[string]forecast.Period
	items       map[string][]forecast.LineItem
	centerItems map[centerKey][]forecast.CostCenterItem
	snapshots   map[string][]byte

	payments map[string]paymentRow
	extras   map[string]extraRow
	alerts   map[string]alertRow
	dedup    map[string]string // DedupKey -> alert ID
}

func newState() *state {
	return &state{
		condos:      make(map[string]forecast.Condominium),
		centers:     make(map[string]forecast.CostCenter),
		periods:     make(map[string]forecast.Period),
		items:       make(map[string][]forecast.LineItem),
		centerItems: make(map[centerKey][]forecast.CostCenterItem),
		snapshots:   make(map[string][]byte),
		payments:    make(map[string]paymentRow),
		extras:      make(map[string]extraRow),
		alerts:      make(map[string]alertRow),
		dedup:       make(map[string]string),
	}
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// clone deep-copies the state for rollback.
func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.condos {
		c.condos[k] = v
	}
	for k, v := range s.centers {
		c.centers[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]forecast.LineItem(nil), v...)
	}
	for k, v := range s.centerItems {
		c.centerItems[k] = append([]forecast.CostCenterItem(nil), v...)
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = append([]byte(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.extras {
		c.extras[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	for k, v := range s.dedup {
		c.dedup[k] = v
	}
	return c
}

// =============================================================================
// FORECAST STORE
// =============================================================================

func (m *Store) SaveCondominium(_ context.Context, c forecast.Condominium) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.condos[c.ID] = c
	return nil
}

func (m *Store) GetCondominium(_ context.Context, id string) (*forecast.Condominium, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getCondominium(id), nil
}

func (m *Store) ListCondominiums(_ context.Context) ([]forecast.Condominium, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listCondominiums(), nil
}

func (m *Store) SaveCostCenter(_ context.Context, c forecast.CostCenter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.centers[c.ID] = c
	return nil
}

func (m *Store) GetCostCenter(_ context.Context, id string) (*forecast.CostCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getCostCenter(id), nil
}

func (m *Store) ListCostCenters(_ context.Context, condominiumID string) ([]forecast.CostCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listCostCenters(condominiumID), nil
}

func (m *Store) CreatePeriod(_ context.Context, p forecast.Period, items []forecast.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createPeriod(p, items)
}

func (m *Store) GetPeriod(_ context.Context, id string) (*forecast.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getPeriod(id), nil
}

func (m *Store) ListPeriods(_ context.Context, condominiumID string) ([]forecast.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPeriods(condominiumID), nil
}

func (m *Store) UpdatePeriod(_ context.Context, p forecast.Period, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updatePeriod(p, expectedVersion)
}

func (m *Store) ReplaceLineItems(_ context.Context, periodID string, items []forecast.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.items[periodID] = append([]forecast.LineItem(nil), items...)
	return nil
}

func (m *Store) ListLineItems(_ context.Context, periodID string) ([]forecast.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listLineItems(periodID), nil
}

func (m *Store) ReplaceCostCenterItems(_ context.Context, periodID, costCenterID string, items []forecast.CostCenterItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.centerItems[centerKey{periodID, costCenterID}] = append([]forecast.CostCenterItem(nil), items...)
	return nil
}

func (m *Store) ListCostCenterItems(_ context.Context, periodID, costCenterID string) ([]forecast.CostCenterItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listCostCenterItems(periodID, costCenterID), nil
}

func (m *Store) SaveSnapshot(_ context.Context, periodID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.snapshots[periodID] = append([]byte(nil), data...)
	return nil
}

func (m *Store) GetSnapshot(_ context.Context, periodID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSnapshot(periodID), nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(forecast.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// RECONCILE STORE
// =============================================================================

func (m *Store) InsertPayments(_ context.Context, payments []reconcile.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range payments {
		m.st.payments[p.ID] = paymentRow{seq: m.st.next(), rec: p}
	}
	return nil
}

func (m *Store) UpdatePayment(_ context.Context, p reconcile.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.st.payments[p.ID]
	if !ok {
		return generic.NotFound("payment", p.ID)
	}
	row.rec = p
	m.st.payments[p.ID] = row
	return nil
}

func (m *Store) GetPayment(_ context.Context, id string) (*reconcile.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.st.payments[id]
	if !ok {
		return nil, nil
	}
	p := row.rec
	return &p, nil
}

func (m *Store) DeletePayment(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.payments[id]; !ok {
		return false, nil
	}
	delete(m.st.payments, id)
	return true, nil
}

func (m *Store) ListPayments(_ context.Context, periodID, costCenterID string) ([]reconcile.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []paymentRow
	for _, row := range m.st.payments {
		if row.rec.PeriodID != periodID {
			continue
		}
		if costCenterID != "" && row.rec.CostCenterID != costCenterID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].rec.DueDate, rows[j].rec.DueDate
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		}
		return rows[i].seq < rows[j].seq
	})

	result := make([]reconcile.PaymentRecord, len(rows))
	for i, row := range rows {
		result[i] = row.rec
	}
	return result, nil
}

func (m *Store) InsertExtraExpense(_ context.Context, e reconcile.ExtraExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.extras[e.ID] = extraRow{seq: m.st.next(), rec: e}
	return nil
}

func (m *Store) UpdateExtraExpense(_ context.Context, e reconcile.ExtraExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.st.extras[e.ID]
	if !ok {
		return generic.NotFound("extra_expense", e.ID)
	}
	row.rec = e
	m.st.extras[e.ID] = row
	return nil
}

func (m *Store) GetExtraExpense(_ context.Context, id string) (*reconcile.ExtraExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.st.extras[id]
	if !ok {
		return nil, nil
	}
	e := row.rec
	return &e, nil
}

func (m *Store) DeleteExtraExpense(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.extras[id]; !ok {
		return false, nil
	}
	delete(m.st.extras, id)
	return true, nil
}

func (m *Store) ListExtraExpenses(_ context.Context, periodID, costCenterID string) ([]reconcile.ExtraExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []extraRow
	for _, row := range m.st.extras {
		if row.rec.PeriodID != periodID {
			continue
		}
		if costCenterID != "" && row.rec.CostCenterID != costCenterID {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].rec.OccurredOn, rows[j].rec.OccurredOn
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i].seq > rows[j].seq
	})

	result := make([]reconcile.ExtraExpense, len(rows))
	for i, row := range rows {
		result[i] = row.rec
	}
	return result, nil
}

func (m *Store) InsertAlert(_ context.Context, a reconcile.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.DedupKey != "" {
		if _, exists := m.st.dedup[a.DedupKey]; exists {
			return false, nil
		}
		m.st.dedup[a.DedupKey] = a.ID
	}
	m.st.alerts[a.ID] = alertRow{seq: m.st.next(), rec: a}
	return true, nil
}

func (m *Store) ListAlerts(_ context.Context, periodID string, read *bool) ([]reconcile.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []alertRow
	for _, row := range m.st.alerts {
		if row.rec.PeriodID != periodID {
			continue
		}
		if read != nil && row.rec.Read != *read {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].rec.CreatedAt, rows[j].rec.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i].seq > rows[j].seq
	})

	result := make([]reconcile.Alert, len(rows))
	for i, row := range rows {
		result[i] = row.rec
	}
	return result, nil
}

func (m *Store) MarkAlertRead(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.st.alerts[id]
	if !ok {
		return false, nil
	}
	row.rec.Read = true
	m.st.alerts[id] = row
	return true, nil
}

func (m *Store) MarkAllAlertsRead(_ context.Context, periodID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.st.alerts {
		if row.rec.PeriodID == periodID && !row.rec.Read {
			row.rec.Read = true
			m.st.alerts[id] = row
			n++
		}
	}
	return n, nil
}

// DeleteAlert also frees the alert's DedupKey, so a later run may raise it again.
func (m *Store) DeleteAlert(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.st.alerts[id]
	if !ok {
		return false, nil
	}
	delete(m.st.alerts, id)
	if row.rec.DedupKey != "" {
		delete(m.st.dedup, row.rec.DedupKey)
	}
	return true, nil
}

// =============================================================================
// LOCKED HELPERS - Shared by Store and txView
// =============================================================================

func (s *state) getCondominium(id string) *forecast.Condominium {
	c, ok := s.condos[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *state) listCondominiums() []forecast.Condominium {
	result := make([]forecast.Condominium, 0, len(s.condos))
	for _, c := range s.condos {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *state) getCostCenter(id string) *forecast.CostCenter {
	c, ok := s.centers[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *state) listCostCenters(condominiumID string) []forecast.CostCenter {
	var result []forecast.CostCenter
	for _, c := range s.centers {
		if c.CondominiumID == condominiumID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *state) createPeriod(p forecast.Period, items []forecast.LineItem) error {
	for _, existing := range s.periods {
		if existing.CondominiumID == p.CondominiumID && existing.Month == p.Month && existing.Year == p.Year {
			return generic.ErrAlreadyExists
		}
	}
	s.periods[p.ID] = p
	s.items[p.ID] = append([]forecast.LineItem(nil), items...)
	return nil
}

func (s *state) getPeriod(id string) *forecast.Period {
	p, ok := s.periods[id]
	if !ok {
		return nil
	}
	return &p
}

func (s *state) listPeriods(condominiumID string) []forecast.Period {
	var result []forecast.Period
	for _, p := range s.periods {
		if p.CondominiumID == condominiumID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return generic.CompetenceBefore(result[j].Year, result[j].Month, result[i].Year, result[i].Month)
	})
	return result
}

func (s *state) updatePeriod(p forecast.Period, expectedVersion int64) error {
	current, ok := s.periods[p.ID]
	if !ok {
		return generic.NotFound("period", p.ID)
	}
	if current.Version != expectedVersion {
		return generic.ErrConcurrentModification
	}
	s.periods[p.ID] = p
	return nil
}

func (s *state) listLineItems(periodID string) []forecast.LineItem {
	result := append([]forecast.LineItem{}, s.items[periodID]...)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Order < result[j].Order
	})
	return result
}

func (s *state) listCostCenterItems(periodID, costCenterID string) []forecast.CostCenterItem {
	result := append([]forecast.CostCenterItem{}, s.centerItems[centerKey{periodID, costCenterID}]...)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Order < result[j].Order
	})
	return result
}

func (s *state) getSnapshot(periodID string) []byte {
	data, ok := s.snapshots[periodID]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// =============================================================================
// TRANSACTIONAL VIEW - Runs with the parent lock already held
// =============================================================================

type txView struct {
	st *state
}

func (tv *txView) SaveCondominium(_ context.Context, c forecast.Condominium) error {
	tv.st.condos[c.ID] = c
	return nil
}

func (tv *txView) GetCondominium(_ context.Context, id string) (*forecast.Condominium, error) {
	return tv.st.getCondominium(id), nil
}

func (tv *txView) ListCondominiums(_ context.Context) ([]forecast.Condominium, error) {
	return tv.st.listCondominiums(), nil
}

func (tv *txView) SaveCostCenter(_ context.Context, c forecast.CostCenter) error {
	tv.st.centers[c.ID] = c
	return nil
}

func (tv *txView) GetCostCenter(_ context.Context, id string) (*forecast.CostCenter, error) {
	return tv.st.getCostCenter(id), nil
}

func (tv *txView) ListCostCenters(_ context.Context, condominiumID string) ([]forecast.CostCenter, error) {
	return tv.st.listCostCenters(condominiumID), nil
}

func (tv *txView) CreatePeriod(_ context.Context, p forecast.Period, items []forecast.LineItem) error {
	return tv.st.createPeriod(p, items)
}

func (tv *txView) GetPeriod(_ context.Context, id string) (*forecast.Period, error) {
	return tv.st.getPeriod(id), nil
}

func (tv *txView) ListPeriods(_ context.Context, condominiumID string) ([]forecast.Period, error) {
	return tv.st.listPeriods(condominiumID), nil
}

func (tv *txView) UpdatePeriod(_ context.Context, p forecast.Period, expectedVersion int64) error {
	return tv.st.updatePeriod(p, expectedVersion)
}

func (tv *txView) ReplaceLineItems(_ context.Context, periodID string, items []forecast.LineItem) error {
	tv.st.items[periodID] = append([]forecast.LineItem(nil), items...)
	return nil
}

func (tv *txView) ListLineItems(_ context.Context, periodID string) ([]forecast.LineItem, error) {
	return tv.st.listLineItems(periodID), nil
}

func (tv *txView) ReplaceCostCenterItems(_ context.Context, periodID, costCenterID string, items []forecast.CostCenterItem) error {
	tv.st.centerItems[centerKey{periodID, costCenterID}] = append([]forecast.CostCenterItem(nil), items...)
	return nil
}

func (tv *txView) ListCostCenterItems(_ context.Context, periodID, costCenterID string) ([]forecast.CostCenterItem, error) {
	return tv.st.listCostCenterItems(periodID, costCenterID), nil
}

func (tv *txView) SaveSnapshot(_ context.Context, periodID string, data []byte) error {
	tv.st.snapshots[periodID] = append([]byte(nil), data...)
	return nil
}

func (tv *txView) GetSnapshot(_ context.Context, periodID string) ([]byte, error) {
	return tv.st.getSnapshot(periodID), nil
}

// WithTx inside a transaction joins it.
func (tv *txView) WithTx(_ context.Context, fn func(forecast.Store) error) error {
	return fn(tv)
}
