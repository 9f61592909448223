package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// FORECAST STORE (forecast.Store interface)
// =============================================================================

func (s *Store) SaveCondominium(ctx context.Context, c forecast.Condominium) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCondominium(ctx, s.db, c)
}

func (s *Store) GetCondominium(ctx context.Context, id string) (*forecast.Condominium, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCondominium(ctx, s.db, id)
}

func (s *Store) ListCondominiums(ctx context.Context) ([]forecast.Condominium, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCondominiums(ctx, s.db)
}

func (s *Store) SaveCostCenter(ctx context.Context, c forecast.CostCenter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCostCenter(ctx, s.db, c)
}

func (s *Store) GetCostCenter(ctx context.Context, id string) (*forecast.CostCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCostCenter(ctx, s.db, id)
}

func (s *Store) ListCostCenters(ctx context.Context, condominiumID string) ([]forecast.CostCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCostCenters(ctx, s.db, condominiumID)
}

func (s *Store) CreatePeriod(ctx context.Context, p forecast.Period, items []forecast.LineItem) error {
	return s.inTx(ctx, func(q querier) error {
		return createPeriod(ctx, q, p, items)
	})
}

func (s *Store) GetPeriod(ctx context.Context, id string) (*forecast.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPeriod(ctx, s.db, id)
}

func (s *Store) ListPeriods(ctx context.Context, condominiumID string) ([]forecast.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPeriods(ctx, s.db, condominiumID)
}

func (s *Store) UpdatePeriod(ctx context.Context, p forecast.Period, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePeriod(ctx, s.db, p, expectedVersion)
}

func (s *Store) ReplaceLineItems(ctx context.Context, periodID string, items []forecast.LineItem) error {
	return s.inTx(ctx, func(q querier) error {
		return replaceLineItems(ctx, q, periodID, items)
	})
}

func (s *Store) ListLineItems(ctx context.Context, periodID string) ([]forecast.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLineItems(ctx, s.db, periodID)
}

func (s *Store) ReplaceCostCenterItems(ctx context.Context, periodID, costCenterID string, items []forecast.CostCenterItem) error {
	return s.inTx(ctx, func(q querier) error {
		return replaceCostCenterItems(ctx, q, periodID, costCenterID, items)
	})
}

func (s *Store) ListCostCenterItems(ctx context.Context, periodID, costCenterID string) ([]forecast.CostCenterItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCostCenterItems(ctx, s.db, periodID, costCenterID)
}

func (s *Store) SaveSnapshot(ctx context.Context, periodID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSnapshot(ctx, s.db, periodID, data)
}

func (s *Store) GetSnapshot(ctx context.Context, periodID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSnapshot(ctx, s.db, periodID)
}

// =============================================================================
// TRANSACTIONAL VIEW - All calls go through the open *sql.Tx
// =============================================================================

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveCondominium(ctx context.Context, c forecast.Condominium) error {
	return saveCondominium(ctx, ts.tx, c)
}

func (ts *txStore) GetCondominium(ctx context.Context, id string) (*forecast.Condominium, error) {
	return getCondominium(ctx, ts.tx, id)
}

func (ts *txStore) ListCondominiums(ctx context.Context) ([]forecast.Condominium, error) {
	return listCondominiums(ctx, ts.tx)
}

func (ts *txStore) SaveCostCenter(ctx context.Context, c forecast.CostCenter) error {
	return saveCostCenter(ctx, ts.tx, c)
}

func (ts *txStore) GetCostCenter(ctx context.Context, id string) (*forecast.CostCenter, error) {
	return getCostCenter(ctx, ts.tx, id)
}

func (ts *txStore) ListCostCenters(ctx context.Context, condominiumID string) ([]forecast.CostCenter, error) {
	return listCostCenters(ctx, ts.tx, condominiumID)
}

func (ts *txStore) CreatePeriod(ctx context.Context, p forecast.Period, items []forecast.LineItem) error {
	return createPeriod(ctx, ts.tx, p, items)
}

func (ts *txStore) GetPeriod(ctx context.Context, id string) (*forecast.Period, error) {
	return getPeriod(ctx, ts.tx, id)
}

func (ts *txStore) ListPeriods(ctx context.Context, condominiumID string) ([]forecast.Period, error) {
	return listPeriods(ctx, ts.tx, condominiumID)
}

func (ts *txStore) UpdatePeriod(ctx context.Context, p forecast.Period, expectedVersion int64) error {
	return updatePeriod(ctx, ts.tx, p, expectedVersion)
}

func (ts *txStore) ReplaceLineItems(ctx context.Context, periodID string, items []forecast.LineItem) error {
	return replaceLineItems(ctx, ts.tx, periodID, items)
}

func (ts *txStore) ListLineItems(ctx context.Context, periodID string) ([]forecast.LineItem, error) {
	return listLineItems(ctx, ts.tx, periodID)
}

func (ts *txStore) ReplaceCostCenterItems(ctx context.Context, periodID, costCenterID string, items []forecast.CostCenterItem) error {
	return replaceCostCenterItems(ctx, ts.tx, periodID, costCenterID, items)
}

func (ts *txStore) ListCostCenterItems(ctx context.Context, periodID, costCenterID string) ([]forecast.CostCenterItem, error) {
	return listCostCenterItems(ctx, ts.tx, periodID, costCenterID)
}

func (ts *txStore) SaveSnapshot(ctx context.Context, periodID string, data []byte) error {
	return saveSnapshot(ctx, ts.tx, periodID, data)
}

func (ts *txStore) GetSnapshot(ctx context.Context, periodID string) ([]byte, error) {
	return getSnapshot(ctx, ts.tx, periodID)
}

// WithTx inside a transaction joins it.
func (ts *txStore) WithTx(_ context.Context, fn func(forecast.Store) error) error {
	return fn(ts)
}

// =============================================================================
// QUERIES - Condominiums and cost centers
// =============================================================================

func saveCondominium(ctx context.Context, q querier, c forecast.Condominium) error {
	query := `
		INSERT INTO condominiums (id, name, total_area_m2, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_area_m2 = excluded.total_area_m2
	`
	_, err := q.ExecContext(ctx, query, c.ID, c.Name, c.TotalAreaM2.String(), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("save condominium: %w", err)
	}
	return nil
}

const condominiumColumns = `id, name, total_area_m2, created_at`

func scanCondominium(sc scanner) (forecast.Condominium, error) {
	var (
		c               forecast.Condominium
		area, createdAt string
	)
	if err := sc.Scan(&c.ID, &c.Name, &area, &createdAt); err != nil {
		return c, err
	}
	var d decoder
	c.TotalAreaM2 = d.decimal("total_area_m2", area)
	c.CreatedAt = d.time("created_at", createdAt)
	return c, d.err
}

func getCondominium(ctx context.Context, q querier, id string) (*forecast.Condominium, error) {
	row := q.QueryRowContext(ctx, `SELECT `+condominiumColumns+` FROM condominiums WHERE id = ?`, id)
	c, err := scanCondominium(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get condominium: %w", err)
	}
	return &c, nil
}

func listCondominiums(ctx context.Context, q querier) ([]forecast.Condominium, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+condominiumColumns+` FROM condominiums ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list condominiums: %w", err)
	}
	defer rows.Close()

	result := []forecast.Condominium{}
	for rows.Next() {
		c, err := scanCondominium(rows)
		if err != nil {
			return nil, fmt.Errorf("scan condominium: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const costCenterColumns = `id, condominium_id, name, area_m2, address, tax_id, active, created_at`

func saveCostCenter(ctx context.Context, q querier, c forecast.CostCenter) error {
	query := `
		INSERT INTO cost_centers (` + costCenterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			area_m2 = excluded.area_m2,
			address = excluded.address,
			tax_id = excluded.tax_id,
			active = excluded.active
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, c.CondominiumID, c.Name, c.AreaM2.String(),
		c.Address, c.TaxID, c.Active, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save cost center: %w", err)
	}
	return nil
}

func scanCostCenter(sc scanner) (forecast.CostCenter, error) {
	var (
		c               forecast.CostCenter
		area, createdAt string
	)
	if err := sc.Scan(&c.ID, &c.CondominiumID, &c.Name, &area, &c.Address, &c.TaxID, &c.Active, &createdAt); err != nil {
		return c, err
	}
	var d decoder
	c.AreaM2 = d.decimal("area_m2", area)
	c.CreatedAt = d.time("created_at", createdAt)
	return c, d.err
}

func getCostCenter(ctx context.Context, q querier, id string) (*forecast.CostCenter, error) {
	row := q.QueryRowContext(ctx, `SELECT `+costCenterColumns+` FROM cost_centers WHERE id = ?`, id)
	c, err := scanCostCenter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cost center: %w", err)
	}
	return &c, nil
}

func listCostCenters(ctx context.Context, q querier, condominiumID string) ([]forecast.CostCenter, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+costCenterColumns+` FROM cost_centers WHERE condominium_id = ? ORDER BY name, id`,
		condominiumID)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	defer rows.Close()

	var result []forecast.CostCenter
	for rows.Next() {
		c, err := scanCostCenter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cost center: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// QUERIES - Periods
// =============================================================================

const periodColumns = `id, condominium_id, month, year, total_area_m2, surcharge_percent,
	rate_per_area, status, version, created_at, updated_at`

func createPeriod(ctx context.Context, q querier, p forecast.Period, items []forecast.LineItem) error {
	query := `INSERT INTO periods (` + periodColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.CondominiumID, p.Month, p.Year,
		p.TotalAreaM2.String(), p.SurchargePercent.String(), nullDecimal(p.RatePerArea),
		string(p.Status), p.Version, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return insertLineItems(ctx, q, items)
}

func scanPeriod(sc scanner) (forecast.Period, error) {
	var (
		p                    forecast.Period
		area, surcharge      string
		rate                 sql.NullString
		status               string
		createdAt, updatedAt string
	)
	err := sc.Scan(&p.ID, &p.CondominiumID, &p.Month, &p.Year, &area, &surcharge,
		&rate, &status, &p.Version, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}

	var d decoder
	p.TotalAreaM2 = d.decimal("total_area_m2", area)
	p.SurchargePercent = d.decimal("surcharge_percent", surcharge)
	p.RatePerArea = d.optDecimal("rate_per_area", rate)
	p.Status = forecast.PeriodStatus(status)
	p.CreatedAt = d.time("created_at", createdAt)
	p.UpdatedAt = d.time("updated_at", updatedAt)
	return p, d.err
}

func getPeriod(ctx context.Context, q querier, id string) (*forecast.Period, error) {
	row := q.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, id)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get period: %w", err)
	}
	return &p, nil
}

func listPeriods(ctx context.Context, q querier, condominiumID string) ([]forecast.Period, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE condominium_id = ? ORDER BY year DESC, month DESC`,
		condominiumID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var result []forecast.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// updatePeriod is a compare-and-swap on the version column.
func updatePeriod(ctx context.Context, q querier, p forecast.Period, expectedVersion int64) error {
	query := `
		UPDATE periods SET
			total_area_m2 = ?, surcharge_percent = ?, rate_per_area = ?,
			status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query,
		p.TotalAreaM2.String(), p.SurchargePercent.String(), nullDecimal(p.RatePerArea),
		string(p.Status), p.Version, formatTime(p.UpdatedAt),
		p.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM periods WHERE id = ?`, p.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check period: %w", err)
	}
	if exists == 0 {
		return generic.NotFound("period", p.ID)
	}
	return generic.ErrConcurrentModification
}

func saveSnapshot(ctx context.Context, q querier, periodID string, data []byte) error {
	res, err := q.ExecContext(ctx, `UPDATE periods SET summary_json = ? WHERE id = ?`, string(data), periodID)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound("period", periodID)
	}
	return nil
}

func getSnapshot(ctx context.Context, q querier, periodID string) ([]byte, error) {
	var data sql.NullString
	err := q.QueryRowContext(ctx, `SELECT summary_json FROM periods WHERE id = ?`, periodID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return []byte(data.String), nil
}

// =============================================================================
// QUERIES - Items
// =============================================================================

func insertLineItems(ctx context.Context, q querier, items []forecast.LineItem) error {
	query := `
		INSERT INTO line_items (id, period_id, category, description, amount, notes, item_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, it := range items {
		_, err := q.ExecContext(ctx, query,
			it.ID, it.PeriodID, string(it.Category), it.Description,
			it.Amount.String(), it.Notes, it.Order,
		)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

func replaceLineItems(ctx context.Context, q querier, periodID string, items []forecast.LineItem) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM line_items WHERE period_id = ?`, periodID); err != nil {
		return fmt.Errorf("delete line items: %w", err)
	}
	return insertLineItems(ctx, q, items)
}

func listLineItems(ctx context.Context, q querier, periodID string) ([]forecast.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, period_id, category, description, amount, notes, item_order
		FROM line_items
		WHERE period_id = ?
		ORDER BY category, item_order, rowid
	`, periodID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	result := []forecast.LineItem{}
	for rows.Next() {
		var (
			it               forecast.LineItem
			category, amount string
		)
		if err := rows.Scan(&it.ID, &it.PeriodID, &category, &it.Description, &amount, &it.Notes, &it.Order); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		var d decoder
		it.Category = forecast.Category(category)
		it.Amount = d.decimal("amount", amount)
		if d.err != nil {
			return nil, d.err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func replaceCostCenterItems(ctx context.Context, q querier, periodID, costCenterID string, items []forecast.CostCenterItem) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM cost_center_items WHERE period_id = ? AND cost_center_id = ?`,
		periodID, costCenterID)
	if err != nil {
		return fmt.Errorf("delete cost center items: %w", err)
	}

	query := `
		INSERT INTO cost_center_items (id, period_id, cost_center_id, category, description, amount, item_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, it := range items {
		_, err := q.ExecContext(ctx, query,
			it.ID, it.PeriodID, it.CostCenterID, string(it.Category),
			it.Description, it.Amount.String(), it.Order,
		)
		if err != nil {
			return fmt.Errorf("insert cost center item: %w", err)
		}
	}
	return nil
}

func listCostCenterItems(ctx context.Context, q querier, periodID, costCenterID string) ([]forecast.CostCenterItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, period_id, cost_center_id, category, description, amount, item_order
		FROM cost_center_items
		WHERE period_id = ? AND cost_center_id = ?
		ORDER BY category, item_order, rowid
	`, periodID, costCenterID)
	if err != nil {
		return nil, fmt.Errorf("list cost center items: %w", err)
	}
	defer rows.Close()

	result := []forecast.CostCenterItem{}
	for rows.Next() {
		var (
			it               forecast.CostCenterItem
			category, amount string
		)
		if err := rows.Scan(&it.ID, &it.PeriodID, &it.CostCenterID, &category, &it.Description, &amount, &it.Order); err != nil {
			return nil, fmt.Errorf("scan cost center item: %w", err)
		}
		var d decoder
		it.Category = forecast.Category(category)
		it.Amount = d.decimal("amount", amount)
		if d.err != nil {
			return nil, d.err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}
