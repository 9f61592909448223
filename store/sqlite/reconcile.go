package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
)

// =============================================================================
// PAYMENTS (reconcile.Store interface)
// =============================================================================

const paymentColumns = `id, period_id, cost_center_id, reference_kind, reference_id,
	description, category, amount_projected, amount_paid, due_date, paid_date,
	status, method, notes, created_at, updated_at`

// InsertPayments writes the batch atomically.
func (s *Store) InsertPayments(ctx context.Context, payments []reconcile.PaymentRecord) error {
	return s.inTx(ctx, func(q querier) error {
		query := `INSERT INTO payments (` + paymentColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, p := range payments {
			_, err := q.ExecContext(ctx, query,
				p.ID, p.PeriodID, nullString(p.CostCenterID), string(p.ReferenceKind), nullString(p.ReferenceID),
				p.Description, string(p.Category), p.AmountProjected.String(), nullDecimal(p.AmountPaid),
				nullDate(p.DueDate), nullDate(p.PaidDate),
				string(p.Status), p.Method, p.Notes, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpdatePayment(ctx context.Context, p reconcile.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE payments SET
			cost_center_id = ?, reference_kind = ?, reference_id = ?,
			description = ?, category = ?, amount_projected = ?, amount_paid = ?,
			due_date = ?, paid_date = ?, status = ?, method = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(p.CostCenterID), string(p.ReferenceKind), nullString(p.ReferenceID),
		p.Description, string(p.Category), p.AmountProjected.String(), nullDecimal(p.AmountPaid),
		nullDate(p.DueDate), nullDate(p.PaidDate), string(p.Status), p.Method, p.Notes, formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound("payment", p.ID)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*reconcile.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteByID(ctx, s.db, "payments", id)
}

func (s *Store) ListPayments(ctx context.Context, periodID, costCenterID string) ([]reconcile.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE period_id = ? AND (? = '' OR cost_center_id = ?)
		ORDER BY due_date IS NULL, due_date, rowid
	`, periodID, costCenterID, costCenterID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	result := []reconcile.PaymentRecord{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPayment(sc scanner) (reconcile.PaymentRecord, error) {
	var (
		p                                 reconcile.PaymentRecord
		costCenterID, referenceID         sql.NullString
		kind, category, projected, status string
		amountPaid, dueDate, paidDate     sql.NullString
		createdAt, updatedAt              string
	)
	err := sc.Scan(&p.ID, &p.PeriodID, &costCenterID, &kind, &referenceID,
		&p.Description, &category, &projected, &amountPaid, &dueDate, &paidDate,
		&status, &p.Method, &p.Notes, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}

	var d decoder
	p.CostCenterID = costCenterID.String
	p.ReferenceKind = reconcile.ReferenceKind(kind)
	p.ReferenceID = referenceID.String
	p.Category = forecast.Category(category)
	p.AmountProjected = d.decimal("amount_projected", projected)
	p.AmountPaid = d.optDecimal("amount_paid", amountPaid)
	p.DueDate = d.date("due_date", dueDate)
	p.PaidDate = d.date("paid_date", paidDate)
	p.Status = reconcile.PaymentStatus(status)
	p.CreatedAt = d.time("created_at", createdAt)
	p.UpdatedAt = d.time("updated_at", updatedAt)
	return p, d.err
}

// =============================================================================
// EXTRA EXPENSES
// =============================================================================

const extraColumns = `id, period_id, cost_center_id, category, description, amount,
	kind, occurred_on, justification, approved, created_at`

func (s *Store) InsertExtraExpense(ctx context.Context, e reconcile.ExtraExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extra_expenses (`+extraColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PeriodID, nullString(e.CostCenterID), string(e.Category), e.Description, e.Amount.String(),
		e.Kind, nullDate(e.OccurredOn), e.Justification, e.Approved, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert extra expense: %w", err)
	}
	return nil
}

func (s *Store) UpdateExtraExpense(ctx context.Context, e reconcile.ExtraExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE extra_expenses SET
			cost_center_id = ?, category = ?, description = ?, amount = ?,
			kind = ?, occurred_on = ?, justification = ?, approved = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(e.CostCenterID), string(e.Category), e.Description, e.Amount.String(),
		e.Kind, nullDate(e.OccurredOn), e.Justification, e.Approved,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update extra expense: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound("extra_expense", e.ID)
	}
	return nil
}

func (s *Store) GetExtraExpense(ctx context.Context, id string) (*reconcile.ExtraExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+extraColumns+` FROM extra_expenses WHERE id = ?`, id)
	e, err := scanExtra(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get extra expense: %w", err)
	}
	return &e, nil
}

func (s *Store) DeleteExtraExpense(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteByID(ctx, s.db, "extra_expenses", id)
}

func (s *Store) ListExtraExpenses(ctx context.Context, periodID, costCenterID string) ([]reconcile.ExtraExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+extraColumns+`
		FROM extra_expenses
		WHERE period_id = ? AND (? = '' OR cost_center_id = ?)
		ORDER BY occurred_on DESC, rowid DESC
	`, periodID, costCenterID, costCenterID)
	if err != nil {
		return nil, fmt.Errorf("list extra expenses: %w", err)
	}
	defer rows.Close()

	result := []reconcile.ExtraExpense{}
	for rows.Next() {
		e, err := scanExtra(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extra expense: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanExtra(sc scanner) (reconcile.ExtraExpense, error) {
	var (
		e                           reconcile.ExtraExpense
		costCenterID, occurredOn    sql.NullString
		category, amount, createdAt string
	)
	err := sc.Scan(&e.ID, &e.PeriodID, &costCenterID, &category, &e.Description, &amount,
		&e.Kind, &occurredOn, &e.Justification, &e.Approved, &createdAt)
	if err != nil {
		return e, err
	}

	var d decoder
	e.CostCenterID = costCenterID.String
	e.Category = forecast.Category(category)
	e.Amount = d.decimal("amount", amount)
	e.OccurredOn = d.date("occurred_on", occurredOn)
	e.CreatedAt = d.time("created_at", createdAt)
	return e, d.err
}

// =============================================================================
// ALERTS
// =============================================================================

const alertColumns = `id, period_id, kind, severity, category, title, description,
	related_amount, read, created_at, dedup_key`

// InsertAlert relies on the UNIQUE dedup_key column: a conflicting insert
// is a no-op and reports false.
func (s *Store) InsertAlert(ctx context.Context, a reconcile.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING
	`,
		a.ID, a.PeriodID, string(a.Kind), string(a.Severity), string(a.Category), a.Title, a.Description,
		a.RelatedAmount.String(), a.Read, formatTime(a.CreatedAt), nullString(a.DedupKey),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListAlerts(ctx context.Context, periodID string, read *bool) ([]reconcile.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var readFilter sql.NullBool
	if read != nil {
		readFilter = sql.NullBool{Bool: *read, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE period_id = ? AND (? IS NULL OR read = ?)
		ORDER BY created_at DESC, rowid DESC
	`, periodID, readFilter, readFilter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	result := []reconcile.Alert{}
	for rows.Next() {
		var (
			a                                reconcile.Alert
			kind, severity, category, amount string
			createdAt                        string
			dedupKey                         sql.NullString
		)
		err := rows.Scan(&a.ID, &a.PeriodID, &kind, &severity, &category, &a.Title, &a.Description,
			&amount, &a.Read, &createdAt, &dedupKey)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}

		var d decoder
		a.Kind = reconcile.AlertKind(kind)
		a.Severity = reconcile.Severity(severity)
		a.Category = forecast.Category(category)
		a.RelatedAmount = d.decimal("related_amount", amount)
		a.CreatedAt = d.time("created_at", createdAt)
		a.DedupKey = dedupKey.String
		if d.err != nil {
			return nil, d.err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) MarkAlertRead(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("mark alert read: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) MarkAllAlertsRead(ctx context.Context, periodID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET read = 1 WHERE period_id = ? AND read = 0`, periodID)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	return rowsAffected(res)
}

// DeleteAlert removes the row and with it the dedup_key, so a later run
// may raise the same alert again.
func (s *Store) DeleteAlert(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteByID(ctx, s.db, "alerts", id)
}

func deleteByID(ctx context.Context, q querier, table, id string) (bool, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}
