package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
	"go.uber.org/zap"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s got %s", want, got.String())
}

// seed creates condo "c1" (1000 m²), cost center "cc1" and draft period "p1".
func seed(t *testing.T, s *Store, items ...forecast.LineItem) forecast.Period {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveCondominium(ctx, forecast.Condominium{
		ID: "c1", Name: "Edifício Aurora", TotalAreaM2: dec("1000"), CreatedAt: testNow,
	}))
	require.NoError(t, s.SaveCostCenter(ctx, forecast.CostCenter{
		ID: "cc1", CondominiumID: "c1", Name: "Loja 01", AreaM2: dec("150.5"), Active: true, CreatedAt: testNow,
	}))
	p := forecast.Period{
		ID: "p1", CondominiumID: "c1", Month: 3, Year: 2025,
		TotalAreaM2: dec("1000"), SurchargePercent: dec("10"),
		Status: forecast.StatusDraft, Version: 1, CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, s.CreatePeriod(ctx, p, items))
	return p
}

func lineItem(id string, c forecast.Category, order int, amount string) forecast.LineItem {
	return forecast.LineItem{ID: id, PeriodID: "p1", Category: c, Description: id, Amount: dec(amount), Order: order}
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestNew_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, uint(1), s.SchemaVersion())
	assert.NoError(t, s.Ping(context.Background()))
}

// =============================================================================
// FORECAST STORE
// =============================================================================

func TestStore_CondominiumAndCostCenterRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	condo, err := s.GetCondominium(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, condo)
	assertDec(t, "1000", condo.TotalAreaM2)
	assert.True(t, condo.CreatedAt.Equal(testNow))

	cc, err := s.GetCostCenter(ctx, "cc1")
	require.NoError(t, err)
	require.NotNil(t, cc)
	assertDec(t, "150.5", cc.AreaM2)
	assert.True(t, cc.Active)

	// Upsert keeps one row
	cc.Active = false
	require.NoError(t, s.SaveCostCenter(ctx, *cc))
	centers, err := s.ListCostCenters(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, centers, 1)
	assert.False(t, centers[0].Active)

	missing, err := s.GetCondominium(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ListCondominiums_ByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// GIVEN: no condominiums
	condos, err := s.ListCondominiums(ctx)
	require.NoError(t, err)
	assert.Empty(t, condos)

	// WHEN: two are saved out of name order
	require.NoError(t, s.SaveCondominium(ctx, forecast.Condominium{ID: "z", Name: "Residencial Bosque", TotalAreaM2: dec("800"), CreatedAt: testNow}))
	require.NoError(t, s.SaveCondominium(ctx, forecast.Condominium{ID: "a", Name: "Edifício Aurora", TotalAreaM2: dec("1000"), CreatedAt: testNow}))

	// THEN: they come back sorted by name
	condos, err = s.ListCondominiums(ctx)
	require.NoError(t, err)
	require.Len(t, condos, 2)
	assert.Equal(t, "a", condos[0].ID)
	assert.Equal(t, "z", condos[1].ID)
	assertDec(t, "800", condos[1].TotalAreaM2)
}

func TestStore_PeriodWithItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s,
		lineItem("i1", forecast.CategoryPersonnel, 1, "4000.10"),
		lineItem("i2", forecast.CategoryContracts, 2, "1000"),
		lineItem("i3", forecast.CategoryContracts, 1, "250.333"),
	)

	p, err := s.GetPeriod(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.RatePerArea)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, "MARÇO/2025", p.Label())

	items, err := s.ListLineItems(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	// category label first, then order
	assert.Equal(t, []string{"i3", "i2", "i1"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assertDec(t, "250.333", items[0].Amount)
}

func TestStore_CreatePeriod_DuplicateCompetence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seed(t, s)

	p.ID = "p2"
	err := s.CreatePeriod(ctx, p, []forecast.LineItem{lineItem("x", forecast.CategoryAnnual, 0, "1")})

	assert.ErrorIs(t, err, generic.ErrAlreadyExists)
	items, err := s.ListLineItems(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_ListPeriods_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seed(t, s)

	for _, c := range []struct {
		id          string
		month, year int
	}{{"p-dec", 12, 2024}, {"p-apr", 4, 2025}} {
		next := p
		next.ID, next.Month, next.Year = c.id, c.month, c.year
		require.NoError(t, s.CreatePeriod(ctx, next, nil))
	}

	periods, err := s.ListPeriods(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "p-apr", periods[0].ID)
	assert.Equal(t, "p1", periods[1].ID)
	assert.Equal(t, "p-dec", periods[2].ID)
}

func TestStore_UpdatePeriod_VersionCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seed(t, s)

	rate := dec("5.5")
	p.RatePerArea = &rate
	p.Version = 2
	require.NoError(t, s.UpdatePeriod(ctx, p, 1))

	// Second writer still holding version 1
	p.Version = 2
	err := s.UpdatePeriod(ctx, p, 1)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	p.ID = "missing"
	assert.True(t, generic.IsNotFound(s.UpdatePeriod(ctx, p, 1)))

	stored, err := s.GetPeriod(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stored.RatePerArea)
	assertDec(t, "5.5", *stored.RatePerArea)
	assert.Equal(t, int64(2), stored.Version)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seed(t, s, lineItem("i1", forecast.CategoryPersonnel, 0, "100"))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx forecast.Store) error {
		p.Version = 2
		if err := tx.UpdatePeriod(ctx, p, 1); err != nil {
			return err
		}
		if err := tx.ReplaceLineItems(ctx, "p1", nil); err != nil {
			return err
		}
		// nested call joins the open transaction
		return tx.WithTx(ctx, func(forecast.Store) error { return boom })
	})

	assert.ErrorIs(t, err, boom)
	stored, err := s.GetPeriod(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	items, err := s.ListLineItems(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	data, err := s.GetSnapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, s.SaveSnapshot(ctx, "p1", []byte(`{"grand_total":"5500"}`)))
	data, err = s.GetSnapshot(ctx, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"grand_total":"5500"}`, string(data))

	assert.True(t, generic.IsNotFound(s.SaveSnapshot(ctx, "missing", []byte("{}"))))
}

func TestStore_CostCenterItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	items := []forecast.CostCenterItem{
		{ID: "a", PeriodID: "p1", CostCenterID: "cc1", Category: forecast.CenterVariable, Description: "Limpeza", Amount: dec("80")},
		{ID: "b", PeriodID: "p1", CostCenterID: "cc1", Category: forecast.CenterContracts, Description: "Segurança", Amount: dec("200")},
	}
	require.NoError(t, s.ReplaceCostCenterItems(ctx, "p1", "cc1", items))
	require.NoError(t, s.ReplaceCostCenterItems(ctx, "p1", "cc1", items[:1]))

	got, err := s.ListCostCenterItems(ctx, "p1", "cc1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

// =============================================================================
// RECONCILE STORE
// =============================================================================

func TestStore_Payments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	pay := func(id, ccID string, due generic.Date) reconcile.PaymentRecord {
		return reconcile.PaymentRecord{
			ID: id, PeriodID: "p1", CostCenterID: ccID, ReferenceKind: reconcile.RefAdHoc,
			Description: id, Category: forecast.CategoryPersonnel, AmountProjected: dec("100"),
			DueDate: due, Status: reconcile.PaymentPending, CreatedAt: testNow, UpdatedAt: testNow,
		}
	}
	require.NoError(t, s.InsertPayments(ctx, []reconcile.PaymentRecord{
		pay("undated", "", generic.Date{}),
		pay("late", "cc1", generic.NewDate(2025, 3, 20)),
		pay("early", "", generic.NewDate(2025, 3, 5)),
	}))

	all, err := s.ListPayments(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"early", "late", "undated"}, []string{all[0].ID, all[1].ID, all[2].ID})

	filtered, err := s.ListPayments(ctx, "p1", "cc1")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "late", filtered[0].ID)

	// Pay one
	p := all[0]
	amount := dec("95.50")
	p.AmountPaid = &amount
	p.PaidDate = generic.NewDate(2025, 3, 6)
	p.Status = reconcile.PaymentPaid
	require.NoError(t, s.UpdatePayment(ctx, p))

	got, err := s.GetPayment(ctx, "early")
	require.NoError(t, err)
	require.NotNil(t, got.AmountPaid)
	assertDec(t, "95.5", *got.AmountPaid)
	assert.True(t, got.PaidDate.Equal(generic.NewDate(2025, 3, 6)))
	assert.Equal(t, reconcile.PaymentPaid, got.Status)

	deleted, err := s.DeletePayment(ctx, "early")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeletePayment(ctx, "early")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.True(t, generic.IsNotFound(s.UpdatePayment(ctx, p)))
}

func TestStore_ExtraExpenses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	extra := func(id string, on generic.Date) reconcile.ExtraExpense {
		return reconcile.ExtraExpense{
			ID: id, PeriodID: "p1", Category: forecast.CategoryUnclassified, Description: id,
			Amount: dec("10"), OccurredOn: on, CreatedAt: testNow,
		}
	}
	require.NoError(t, s.InsertExtraExpense(ctx, extra("old", generic.NewDate(2025, 3, 1))))
	require.NoError(t, s.InsertExtraExpense(ctx, extra("undated", generic.Date{})))
	require.NoError(t, s.InsertExtraExpense(ctx, extra("new", generic.NewDate(2025, 3, 9))))

	list, err := s.ListExtraExpenses(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "old", "undated"}, []string{list[0].ID, list[1].ID, list[2].ID})

	e := list[0]
	e.Approved = true
	require.NoError(t, s.UpdateExtraExpense(ctx, e))
	got, err := s.GetExtraExpense(ctx, "new")
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestStore_AlertsDeduplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	alert := reconcile.Alert{
		ID: "a1", PeriodID: "p1", Kind: reconcile.AlertHighVariance, Severity: reconcile.SeverityHigh,
		Category: forecast.CategoryPersonnel, Title: "t", Description: "d",
		RelatedAmount: dec("600"), CreatedAt: testNow,
		DedupKey: reconcile.DedupKey("p1", reconcile.AlertHighVariance, forecast.CategoryPersonnel, dec("600")),
	}

	inserted, err := s.InsertAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := alert
	again.ID = "a2"
	inserted, err = s.InsertAlert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted, "same dedup key is ignored")

	// Deleting frees the key
	deleted, err := s.DeleteAlert(ctx, "a1")
	require.NoError(t, err)
	require.True(t, deleted)
	inserted, err = s.InsertAlert(ctx, again)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestStore_AlertReadState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	for i, id := range []string{"a1", "a2", "a3"} {
		_, err := s.InsertAlert(ctx, reconcile.Alert{
			ID: id, PeriodID: "p1", Kind: reconcile.AlertOverduePayment, Severity: reconcile.SeverityHigh,
			Title: id, Description: id, RelatedAmount: dec("1"),
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute), DedupKey: id,
		})
		require.NoError(t, err)
	}

	ok, err := s.MarkAlertRead(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	unread := false
	list, err := s.ListAlerts(ctx, "p1", &unread)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a3", list[0].ID, "newest first")

	n, err := s.MarkAllAlertsRead(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListAlerts(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err = s.MarkAlertRead(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, lineItem("i1", forecast.CategoryPersonnel, 0, "1"))

	require.NoError(t, s.Reset(ctx))

	p, err := s.GetPeriod(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =============================================================================
// SERVICE ON SQLITE - Full forecast flow against the real schema
// =============================================================================

func TestStore_ForecastServiceFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := forecast.NewService(s, nil)

	condo, err := svc.CreateCondominium(ctx, "Edifício Aurora", dec("1000"))
	require.NoError(t, err)
	period, _, err := svc.CreatePeriod(ctx, condo.ID, 3, 2025)
	require.NoError(t, err)

	surcharge := dec("10")
	res, err := svc.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{
		SurchargePercent: &surcharge,
		Items: []forecast.LineItem{
			{Category: forecast.CategoryPersonnel, Description: "Folha", Amount: dec("4000")},
			{Category: forecast.CategoryContracts, Description: "Elevadores", Amount: dec("1000")},
		},
	})
	require.NoError(t, err)
	assertDec(t, "5500", res.Summary.GrandTotalWithSurcharge)

	snap, err := svc.Snapshot(ctx, period.ID)
	require.NoError(t, err)
	assertDec(t, "5.5", snap.RatePerArea)

	_, err = svc.ClosePeriod(ctx, period.ID)
	require.NoError(t, err)
	_, err = svc.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{})
	assert.ErrorIs(t, err, generic.ErrPeriodClosed)
}

// =============================================================================
// INFRASTRUCTURE FAILURES - sqlmock
// =============================================================================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &Store{db: mockDB, logger: zap.NewNop()}, mock
}

func TestStore_UpdatePeriod_DriverErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE periods SET").WillReturnError(errors.New("disk I/O error"))

	err := s.UpdatePeriod(context.Background(), forecast.Period{ID: "p1", Version: 2}, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "update period")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, generic.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdatePeriod_StaleVersionViaMock(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE periods SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM periods`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := s.UpdatePeriod(context.Background(), forecast.Period{ID: "p1", Version: 3}, 2)

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetPeriod_CorruptDecimal(t *testing.T) {
	s, mock := newMockStore(t)
	ts := formatTime(testNow)
	mock.ExpectQuery("SELECT (.+) FROM periods WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "condominium_id", "month", "year", "total_area_m2", "surcharge_percent",
			"rate_per_area", "status", "version", "created_at", "updated_at",
		}).AddRow("p1", "c1", 3, 2025, "not-a-number", "0", nil, "draft", 1, ts, ts))

	p, err := s.GetPeriod(context.Background(), "p1")

	assert.Nil(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_area_m2")
}

func TestStore_WithTx_BeginFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := s.WithTx(context.Background(), func(forecast.Store) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "begin transaction")
}
