package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
	"github.com/warp/condo-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	ctx      context.Context
	forecast *forecast.Service
	svc      *reconcile.Service
	condo    forecast.Condominium
	period   forecast.Period
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	f := &fixture{
		ctx:   context.Background(),
		clock: time.Date(2025, 3, 20, 8, 0, 0, 0, time.UTC),
	}
	n := 0
	nextID := func() string { n++; return fmt.Sprintf("id-%03d", n) }

	f.forecast = forecast.NewService(st, nil)
	f.forecast.NewID = nextID
	f.svc = reconcile.NewService(st, st, nil)
	f.svc.NewID = nextID
	f.svc.Now = func() time.Time { return f.clock }

	var err error
	f.condo, err = f.forecast.CreateCondominium(f.ctx, "Residencial Ipê", dec("1000"))
	require.NoError(t, err)
	f.period, _, err = f.forecast.CreatePeriod(f.ctx, f.condo.ID, 3, 2025)
	require.NoError(t, err)
	_, err = f.forecast.SaveForecast(f.ctx, f.period.ID, forecast.SaveForecastInput{
		Items: []forecast.LineItem{
			{Category: forecast.CategoryPersonnel, Description: "Folha", Amount: dec("4000")},
			{Category: forecast.CategoryContracts, Description: "Elevadores", Amount: dec("1000")},
		},
	})
	require.NoError(t, err)
	return f
}

func rowFor(t *testing.T, r reconcile.Report, c forecast.Category) reconcile.CategoryComparison {
	t.Helper()
	for _, row := range r.Categories {
		if row.Category == c {
			return row
		}
	}
	t.Fatalf("no row for %s", c)
	return reconcile.CategoryComparison{}
}

func amount(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestService_RecordAndPayPayment(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "Folha março",
		Category: forecast.CategoryPersonnel, AmountProjected: dec("4000"),
	})
	require.NoError(t, err)
	assert.Equal(t, reconcile.PaymentPending, p.Status)
	assert.Equal(t, reconcile.RefAdHoc, p.ReferenceKind)

	// Paid without an amount is refused
	status := reconcile.PaymentPaid
	_, err = f.svc.UpdatePayment(f.ctx, p.ID, reconcile.PaymentUpdate{Status: &status})
	assert.True(t, generic.IsClientError(err))

	updated, err := f.svc.UpdatePayment(f.ctx, p.ID, reconcile.PaymentUpdate{Status: &status, AmountPaid: amount("4600")})
	require.NoError(t, err)
	assert.Equal(t, generic.NewDate(2025, 3, 20), updated.PaidDate)

	report, err := f.svc.Compare(f.ctx, f.period.ID, "")
	require.NoError(t, err)
	row := rowFor(t, report, forecast.CategoryPersonnel)
	assertDec(t, "15", row.VariancePercent)
	assert.Equal(t, reconcile.StatusAbove, row.Status)
}

func TestService_RecordPayment_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{PeriodID: "missing", Description: "x", Category: forecast.CategoryPersonnel})
	assert.True(t, generic.IsNotFound(err))

	_, err = f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "x", Category: forecast.CategoryPersonnel, CostCenterID: "nope",
	})
	assert.True(t, generic.IsNotFound(err))

	_, err = f.svc.UpdatePayment(f.ctx, "nope", reconcile.PaymentUpdate{})
	assert.True(t, generic.IsNotFound(err))
}

func TestService_PaymentsAllowedOnClosedPeriod(t *testing.T) {
	f := newFixture(t)
	_, err := f.forecast.ClosePeriod(f.ctx, f.period.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "Folha", Category: forecast.CategoryPersonnel,
		AmountProjected: dec("4000"), Status: reconcile.PaymentPaid, AmountPaid: amount("4000"),
	})
	assert.NoError(t, err)
}

func TestService_GeneratePaymentsFromForecast(t *testing.T) {
	f := newFixture(t)
	cc, err := f.forecast.CreateCostCenter(f.ctx, forecast.CostCenter{CondominiumID: f.condo.ID, Name: "Loja", AreaM2: dec("100"), Active: true})
	require.NoError(t, err)
	_, err = f.forecast.SaveCostCenterItems(f.ctx, f.period.ID, cc.ID, []forecast.CostCenterItem{
		{Category: forecast.CenterContracts, Description: "Alarme", Amount: dec("90")},
	})
	require.NoError(t, err)

	due := generic.NewDate(2025, 3, 15)
	payments, err := f.svc.GeneratePaymentsFromForecast(f.ctx, f.period.ID, cc.ID, due)

	require.NoError(t, err)
	require.Len(t, payments, 3)
	kinds := map[reconcile.ReferenceKind]int{}
	for _, p := range payments {
		kinds[p.ReferenceKind]++
		assert.Equal(t, reconcile.PaymentPending, p.Status)
		assert.Equal(t, due, p.DueDate)
	}
	assert.Equal(t, 2, kinds[reconcile.RefForecastItem])
	assert.Equal(t, 1, kinds[reconcile.RefCostCenterItem])

	onlyCenter, err := f.svc.ListPayments(f.ctx, f.period.ID, cc.ID)
	require.NoError(t, err)
	require.Len(t, onlyCenter, 1)
	assert.Equal(t, "Alarme", onlyCenter[0].Description)
}

// =============================================================================
// EXTRAS & COMPARISON
// =============================================================================

func TestService_ExtrasAndFilteredComparison(t *testing.T) {
	f := newFixture(t)
	cc, err := f.forecast.CreateCostCenter(f.ctx, forecast.CostCenter{CondominiumID: f.condo.ID, Name: "Loja", AreaM2: dec("100"), Active: true})
	require.NoError(t, err)

	e, err := f.svc.RecordExtraExpense(f.ctx, reconcile.ExtraExpense{
		PeriodID: f.period.ID, Description: "Bomba d'água", Amount: dec("300"),
	})
	require.NoError(t, err)
	assert.Equal(t, forecast.CategoryUnclassified, e.Category)

	_, err = f.svc.RecordExtraExpense(f.ctx, reconcile.ExtraExpense{
		PeriodID: f.period.ID, CostCenterID: cc.ID, Description: "Vitrine", Amount: dec("50"),
		Category: forecast.CenterVariable,
	})
	require.NoError(t, err)

	all, err := f.svc.Compare(f.ctx, f.period.ID, "")
	require.NoError(t, err)
	assertDec(t, "350", all.Overall.Executed)

	filtered, err := f.svc.Compare(f.ctx, f.period.ID, cc.ID)
	require.NoError(t, err)
	assertDec(t, "50", filtered.Overall.Executed)
	assertDec(t, "5000", filtered.Overall.Projected)

	approved := e
	approved.Approved = true
	got, err := f.svc.UpdateExtraExpense(f.ctx, e.ID, approved)
	require.NoError(t, err)
	assert.True(t, got.Approved)

	require.NoError(t, f.svc.DeleteExtraExpense(f.ctx, e.ID))
	assert.True(t, generic.IsNotFound(f.svc.DeleteExtraExpense(f.ctx, e.ID)))
}

// =============================================================================
// ALERTS
// =============================================================================

func TestService_GenerateAlerts_Deduplicates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "Folha", Category: forecast.CategoryPersonnel,
		AmountProjected: dec("4000"), Status: reconcile.PaymentPaid, AmountPaid: amount("4600"),
	})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "Elevadores", Category: forecast.CategoryContracts,
		AmountProjected: dec("1000"), DueDate: generic.NewDate(2025, 3, 19),
	})
	require.NoError(t, err)

	// WHEN: Generating twice with unchanged data
	first, err := f.svc.GenerateAlerts(f.ctx, f.period.ID)
	require.NoError(t, err)
	second, err := f.svc.GenerateAlerts(f.ctx, f.period.ID)
	require.NoError(t, err)

	// THEN: Contracts -100%, personnel +15%, one overdue; nothing new the second time
	require.Len(t, first.Created, 3)
	assert.Equal(t, reconcile.AlertHighVariance, first.Created[0].Kind)
	assert.Equal(t, forecast.CategoryContracts, first.Created[0].Category)
	assert.Equal(t, reconcile.SeverityHigh, first.Created[0].Severity)
	assert.Equal(t, reconcile.SeverityMedium, first.Created[1].Severity)
	assert.Equal(t, reconcile.AlertOverduePayment, first.Created[2].Kind)
	assert.Empty(t, second.Created)
	assert.Equal(t, 3, second.SkippedDuplicates)

	alerts, err := f.svc.ListAlerts(f.ctx, f.period.ID, nil)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}

func TestService_AlertReadAndDelete(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordExtraExpense(f.ctx, reconcile.ExtraExpense{PeriodID: f.period.ID, Description: "Portão", Amount: dec("800")})
	require.NoError(t, err)
	res, err := f.svc.GenerateAlerts(f.ctx, f.period.ID)
	require.NoError(t, err)
	// contracts -100%, personnel -100%, unapproved extra
	require.Len(t, res.Created, 3)

	require.NoError(t, f.svc.MarkAlertRead(f.ctx, res.Created[0].ID))
	unread := false
	list, err := f.svc.ListAlerts(f.ctx, f.period.ID, &unread)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := f.svc.MarkAllAlertsRead(f.ctx, f.period.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.svc.DeleteAlert(f.ctx, res.Created[0].ID))
	err = f.svc.DeleteAlert(f.ctx, res.Created[0].ID)
	assert.True(t, errors.Is(err, generic.ErrNotFound))
	assert.True(t, generic.IsNotFound(f.svc.MarkAlertRead(f.ctx, "nope")))
}

// =============================================================================
// REPORTS
// =============================================================================

func TestService_SummaryAndComparative(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, Description: "Folha", Category: forecast.CategoryPersonnel,
		AmountProjected: dec("4000"), Status: reconcile.PaymentPaid, AmountPaid: amount("4000"),
	})
	require.NoError(t, err)
	april, _, err := f.forecast.CreatePeriod(f.ctx, f.condo.ID, 4, 2025)
	require.NoError(t, err)

	s, err := f.svc.Summary(f.ctx, f.period.ID)
	require.NoError(t, err)
	assertDec(t, "80", s.PercentExecuted)

	c, err := f.svc.Comparative(f.ctx, f.condo.ID)
	require.NoError(t, err)
	require.Len(t, c.Rows, 2)
	assert.Equal(t, f.period.ID, c.Rows[0].PeriodID, "oldest first")
	assert.Equal(t, april.ID, c.Rows[1].PeriodID)
	assertDec(t, "10000", c.TotalProjected)
	assertDec(t, "4000", c.TotalExecuted)

	_, err = f.svc.Comparative(f.ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestService_CostCenterHistory(t *testing.T) {
	f := newFixture(t)
	cc, err := f.forecast.CreateCostCenter(f.ctx, forecast.CostCenter{CondominiumID: f.condo.ID, Name: "Loja", AreaM2: dec("100"), Active: true})
	require.NoError(t, err)
	_, err = f.forecast.SaveCostCenterItems(f.ctx, f.period.ID, cc.ID, []forecast.CostCenterItem{
		{Category: forecast.CenterPersonnel, Description: "Vigia", Amount: dec("500")},
	})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(f.ctx, reconcile.PaymentRecord{
		PeriodID: f.period.ID, CostCenterID: cc.ID, Description: "Vigia", Category: forecast.CenterPersonnel,
		AmountProjected: dec("500"), Status: reconcile.PaymentPaid, AmountPaid: amount("450"),
	})
	require.NoError(t, err)

	h, err := f.svc.CostCenterHistory(f.ctx, cc.ID)

	require.NoError(t, err)
	require.Len(t, h.Rows, 1)
	assertDec(t, "-50", h.Rows[0].Difference)
	assertDec(t, "450", h.MonthlyAverage)
}

func saveFixturePeriod(t *testing.T, f *fixture, month, year int, personnel string) forecast.Period {
	t.Helper()
	p, _, err := f.forecast.CreatePeriod(f.ctx, f.condo.ID, month, year)
	require.NoError(t, err)
	_, err = f.forecast.SaveForecast(f.ctx, p.ID, forecast.SaveForecastInput{
		Items: []forecast.LineItem{
			{Category: forecast.CategoryPersonnel, Description: "Folha", Amount: dec(personnel)},
			{Category: forecast.CategoryContracts, Description: "Elevadores", Amount: dec("1000")},
		},
	})
	require.NoError(t, err)
	return p
}

func TestService_Analytics(t *testing.T) {
	// GIVEN: Feb 4500 and Mar 5000, plus periods outside the window
	f := newFixture(t)
	feb := saveFixturePeriod(t, f, 2, 2025, "3500")
	saveFixturePeriod(t, f, 6, 2024, "2000") // before a 6-month window
	saveFixturePeriod(t, f, 4, 2025, "9000") // after the current month

	// WHEN: Asking for the default window
	a, err := f.svc.Analytics(f.ctx, f.condo.ID, reconcile.Range6Months)

	// THEN: Only Feb and Mar, oldest first
	require.NoError(t, err)
	assert.Equal(t, "SETEMBRO/2024", a.From)
	assert.Equal(t, "MARÇO/2025", a.To)
	require.Len(t, a.Monthly, 2)
	assert.Equal(t, feb.ID, a.Monthly[0].PeriodID)
	assert.Equal(t, f.period.ID, a.Monthly[1].PeriodID)
	assertDec(t, "4.75", a.AverageRate)
	assert.True(t, a.RateVariation.GreaterThan(dec("11")), "got %s", a.RateVariation)

	// AND: Rate growth and open periods both flagged
	require.Len(t, a.Insights, 2)
	assert.Equal(t, "fast_growth", a.Insights[0].ID)

	// WHEN: The 12-month window reaches June 2024
	a, err = f.svc.Analytics(f.ctx, f.condo.ID, reconcile.Range12Months)
	require.NoError(t, err)
	assert.Len(t, a.Monthly, 3)

	_, err = f.svc.Analytics(f.ctx, "missing", reconcile.Range6Months)
	assert.True(t, generic.IsNotFound(err))
}

func TestService_ComparePeriods(t *testing.T) {
	// GIVEN: Feb 4500 against Mar 5000
	f := newFixture(t)
	feb := saveFixturePeriod(t, f, 2, 2025, "3500")

	// WHEN: Comparing March to February
	c, err := f.svc.ComparePeriods(f.ctx, f.condo.ID,
		generic.Competence{Month: 3, Year: 2025}, generic.Competence{Month: 2, Year: 2025})

	// THEN: +500 is an upward trend led by personnel
	require.NoError(t, err)
	assert.Equal(t, f.period.ID, c.First.PeriodID)
	assert.Equal(t, feb.ID, c.Second.PeriodID)
	assertDec(t, "500", c.Difference)
	assert.Equal(t, reconcile.TrendHigh, c.Trend)
	require.NotNil(t, c.LargestVariance)
	assert.Equal(t, forecast.CategoryPersonnel, c.LargestVariance.Category)

	// AND: Unknown competences and condominiums are not found
	_, err = f.svc.ComparePeriods(f.ctx, f.condo.ID,
		generic.Competence{Month: 3, Year: 2025}, generic.Competence{Month: 1, Year: 2025})
	assert.True(t, generic.IsNotFound(err))
	_, err = f.svc.ComparePeriods(f.ctx, "missing",
		generic.Competence{Month: 3, Year: 2025}, generic.Competence{Month: 2, Year: 2025})
	assert.True(t, generic.IsNotFound(err))
}
