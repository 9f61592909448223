/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state through the
	services, and that loading through the API resets previous data.
	These tests double as integration tests of the whole stack.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/reconcile"
)

func onlyCondominium(t *testing.T, h *Handler) forecast.Condominium {
	t.Helper()
	condos, err := h.Forecast.ListCondominiums(context.Background())
	require.NoError(t, err)
	require.Len(t, condos, 1)
	return condos[0]
}

func TestScenario_BasicForecast(t *testing.T) {
	// GIVEN: An empty database
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	// WHEN: Loading the scenario
	require.NoError(t, h.loadBasicForecastScenario(ctx))

	// THEN: One period at 5.50/m²
	condo := onlyCondominium(t, h)
	periods, err := h.Forecast.ListPeriods(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.NotNil(t, periods[0].RatePerArea)
	assertDec(t, "5.5", *periods[0].RatePerArea)

	summary, err := h.Forecast.Snapshot(ctx, periods[0].ID)
	require.NoError(t, err)
	assertDec(t, "5500", summary.GrandTotalWithSurcharge)
}

func TestScenario_CostCenters(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadCostCentersScenario(ctx))

	condo := onlyCondominium(t, h)
	periods, err := h.Forecast.ListPeriods(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)

	view, err := h.Forecast.Consolidated(ctx, periods[0].ID)
	require.NoError(t, err)
	require.Len(t, view.Allocation.Centers, 2)

	// Loja 01: 600 m² of 1000 -> 3300 + own 150
	assertDec(t, "3300", view.Allocation.Centers[0].ProportionalShare)
	assertDec(t, "3450", view.Allocation.Centers[0].CombinedTotal)
	// Loja 02: 400 m² of 1000 -> 2200 + own 80
	assertDec(t, "2280", view.Allocation.Centers[1].CombinedTotal)
}

func TestScenario_ExecutionVariance(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadExecutionVarianceScenario(ctx))

	condo := onlyCondominium(t, h)
	periods, err := h.Forecast.ListPeriods(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	periodID := periods[0].ID

	// THEN: Alerts cover variance, overdue and unapproved spending
	alerts, err := h.Reconcile.ListAlerts(ctx, periodID, nil)
	require.NoError(t, err)
	kinds := map[reconcile.AlertKind]int{}
	for _, a := range alerts {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[reconcile.AlertOverduePayment])
	assert.Equal(t, 1, kinds[reconcile.AlertUnapprovedExpense])
	assert.GreaterOrEqual(t, kinds[reconcile.AlertHighVariance], 2)

	// AND: The summary counts the extra
	summary, err := h.Reconcile.Summary(ctx, periodID)
	require.NoError(t, err)
	assertDec(t, "7800", summary.TotalProjected)
	assertDec(t, "7300", summary.TotalPaid)
	assertDec(t, "800", summary.TotalPending)
	assertDec(t, "450", summary.TotalExtras)
}

func TestScenario_MultiPeriod(t *testing.T) {
	h, _ := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadMultiPeriodScenario(ctx))

	condo := onlyCondominium(t, h)
	periods, err := h.Forecast.ListPeriods(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.False(t, periods[0].IsClosed(), "march stays open")
	assert.True(t, periods[1].IsClosed())
	assert.True(t, periods[2].IsClosed())

	// Comparative runs oldest first
	report, err := h.Reconcile.Comparative(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, "JANEIRO/2025", report.Rows[0].Competence)
	assertDec(t, "5350", report.Rows[0].Projected)
	assertDec(t, "5400", report.Rows[0].Executed)

	centers, err := h.Forecast.ListCostCenters(ctx, condo.ID)
	require.NoError(t, err)
	require.Len(t, centers, 1)
	history, err := h.Reconcile.CostCenterHistory(ctx, centers[0].ID)
	require.NoError(t, err)
	require.Len(t, history.Rows, 3)
	assertDec(t, "700", history.TotalProjected)
	assertDec(t, "450", history.TotalPaid)
}

func TestScenario_LoadThroughAPI(t *testing.T) {
	h, router := setupTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", trimNewline(rec.Body.String()))

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			// WHEN: Loading each scenario over the previous one
			rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": s.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// THEN: Only this scenario's data is present
			onlyCondominium(t, h)
			rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
			assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}

	rec = do(t, router, http.MethodGet, "/api/scenarios", nil)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
