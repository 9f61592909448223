/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos and end-to-end tests. Every loader goes through the
	forecast and reconcile services, so the data obeys the same rules as
	data entered through the API.

AVAILABLE SCENARIOS:

	basic-forecast:     One condominium, one period, rate of 5.50/m²
	cost-centers:       Two stores sharing the total by area, with own items
	execution-variance: Payments above and below forecast, overdue and
	                    unapproved spending, alerts generated
	multi-period:       Three months, two closed, for comparative and
	                    cost center history reports

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create condominium and cost centers
 3. Open periods and save forecasts
 4. Record payments and extra expenses
 5. Optionally close periods and generate alerts

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "execution-variance"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-forecast",
		Name:        "Basic Forecast",
		Description: "Personnel 4000 + contracts 1000 with a 10% surcharge over 1000 m²",
	},
	{
		ID:          "cost-centers",
		Name:        "Cost Centers",
		Description: "Two stores splitting the forecast by area, one with its own items",
	},
	{
		ID:          "execution-variance",
		Name:        "Execution Variance",
		Description: "Payments above forecast, an overdue bill and an unapproved extra expense",
	},
	{
		ID:          "multi-period",
		Name:        "Multi-Period",
		Description: "Three consecutive months, two closed, for comparative reports",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"basic-forecast":     h.loadBasicForecastScenario,
		"cost-centers":       h.loadCostCentersScenario,
		"execution-variance": h.loadExecutionVarianceScenario,
		"multi-period":       h.loadMultiPeriodScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.getCurrentScenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		h.respondError(w, r, generic.Invalid("scenario_id", req.ScenarioID, "unknown scenario"))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.setCurrentScenario("")

	if err := load(ctx); err != nil {
		h.respondError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.setCurrentScenario(req.ScenarioID)
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) getCurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBasicForecastScenario(ctx context.Context) error {
	condo, err := h.Forecast.CreateCondominium(ctx, "Edifício Aurora", decimal.NewFromInt(1000))
	if err != nil {
		return err
	}
	period, _, err := h.Forecast.CreatePeriod(ctx, condo.ID, 3, 2025)
	if err != nil {
		return err
	}
	_, err = h.Forecast.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{
		SurchargePercent: decimalPtr(10),
		Items: []forecast.LineItem{
			demoItem(forecast.CategoryPersonnel, "Folha de pagamento", 4000, 0),
			demoItem(forecast.CategoryContracts, "Manutenção de elevadores", 1000, 1),
		},
	})
	return err
}

func (h *Handler) loadCostCentersScenario(ctx context.Context) error {
	condo, err := h.Forecast.CreateCondominium(ctx, "Centro Comercial Parque das Flores", decimal.NewFromInt(1000))
	if err != nil {
		return err
	}
	lojaA, err := h.Forecast.CreateCostCenter(ctx, forecast.CostCenter{
		CondominiumID: condo.ID, Name: "Loja 01", AreaM2: decimal.NewFromInt(600),
		Address: "Térreo, frente", TaxID: "12.345.678/0001-90", Active: true,
	})
	if err != nil {
		return err
	}
	lojaB, err := h.Forecast.CreateCostCenter(ctx, forecast.CostCenter{
		CondominiumID: condo.ID, Name: "Loja 02", AreaM2: decimal.NewFromInt(400),
		Address: "Térreo, fundos", Active: true,
	})
	if err != nil {
		return err
	}

	period, _, err := h.Forecast.CreatePeriod(ctx, condo.ID, 4, 2025)
	if err != nil {
		return err
	}
	if _, err := h.Forecast.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{
		SurchargePercent: decimalPtr(10),
		Items: []forecast.LineItem{
			demoItem(forecast.CategoryPersonnel, "Folha de pagamento", 4000, 0),
			demoItem(forecast.CategoryContracts, "Limpeza terceirizada", 1000, 1),
		},
	}); err != nil {
		return err
	}

	if _, err := h.Forecast.SaveCostCenterItems(ctx, period.ID, lojaA.ID, []forecast.CostCenterItem{
		{Category: forecast.CenterContracts, Description: "Monitoramento da vitrine", Amount: decimal.NewFromInt(150), Order: 0},
	}); err != nil {
		return err
	}
	_, err = h.Forecast.SaveCostCenterItems(ctx, period.ID, lojaB.ID, []forecast.CostCenterItem{
		{Category: forecast.CenterVariable, Description: "Troca de vidro", Amount: decimal.NewFromInt(80), Order: 0},
	})
	return err
}

func (h *Handler) loadExecutionVarianceScenario(ctx context.Context) error {
	condo, err := h.Forecast.CreateCondominium(ctx, "Residencial Bosque Azul", decimal.NewFromInt(2000))
	if err != nil {
		return err
	}
	today := generic.DateOf(h.Reconcile.Now())
	period, _, err := h.Forecast.CreatePeriod(ctx, condo.ID, int(today.Time.Month()), today.Time.Year())
	if err != nil {
		return err
	}
	if _, err := h.Forecast.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{
		SurchargePercent: decimalPtr(5),
		Items: []forecast.LineItem{
			demoItem(forecast.CategoryPersonnel, "Folha de pagamento", 6000, 0),
			demoItem(forecast.CategoryContracts, "Manutenção de elevadores", 1000, 1),
			demoItem(forecast.CategoryUtilities, "Energia elétrica", 800, 2),
		},
	}); err != nil {
		return err
	}

	payments, err := h.Reconcile.GeneratePaymentsFromForecast(ctx, period.ID, "", today.AddDays(-10))
	if err != nil {
		return err
	}
	paid := map[forecast.Category]int64{
		forecast.CategoryPersonnel: 6000,
		forecast.CategoryContracts: 1300,
	}
	for _, p := range payments {
		amount, ok := paid[p.Category]
		if !ok {
			continue
		}
		if _, err := h.Reconcile.UpdatePayment(ctx, p.ID, reconcile.PaymentUpdate{
			Status:     paymentStatusPtr(reconcile.PaymentPaid),
			AmountPaid: decimalPtr(amount),
		}); err != nil {
			return err
		}
	}

	if _, err := h.Reconcile.RecordExtraExpense(ctx, reconcile.ExtraExpense{
		PeriodID:      period.ID,
		Description:   "Conserto do portão da garagem",
		Amount:        decimal.NewFromInt(450),
		Kind:          "emergencial",
		OccurredOn:    today.AddDays(-3),
		Justification: "Motor queimado após queda de energia",
	}); err != nil {
		return err
	}

	_, err = h.Reconcile.GenerateAlerts(ctx, period.ID)
	return err
}

func (h *Handler) loadMultiPeriodScenario(ctx context.Context) error {
	condo, err := h.Forecast.CreateCondominium(ctx, "Edifício Solar dos Ipês", decimal.NewFromInt(1500))
	if err != nil {
		return err
	}
	loja, err := h.Forecast.CreateCostCenter(ctx, forecast.CostCenter{
		CondominiumID: condo.ID, Name: "Farmácia", AreaM2: decimal.NewFromInt(300), Active: true,
	})
	if err != nil {
		return err
	}

	months := []struct {
		month     int
		personnel int64
		paid      int64
		center    int64
		close     bool
	}{
		{month: 1, personnel: 5000, paid: 5200, center: 200, close: true},
		{month: 2, personnel: 5200, paid: 5100, center: 250, close: true},
		{month: 3, personnel: 5200, paid: 0, center: 250, close: false},
	}

	for _, m := range months {
		// Items after January are copied from the previous month on create.
		period, _, err := h.Forecast.CreatePeriod(ctx, condo.ID, m.month, 2025)
		if err != nil {
			return err
		}
		if _, err := h.Forecast.SaveForecast(ctx, period.ID, forecast.SaveForecastInput{
			SurchargePercent: decimalPtr(8),
			Items: []forecast.LineItem{
				demoItem(forecast.CategoryPersonnel, "Folha de pagamento", m.personnel, 0),
				demoItem(forecast.CategoryAnnual, "Seguro predial (parcela)", 350, 1),
			},
		}); err != nil {
			return err
		}
		if _, err := h.Forecast.SaveCostCenterItems(ctx, period.ID, loja.ID, []forecast.CostCenterItem{
			{Category: forecast.CenterVariable, Description: "Consumo de água individual", Amount: decimal.NewFromInt(m.center)},
		}); err != nil {
			return err
		}

		due := generic.NewDate(2025, time.Month(m.month), 10)
		if m.paid > 0 {
			if _, err := h.Reconcile.RecordPayment(ctx, reconcile.PaymentRecord{
				PeriodID:        period.ID,
				Description:     "Folha de pagamento",
				Category:        forecast.CategoryPersonnel,
				AmountProjected: decimal.NewFromInt(m.personnel),
				AmountPaid:      decimalPtr(m.paid),
				DueDate:         due,
				PaidDate:        due,
				Status:          reconcile.PaymentPaid,
				Method:          "transferência",
			}); err != nil {
				return err
			}
			if _, err := h.Reconcile.RecordPayment(ctx, reconcile.PaymentRecord{
				PeriodID:        period.ID,
				CostCenterID:    loja.ID,
				ReferenceKind:   reconcile.RefCostCenterItem,
				Description:     "Consumo de água individual",
				Category:        forecast.CenterVariable,
				AmountProjected: decimal.NewFromInt(m.center),
				AmountPaid:      decimalPtr(m.center),
				DueDate:         due,
				PaidDate:        due,
				Status:          reconcile.PaymentPaid,
				Method:          "boleto",
			}); err != nil {
				return err
			}
		}

		if m.close {
			if _, err := h.Forecast.ClosePeriod(ctx, period.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func demoItem(c forecast.Category, description string, amount int64, order int) forecast.LineItem {
	return forecast.LineItem{Category: c, Description: description, Amount: decimal.NewFromInt(amount), Order: order}
}

func decimalPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func paymentStatusPtr(s reconcile.PaymentStatus) *reconcile.PaymentStatus {
	return &s
}
