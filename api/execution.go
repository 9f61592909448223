/*
execution.go - HTTP handlers for the executed side of a period

PURPOSE:
  Payments, extra expenses, projected-vs-executed reports and alerts.
  Payments and extras may be recorded on closed periods too: closing locks
  the forecast, not the spending that follows it.

ENDPOINTS:
  Payments:
    GET    /api/periods/{id}/payments           ?cost_center_id filters
    POST   /api/periods/{id}/payments           Record payment
    POST   /api/periods/{id}/payments/generate  One pending payment per item
    PUT    /api/payments/{id}                   Partial update (pay, cancel)
    DELETE /api/payments/{id}

  Extra expenses:
    GET    /api/periods/{id}/extra-expenses     ?cost_center_id filters
    POST   /api/periods/{id}/extra-expenses
    PUT    /api/extra-expenses/{id}             Replace editable fields
    DELETE /api/extra-expenses/{id}

  Reports:
    GET    /api/periods/{id}/reconciliation     ?cost_center_id filters executed side
    GET    /api/periods/{id}/summary
    GET    /api/condominiums/{id}/comparative
    GET    /api/condominiums/{id}/analytics     ?range=3m|6m|12m|ytd (default 6m)
    GET    /api/condominiums/{id}/compare       ?first=MM/YYYY&second=MM/YYYY
    GET    /api/cost-centers/{id}/history

  Alerts:
    GET    /api/periods/{id}/alerts             ?read=true|false
    POST   /api/periods/{id}/alerts/generate    Idempotent per dedup key
    PUT    /api/periods/{id}/alerts/read        Mark all read
    PUT    /api/alerts/{id}/read
    DELETE /api/alerts/{id}
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
)

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Reconcile.ListPayments(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("cost_center_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := req.toDomain(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	saved, err := h.Reconcile.RecordPayment(r.Context(), p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(saved))
}

// GeneratePayments schedules pending payments from the period's forecast
// items, plus one cost center's own items when cost_center_id is given.
func (h *Handler) GeneratePayments(w http.ResponseWriter, r *http.Request) {
	var req GeneratePaymentsRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	payments, err := h.Reconcile.GeneratePaymentsFromForecast(r.Context(), chi.URLParam(r, "id"), req.CostCenterID, req.DueDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTOs(payments))
}

// UpdatePayment applies the fields present in the body. Setting status
// "paid" requires amount_paid, on the request or already stored.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	updated, err := h.Reconcile.UpdatePayment(r.Context(), chi.URLParam(r, "id"), req.toDomain())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(updated))
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconcile.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXTRA EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListExtraExpenses(w http.ResponseWriter, r *http.Request) {
	extras, err := h.Reconcile.ListExtraExpenses(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("cost_center_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]ExtraExpenseDTO, len(extras))
	for i, e := range extras {
		dtos[i] = toExtraExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordExtraExpense(w http.ResponseWriter, r *http.Request) {
	var req ExtraExpenseRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	e, err := req.toDomain(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	saved, err := h.Reconcile.RecordExtraExpense(r.Context(), e)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExtraExpenseDTO(saved))
}

// UpdateExtraExpense replaces description, amount, category and approval.
// Period and cost center stay as recorded.
func (h *Handler) UpdateExtraExpense(w http.ResponseWriter, r *http.Request) {
	var req ExtraExpenseRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	e, err := req.toDomain("")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	updated, err := h.Reconcile.UpdateExtraExpense(r.Context(), chi.URLParam(r, "id"), e)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExtraExpenseDTO(updated))
}

func (h *Handler) DeleteExtraExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconcile.DeleteExtraExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetReconciliation compares projected and executed per category. The
// cost_center_id filter narrows the executed side only.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconcile.Compare(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("cost_center_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetExecutionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reconcile.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetComparative(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconcile.Comparative(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	rng, err := reconcile.ParseAnalyticsRange(r.URL.Query().Get("range"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	analytics, err := h.Reconcile.Analytics(r.Context(), chi.URLParam(r, "id"), rng)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// ComparePeriods compares two competences; second is the baseline.
func (h *Handler) ComparePeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("first") == "" || q.Get("second") == "" {
		h.respondError(w, r, generic.Invalid("first/second", "", "both competences are required (MM/YYYY)"))
		return
	}
	first, err := generic.ParseCompetence(q.Get("first"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	second, err := generic.ParseCompetence(q.Get("second"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	comparison, err := h.Reconcile.ComparePeriods(r.Context(), chi.URLParam(r, "id"), first, second)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

func (h *Handler) GetCostCenterHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Reconcile.CostCenterHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CostCenterHistoryDTO{
		Center:            toCostCenterDTO(history.Center),
		CostCenterHistory: history,
	})
}

// =============================================================================
// ALERT HANDLERS
// =============================================================================

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var read *bool
	if raw := r.URL.Query().Get("read"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, r, generic.Invalid("read", raw, "expected true or false"))
			return
		}
		read = &v
	}

	alerts, err := h.Reconcile.ListAlerts(r.Context(), chi.URLParam(r, "id"), read)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTOs(alerts))
}

// GenerateAlerts reconciles the period and stores new alerts. Alerts already
// stored under the same dedup key are counted, not duplicated.
func (h *Handler) GenerateAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := h.Reconcile.GenerateAlerts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateAlertsResponse{
		Created:           toAlertDTOs(result.Created),
		SkippedDuplicates: result.SkippedDuplicates,
	})
}

func (h *Handler) MarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Reconcile.MarkAllAlertsRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconcile.MarkAlertRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconcile.DeleteAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
