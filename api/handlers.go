/*
handlers.go - HTTP API handlers for the forecast engine

PURPOSE:
  Exposes forecast consolidation, proration and reconciliation via REST.
  Handlers decode and validate the request, call the forecast or reconcile
  service and serialize the result. No business rule lives here.

ENDPOINTS:
  Condominiums:
    GET    /api/condominiums                    List condominiums
    POST   /api/condominiums                    Create condominium
    GET    /api/condominiums/{id}               Get condominium
    GET    /api/condominiums/{id}/cost-centers  List cost centers
    POST   /api/condominiums/{id}/cost-centers  Create cost center
    GET    /api/condominiums/{id}/periods       List periods, newest first
    POST   /api/condominiums/{id}/periods       Open a period

  Forecast:
    GET    /api/periods/{id}                    Get period
    GET    /api/periods/{id}/items              Stored line items
    PUT    /api/periods/{id}/forecast           Save forecast (full replace)
    GET    /api/periods/{id}/consolidated       Live totals + proration
    GET    /api/periods/{id}/snapshot           Summary stored by last save
    POST   /api/periods/{id}/recalculate        Recompute the rate
    POST   /api/periods/{id}/close              Lock the period
    PUT    /api/periods/{id}/cost-centers/{ccID}/items

  Execution (execution.go):
    payments, extra expenses, reconciliation, alerts, reports

  Scenarios (scenarios.go):
    GET    /api/scenarios, GET /api/scenarios/current, POST /api/scenarios/load

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with a status taken from
  the generic error helpers:
  - 400: IsClientError (bad parameters, bad cost center)
  - 404: IsNotFound
  - 409: IsConflict (closed period, duplicate competence, stale version)
  - 500: anything else, logged with the request ID

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - validate.go: Body decoding and tag validation
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
	"github.com/warp/condo-engine/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Forecast  *forecast.Service
	Reconcile *reconcile.Service
	Logger    *zap.Logger

	// VarianceThreshold is echoed by /health. The engine's classification
	// uses reconcile's fixed threshold.
	VarianceThreshold float64

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires both services onto one store.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:             store,
		Forecast:          forecast.NewService(store, logger),
		Reconcile:         reconcile.NewService(store, store, logger),
		Logger:            logger.Named("api"),
		VarianceThreshold: reconcile.VarianceThreshold.InexactFloat64(),
		validate:          newValidator(),
	}
}

// =============================================================================
// CONDOMINIUM HANDLERS
// =============================================================================

func (h *Handler) ListCondominiums(w http.ResponseWriter, r *http.Request) {
	condos, err := h.Forecast.ListCondominiums(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]CondominiumDTO, len(condos))
	for i, c := range condos {
		dtos[i] = toCondominiumDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCondominium(w http.ResponseWriter, r *http.Request) {
	var req CreateCondominiumRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	condo, err := h.Forecast.CreateCondominium(r.Context(), req.Name, req.TotalAreaM2)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCondominiumDTO(condo))
}

func (h *Handler) GetCondominium(w http.ResponseWriter, r *http.Request) {
	condo, err := h.Forecast.GetCondominium(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCondominiumDTO(condo))
}

// =============================================================================
// COST CENTER HANDLERS
// =============================================================================

func (h *Handler) ListCostCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := h.Forecast.ListCostCenters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]CostCenterDTO, len(centers))
	for i, c := range centers {
		dtos[i] = toCostCenterDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCostCenter registers a cost center. An area above the condominium
// total is a 400.
func (h *Handler) CreateCostCenter(w http.ResponseWriter, r *http.Request) {
	var req CreateCostCenterRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	center, err := h.Forecast.CreateCostCenter(r.Context(), forecast.CostCenter{
		CondominiumID: chi.URLParam(r, "id"),
		Name:          req.Name,
		AreaM2:        req.AreaM2,
		Address:       req.Address,
		TaxID:         req.TaxID,
		Active:        active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostCenterDTO(center))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Forecast.ListPeriods(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod opens a draft period. Items of the most recent earlier period
// are copied and returned with it.
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	period, items, err := h.Forecast.CreatePeriod(r.Context(), chi.URLParam(r, "id"), req.Month, req.Year)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatePeriodResponse{
		Period: toPeriodDTO(period),
		Items:  toLineItemDTOs(items),
	})
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Forecast.GetPeriod(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Forecast.ListLineItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLineItemDTOs(items))
}

// =============================================================================
// FORECAST HANDLERS
// =============================================================================

// SaveForecast replaces the period's forecast. Blank rows are dropped and
// listed under "rejected"; the rest of the save still succeeds.
func (h *Handler) SaveForecast(w http.ResponseWriter, r *http.Request) {
	var req SaveForecastRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]forecast.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = item.toDomain(i)
	}
	result, err := h.Forecast.SaveForecast(r.Context(), chi.URLParam(r, "id"), forecast.SaveForecastInput{
		TotalAreaM2:      req.TotalAreaM2,
		SurchargePercent: req.SurchargePercent,
		Items:            items,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	rejected := make([]RejectedItemDTO, len(result.Rejected))
	for i, rj := range result.Rejected {
		rejected[i] = RejectedItemDTO{Index: rj.Index, Reason: rj.Reason, Item: toLineItemDTO(rj.Item)}
	}
	writeJSON(w, http.StatusOK, SaveForecastResponse{
		Period:   toPeriodDTO(result.Period),
		Summary:  toSummaryDTO(result.Summary),
		Items:    toLineItemDTOs(result.Items),
		Rejected: rejected,
	})
}

func (h *Handler) GetConsolidated(w http.ResponseWriter, r *http.Request) {
	view, err := h.Forecast.Consolidated(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConsolidatedDTO{
		Period:      toPeriodDTO(view.Period),
		Condominium: toCondominiumDTO(view.Condominium),
		Items:       toLineItemDTOs(view.Items),
		Summary:     toSummaryDTO(view.Summary),
		Allocation:  toAllocationDTO(view.Allocation),
	})
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Forecast.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Forecast.Recalculate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// ClosePeriod locks a draft period. There is no reopen.
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Forecast.ClosePeriod(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(period))
}

func (h *Handler) SaveCostCenterItems(w http.ResponseWriter, r *http.Request) {
	var req SaveCostCenterItemsRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	items := make([]forecast.CostCenterItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = item.toDomain(i)
	}
	saved, err := h.Forecast.SaveCostCenterItems(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ccID"), items)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCostCenterItemDTOs(saved))
}

// =============================================================================
// ADMIN
// =============================================================================

// Health reports liveness and the applied schema version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:            "ok",
		SchemaVersion:     h.Store.SchemaVersion(),
		VarianceThreshold: h.VarianceThreshold,
	}
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.Error("health check failed", zap.Error(err))
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.setCurrentScenario("")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError maps a service error onto its HTTP status.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
