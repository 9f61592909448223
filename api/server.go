/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: zap access log (logger/middleware.go)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/condominiums/*   Condominiums, their cost centers and periods,
                        comparative, analytics and two-period comparison
  /api/cost-centers/*   Cost center history
  /api/periods/*        Forecast, execution and alerts of one period
  /api/payments/*       Payment updates
  /api/extra-expenses/* Extra expense updates
  /api/alerts/*         Single alert actions
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /health               Liveness

SEE ALSO:
  - handlers.go, execution.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/condo-engine/logger"
)

// NewRouter creates a new router with all routes configured. corsOrigins
// lists the origins allowed to call the API from a browser.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/condominiums", func(r chi.Router) {
			r.Get("/", h.ListCondominiums)
			r.Post("/", h.CreateCondominium)
			r.Get("/{id}", h.GetCondominium)
			r.Get("/{id}/cost-centers", h.ListCostCenters)
			r.Post("/{id}/cost-centers", h.CreateCostCenter)
			r.Get("/{id}/periods", h.ListPeriods)
			r.Post("/{id}/periods", h.CreatePeriod)
			r.Get("/{id}/comparative", h.GetComparative)
			r.Get("/{id}/analytics", h.GetAnalytics)
			r.Get("/{id}/compare", h.ComparePeriods)
		})

		r.Route("/cost-centers", func(r chi.Router) {
			r.Get("/{id}/history", h.GetCostCenterHistory)
		})

		r.Route("/periods/{id}", func(r chi.Router) {
			r.Get("/", h.GetPeriod)
			r.Get("/items", h.ListLineItems)
			r.Put("/forecast", h.SaveForecast)
			r.Get("/consolidated", h.GetConsolidated)
			r.Get("/snapshot", h.GetSnapshot)
			r.Post("/recalculate", h.Recalculate)
			r.Post("/close", h.ClosePeriod)
			r.Put("/cost-centers/{ccID}/items", h.SaveCostCenterItems)

			r.Get("/payments", h.ListPayments)
			r.Post("/payments", h.RecordPayment)
			r.Post("/payments/generate", h.GeneratePayments)
			r.Get("/extra-expenses", h.ListExtraExpenses)
			r.Post("/extra-expenses", h.RecordExtraExpense)

			r.Get("/reconciliation", h.GetReconciliation)
			r.Get("/summary", h.GetExecutionSummary)

			r.Get("/alerts", h.ListAlerts)
			r.Post("/alerts/generate", h.GenerateAlerts)
			r.Put("/alerts/read", h.MarkAllAlertsRead)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Put("/{id}", h.UpdatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Route("/extra-expenses", func(r chi.Router) {
			r.Put("/{id}", h.UpdateExtraExpense)
			r.Delete("/{id}", h.DeleteExtraExpense)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Put("/{id}/read", h.MarkAlertRead)
			r.Delete("/{id}", h.DeleteAlert)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
