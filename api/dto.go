/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry no
  JSON tags, so every response goes through a converter here and the wire
  names can change without touching forecast/ or reconcile/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts and areas are decimal.Decimal on both sides. They are written as
  JSON strings ("5500.5") and accepted as strings or numbers.

VALIDATION:
  Request types carry `validate` tags checked by validate.go before any
  service call. Forecast line items are deliberately NOT tagged: blank rows
  are dropped and reported by the save, not rejected here.

SEE ALSO:
  - handlers.go, execution.go: Use these types
  - validate.go: Tag checking and error translation
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"github.com/warp/condo-engine/reconcile"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateCondominiumRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	TotalAreaM2 decimal.Decimal `json:"total_area_m2" validate:"gt=0"`
}

type CreateCostCenterRequest struct {
	Name    string          `json:"name" validate:"required,max=200"`
	AreaM2  decimal.Decimal `json:"area_m2" validate:"gt=0"`
	Address string          `json:"address" validate:"max=500"`
	TaxID   string          `json:"tax_id" validate:"max=32"`

	// Active defaults to true when omitted.
	Active *bool `json:"active"`
}

type CreatePeriodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1900,max=9999"`
}

// LineItemRequest is one forecast row as typed by the administrator.
type LineItemRequest struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes"`
	Order       *int            `json:"order"`
}

// SaveForecastRequest replaces the whole forecast of a period. Omitted
// parameters keep the period's current values.
type SaveForecastRequest struct {
	TotalAreaM2      *decimal.Decimal  `json:"total_area_m2" validate:"omitempty,gt=0"`
	SurchargePercent *decimal.Decimal  `json:"surcharge_percent" validate:"omitempty,gte=0"`
	Items            []LineItemRequest `json:"items"`
}

type CostCenterItemRequest struct {
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
	Order       *int            `json:"order"`
}

type SaveCostCenterItemsRequest struct {
	Items []CostCenterItemRequest `json:"items" validate:"dive"`
}

type RecordPaymentRequest struct {
	CostCenterID    string           `json:"cost_center_id"`
	ReferenceKind   string           `json:"reference_kind" validate:"omitempty,oneof=forecast_item cost_center_item ad_hoc"`
	ReferenceID     string           `json:"reference_id"`
	Description     string           `json:"description" validate:"required,max=500"`
	Category        string           `json:"category"`
	AmountProjected decimal.Decimal  `json:"amount_projected" validate:"gte=0"`
	AmountPaid      *decimal.Decimal `json:"amount_paid" validate:"omitempty,gte=0"`
	DueDate         generic.Date     `json:"due_date"`
	PaidDate        generic.Date     `json:"paid_date"`
	Status          string           `json:"status" validate:"omitempty,oneof=pending paid overdue cancelled"`
	Method          string           `json:"method"`
	Notes           string           `json:"notes"`
}

// UpdatePaymentRequest changes only the fields present in the body.
type UpdatePaymentRequest struct {
	Status     *string          `json:"status" validate:"omitempty,oneof=pending paid overdue cancelled"`
	AmountPaid *decimal.Decimal `json:"amount_paid" validate:"omitempty,gte=0"`
	PaidDate   *generic.Date    `json:"paid_date"`
	Method     *string          `json:"method"`
	Notes      *string          `json:"notes"`
}

type GeneratePaymentsRequest struct {
	CostCenterID string       `json:"cost_center_id"`
	DueDate      generic.Date `json:"due_date"`
}

type ExtraExpenseRequest struct {
	CostCenterID  string          `json:"cost_center_id"`
	Category      string          `json:"category"`
	Description   string          `json:"description" validate:"required,max=500"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Kind          string          `json:"kind"`
	OccurredOn    generic.Date    `json:"occurred_on"`
	Justification string          `json:"justification"`
	Approved      bool            `json:"approved"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type CondominiumDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	TotalAreaM2 decimal.Decimal `json:"total_area_m2"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type CostCenterDTO struct {
	ID            string          `json:"id"`
	CondominiumID string          `json:"condominium_id"`
	Name          string          `json:"name"`
	AreaM2        decimal.Decimal `json:"area_m2"`
	Address       string          `json:"address,omitempty"`
	TaxID         string          `json:"tax_id,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

type PeriodDTO struct {
	ID               string           `json:"id"`
	CondominiumID    string           `json:"condominium_id"`
	Month            int              `json:"month"`
	Year             int              `json:"year"`
	Competence       string           `json:"competence"`
	TotalAreaM2      decimal.Decimal  `json:"total_area_m2"`
	SurchargePercent decimal.Decimal  `json:"surcharge_percent"`
	RatePerArea      *decimal.Decimal `json:"rate_per_area"`
	Status           string           `json:"status"`
	Version          int64            `json:"version"`
	CreatedAt        string           `json:"created_at"`
	UpdatedAt        string           `json:"updated_at"`
}

type LineItemDTO struct {
	ID          string          `json:"id,omitempty"`
	PeriodID    string          `json:"period_id,omitempty"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes,omitempty"`
	Order       int             `json:"order"`
}

type CostCenterItemDTO struct {
	ID           string          `json:"id"`
	PeriodID     string          `json:"period_id"`
	CostCenterID string          `json:"cost_center_id"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Order        int             `json:"order"`
}

// SummaryDTO adds the ordered category rows to the stored summary shape.
type SummaryDTO struct {
	forecast.Summary
	Categories []forecast.CategoryTotal `json:"categories"`
}

type CreatePeriodResponse struct {
	Period PeriodDTO     `json:"period"`
	Items  []LineItemDTO `json:"items"`
}

type RejectedItemDTO struct {
	Index  int         `json:"index"`
	Reason string      `json:"reason"`
	Item   LineItemDTO `json:"item"`
}

type SaveForecastResponse struct {
	Period   PeriodDTO         `json:"period"`
	Summary  SummaryDTO        `json:"summary"`
	Items    []LineItemDTO     `json:"items"`
	Rejected []RejectedItemDTO `json:"rejected"`
}

type CenterAllocationDTO struct {
	Center            CostCenterDTO       `json:"center"`
	OwnItems          []CostCenterItemDTO `json:"own_items"`
	OwnSubtotal       decimal.Decimal     `json:"own_subtotal"`
	ProportionalShare decimal.Decimal     `json:"proportional_share"`
	CombinedTotal     decimal.Decimal     `json:"combined_total"`
}

type AllocationDTO struct {
	Centers         []CenterAllocationDTO `json:"centers"`
	TotalShare      decimal.Decimal       `json:"total_share"`
	AssignedAreaM2  decimal.Decimal       `json:"assigned_area_m2"`
	UnassignedShare decimal.Decimal       `json:"unassigned_share"`
	Warnings        []string              `json:"warnings"`
}

type ConsolidatedDTO struct {
	Period      PeriodDTO      `json:"period"`
	Condominium CondominiumDTO `json:"condominium"`
	Items       []LineItemDTO  `json:"items"`
	Summary     SummaryDTO     `json:"summary"`
	Allocation  AllocationDTO  `json:"allocation"`
}

type PaymentDTO struct {
	ID              string           `json:"id"`
	PeriodID        string           `json:"period_id"`
	CostCenterID    string           `json:"cost_center_id,omitempty"`
	ReferenceKind   string           `json:"reference_kind"`
	ReferenceID     string           `json:"reference_id,omitempty"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	AmountProjected decimal.Decimal  `json:"amount_projected"`
	AmountPaid      *decimal.Decimal `json:"amount_paid"`
	DueDate         generic.Date     `json:"due_date"`
	PaidDate        generic.Date     `json:"paid_date"`
	Status          string           `json:"status"`
	Method          string           `json:"method,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

type ExtraExpenseDTO struct {
	ID            string          `json:"id"`
	PeriodID      string          `json:"period_id"`
	CostCenterID  string          `json:"cost_center_id,omitempty"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	OccurredOn    generic.Date    `json:"occurred_on"`
	Justification string          `json:"justification,omitempty"`
	Approved      bool            `json:"approved"`
	CreatedAt     string          `json:"created_at"`
}

type AlertDTO struct {
	ID            string          `json:"id"`
	PeriodID      string          `json:"period_id"`
	Kind          string          `json:"kind"`
	Severity      string          `json:"severity"`
	Category      string          `json:"category,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	RelatedAmount decimal.Decimal `json:"related_amount"`
	Read          bool            `json:"read"`
	CreatedAt     string          `json:"created_at"`
}

type GenerateAlertsResponse struct {
	Created           []AlertDTO `json:"created"`
	SkippedDuplicates int        `json:"skipped_duplicates"`
}

type CostCenterHistoryDTO struct {
	Center CostCenterDTO `json:"center"`
	reconcile.CostCenterHistory
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type HealthResponse struct {
	Status            string  `json:"status"`
	SchemaVersion     uint    `json:"schema_version"`
	VarianceThreshold float64 `json:"variance_threshold"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS - domain -> DTO
// =============================================================================

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toCondominiumDTO(c forecast.Condominium) CondominiumDTO {
	return CondominiumDTO{
		ID:          c.ID,
		Name:        c.Name,
		TotalAreaM2: c.TotalAreaM2,
		CreatedAt:   formatTimestamp(c.CreatedAt),
	}
}

func toCostCenterDTO(c forecast.CostCenter) CostCenterDTO {
	return CostCenterDTO{
		ID:            c.ID,
		CondominiumID: c.CondominiumID,
		Name:          c.Name,
		AreaM2:        c.AreaM2,
		Address:       c.Address,
		TaxID:         c.TaxID,
		Active:        c.Active,
		CreatedAt:     formatTimestamp(c.CreatedAt),
	}
}

func toPeriodDTO(p forecast.Period) PeriodDTO {
	return PeriodDTO{
		ID:               p.ID,
		CondominiumID:    p.CondominiumID,
		Month:            p.Month,
		Year:             p.Year,
		Competence:       p.Label(),
		TotalAreaM2:      p.TotalAreaM2,
		SurchargePercent: p.SurchargePercent,
		RatePerArea:      p.RatePerArea,
		Status:           string(p.Status),
		Version:          p.Version,
		CreatedAt:        formatTimestamp(p.CreatedAt),
		UpdatedAt:        formatTimestamp(p.UpdatedAt),
	}
}

func toLineItemDTO(i forecast.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:          i.ID,
		PeriodID:    i.PeriodID,
		Category:    string(i.Category),
		Description: i.Description,
		Amount:      i.Amount,
		Notes:       i.Notes,
		Order:       i.Order,
	}
}

func toLineItemDTOs(items []forecast.LineItem) []LineItemDTO {
	dtos := make([]LineItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toLineItemDTO(item)
	}
	return dtos
}

func toCostCenterItemDTOs(items []forecast.CostCenterItem) []CostCenterItemDTO {
	dtos := make([]CostCenterItemDTO, len(items))
	for i, item := range items {
		dtos[i] = CostCenterItemDTO{
			ID:           item.ID,
			PeriodID:     item.PeriodID,
			CostCenterID: item.CostCenterID,
			Category:     string(item.Category),
			Description:  item.Description,
			Amount:       item.Amount,
			Order:        item.Order,
		}
	}
	return dtos
}

func toSummaryDTO(s forecast.Summary) SummaryDTO {
	return SummaryDTO{Summary: s, Categories: s.Rows()}
}

func toAllocationDTO(a forecast.Allocation) AllocationDTO {
	centers := make([]CenterAllocationDTO, len(a.Centers))
	for i, c := range a.Centers {
		centers[i] = CenterAllocationDTO{
			Center:            toCostCenterDTO(c.Center),
			OwnItems:          toCostCenterItemDTOs(c.OwnItems),
			OwnSubtotal:       c.OwnSubtotal,
			ProportionalShare: c.ProportionalShare,
			CombinedTotal:     c.CombinedTotal,
		}
	}
	warnings := a.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return AllocationDTO{
		Centers:         centers,
		TotalShare:      a.TotalShare,
		AssignedAreaM2:  a.AssignedAreaM2,
		UnassignedShare: a.UnassignedShare,
		Warnings:        warnings,
	}
}

func toPaymentDTO(p reconcile.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID,
		PeriodID:        p.PeriodID,
		CostCenterID:    p.CostCenterID,
		ReferenceKind:   string(p.ReferenceKind),
		ReferenceID:     p.ReferenceID,
		Description:     p.Description,
		Category:        string(p.Category),
		AmountProjected: p.AmountProjected,
		AmountPaid:      p.AmountPaid,
		DueDate:         p.DueDate,
		PaidDate:        p.PaidDate,
		Status:          string(p.Status),
		Method:          p.Method,
		Notes:           p.Notes,
		CreatedAt:       formatTimestamp(p.CreatedAt),
		UpdatedAt:       formatTimestamp(p.UpdatedAt),
	}
}

func toPaymentDTOs(payments []reconcile.PaymentRecord) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toExtraExpenseDTO(e reconcile.ExtraExpense) ExtraExpenseDTO {
	return ExtraExpenseDTO{
		ID:            e.ID,
		PeriodID:      e.PeriodID,
		CostCenterID:  e.CostCenterID,
		Category:      string(e.Category),
		Description:   e.Description,
		Amount:        e.Amount,
		Kind:          e.Kind,
		OccurredOn:    e.OccurredOn,
		Justification: e.Justification,
		Approved:      e.Approved,
		CreatedAt:     formatTimestamp(e.CreatedAt),
	}
}

func toAlertDTOs(alerts []reconcile.Alert) []AlertDTO {
	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = AlertDTO{
			ID:            a.ID,
			PeriodID:      a.PeriodID,
			Kind:          string(a.Kind),
			Severity:      string(a.Severity),
			Category:      string(a.Category),
			Title:         a.Title,
			Description:   a.Description,
			RelatedAmount: a.RelatedAmount,
			Read:          a.Read,
			CreatedAt:     formatTimestamp(a.CreatedAt),
		}
	}
	return dtos
}

// =============================================================================
// CONVERTERS - request -> domain
// =============================================================================

func (req LineItemRequest) toDomain(index int) forecast.LineItem {
	order := index
	if req.Order != nil {
		order = *req.Order
	}
	return forecast.LineItem{
		Category:    forecast.Category(req.Category),
		Description: req.Description,
		Amount:      req.Amount,
		Notes:       req.Notes,
		Order:       order,
	}
}

func (req CostCenterItemRequest) toDomain(index int) forecast.CostCenterItem {
	order := index
	if req.Order != nil {
		order = *req.Order
	}
	return forecast.CostCenterItem{
		Category:    forecast.Category(req.Category),
		Description: req.Description,
		Amount:      req.Amount,
		Order:       order,
	}
}

func (req RecordPaymentRequest) toDomain(periodID string) (reconcile.PaymentRecord, error) {
	category, err := forecast.ParseCategory(req.Category)
	if err != nil {
		return reconcile.PaymentRecord{}, err
	}
	return reconcile.PaymentRecord{
		PeriodID:        periodID,
		CostCenterID:    req.CostCenterID,
		ReferenceKind:   reconcile.ReferenceKind(req.ReferenceKind),
		ReferenceID:     req.ReferenceID,
		Description:     req.Description,
		Category:        category,
		AmountProjected: req.AmountProjected,
		AmountPaid:      req.AmountPaid,
		DueDate:         req.DueDate,
		PaidDate:        req.PaidDate,
		Status:          reconcile.PaymentStatus(req.Status),
		Method:          req.Method,
		Notes:           req.Notes,
	}, nil
}

func (req UpdatePaymentRequest) toDomain() reconcile.PaymentUpdate {
	u := reconcile.PaymentUpdate{
		AmountPaid: req.AmountPaid,
		PaidDate:   req.PaidDate,
		Method:     req.Method,
		Notes:      req.Notes,
	}
	if req.Status != nil {
		status := reconcile.PaymentStatus(*req.Status)
		u.Status = &status
	}
	return u
}

func (req ExtraExpenseRequest) toDomain(periodID string) (reconcile.ExtraExpense, error) {
	category, err := forecast.ParseCategory(req.Category)
	if err != nil {
		return reconcile.ExtraExpense{}, err
	}
	return reconcile.ExtraExpense{
		PeriodID:      periodID,
		CostCenterID:  req.CostCenterID,
		Category:      category,
		Description:   req.Description,
		Amount:        req.Amount,
		Kind:          req.Kind,
		OccurredOn:    req.OccurredOn,
		Justification: req.Justification,
		Approved:      req.Approved,
	}, nil
}
