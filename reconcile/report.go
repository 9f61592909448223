package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// EXECUTION REPORTS
// =============================================================================

// ExecutionSummary is the money position of one period.
type ExecutionSummary struct {
	TotalProjected decimal.Decimal `json:"total_projected"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalPending   decimal.Decimal `json:"total_pending"`
	TotalExtras    decimal.Decimal `json:"total_extras"`

	// Difference = paid + extras - projected.
	Difference decimal.Decimal `json:"difference"`

	// PercentExecuted = paid / projected * 100, 0 when nothing was projected.
	PercentExecuted decimal.Decimal `json:"percent_executed"`
}

// Summarize computes the execution summary of one period. Pending totals use
// AmountProjected of payments still pending.
func Summarize(projected []forecast.LineItem, payments []PaymentRecord, extras []ExtraExpense) ExecutionSummary {
	s := ExecutionSummary{
		TotalProjected: decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalPending:   decimal.Zero,
		TotalExtras:    decimal.Zero,
	}
	for _, item := range projected {
		s.TotalProjected = s.TotalProjected.Add(item.Amount)
	}
	for _, p := range payments {
		if amount, ok := p.executed(); ok {
			s.TotalPaid = s.TotalPaid.Add(amount)
		}
		if p.Status == PaymentPending {
			s.TotalPending = s.TotalPending.Add(p.AmountProjected)
		}
	}
	for _, e := range extras {
		s.TotalExtras = s.TotalExtras.Add(e.Amount)
	}

	s.Difference = s.TotalPaid.Add(s.TotalExtras).Sub(s.TotalProjected)
	s.PercentExecuted = decimal.Zero
	if !s.TotalProjected.IsZero() {
		s.PercentExecuted = s.TotalPaid.Div(s.TotalProjected).Mul(decimal.NewFromInt(100))
	}
	return s
}

// PeriodData is what the multi-period reports need from one period.
type PeriodData struct {
	Period          forecast.Period
	Items           []forecast.LineItem
	CostCenterItems []forecast.CostCenterItem
	Payments        []PaymentRecord
}

// ComparativeRow is one period of a comparative report.
type ComparativeRow struct {
	PeriodID        string          `json:"period_id"`
	Competence      string          `json:"competence"`
	Projected       decimal.Decimal `json:"projected"`
	Executed        decimal.Decimal `json:"executed"`
	Difference      decimal.Decimal `json:"difference"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

type Comparative struct {
	Rows            []ComparativeRow `json:"rows"`
	TotalProjected  decimal.Decimal  `json:"total_projected"`
	TotalExecuted   decimal.Decimal  `json:"total_executed"`
	TotalDifference decimal.Decimal  `json:"total_difference"`
}

// BuildComparative compares projected with paid amounts across periods, in
// the order given. Extras are not counted as executed here.
func BuildComparative(periods []PeriodData) Comparative {
	out := Comparative{
		Rows:            make([]ComparativeRow, 0, len(periods)),
		TotalProjected:  decimal.Zero,
		TotalExecuted:   decimal.Zero,
		TotalDifference: decimal.Zero,
	}
	for _, pd := range periods {
		projected := decimal.Zero
		for _, item := range pd.Items {
			projected = projected.Add(item.Amount)
		}
		executed := paidTotal(pd.Payments)
		diff := executed.Sub(projected)

		out.Rows = append(out.Rows, ComparativeRow{
			PeriodID:        pd.Period.ID,
			Competence:      pd.Period.Label(),
			Projected:       projected,
			Executed:        executed,
			Difference:      diff,
			VariancePercent: generic.PercentVariance(executed, projected),
		})
		out.TotalProjected = out.TotalProjected.Add(projected)
		out.TotalExecuted = out.TotalExecuted.Add(executed)
		out.TotalDifference = out.TotalDifference.Add(diff)
	}
	return out
}

// HistoryRow is one period of a cost center's history.
type HistoryRow struct {
	PeriodID   string          `json:"period_id"`
	Competence string          `json:"competence"`
	Projected  decimal.Decimal `json:"projected"`
	Paid       decimal.Decimal `json:"paid"`
	Difference decimal.Decimal `json:"difference"`
}

type CostCenterHistory struct {
	Center         forecast.CostCenter `json:"-"`
	Rows           []HistoryRow        `json:"rows"`
	TotalProjected decimal.Decimal     `json:"total_projected"`
	TotalPaid      decimal.Decimal     `json:"total_paid"`
	MonthlyAverage decimal.Decimal     `json:"monthly_average"`
}

// BuildCostCenterHistory summarizes one cost center over the given periods.
// Projected is the center's own items; Paid is its paid payments.
// periods must already be filtered to that center.
func BuildCostCenterHistory(center forecast.CostCenter, periods []PeriodData) CostCenterHistory {
	out := CostCenterHistory{
		Center:         center,
		Rows:           make([]HistoryRow, 0, len(periods)),
		TotalProjected: decimal.Zero,
		TotalPaid:      decimal.Zero,
		MonthlyAverage: decimal.Zero,
	}
	for _, pd := range periods {
		projected := decimal.Zero
		for _, item := range pd.CostCenterItems {
			projected = projected.Add(item.Amount)
		}
		paid := paidTotal(pd.Payments)

		out.Rows = append(out.Rows, HistoryRow{
			PeriodID:   pd.Period.ID,
			Competence: pd.Period.Label(),
			Projected:  projected,
			Paid:       paid,
			Difference: paid.Sub(projected),
		})
		out.TotalProjected = out.TotalProjected.Add(projected)
		out.TotalPaid = out.TotalPaid.Add(paid)
	}
	if n := len(out.Rows); n > 0 {
		out.MonthlyAverage = out.TotalPaid.Div(decimal.NewFromInt(int64(n)))
	}
	return out
}

func paidTotal(payments []PaymentRecord) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if amount, ok := p.executed(); ok {
			total = total.Add(amount)
		}
	}
	return total
}

// =============================================================================
// DASHBOARD ANALYTICS
// =============================================================================
//
// Forecast-side trends over a window of periods: rate per m², monthly totals
// with surcharge, per-category statistics and two insights:
//
//	fast_growth   last rate more than 10% above the previous one (high)
//	open_periods  less than half of the periods closed (low)

// AnalyticsRange is the look-back window of the dashboard.
type AnalyticsRange string

const (
	Range3Months    AnalyticsRange = "3m"
	Range6Months    AnalyticsRange = "6m"
	Range12Months   AnalyticsRange = "12m"
	RangeYearToDate AnalyticsRange = "ytd"
)

// ParseAnalyticsRange validates a range; empty means 6 months.
func ParseAnalyticsRange(s string) (AnalyticsRange, error) {
	switch r := AnalyticsRange(s); r {
	case "":
		return Range6Months, nil
	case Range3Months, Range6Months, Range12Months, RangeYearToDate:
		return r, nil
	}
	return "", generic.Invalid("range", s, "must be one of: 3m 6m 12m ytd")
}

// Start is the first competence of the window ending at end.
func (r AnalyticsRange) Start(end generic.Competence) generic.Competence {
	switch r {
	case Range3Months:
		return end.AddMonths(-3)
	case Range12Months:
		return end.AddMonths(-12)
	case RangeYearToDate:
		return generic.Competence{Month: 1, Year: end.Year}
	default:
		return end.AddMonths(-6)
	}
}

var (
	fastGrowthPercent  = decimal.NewFromInt(10)
	openPeriodsPercent = decimal.NewFromInt(50)
)

// MonthlyTotal is one period of the analytics window.
type MonthlyTotal struct {
	PeriodID           string                `json:"period_id"`
	Competence         string                `json:"competence"`
	TotalWithSurcharge decimal.Decimal       `json:"total_with_surcharge"`
	RatePerArea        decimal.Decimal       `json:"rate_per_area"`
	Status             forecast.PeriodStatus `json:"status"`
}

// CategoryStats aggregates one category over every item in the window.
type CategoryStats struct {
	Category forecast.Category `json:"category"`
	Total    decimal.Decimal   `json:"total"`
	Count    int               `json:"count"`
	Average  decimal.Decimal   `json:"average"`
}

type InsightKind string

const (
	InsightWarning InsightKind = "warning"
	InsightTip     InsightKind = "tip"
)

type Insight struct {
	ID          string           `json:"id"`
	Kind        InsightKind      `json:"kind"`
	Priority    Severity         `json:"priority"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Value       *decimal.Decimal `json:"value,omitempty"`
}

type Analytics struct {
	Range AnalyticsRange `json:"range"`
	From  string         `json:"from"`
	To    string         `json:"to"`

	TotalPeriods  int             `json:"total_periods"`
	ClosedPeriods int             `json:"closed_periods"`
	AverageRate   decimal.Decimal `json:"average_rate"`
	// RateVariation is the last rate against the one before it, in percent.
	RateVariation decimal.Decimal `json:"rate_variation"`

	Monthly    []MonthlyTotal  `json:"monthly"`
	Categories []CategoryStats `json:"categories"`
	Insights   []Insight       `json:"insights"`
}

// BuildAnalytics summarizes periods given oldest first. Periods without a
// stored rate (never saved, or zero) are left out of the rate figures.
func BuildAnalytics(periods []PeriodData) Analytics {
	out := Analytics{
		AverageRate:   decimal.Zero,
		RateVariation: decimal.Zero,
		Monthly:       make([]MonthlyTotal, 0, len(periods)),
		Categories:    []CategoryStats{},
		Insights:      []Insight{},
	}

	var rates []decimal.Decimal
	stats := map[forecast.Category]*CategoryStats{}
	var order []forecast.Category

	for _, pd := range periods {
		p := pd.Period
		out.TotalPeriods++
		if p.IsClosed() {
			out.ClosedPeriods++
		}

		rate := decimal.Zero
		if p.RatePerArea != nil && !p.RatePerArea.IsZero() {
			rate = *p.RatePerArea
			rates = append(rates, rate)
		}

		total := decimal.Zero
		for _, item := range pd.Items {
			total = total.Add(item.Amount)

			st, ok := stats[item.Category]
			if !ok {
				st = &CategoryStats{Category: item.Category, Total: decimal.Zero}
				stats[item.Category] = st
				order = append(order, item.Category)
			}
			st.Total = st.Total.Add(item.Amount)
			st.Count++
		}

		out.Monthly = append(out.Monthly, MonthlyTotal{
			PeriodID:           p.ID,
			Competence:         p.Label(),
			TotalWithSurcharge: total.Add(generic.ApplyPercent(total, p.SurchargePercent)),
			RatePerArea:        rate,
			Status:             p.Status,
		})
	}

	if n := len(rates); n > 0 {
		out.AverageRate = generic.Sum(rates...).Div(decimal.NewFromInt(int64(n)))
		if n > 1 {
			out.RateVariation = generic.PercentVariance(rates[n-1], rates[n-2])
		}
	}

	for _, c := range order {
		st := stats[c]
		st.Average = st.Total.Div(decimal.NewFromInt(int64(st.Count)))
		out.Categories = append(out.Categories, *st)
	}

	out.Insights = analyticsInsights(out)
	return out
}

func analyticsInsights(a Analytics) []Insight {
	insights := []Insight{}
	printer := message.NewPrinter(language.BrazilianPortuguese)

	if a.RateVariation.GreaterThan(fastGrowthPercent) {
		v := a.RateVariation
		insights = append(insights, Insight{
			ID:          "fast_growth",
			Kind:        InsightWarning,
			Priority:    SeverityHigh,
			Title:       "Crescimento Acelerado",
			Description: printer.Sprintf("As despesas aumentaram %.1f%% no último período.", v.InexactFloat64()),
			Value:       &v,
		})
	}

	if a.TotalPeriods > 0 {
		closedPercent := decimal.NewFromInt(int64(a.ClosedPeriods)).
			Div(decimal.NewFromInt(int64(a.TotalPeriods))).
			Mul(decimal.NewFromInt(100))
		if closedPercent.LessThan(openPeriodsPercent) {
			insights = append(insights, Insight{
				ID:          "open_periods",
				Kind:        InsightTip,
				Priority:    SeverityLow,
				Title:       "Competências em Aberto",
				Description: printer.Sprintf("%d competências ainda em rascunho.", a.TotalPeriods-a.ClosedPeriods),
			})
		}
	}
	return insights
}

// =============================================================================
// TWO-PERIOD COMPARISON
// =============================================================================

// Trend classifies the total variation of a comparison at ±5%.
type Trend string

const (
	TrendHigh   Trend = "high"
	TrendLow    Trend = "low"
	TrendStable Trend = "stable"
)

var trendPercent = decimal.NewFromInt(5)

type PeriodTotal struct {
	PeriodID   string          `json:"period_id"`
	Competence string          `json:"competence"`
	Total      decimal.Decimal `json:"total"`
}

// CategoryDelta compares one category; Second is the baseline.
type CategoryDelta struct {
	Category        forecast.Category `json:"category"`
	First           decimal.Decimal   `json:"first"`
	Second          decimal.Decimal   `json:"second"`
	Difference      decimal.Decimal   `json:"difference"`
	VariancePercent decimal.Decimal   `json:"variance_percent"`
}

type PeriodComparison struct {
	First           PeriodTotal     `json:"first"`
	Second          PeriodTotal     `json:"second"`
	Difference      decimal.Decimal `json:"difference"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
	Trend           Trend           `json:"trend"`

	// LargestVariance is Categories[0]; nil when neither period has items.
	LargestVariance *CategoryDelta  `json:"largest_variance"`
	Categories      []CategoryDelta `json:"categories"`
}

// ComparePeriods compares the forecast items of first against second.
// Variances are relative to second and zero when second is zero.
// Categories are sorted by absolute variance, largest first; ties keep
// first-seen order (first's items, then second's).
func ComparePeriods(first, second PeriodData) PeriodComparison {
	var order []forecast.Category
	seen := map[forecast.Category]bool{}
	totals := func(items []forecast.LineItem) (decimal.Decimal, map[forecast.Category]decimal.Decimal) {
		total := decimal.Zero
		by := map[forecast.Category]decimal.Decimal{}
		for _, item := range items {
			if !seen[item.Category] {
				seen[item.Category] = true
				order = append(order, item.Category)
			}
			sum, ok := by[item.Category]
			if !ok {
				sum = decimal.Zero
			}
			by[item.Category] = sum.Add(item.Amount)
			total = total.Add(item.Amount)
		}
		return total, by
	}
	firstTotal, firstBy := totals(first.Items)
	secondTotal, secondBy := totals(second.Items)

	out := PeriodComparison{
		First:           PeriodTotal{PeriodID: first.Period.ID, Competence: first.Period.Label(), Total: firstTotal},
		Second:          PeriodTotal{PeriodID: second.Period.ID, Competence: second.Period.Label(), Total: secondTotal},
		Difference:      firstTotal.Sub(secondTotal),
		VariancePercent: generic.PercentVariance(firstTotal, secondTotal),
		Categories:      make([]CategoryDelta, 0, len(order)),
	}

	switch {
	case out.VariancePercent.GreaterThan(trendPercent):
		out.Trend = TrendHigh
	case out.VariancePercent.LessThan(trendPercent.Neg()):
		out.Trend = TrendLow
	default:
		out.Trend = TrendStable
	}

	for _, c := range order {
		a, ok := firstBy[c]
		if !ok {
			a = decimal.Zero
		}
		b, ok := secondBy[c]
		if !ok {
			b = decimal.Zero
		}
		out.Categories = append(out.Categories, CategoryDelta{
			Category:        c,
			First:           a,
			Second:          b,
			Difference:      a.Sub(b),
			VariancePercent: generic.PercentVariance(a, b),
		})
	}
	sort.SliceStable(out.Categories, func(i, j int) bool {
		return out.Categories[i].VariancePercent.Abs().GreaterThan(out.Categories[j].VariancePercent.Abs())
	})
	if len(out.Categories) > 0 {
		largest := out.Categories[0]
		out.LargestVariance = &largest
	}
	return out
}
