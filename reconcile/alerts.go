package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// ALERT GENERATOR
// =============================================================================
//
// Rules, each independent:
//
//	high_variance       one per report category with |variance| > 10
//	                    (high above 20, medium otherwise)
//	overdue_payment     one when pending payments have DueDate < today
//	                    (critical above 5 payments, high otherwise)
//	unapproved_expense  one when extras await approval (medium)
//
// Output order: variance alerts in report order, overdue, unapproved.

var (
	highVarianceThreshold = decimal.NewFromInt(20)
	criticalOverdueCount  = 5
)

// GenerateAlerts derives the alerts of a period. today is injected so the
// overdue rule does not depend on the wall clock.
func GenerateAlerts(periodID string, report Report, payments []PaymentRecord, extras []ExtraExpense, today generic.Date) []Alert {
	var alerts []Alert
	// pt-BR number rendering (1.234,56)
	printer := message.NewPrinter(language.BrazilianPortuguese)

	for _, row := range report.Categories {
		if !row.VariancePercent.Abs().GreaterThan(VarianceThreshold) {
			continue
		}
		severity := SeverityMedium
		if row.VariancePercent.Abs().GreaterThan(highVarianceThreshold) {
			severity = SeverityHigh
		}
		alerts = append(alerts, newAlert(periodID, AlertHighVariance, severity, row.Category,
			printer.Sprintf("Variação significativa em %s", row.Category),
			printer.Sprintf("A categoria %s teve uma variação de %.1f%% em relação ao previsto.",
				row.Category, row.VariancePercent.InexactFloat64()),
			row.Difference))
	}

	overdueCount, overdueTotal := 0, decimal.Zero
	for _, p := range payments {
		if IsOverdue(p, today) {
			overdueCount++
			overdueTotal = overdueTotal.Add(p.AmountProjected)
		}
	}
	if overdueCount > 0 {
		severity := SeverityHigh
		if overdueCount > criticalOverdueCount {
			severity = SeverityCritical
		}
		alerts = append(alerts, newAlert(periodID, AlertOverduePayment, severity, "",
			printer.Sprintf("%d pagamento(s) atrasado(s)", overdueCount),
			printer.Sprintf("Existem %d pagamentos pendentes com vencimento ultrapassado, somando R$ %.2f.",
				overdueCount, overdueTotal.InexactFloat64()),
			overdueTotal))
	}

	pendingCount, pendingTotal := 0, decimal.Zero
	for _, e := range extras {
		if !e.Approved {
			pendingCount++
			pendingTotal = pendingTotal.Add(e.Amount)
		}
	}
	if pendingCount > 0 {
		alerts = append(alerts, newAlert(periodID, AlertUnapprovedExpense, SeverityMedium, "",
			printer.Sprintf("%d despesa(s) extra(s) aguardando aprovação", pendingCount),
			printer.Sprintf("Existem despesas extraordinárias no valor total de R$ %.2f aguardando aprovação.",
				pendingTotal.InexactFloat64()),
			pendingTotal))
	}

	return alerts
}

// IsOverdue reports whether a pending payment's due date is strictly before
// today. Payments without a due date are never overdue.
func IsOverdue(p PaymentRecord, today generic.Date) bool {
	return p.Status == PaymentPending && !p.DueDate.IsZero() && p.DueDate.Before(today)
}

func newAlert(periodID string, kind AlertKind, severity Severity, category forecast.Category, title, description string, amount decimal.Decimal) Alert {
	return Alert{
		PeriodID:      periodID,
		Kind:          kind,
		Severity:      severity,
		Category:      category,
		Title:         title,
		Description:   description,
		RelatedAmount: amount,
		DedupKey:      DedupKey(periodID, kind, category, amount),
	}
}

// DedupKey identifies an alert across generation runs: same period, kind,
// category and amount (to the cent) is the same alert.
func DedupKey(periodID string, kind AlertKind, category forecast.Category, amount decimal.Decimal) string {
	return strings.Join([]string{
		periodID,
		string(kind),
		string(category),
		generic.RoundMoney(amount).StringFixed(generic.MoneyPlaces),
	}, "|")
}
