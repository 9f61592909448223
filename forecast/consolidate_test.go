package forecast_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-engine/forecast"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func item(c forecast.Category, desc, amount string) forecast.LineItem {
	return forecast.LineItem{Category: c, Description: desc, Amount: dec(amount)}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

func TestConsolidate_TwoCategoriesWithSurcharge(t *testing.T) {
	// GIVEN: 1000 m², 10% surcharge, personnel 4000 and contracts 1000
	items := []forecast.LineItem{
		item(forecast.CategoryPersonnel, "Folha", "4000"),
		item(forecast.CategoryContracts, "Elevadores", "1000"),
	}

	// WHEN: Consolidating
	s, err := forecast.Consolidate(items, dec("1000"), dec("10"))

	// THEN: 5000 before, 500 surcharge, 5500 after, 5.5 per m²
	require.NoError(t, err)
	assertDec(t, "4000", s.TotalsByCategory[forecast.CategoryPersonnel])
	assertDec(t, "1000", s.TotalsByCategory[forecast.CategoryContracts])
	assertDec(t, "5000", s.GrandTotalBeforeSurcharge)
	assertDec(t, "500", s.SurchargeAmount)
	assertDec(t, "5500", s.GrandTotalWithSurcharge)
	assertDec(t, "5.5", s.RatePerArea)
}

func TestConsolidate_EmptyItemsGiveZeroSummary(t *testing.T) {
	s, err := forecast.Consolidate(nil, dec("250"), dec("10"))

	require.NoError(t, err)
	assert.Len(t, s.TotalsByCategory, len(forecast.ForecastCategories))
	for _, c := range forecast.ForecastCategories {
		assertDec(t, "0", s.TotalsByCategory[c], c)
	}
	assertDec(t, "0", s.GrandTotalWithSurcharge)
	assertDec(t, "0", s.RatePerArea)
}

func TestConsolidate_SameCategorySums(t *testing.T) {
	items := []forecast.LineItem{
		item(forecast.CategoryUtilities, "Água", "1200.40"),
		item(forecast.CategoryUtilities, "Luz", "800.35"),
		item(forecast.CategoryAnnual, "Seguro", "100"),
	}

	s, err := forecast.Consolidate(items, dec("100"), dec("0"))

	require.NoError(t, err)
	assertDec(t, "2000.75", s.TotalsByCategory[forecast.CategoryUtilities])
	assertDec(t, "2100.75", s.GrandTotalBeforeSurcharge)
	assertDec(t, "0", s.SurchargeAmount)
	assertDec(t, "21.0075", s.RatePerArea)
}

func TestConsolidate_SurchargeRoundedToCents(t *testing.T) {
	// 333.33 * 7.5% = 24.99975 -> 25.00
	s, err := forecast.Consolidate([]forecast.LineItem{item(forecast.CategoryVariable, "Limpeza", "333.33")}, dec("10"), dec("7.5"))

	require.NoError(t, err)
	assertDec(t, "25", s.SurchargeAmount)
	assertDec(t, "358.33", s.GrandTotalWithSurcharge)
}

func TestConsolidate_InvalidParameters(t *testing.T) {
	tests := []struct {
		name      string
		area      string
		surcharge string
		items     []forecast.LineItem
	}{
		{"zero area", "0", "10", nil},
		{"negative area", "-5", "10", nil},
		{"negative surcharge", "100", "-1", nil},
		{"cost center category", "100", "10", []forecast.LineItem{item(forecast.CenterPersonnel, "x", "1")}},
		{"unknown category", "100", "10", []forecast.LineItem{item("Outros", "x", "1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := forecast.Consolidate(tt.items, dec(tt.area), dec(tt.surcharge))
			require.Error(t, err)
			assert.True(t, errors.Is(err, generic.ErrInvalidParameter), "got %v", err)
		})
	}
}

func TestConsolidate_RatePerAreaTimesAreaIsGrandTotal(t *testing.T) {
	// Property: ratePerArea * totalArea == grandTotalWithSurcharge (1e-6)
	cases := []struct{ area, surcharge string }{
		{"1000", "10"}, {"733.7", "12.5"}, {"3", "0"}, {"12345.678", "3.3"},
	}
	items := []forecast.LineItem{
		item(forecast.CategoryPersonnel, "Folha", "10321.17"),
		item(forecast.CategoryContracts, "Portaria", "4420.03"),
		item(forecast.CategoryVariable, "Reparos", "311"),
	}
	for _, c := range cases {
		s, err := forecast.Consolidate(items, dec(c.area), dec(c.surcharge))
		require.NoError(t, err)
		product := s.RatePerArea.Mul(dec(c.area))
		assert.True(t, generic.ApproxEqual(product, s.GrandTotalWithSurcharge, dec("0.000001")),
			"area %s: %s vs %s", c.area, product, s.GrandTotalWithSurcharge)
	}
}

func TestSummary_RowsInFixedOrderAndSnapshotRoundTrip(t *testing.T) {
	s, err := forecast.Consolidate([]forecast.LineItem{item(forecast.CategoryAnnual, "IPTU", "90")}, dec("30"), dec("10"))
	require.NoError(t, err)

	rows := s.Rows()
	require.Len(t, rows, 5)
	for i, c := range forecast.ForecastCategories {
		assert.Equal(t, c, rows[i].Category)
	}

	data, err := s.MarshalSnapshot()
	require.NoError(t, err)
	back, err := forecast.UnmarshalSnapshot(data)
	require.NoError(t, err)
	assertDec(t, "99", back.GrandTotalWithSurcharge)
	assertDec(t, "3.3", back.RatePerArea)
	assertDec(t, "90", back.TotalsByCategory[forecast.CategoryAnnual])
}

func TestParseCategory(t *testing.T) {
	c, err := forecast.ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, forecast.CategoryUnclassified, c)

	c, err = forecast.ParseCategory("Contratos")
	require.NoError(t, err)
	assert.True(t, c.IsCostCenter())
	assert.False(t, c.IsForecast())

	_, err = forecast.ParseCategory("Diversos")
	assert.True(t, errors.Is(err, generic.ErrInvalidParameter))
}
