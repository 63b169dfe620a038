package tax

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseInput(saleDate time.Time) Input {
	return Input{
		GrantDate:          time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		SaleDate:           saleDate,
		Shares:             100,
		SalePrice:          d("25"),
		GrantPricePerShare: d("10"),
	}
}

func TestCalculate_LongTerm(t *testing.T) {
	c := NewCalculator(DefaultRates())
	// 882 days after grant, past the 730-day threshold.
	out := c.Calculate(baseInput(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))

	assert.True(t, out.IsLongTerm)
	assert.True(t, out.OriginalValue.Equal(d("1000")), "original %s", out.OriginalValue)
	assert.True(t, out.SaleValue.Equal(d("2500")), "sale %s", out.SaleValue)
	assert.True(t, out.Profit.Equal(d("1500")), "profit %s", out.Profit)
	assert.True(t, out.WageIncomeTax.Equal(d("650")), "wage %s", out.WageIncomeTax)
	assert.True(t, out.CapitalGainsTax.Equal(d("375")), "capgains %s", out.CapitalGainsTax)
	assert.True(t, out.TotalTax.Equal(d("1025")), "total %s", out.TotalTax)
	assert.True(t, out.NetValue.Equal(d("1475")), "net %s", out.NetValue)
	assert.True(t, out.EffectiveTaxRate.Equal(d("0.41")), "rate %s", out.EffectiveTaxRate)
}

func TestCalculate_ShortTerm(t *testing.T) {
	c := NewCalculator(DefaultRates())
	out := c.Calculate(baseInput(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)))

	assert.False(t, out.IsLongTerm)
	assert.True(t, out.CapitalGainsTax.Equal(d("975")), "capgains %s", out.CapitalGainsTax)
	assert.True(t, out.TotalTax.Equal(d("1625")), "total %s", out.TotalTax)
	assert.True(t, out.NetValue.Equal(d("875")), "net %s", out.NetValue)
}

func TestCalculate_HoldingPeriodBoundary(t *testing.T) {
	c := NewCalculator(DefaultRates())
	grant := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.IsLongTerm(grant, grant.AddDate(0, 0, 730)))
	assert.False(t, c.IsLongTerm(grant, grant.AddDate(0, 0, 729)))
}

func TestCalculate_LossClampsCapitalGains(t *testing.T) {
	c := NewCalculator(DefaultRates())
	in := baseInput(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	in.SalePrice = d("4") // below the 10/share basis

	out := c.Calculate(in)
	assert.True(t, out.Profit.Equal(d("-600")), "profit %s", out.Profit)
	// The loss never becomes a negative tax term.
	assert.True(t, out.CapitalGainsTax.IsZero(), "capgains %s", out.CapitalGainsTax)
	assert.True(t, out.TotalTax.Equal(d("650")), "total %s", out.TotalTax)
	assert.True(t, out.NetValue.Equal(d("-250")), "net %s", out.NetValue)
}

func TestCalculate_ZeroSaleValueGuard(t *testing.T) {
	c := NewCalculator(DefaultRates())
	in := baseInput(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	in.SalePrice = decimal.Zero

	out := c.Calculate(in)
	assert.True(t, out.EffectiveTaxRate.IsZero())
}

func TestCalculate_InjectedRates(t *testing.T) {
	rates := Rates{
		WageIncome:      d("0.5"),
		CapGainsLong:    d("0.1"),
		CapGainsShort:   d("0.3"),
		LongTermMinDays: 365,
	}
	c := NewCalculator(rates)
	out := c.Calculate(baseInput(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)))

	require.True(t, out.IsLongTerm) // 516 days past a 1-year threshold
	assert.True(t, out.WageIncomeTax.Equal(d("500")), "wage %s", out.WageIncomeTax)
	assert.True(t, out.CapitalGainsTax.Equal(d("150")), "capgains %s", out.CapitalGainsTax)
}
