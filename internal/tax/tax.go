// Package tax computes the dual-bucket RSU sale tax: the grant-date value of
// the sold shares is taxed as wage income, the gain above it as capital
// gains at a rate keyed to the holding period.
package tax

import (
	"time"

	"github.com/shopspring/decimal"

	"vestfolio/internal/models"
)

// Rates is the injected tax-rate table. Calculations never read global
// configuration, so recorded sales stay frozen when rates change.
type Rates struct {
	WageIncome    decimal.Decimal
	CapGainsLong  decimal.Decimal
	CapGainsShort decimal.Decimal
	// LongTermMinDays is the holding period at which a sale becomes
	// long-term, counted from grant date to sale date.
	LongTermMinDays int
}

// DefaultRates is the Israeli RSU treatment: 65% marginal wage income,
// 25% long-term capital gains, 65% short-term, 2-year threshold.
func DefaultRates() Rates {
	return Rates{
		WageIncome:      decimal.NewFromFloat(0.65),
		CapGainsLong:    decimal.NewFromFloat(0.25),
		CapGainsShort:   decimal.NewFromFloat(0.65),
		LongTermMinDays: 730,
	}
}

// Input describes one prospective or recorded sale.
type Input struct {
	GrantDate          time.Time
	SaleDate           time.Time
	Shares             int64
	SalePrice          decimal.Decimal
	GrantPricePerShare decimal.Decimal
}

// Calculator applies a fixed rate table to sales.
type Calculator struct {
	rates Rates
}

func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

func (c *Calculator) Rates() Rates { return c.rates }

// IsLongTerm reports whether the holding period from grant to sale meets the
// long-term threshold.
func (c *Calculator) IsLongTerm(grantDate, saleDate time.Time) bool {
	days := int(saleDate.Sub(grantDate).Hours() / 24)
	return days >= c.rates.LongTermMinDays
}

// Calculate produces the full tax breakdown for a sale. Pure: same input,
// same output, regardless of when it runs.
func (c *Calculator) Calculate(in Input) models.TaxBreakdown {
	shares := decimal.NewFromInt(in.Shares)
	originalValue := shares.Mul(in.GrantPricePerShare)
	saleValue := shares.Mul(in.SalePrice)
	profit := saleValue.Sub(originalValue)

	longTerm := c.IsLongTerm(in.GrantDate, in.SaleDate)
	capGainsRate := c.rates.CapGainsShort
	if longTerm {
		capGainsRate = c.rates.CapGainsLong
	}

	wageTax := originalValue.Mul(c.rates.WageIncome)
	// A loss produces no capital-gains tax; it is not carried as a credit.
	capGainsTax := decimal.Zero
	if profit.IsPositive() {
		capGainsTax = profit.Mul(capGainsRate)
	}

	totalTax := wageTax.Add(capGainsTax)
	effectiveRate := decimal.Zero
	if !saleValue.IsZero() {
		effectiveRate = totalTax.Div(saleValue)
	}

	return models.TaxBreakdown{
		OriginalValue:    originalValue,
		SaleValue:        saleValue,
		Profit:           profit,
		WageIncomeTax:    wageTax,
		CapitalGainsTax:  capGainsTax,
		TotalTax:         totalTax,
		NetValue:         saleValue.Sub(totalTax),
		EffectiveTaxRate: effectiveRate,
		IsLongTerm:       longTerm,
	}
}
