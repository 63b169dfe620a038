package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GrantStatus string

const (
	GrantActive      GrantStatus = "ACTIVE"
	GrantFullyVested GrantStatus = "FULLY_VESTED"
	GrantCancelled   GrantStatus = "CANCELLED"
)

// Grant is one RSU award: a fixed number of shares granted at a point in time,
// vesting over a plan-defined schedule.
type Grant struct {
	ID          string          `db:"id" json:"id"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Name        string          `db:"name" json:"name,omitempty"`
	Company     string          `db:"company" json:"company,omitempty"`
	GrantDate   time.Time       `db:"grant_date" json:"grant_date"`
	TotalShares int64           `db:"total_shares" json:"total_shares"`
	TotalValue  decimal.Decimal `db:"total_value" json:"total_value"`
	PlanID      string          `db:"plan_id" json:"plan_id"`
	Status      GrantStatus     `db:"status" json:"status"`
	Notes       string          `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PricePerShare is the grant-date cost basis per share.
func (g Grant) PricePerShare() decimal.Decimal {
	if g.TotalShares == 0 {
		return decimal.Zero
	}
	return g.TotalValue.Div(decimal.NewFromInt(g.TotalShares))
}

// ScheduleEntry is one tranche of a grant's vesting schedule.
// Vested is derived from the as-of time at read, never stored.
type ScheduleEntry struct {
	GrantID     string    `db:"grant_id" json:"-"`
	PeriodIndex int       `db:"period_index" json:"period_index"`
	VestDate    time.Time `db:"vest_date" json:"vest_date"`
	Shares      int64     `db:"shares" json:"shares"`
	CliffEvent  bool      `db:"cliff_event" json:"cliff_event,omitempty"`
	Vested      bool      `db:"-" json:"vested"`
}

// Sale is a disposal of vested shares from one grant. The tax breakdown is
// computed once when the sale is recorded and frozen thereafter.
type Sale struct {
	ID         string          `db:"id" json:"id"`
	GrantID    string          `db:"grant_id" json:"grant_id"`
	SaleDate   time.Time       `db:"sale_date" json:"sale_date"`
	Shares     int64           `db:"shares" json:"shares"`
	SalePrice  decimal.Decimal `db:"sale_price" json:"sale_price"`
	Notes      string          `db:"notes" json:"notes,omitempty"`
	Tax        TaxBreakdown    `db:"-" json:"tax"`
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
}

// TaxBreakdown is the dual-bucket tax result for a sale: wage-income tax on
// the grant-value portion plus capital-gains tax on the profit portion.
type TaxBreakdown struct {
	OriginalValue    decimal.Decimal `db:"original_value" json:"original_value"`
	SaleValue        decimal.Decimal `db:"sale_value" json:"sale_value"`
	Profit           decimal.Decimal `db:"profit" json:"profit"`
	WageIncomeTax    decimal.Decimal `db:"wage_income_tax" json:"wage_income_tax"`
	CapitalGainsTax  decimal.Decimal `db:"capital_gains_tax" json:"capital_gains_tax"`
	TotalTax         decimal.Decimal `db:"total_tax" json:"total_tax"`
	NetValue         decimal.Decimal `db:"net_value" json:"net_value"`
	EffectiveTaxRate decimal.Decimal `db:"effective_tax_rate" json:"effective_tax_rate"`
	IsLongTerm       bool            `db:"is_long_term" json:"is_long_term"`
}

// Position is the derived share accounting for one grant at a point in time.
type Position struct {
	GrantID            string          `json:"grant_id"`
	TotalShares        int64           `json:"total_shares"`
	VestedShares       int64           `json:"vested_shares"`
	UnvestedShares     int64           `json:"unvested_shares"`
	SoldShares         int64           `json:"sold_shares"`
	AvailableShares    int64           `json:"available_shares"`
	VestingProgress    decimal.Decimal `json:"vesting_progress"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	CurrentValue       decimal.Decimal `json:"current_value"`
	GainLoss           decimal.Decimal `json:"gain_loss"`
	GainLossPercentage decimal.Decimal `json:"gain_loss_percentage"`
}

// VestingPlanInfo describes one registered vesting plan.
type VestingPlanInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Periods int    `json:"periods"`
}

// PlanChangePreview summarizes the impact of switching a grant's vesting plan
// before the change is committed.
type PlanChangePreview struct {
	OldPlanID        string `json:"old_plan_id"`
	OldPlanName      string `json:"old_plan_name"`
	NewPlanID        string `json:"new_plan_id"`
	NewPlanName      string `json:"new_plan_name"`
	VestedUnchanged  int64  `json:"vested_shares_unchanged"`
	UnvestedMoved    int64  `json:"unvested_shares_redistributed"`
	OldPeriodCount   int    `json:"old_period_count"`
	NewPeriodCount   int    `json:"new_period_count"`
	FirstNewVestDate string `json:"first_new_vest_date,omitempty"`
}
