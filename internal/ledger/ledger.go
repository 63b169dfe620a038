// Package ledger derives share accounting for a grant from its schedule and
// sale history. Pure read-side functions; nothing here mutates state.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vestfolio/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ErrInsufficientShares rejects a sale larger than the grant's available
// (vested minus sold) shares. The counts are part of the error so the caller
// can surface them as-is.
type ErrInsufficientShares struct {
	Requested int64
	Vested    int64
	Sold      int64
	Available int64
}

func (e *ErrInsufficientShares) Error() string {
	return fmt.Sprintf("insufficient available shares: requested %d but only %d available (%d vested, %d already sold)",
		e.Requested, e.Available, e.Vested, e.Sold)
}

// ErrInvalidSaleInput covers non-positive shares or price on a sale request.
type ErrInvalidSaleInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidSaleInput) Error() string {
	return fmt.Sprintf("invalid sale input: %s %s", e.Field, e.Reason)
}

// VestedShares sums the schedule entries whose vest date is not after asOf.
func VestedShares(schedule []models.ScheduleEntry, asOf time.Time) int64 {
	var vested int64
	for _, e := range schedule {
		if !e.VestDate.After(asOf) {
			vested += e.Shares
		}
	}
	return vested
}

// SoldShares sums the shares across a grant's sales.
func SoldShares(sales []models.Sale) int64 {
	var sold int64
	for _, s := range sales {
		sold += s.Shares
	}
	return sold
}

// MarkVested sets the derived vested flag on each entry in place.
func MarkVested(schedule []models.ScheduleEntry, asOf time.Time) {
	for i := range schedule {
		schedule[i].Vested = !schedule[i].VestDate.After(asOf)
	}
}

// Compute derives the full position for one grant at asOf, valued at
// currentPrice. Available shares floor at zero even on inconsistent data.
func Compute(grant models.Grant, schedule []models.ScheduleEntry, sales []models.Sale, asOf time.Time, currentPrice decimal.Decimal) models.Position {
	vested := VestedShares(schedule, asOf)
	sold := SoldShares(sales)
	available := vested - sold
	if available < 0 {
		available = 0
	}

	progress := decimal.Zero
	if grant.TotalShares > 0 {
		progress = decimal.NewFromInt(vested).Div(decimal.NewFromInt(grant.TotalShares)).Mul(hundred)
	}

	currentValue := decimal.NewFromInt(grant.TotalShares).Mul(currentPrice)
	gainLoss := currentValue.Sub(grant.TotalValue)
	gainLossPct := decimal.Zero
	if !grant.TotalValue.IsZero() {
		gainLossPct = gainLoss.Div(grant.TotalValue).Mul(hundred)
	}

	return models.Position{
		GrantID:            grant.ID,
		TotalShares:        grant.TotalShares,
		VestedShares:       vested,
		UnvestedShares:     grant.TotalShares - vested,
		SoldShares:         sold,
		AvailableShares:    available,
		VestingProgress:    progress,
		CurrentPrice:       currentPrice,
		CurrentValue:       currentValue,
		GainLoss:           gainLoss,
		GainLossPercentage: gainLossPct,
	}
}

// ValidateSale enforces the availability invariant for a prospective sale.
func ValidateSale(requested int64, salePrice decimal.Decimal, schedule []models.ScheduleEntry, sales []models.Sale, asOf time.Time) error {
	if requested <= 0 {
		return &ErrInvalidSaleInput{Field: "shares", Reason: "must be positive"}
	}
	if !salePrice.IsPositive() {
		return &ErrInvalidSaleInput{Field: "price_per_share", Reason: "must be positive"}
	}
	vested := VestedShares(schedule, asOf)
	sold := SoldShares(sales)
	available := vested - sold
	if available < 0 {
		available = 0
	}
	if requested > available {
		return &ErrInsufficientShares{Requested: requested, Vested: vested, Sold: sold, Available: available}
	}
	return nil
}
