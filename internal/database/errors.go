package database

import "errors"

var (
	ErrGrantNotFound = errors.New("grant not found")
	ErrSaleNotFound  = errors.New("sale not found")

	// ErrGrantHasSales blocks edits to shares, grant date or plan once sale
	// records exist, since those edits would invalidate recorded sales.
	ErrGrantHasSales = errors.New("grant has recorded sales; shares, date and plan cannot change")

	// ErrConfirmRequired blocks grant deletion while sales exist unless the
	// caller explicitly confirms losing the sale records.
	ErrConfirmRequired = errors.New("grant has recorded sales; deletion requires confirmation")
)
