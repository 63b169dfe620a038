package vesting

import (
	"errors"
	"fmt"
)

// ErrAlreadyVested rejects a plan change on a grant with no unvested shares.
var ErrAlreadyVested = errors.New("grant is already fully vested")

// ErrInvalidGrantInput covers non-positive share counts and zero dates.
type ErrInvalidGrantInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidGrantInput) Error() string {
	return fmt.Sprintf("invalid grant input: %s %s", e.Field, e.Reason)
}

// ErrUnknownPlan reports an unrecognized vesting plan identifier.
type ErrUnknownPlan struct {
	ID string
}

func (e *ErrUnknownPlan) Error() string {
	return fmt.Sprintf("unknown vesting plan %q", e.ID)
}
