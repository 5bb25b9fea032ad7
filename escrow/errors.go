package escrow

import (
	"errors"
	"fmt"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

var (
	// ErrAlreadyOnHold is returned when a hold is requested while a
	// previous hold is still unresolved.
	ErrAlreadyOnHold = errors.New("escrow: account already on hold")

	// ErrMilestoneIndex is returned for a milestone index outside the
	// plan agreed at funding time.
	ErrMilestoneIndex = errors.New("escrow: milestone index out of range")

	// ErrNoOpenDispute is returned when a resolution is applied to a
	// case with no dispute in flight.
	ErrNoOpenDispute = errors.New("escrow: no open dispute")
)

// ValidationError reports malformed input rejected before any state is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("escrow: invalid %s: %s", e.Field, e.Reason)
}

// MilestoneStateError reports an operation that the milestone's current
// state does not permit.
type MilestoneStateError struct {
	Index int
	Op    string
	State MilestoneState
}

func (e *MilestoneStateError) Error() string {
	return fmt.Sprintf("escrow: milestone %d: cannot %s from state %q", e.Index, e.Op, e.State)
}

// AccountStateError reports a fund movement that the account's current
// state does not permit, including releases attempted during a hold.
type AccountStateError struct {
	Op    string
	State AccountState
}

func (e *AccountStateError) Error() string {
	return fmt.Sprintf("escrow: account: cannot %s from state %q", e.Op, e.State)
}

// CaseStateError reports a case operation outside the case lifecycle,
// such as acting on a completed or cancelled case.
type CaseStateError struct {
	Op    string
	State CaseState
}

func (e *CaseStateError) Error() string {
	return fmt.Sprintf("escrow: case: cannot %s from state %q", e.Op, e.State)
}

// ExceedsAvailableError reports a movement larger than the remaining
// uncommitted balance.
type ExceedsAvailableError struct {
	Requested ledger.Money
	Available ledger.Money
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("escrow: requested %s exceeds available %s", e.Requested, e.Available)
}

// MilestoneSumMismatchError reports a milestone plan whose amounts do
// not add up to the funded total.
type MilestoneSumMismatchError struct {
	Funded ledger.Money
	Sum    ledger.Money
}

func (e *MilestoneSumMismatchError) Error() string {
	return fmt.Sprintf("escrow: milestone amounts sum to %s, funded %s", e.Sum, e.Funded)
}
