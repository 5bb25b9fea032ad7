package escrow

import (
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

// AccountState is the lifecycle of an escrow account.
type AccountState string

const (
	AccountUnfunded          AccountState = "unfunded"
	AccountFunded            AccountState = "funded"
	AccountPartiallyReleased AccountState = "partially_released"
	AccountOnHold            AccountState = "on_hold"
	AccountFullyReleased     AccountState = "fully_released"
	AccountRefunded          AccountState = "refunded"
)

// Terminal reports whether no further fund movement is possible.
func (s AccountState) Terminal() bool {
	return s == AccountFullyReleased || s == AccountRefunded
}

// Account tracks where the funded money currently sits. Funds occupy
// exactly one of four buckets: released to the agent, refunded to the
// client, held for a dispute, or still available. The available bucket
// is derived, never stored, so the conservation equation
//
//	funded = released + refunded + held + available
//
// holds by construction.
type Account struct {
	ID            string       `json:"id"`
	CaseID        string       `json:"case_id"`
	Currency      string       `json:"currency"`
	FundedMinor   int64        `json:"funded_minor"`
	ReleasedMinor int64        `json:"released_minor"`
	HeldMinor     int64        `json:"held_minor"`
	RefundedMinor int64        `json:"refunded_minor"`
	State         AccountState `json:"state"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Funded returns the total that entered escrow.
func (a *Account) Funded() ledger.Money {
	return ledger.New(a.FundedMinor, a.Currency)
}

// Released returns the cumulative amount paid out to the agent.
func (a *Account) Released() ledger.Money {
	return ledger.New(a.ReleasedMinor, a.Currency)
}

// Held returns the amount frozen by the open dispute.
func (a *Account) Held() ledger.Money {
	return ledger.New(a.HeldMinor, a.Currency)
}

// Refunded returns the cumulative amount returned to the client.
func (a *Account) Refunded() ledger.Money {
	return ledger.New(a.RefundedMinor, a.Currency)
}

// Available returns the balance not yet released, refunded, or held.
func (a *Account) Available() ledger.Money {
	return ledger.New(a.FundedMinor-a.ReleasedMinor-a.HeldMinor-a.RefundedMinor, a.Currency)
}

// Fund moves the account from unfunded to funded with the full amount.
// Funding happens exactly once; top-ups are not supported.
func (a *Account) Fund(amount ledger.Money) error {
	if a.State != AccountUnfunded {
		return &AccountStateError{Op: "fund", State: a.State}
	}
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount.Currency == "" {
		return &ValidationError{Field: "currency", Reason: "must not be empty"}
	}
	a.FundedMinor = amount.AmountMinor
	a.Currency = amount.Currency
	a.State = AccountFunded
	return nil
}

// Release moves amount from available to released. It is frozen while a
// hold is active and can never exceed the available balance, which also
// makes the released total monotonically non-decreasing.
func (a *Account) Release(amount ledger.Money) error {
	if a.State != AccountFunded && a.State != AccountPartiallyReleased {
		return &AccountStateError{Op: "release", State: a.State}
	}
	if err := a.draw(amount); err != nil {
		return err
	}
	a.ReleasedMinor += amount.AmountMinor
	a.recalcState()
	return nil
}

// Refund moves amount from available back to the client.
func (a *Account) Refund(amount ledger.Money) error {
	if a.State != AccountFunded && a.State != AccountPartiallyReleased {
		return &AccountStateError{Op: "refund", State: a.State}
	}
	if err := a.draw(amount); err != nil {
		return err
	}
	a.RefundedMinor += amount.AmountMinor
	a.recalcState()
	return nil
}

// Hold freezes amount out of the available balance. At most one hold is
// active at a time; a second request fails with ErrAlreadyOnHold.
func (a *Account) Hold(amount ledger.Money) error {
	if a.State == AccountOnHold {
		return ErrAlreadyOnHold
	}
	if a.State != AccountFunded && a.State != AccountPartiallyReleased {
		return &AccountStateError{Op: "hold", State: a.State}
	}
	if err := a.draw(amount); err != nil {
		return err
	}
	a.HeldMinor += amount.AmountMinor
	a.State = AccountOnHold
	return nil
}

// ResolveHold settles the entire held amount according to the
// disposition and reports how much went to each side. The hold always
// empties: a split assigns the agent's share first and any odd minor
// unit lands on the client's side.
func (a *Account) ResolveHold(d Disposition) (Resolution, error) {
	if a.State != AccountOnHold {
		return Resolution{}, &AccountStateError{Op: "resolve hold", State: a.State}
	}
	if err := d.Validate(); err != nil {
		return Resolution{}, err
	}

	held := a.Held()
	res := Resolution{
		ReleasedToAgent:  ledger.New(0, a.Currency),
		RefundedToClient: ledger.New(0, a.Currency),
	}
	switch d.Kind {
	case DispositionRelease:
		res.ReleasedToAgent = held
	case DispositionRefund:
		res.RefundedToClient = held
	case DispositionSplit:
		shares, err := ledger.Allocate(held, []int64{d.SplitToAgentPct, 100 - d.SplitToAgentPct})
		if err != nil {
			return Resolution{}, err
		}
		res.ReleasedToAgent = shares[0]
		res.RefundedToClient = shares[1]
	}

	a.ReleasedMinor += res.ReleasedToAgent.AmountMinor
	a.RefundedMinor += res.RefundedToClient.AmountMinor
	a.HeldMinor = 0
	a.recalcState()
	return res, nil
}

// draw validates that amount can leave the available bucket.
func (a *Account) draw(amount ledger.Money) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount.Currency != a.Currency {
		return &ledger.CurrencyError{Left: a.Currency, Right: amount.Currency}
	}
	if avail := a.Available(); amount.AmountMinor > avail.AmountMinor {
		return &ExceedsAvailableError{Requested: amount, Available: avail}
	}
	return nil
}

// recalcState derives the lifecycle state from the buckets after a
// movement. Hold entry and exit are handled by Hold and ResolveHold.
func (a *Account) recalcState() {
	switch {
	case a.HeldMinor > 0:
		a.State = AccountOnHold
	case a.Available().IsZero():
		switch {
		case a.RefundedMinor == 0 && a.ReleasedMinor == a.FundedMinor:
			a.State = AccountFullyReleased
		case a.ReleasedMinor == 0 && a.RefundedMinor == a.FundedMinor:
			a.State = AccountRefunded
		default:
			// Mixed settlement after a split keeps the account in
			// partially_released with a zero available balance.
			a.State = AccountPartiallyReleased
		}
	case a.ReleasedMinor > 0 || a.RefundedMinor > 0:
		a.State = AccountPartiallyReleased
	default:
		a.State = AccountFunded
	}
}
