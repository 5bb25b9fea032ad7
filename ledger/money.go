// Package ledger provides the monetary primitives used by escrow
// accounting. All arithmetic is integer math on minor units so that
// balances never accumulate floating point drift.
package ledger

import "fmt"

// Money is an amount of a single currency expressed in minor units
// (cents for USD). The zero value is an invalid amount with no currency.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"` // ISO 4217 code
}

// New builds a Money value. It performs no validation; callers that
// accept external input validate sign and currency themselves.
func New(amountMinor int64, currency string) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// CurrencyError reports arithmetic across two different currencies.
type CurrencyError struct {
	Left  string
	Right string
}

func (e *CurrencyError) Error() string {
	return fmt.Sprintf("ledger: currency mismatch: %s vs %s", e.Left, e.Right)
}

// InsufficientFundsError reports a debit larger than the balance it
// draws from.
type InsufficientFundsError struct {
	Balance Money
	Debit   Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds: balance %d %s, debit %d %s",
		e.Balance.AmountMinor, e.Balance.Currency, e.Debit.AmountMinor, e.Debit.Currency)
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, &CurrencyError{Left: m.Currency, Right: other.Currency}
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// Sub returns m - other. It fails with InsufficientFundsError when the
// result would be negative, so balances can never be driven below zero.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, &CurrencyError{Left: m.Currency, Right: other.Currency}
	}
	if other.AmountMinor > m.AmountMinor {
		return Money{}, &InsufficientFundsError{Balance: m, Debit: other}
	}
	return Money{AmountMinor: m.AmountMinor - other.AmountMinor, Currency: m.Currency}, nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.AmountMinor == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.AmountMinor > 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.AmountMinor, m.Currency)
}

// Allocate splits total across percentage shares without losing or
// inventing minor units. Each share gets the floor of its percentage;
// the remainder goes to the last share. Percentages must be
// non-negative and sum to 100.
func Allocate(total Money, percents []int64) ([]Money, error) {
	if len(percents) == 0 {
		return nil, fmt.Errorf("ledger: allocate: no shares")
	}
	if total.AmountMinor < 0 {
		return nil, fmt.Errorf("ledger: allocate: negative total %s", total)
	}
	var sum int64
	for _, p := range percents {
		if p < 0 {
			return nil, fmt.Errorf("ledger: allocate: negative percentage %d", p)
		}
		sum += p
	}
	if sum != 100 {
		return nil, fmt.Errorf("ledger: allocate: percentages sum to %d, want 100", sum)
	}

	shares := make([]Money, len(percents))
	var assigned int64
	for i, p := range percents {
		amount := total.AmountMinor * p / 100
		shares[i] = Money{AmountMinor: amount, Currency: total.Currency}
		assigned += amount
	}
	shares[len(shares)-1].AmountMinor += total.AmountMinor - assigned
	return shares, nil
}
