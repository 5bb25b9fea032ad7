// Package payment abstracts the upstream payment gateway. The workflow
// only needs a charge to have happened and to carry a unique reference;
// gateway protocol details stay behind the Provider interface.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

// ErrDeclined is returned when the gateway refuses the charge.
var ErrDeclined = errors.New("payment: charge declined")

// ChargeRequest asks the provider to capture funds for a proposal.
type ChargeRequest struct {
	ProposalID string
	Method     string
	Amount     ledger.Money
}

// Charge is a captured payment. Ref is unique per capture and is what
// the escrow ledger records as the funding source.
type Charge struct {
	Ref        string
	ProposalID string
	Method     string
	Amount     ledger.Money
	CreatedAt  time.Time
}

// Provider captures payments.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}

// Sandbox is an in-process provider that approves every well-formed
// charge. DeclineOver makes charges above a threshold fail, which lets
// tests exercise the decline path.
type Sandbox struct {
	mu          sync.Mutex
	idGen       func() string
	now         func() time.Time
	declineOver int64
	charges     []Charge
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		idGen: func() string { return "pay_" + uuid.NewString() },
		now:   time.Now,
	}
}

// WithIDGenerator overrides charge reference generation, used by tests
// for deterministic refs.
func (s *Sandbox) WithIDGenerator(gen func() string) *Sandbox {
	s.idGen = gen
	return s
}

// WithClock overrides time for deterministic tests.
func (s *Sandbox) WithClock(now func() time.Time) *Sandbox {
	s.now = now
	return s
}

// DeclineOver makes any charge above limitMinor fail with ErrDeclined.
func (s *Sandbox) DeclineOver(limitMinor int64) *Sandbox {
	s.declineOver = limitMinor
	return s
}

func (s *Sandbox) Charge(_ context.Context, req ChargeRequest) (Charge, error) {
	if !req.Amount.IsPositive() {
		return Charge{}, ErrDeclined
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declineOver > 0 && req.Amount.AmountMinor > s.declineOver {
		return Charge{}, ErrDeclined
	}
	charge := Charge{
		Ref:        s.idGen(),
		ProposalID: req.ProposalID,
		Method:     req.Method,
		Amount:     req.Amount,
		CreatedAt:  s.now(),
	}
	s.charges = append(s.charges, charge)
	return charge, nil
}

// Charges returns captured charges in order, a test hook.
func (s *Sandbox) Charges() []Charge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Charge(nil), s.charges...)
}
