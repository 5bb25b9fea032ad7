package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

func TestSandbox_Charge(t *testing.T) {
	epoch := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewSandbox().
		WithIDGenerator(func() string { return "pay_test" }).
		WithClock(func() time.Time { return epoch })

	charge, err := s.Charge(context.Background(), ChargeRequest{
		ProposalID: "prop-1",
		Method:     "card",
		Amount:     ledger.New(200000, "USD"),
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if charge.Ref != "pay_test" {
		t.Fatalf("expected ref pay_test, got %q", charge.Ref)
	}
	if !charge.CreatedAt.Equal(epoch) {
		t.Fatalf("expected clock time, got %v", charge.CreatedAt)
	}
	if len(s.Charges()) != 1 {
		t.Fatalf("expected 1 recorded charge, got %d", len(s.Charges()))
	}
}

func TestSandbox_Declines(t *testing.T) {
	s := NewSandbox().DeclineOver(1000)

	if _, err := s.Charge(context.Background(), ChargeRequest{Amount: ledger.New(1001, "USD")}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined over limit, got %v", err)
	}
	if _, err := s.Charge(context.Background(), ChargeRequest{Amount: ledger.New(0, "USD")}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined for non-positive amount, got %v", err)
	}
	if _, err := s.Charge(context.Background(), ChargeRequest{Amount: ledger.New(999, "USD")}); err != nil {
		t.Fatalf("charge under limit: %v", err)
	}
}
