// Package workflow orchestrates the escrow case lifecycle. The engine
// loads a case aggregate, applies a domain transition in memory, and
// saves the result together with its business events in one atomic,
// version-checked write. Concurrent writers race on the version; the
// loser gets ErrConflict and can safely retry.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
)

var (
	// ErrCaseNotFound is returned when no case matches the lookup.
	ErrCaseNotFound = errors.New("workflow: case not found")

	// ErrConflict is returned when a concurrent writer saved the case
	// first. The operation made no change and may be retried.
	ErrConflict = errors.New("workflow: case modified concurrently, retry")

	// ErrAlreadyFunded is returned when a payment reference was already
	// consumed by an earlier funding.
	ErrAlreadyFunded = errors.New("workflow: payment reference already consumed")

	// ErrProposalFunded is returned when the proposal already has a
	// live case.
	ErrProposalFunded = errors.New("workflow: proposal already has an active case")

	// ErrForbidden is returned when the actor may not perform the
	// operation on this case.
	ErrForbidden = errors.New("workflow: operation not allowed for this actor")
)

// Outbox topics published by the engine.
const (
	TopicCaseFunded         = "case.funded"
	TopicCaseCompleted      = "case.completed"
	TopicCaseCancelled      = "case.cancelled"
	TopicMilestoneSubmitted = "milestone.submitted"
	TopicMilestoneApproved  = "milestone.approved"
	TopicMilestoneReleased  = "milestone.released"
	TopicMilestoneRejected  = "milestone.rejected"
	TopicDisputeRaised      = "dispute.raised"
	TopicDisputeResolved    = "dispute.resolved"
)

// Store persists case aggregates. GetCase and GetCaseByEscrow return a
// private copy the caller may mutate freely. CreateCase consumes the
// payment reference in the same atomic write; UpdateCase performs a
// compare-and-swap on the aggregate version and bumps it on success.
// Both writes append the events to the case log and the outbox
// atomically with the state change.
type Store interface {
	CreateCase(ctx context.Context, c *escrow.Case, paymentRef string, events []notify.Event) error
	GetCase(ctx context.Context, caseID string) (*escrow.Case, error)
	GetCaseByEscrow(ctx context.Context, escrowID string) (*escrow.Case, error)
	UpdateCase(ctx context.Context, c *escrow.Case, events []notify.Event) error
	ListAccounts(ctx context.Context, params ListParams) ([]AccountRecord, int, error)
}

// ListParams pages through escrow accounts, newest first.
type ListParams struct {
	Page  int
	Limit int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// normalize clamps paging input to sane bounds.
func (p ListParams) normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	return p
}

// AccountRecord is one row of the admin account listing.
type AccountRecord struct {
	EscrowID      string    `json:"escrow_id"`
	CaseID        string    `json:"case_id"`
	ProposalID    string    `json:"proposal_id"`
	ClientID      string    `json:"client_id"`
	AgentID       string    `json:"agent_id"`
	Currency      string    `json:"currency"`
	FundedMinor   int64     `json:"funded_minor"`
	ReleasedMinor int64     `json:"released_minor"`
	HeldMinor     int64     `json:"held_minor"`
	RefundedMinor int64     `json:"refunded_minor"`
	State         string    `json:"state"`
	CaseState     string    `json:"case_state"`
	CreatedAt     time.Time `json:"created_at"`
}
