// Package escrow holds the domain model for case-based escrow: the
// account buckets, the milestone plan, disputes, and the case aggregate
// that ties them together. All transitions here are pure in-memory
// moves; persistence and concurrency control live in the workflow
// package.
package escrow

import (
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

// MilestoneState is the lifecycle of a single milestone.
type MilestoneState string

const (
	MilestonePending   MilestoneState = "pending"
	MilestoneSubmitted MilestoneState = "submitted"
	MilestoneApproved  MilestoneState = "approved"
	MilestoneReleased  MilestoneState = "released"
	MilestoneRejected  MilestoneState = "rejected"
)

// Milestone is one deliverable of the agreed plan. Its amount is fixed
// at funding time and is released exactly once.
type Milestone struct {
	Index           int            `json:"index"`
	Title           string         `json:"title"`
	Amount          ledger.Money   `json:"amount"`
	State           MilestoneState `json:"state"`
	Evidence        []string       `json:"evidence,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// Submit records delivered work. Valid from pending, and from rejected
// so the agent can rework and resubmit. Evidence accumulates across
// resubmissions to preserve the audit trail.
func (m *Milestone) Submit(evidence []string, notes string, now time.Time) error {
	if m.State != MilestonePending && m.State != MilestoneRejected {
		return &MilestoneStateError{Index: m.Index, Op: "submit", State: m.State}
	}
	m.State = MilestoneSubmitted
	m.Evidence = append(m.Evidence, evidence...)
	m.Notes = notes
	t := now
	m.SubmittedAt = &t
	m.RejectionReason = ""
	m.RejectedAt = nil
	return nil
}

// Approve accepts submitted work. The caller is responsible for moving
// the funds and then marking the milestone released.
func (m *Milestone) Approve(now time.Time) error {
	if m.State != MilestoneSubmitted {
		return &MilestoneStateError{Index: m.Index, Op: "approve", State: m.State}
	}
	m.State = MilestoneApproved
	t := now
	m.ApprovedAt = &t
	return nil
}

// Reject sends submitted work back to the agent with a reason.
func (m *Milestone) Reject(reason string, now time.Time) error {
	if m.State != MilestoneSubmitted {
		return &MilestoneStateError{Index: m.Index, Op: "reject", State: m.State}
	}
	m.State = MilestoneRejected
	m.RejectionReason = reason
	t := now
	m.RejectedAt = &t
	return nil
}

// MarkReleased records that the milestone's amount left escrow. Only an
// approved milestone can be released, and only once.
func (m *Milestone) MarkReleased() error {
	if m.State != MilestoneApproved {
		return &MilestoneStateError{Index: m.Index, Op: "release", State: m.State}
	}
	m.State = MilestoneReleased
	return nil
}

func (m *Milestone) clone() Milestone {
	out := *m
	out.Evidence = append([]string(nil), m.Evidence...)
	if m.SubmittedAt != nil {
		t := *m.SubmittedAt
		out.SubmittedAt = &t
	}
	if m.ApprovedAt != nil {
		t := *m.ApprovedAt
		out.ApprovedAt = &t
	}
	if m.RejectedAt != nil {
		t := *m.RejectedAt
		out.RejectedAt = &t
	}
	return out
}
