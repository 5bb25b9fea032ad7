package escrow

import (
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

// CaseState is the lifecycle of an engagement case.
type CaseState string

const (
	CaseActive    CaseState = "active"
	CaseDisputed  CaseState = "disputed"
	CaseCompleted CaseState = "completed"
	CaseCancelled CaseState = "cancelled"
)

// Terminal reports whether the case accepts no further operations.
func (s CaseState) Terminal() bool {
	return s == CaseCompleted || s == CaseCancelled
}

// MilestoneSpec is one entry of the milestone plan agreed in the
// accepted proposal.
type MilestoneSpec struct {
	Title       string `json:"title"`
	AmountMinor int64  `json:"amount_minor"`
}

// Case is the aggregate root: the engagement between a client and an
// agent, its escrow account, the milestone plan, and any disputes.
// All methods mutate in memory only. On error the aggregate may be left
// partially mutated; callers work on a scratch copy and persist only
// successful outcomes. Version backs the optimistic concurrency check
// at save time.
type Case struct {
	ID         string      `json:"id"`
	ProposalID string      `json:"proposal_id"`
	ClientID   string      `json:"client_id"`
	AgentID    string      `json:"agent_id"`
	State      CaseState   `json:"state"`
	Account    Account     `json:"account"`
	Milestones []Milestone `json:"milestones"`
	Dispute    *Dispute    `json:"dispute,omitempty"`
	Disputes   []Dispute   `json:"disputes,omitempty"`
	Version    int64       `json:"version"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewCase funds a new case in one shot: the account is funded with the
// full amount and the milestone plan is fixed. The plan must cover the
// funded amount exactly.
func NewCase(id, accountID, proposalID, clientID, agentID string, total ledger.Money, plan []MilestoneSpec, now time.Time) (*Case, error) {
	switch {
	case id == "":
		return nil, &ValidationError{Field: "case id", Reason: "must not be empty"}
	case proposalID == "":
		return nil, &ValidationError{Field: "proposal id", Reason: "must not be empty"}
	case clientID == "":
		return nil, &ValidationError{Field: "client id", Reason: "must not be empty"}
	case agentID == "":
		return nil, &ValidationError{Field: "agent id", Reason: "must not be empty"}
	case len(plan) == 0:
		return nil, &ValidationError{Field: "milestones", Reason: "plan must have at least one milestone"}
	}

	milestones := make([]Milestone, len(plan))
	var sum int64
	for i, spec := range plan {
		if spec.Title == "" {
			return nil, &ValidationError{Field: "milestone title", Reason: "must not be empty"}
		}
		if spec.AmountMinor <= 0 {
			return nil, &ValidationError{Field: "milestone amount", Reason: "must be positive"}
		}
		milestones[i] = Milestone{
			Index:  i,
			Title:  spec.Title,
			Amount: ledger.New(spec.AmountMinor, total.Currency),
			State:  MilestonePending,
		}
		sum += spec.AmountMinor
	}

	account := Account{
		ID:        accountID,
		CaseID:    id,
		State:     AccountUnfunded,
		CreatedAt: now,
	}
	if err := account.Fund(total); err != nil {
		return nil, err
	}
	if sum != total.AmountMinor {
		return nil, &MilestoneSumMismatchError{Funded: total, Sum: ledger.New(sum, total.Currency)}
	}

	return &Case{
		ID:         id,
		ProposalID: proposalID,
		ClientID:   clientID,
		AgentID:    agentID,
		State:      CaseActive,
		Account:    account,
		Milestones: milestones,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Milestone returns the milestone at index for mutation.
func (c *Case) Milestone(index int) (*Milestone, error) {
	if index < 0 || index >= len(c.Milestones) {
		return nil, ErrMilestoneIndex
	}
	return &c.Milestones[index], nil
}

// SubmitMilestone records delivered work on the milestone. Delivery is
// not a fund movement, so it stays possible while a dispute is open.
func (c *Case) SubmitMilestone(index int, evidence []string, notes string, now time.Time) (*Milestone, error) {
	if c.State.Terminal() {
		return nil, &CaseStateError{Op: "submit milestone", State: c.State}
	}
	m, err := c.Milestone(index)
	if err != nil {
		return nil, err
	}
	if err := m.Submit(evidence, notes, now); err != nil {
		return nil, err
	}
	c.UpdatedAt = now
	return m, nil
}

// ApproveMilestone accepts submitted work and releases its amount in
// the same step. Approval is frozen while a dispute holds the balance.
// It reports whether the approval completed the case.
func (c *Case) ApproveMilestone(index int, now time.Time) (*Milestone, bool, error) {
	if c.State != CaseActive {
		return nil, false, &CaseStateError{Op: "approve milestone", State: c.State}
	}
	m, err := c.Milestone(index)
	if err != nil {
		return nil, false, err
	}
	if err := m.Approve(now); err != nil {
		return nil, false, err
	}
	if err := c.Account.Release(m.Amount); err != nil {
		return nil, false, err
	}
	if err := m.MarkReleased(); err != nil {
		return nil, false, err
	}
	completed := c.checkCompletion()
	c.UpdatedAt = now
	return m, completed, nil
}

// RejectMilestone sends submitted work back to the agent. The milestone
// becomes eligible for resubmission.
func (c *Case) RejectMilestone(index int, reason string, now time.Time) (*Milestone, error) {
	if c.State.Terminal() {
		return nil, &CaseStateError{Op: "reject milestone", State: c.State}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	m, err := c.Milestone(index)
	if err != nil {
		return nil, err
	}
	if err := m.Reject(reason, now); err != nil {
		return nil, err
	}
	c.UpdatedAt = now
	return m, nil
}

// RaiseDispute freezes the entire available balance and moves the case
// to disputed. A second dispute while one is open fails with
// ErrAlreadyOnHold.
func (c *Case) RaiseDispute(id, raisedBy string, party Party, reason, description string, evidence []string, now time.Time) (*Dispute, error) {
	switch c.State {
	case CaseActive:
	case CaseDisputed:
		return nil, ErrAlreadyOnHold
	default:
		return nil, &CaseStateError{Op: "raise dispute", State: c.State}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "must not be empty"}
	}

	avail := c.Account.Available()
	if err := c.Account.Hold(avail); err != nil {
		return nil, err
	}
	d := &Dispute{
		ID:          id,
		CaseID:      c.ID,
		RaisedBy:    raisedBy,
		RaisedParty: party,
		Reason:      reason,
		Description: description,
		Evidence:    append([]string(nil), evidence...),
		State:       DisputeOpen,
		HeldMinor:   avail.AmountMinor,
		OpenedAt:    now,
	}
	c.Dispute = d
	c.State = CaseDisputed
	c.UpdatedAt = now
	return d, nil
}

// ResolveDispute settles the held balance per the disposition and
// closes the case: a full release to the agent completes it, any
// verdict that returns money to the client cancels it. Milestone states
// are left untouched; the resolution record is the audit trail.
func (c *Case) ResolveDispute(resolvedBy string, d Disposition, now time.Time) (*Dispute, Resolution, error) {
	if c.Dispute == nil {
		if c.State.Terminal() {
			return nil, Resolution{}, &CaseStateError{Op: "resolve dispute", State: c.State}
		}
		return nil, Resolution{}, ErrNoOpenDispute
	}

	res, err := c.Account.ResolveHold(d)
	if err != nil {
		return nil, Resolution{}, err
	}

	dis := c.Dispute
	dis.State = resolvedState(d.Kind)
	dis.ResolvedBy = resolvedBy
	dis.Resolution = &res
	t := now
	dis.ResolvedAt = &t
	c.Disputes = append(c.Disputes, dis.clone())
	c.Dispute = nil

	if d.Kind == DispositionRelease {
		c.State = CaseCompleted
	} else {
		c.State = CaseCancelled
	}
	c.UpdatedAt = now
	return dis, res, nil
}

// Cancel refunds the remaining available balance to the client and
// closes the case. Released milestones keep what was already paid out.
func (c *Case) Cancel(now time.Time) (ledger.Money, error) {
	if c.State != CaseActive {
		return ledger.Money{}, &CaseStateError{Op: "cancel", State: c.State}
	}
	avail := c.Account.Available()
	if avail.IsPositive() {
		if err := c.Account.Refund(avail); err != nil {
			return ledger.Money{}, err
		}
	}
	c.State = CaseCancelled
	c.UpdatedAt = now
	return avail, nil
}

// checkCompletion flips the case to completed once every milestone has
// been released.
func (c *Case) checkCompletion() bool {
	if c.State != CaseActive {
		return false
	}
	for i := range c.Milestones {
		if c.Milestones[i].State != MilestoneReleased {
			return false
		}
	}
	c.State = CaseCompleted
	return true
}

// Progress reports the released share of the funded amount in whole
// percent.
func (c *Case) Progress() int {
	if c.Account.FundedMinor == 0 {
		return 0
	}
	return int(c.Account.ReleasedMinor * 100 / c.Account.FundedMinor)
}

// Party returns which side of the case the actor is on, if any.
func (c *Case) Party(actorID string) (Party, bool) {
	switch actorID {
	case c.ClientID:
		return PartyClient, true
	case c.AgentID:
		return PartyAgent, true
	default:
		return "", false
	}
}

// Clone returns a deep copy so stored aggregates never alias the
// scratch copy an engine operation mutates.
func (c *Case) Clone() *Case {
	out := *c
	out.Milestones = make([]Milestone, len(c.Milestones))
	for i := range c.Milestones {
		out.Milestones[i] = c.Milestones[i].clone()
	}
	if c.Dispute != nil {
		d := c.Dispute.clone()
		out.Dispute = &d
	}
	out.Disputes = make([]Dispute, len(c.Disputes))
	for i := range c.Disputes {
		out.Disputes[i] = c.Disputes[i].clone()
	}
	return &out
}
