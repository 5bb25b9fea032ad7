package workflow

import (
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
)

// Status is the read model returned by every engine operation: the case,
// its escrow buckets, the milestone plan, and the open dispute if any.
type Status struct {
	CaseID         string              `json:"case_id"`
	EscrowID       string              `json:"escrow_id"`
	ProposalID     string              `json:"proposal_id"`
	ClientID       string              `json:"client_id"`
	AgentID        string              `json:"agent_id"`
	CaseState      escrow.CaseState    `json:"case_state"`
	EscrowState    escrow.AccountState `json:"escrow_state"`
	Currency       string              `json:"currency"`
	FundedMinor    int64               `json:"funded_minor"`
	ReleasedMinor  int64               `json:"released_minor"`
	HeldMinor      int64               `json:"held_minor"`
	AvailableMinor int64               `json:"available_minor"`
	RefundedMinor  int64               `json:"refunded_minor"`
	ProgressPct    int                 `json:"progress_pct"`
	Milestones     []MilestoneStatus   `json:"milestones"`
	Dispute        *DisputeStatus      `json:"dispute,omitempty"`
	Disputes       []DisputeStatus     `json:"resolved_disputes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// MilestoneStatus is the read model of one milestone.
type MilestoneStatus struct {
	Index           int        `json:"index"`
	Title           string     `json:"title"`
	AmountMinor     int64      `json:"amount_minor"`
	State           string     `json:"state"`
	Evidence        []string   `json:"evidence,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// DisputeStatus is the read model of a dispute.
type DisputeStatus struct {
	ID               string     `json:"id"`
	State            string     `json:"state"`
	RaisedBy         string     `json:"raised_by"`
	RaisedParty      string     `json:"raised_party"`
	Reason           string     `json:"reason"`
	Description      string     `json:"description,omitempty"`
	Evidence         []string   `json:"evidence,omitempty"`
	HeldMinor        int64      `json:"held_minor"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ReleasedToAgent  *int64     `json:"released_to_agent_minor,omitempty"`
	RefundedToClient *int64     `json:"refunded_to_client_minor,omitempty"`
	OpenedAt         time.Time  `json:"opened_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// StatusOf projects the aggregate into its read model.
func StatusOf(c *escrow.Case) *Status {
	st := &Status{
		CaseID:         c.ID,
		EscrowID:       c.Account.ID,
		ProposalID:     c.ProposalID,
		ClientID:       c.ClientID,
		AgentID:        c.AgentID,
		CaseState:      c.State,
		EscrowState:    c.Account.State,
		Currency:       c.Account.Currency,
		FundedMinor:    c.Account.FundedMinor,
		ReleasedMinor:  c.Account.ReleasedMinor,
		HeldMinor:      c.Account.HeldMinor,
		AvailableMinor: c.Account.Available().AmountMinor,
		RefundedMinor:  c.Account.RefundedMinor,
		ProgressPct:    c.Progress(),
		Milestones:     make([]MilestoneStatus, len(c.Milestones)),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for i := range c.Milestones {
		st.Milestones[i] = milestoneStatus(&c.Milestones[i])
	}
	if c.Dispute != nil {
		d := disputeStatus(c.Dispute)
		st.Dispute = &d
	}
	for i := range c.Disputes {
		st.Disputes = append(st.Disputes, disputeStatus(&c.Disputes[i]))
	}
	return st
}

func milestoneStatus(m *escrow.Milestone) MilestoneStatus {
	return MilestoneStatus{
		Index:           m.Index,
		Title:           m.Title,
		AmountMinor:     m.Amount.AmountMinor,
		State:           string(m.State),
		Evidence:        append([]string(nil), m.Evidence...),
		Notes:           m.Notes,
		SubmittedAt:     m.SubmittedAt,
		ApprovedAt:      m.ApprovedAt,
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
	}
}

func disputeStatus(d *escrow.Dispute) DisputeStatus {
	st := DisputeStatus{
		ID:          d.ID,
		State:       string(d.State),
		RaisedBy:    d.RaisedBy,
		RaisedParty: string(d.RaisedParty),
		Reason:      d.Reason,
		Description: d.Description,
		Evidence:    append([]string(nil), d.Evidence...),
		HeldMinor:   d.HeldMinor,
		ResolvedBy:  d.ResolvedBy,
		OpenedAt:    d.OpenedAt,
		ResolvedAt:  d.ResolvedAt,
	}
	if d.Resolution != nil {
		released := d.Resolution.ReleasedToAgent.AmountMinor
		refunded := d.Resolution.RefundedToClient.AmountMinor
		st.ReleasedToAgent = &released
		st.RefundedToClient = &refunded
	}
	return st
}
