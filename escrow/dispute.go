package escrow

import (
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

// Party identifies which side of the case an actor is on.
type Party string

const (
	PartyClient Party = "client"
	PartyAgent  Party = "agent"
)

// DispositionKind is the arbiter's verdict on a held balance.
type DispositionKind string

const (
	DispositionRelease DispositionKind = "release_to_agent"
	DispositionRefund  DispositionKind = "refund_to_client"
	DispositionSplit   DispositionKind = "split"
)

// Disposition describes how a resolved hold is settled. SplitToAgentPct
// is only meaningful for split verdicts.
type Disposition struct {
	Kind            DispositionKind `json:"kind"`
	SplitToAgentPct int64           `json:"split_to_agent_pct,omitempty"`
}

// Validate rejects malformed dispositions before any funds move.
func (d Disposition) Validate() error {
	switch d.Kind {
	case DispositionRelease, DispositionRefund:
		if d.SplitToAgentPct != 0 {
			return &ValidationError{Field: "split_to_agent_pct", Reason: "only valid for split verdicts"}
		}
		return nil
	case DispositionSplit:
		if d.SplitToAgentPct <= 0 || d.SplitToAgentPct >= 100 {
			return &ValidationError{Field: "split_to_agent_pct", Reason: "must be between 1 and 99"}
		}
		return nil
	default:
		return &ValidationError{Field: "kind", Reason: "unknown disposition"}
	}
}

// Resolution records where the held funds went when a dispute closed.
type Resolution struct {
	ReleasedToAgent  ledger.Money `json:"released_to_agent"`
	RefundedToClient ledger.Money `json:"refunded_to_client"`
}

// DisputeState is the lifecycle of a dispute record.
type DisputeState string

const (
	DisputeOpen            DisputeState = "open"
	DisputeResolvedRelease DisputeState = "resolved_release"
	DisputeResolvedRefund  DisputeState = "resolved_refund"
	DisputeResolvedSplit   DisputeState = "resolved_split"
)

// Dispute is a formal challenge raised by either party. While open it
// freezes the case's entire available balance.
type Dispute struct {
	ID          string       `json:"id"`
	CaseID      string       `json:"case_id"`
	RaisedBy    string       `json:"raised_by"`
	RaisedParty Party        `json:"raised_party"`
	Reason      string       `json:"reason"`
	Description string       `json:"description,omitempty"`
	Evidence    []string     `json:"evidence,omitempty"`
	State       DisputeState `json:"state"`
	HeldMinor   int64        `json:"held_minor"`
	ResolvedBy  string       `json:"resolved_by,omitempty"`
	Resolution  *Resolution  `json:"resolution,omitempty"`
	OpenedAt    time.Time    `json:"opened_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}

func resolvedState(kind DispositionKind) DisputeState {
	switch kind {
	case DispositionRelease:
		return DisputeResolvedRelease
	case DispositionRefund:
		return DisputeResolvedRefund
	default:
		return DisputeResolvedSplit
	}
}

func (d *Dispute) clone() Dispute {
	out := *d
	out.Evidence = append([]string(nil), d.Evidence...)
	if d.Resolution != nil {
		r := *d.Resolution
		out.Resolution = &r
	}
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
