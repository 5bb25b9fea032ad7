package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
)

// Actor is the verified caller of an operation, as established by the
// auth layer. The engine checks it against the case parties.
type Actor struct {
	ID   string
	Role auth.Role
}

// Engine drives every case transition. It holds no state of its own:
// each operation loads the aggregate, applies the transition, and saves
// atomically through the store.
type Engine struct {
	store     Store
	proposals ProposalSource
	idGen     func() string
	now       func() time.Time
}

func NewEngine(store Store, proposals ProposalSource) *Engine {
	return &Engine{
		store:     store,
		proposals: proposals,
		idGen:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

func (e *Engine) WithIDGenerator(gen func() string) *Engine {
	e.idGen = gen
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// FundRequest funds a new case from an accepted proposal. PaymentRef is
// the unique capture reference from the payment provider; replays of
// the same reference are rejected, which makes funding idempotent at
// the money level.
type FundRequest struct {
	ProposalID string
	Amount     ledger.Money
	PaymentRef string
	Actor      Actor
}

// FundEscrow creates the case, funds its escrow account in full, and
// fixes the milestone plan from the proposal.
func (e *Engine) FundEscrow(ctx context.Context, req FundRequest) (*Status, error) {
	if req.ProposalID == "" {
		return nil, &escrow.ValidationError{Field: "proposal_id", Reason: "must not be empty"}
	}
	if req.PaymentRef == "" {
		return nil, &escrow.ValidationError{Field: "payment_ref", Reason: "must not be empty"}
	}

	prop, err := e.proposals.Lookup(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if req.Actor.Role != auth.RoleClient || req.Actor.ID != prop.ClientID {
		return nil, fmt.Errorf("only the proposal's client may fund it: %w", ErrForbidden)
	}
	if req.Amount.Currency != prop.Currency {
		return nil, &escrow.ValidationError{Field: "currency", Reason: fmt.Sprintf("proposal is priced in %s", prop.Currency)}
	}

	now := e.now()
	c, err := escrow.NewCase(e.idGen(), e.idGen(), prop.ID, prop.ClientID, prop.AgentID, req.Amount, prop.Milestones, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicCaseFunded, map[string]any{
		"proposal_id":  prop.ID,
		"escrow_id":    c.Account.ID,
		"funded_minor": c.Account.FundedMinor,
		"currency":     c.Account.Currency,
		"payment_ref":  req.PaymentRef,
	})}
	if err := e.store.CreateCase(ctx, c, req.PaymentRef, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// SubmitRequest records delivered work on a milestone.
type SubmitRequest struct {
	CaseID   string
	Index    int
	Evidence []string
	Notes    string
	Actor    Actor
}

// SubmitMilestone marks the milestone submitted with its evidence. Only
// the case's agent may submit.
func (e *Engine) SubmitMilestone(ctx context.Context, req SubmitRequest) (*Status, error) {
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if req.Actor.Role != auth.RoleAgent || req.Actor.ID != c.AgentID {
		return nil, fmt.Errorf("only the case's agent may submit work: %w", ErrForbidden)
	}

	now := e.now()
	m, err := c.SubmitMilestone(req.Index, req.Evidence, req.Notes, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicMilestoneSubmitted, map[string]any{
		"milestone_index": m.Index,
		"title":           m.Title,
		"evidence":        m.Evidence,
	})}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// ApproveRequest accepts submitted work and pays it out.
type ApproveRequest struct {
	CaseID string
	Index  int
	Actor  Actor
}

// ApproveMilestone approves the milestone and releases its amount to
// the agent in the same atomic step. Only the case's client may
// approve. When every milestone has been released the case completes.
func (e *Engine) ApproveMilestone(ctx context.Context, req ApproveRequest) (*Status, error) {
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if req.Actor.Role != auth.RoleClient || req.Actor.ID != c.ClientID {
		return nil, fmt.Errorf("only the case's client may approve work: %w", ErrForbidden)
	}

	now := e.now()
	m, completed, err := c.ApproveMilestone(req.Index, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{
		e.event(c.ID, TopicMilestoneApproved, map[string]any{
			"milestone_index": m.Index,
			"title":           m.Title,
		}),
		e.event(c.ID, TopicMilestoneReleased, map[string]any{
			"milestone_index": m.Index,
			"amount_minor":    m.Amount.AmountMinor,
			"currency":        m.Amount.Currency,
		}),
	}
	if completed {
		events = append(events, e.event(c.ID, TopicCaseCompleted, map[string]any{
			"released_minor": c.Account.ReleasedMinor,
		}))
	}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// RejectRequest sends submitted work back to the agent.
type RejectRequest struct {
	CaseID string
	Index  int
	Reason string
	Actor  Actor
}

// RejectMilestone rejects submitted work with a reason. The milestone
// becomes eligible for resubmission. Only the case's client may reject.
func (e *Engine) RejectMilestone(ctx context.Context, req RejectRequest) (*Status, error) {
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if req.Actor.Role != auth.RoleClient || req.Actor.ID != c.ClientID {
		return nil, fmt.Errorf("only the case's client may reject work: %w", ErrForbidden)
	}

	now := e.now()
	m, err := c.RejectMilestone(req.Index, req.Reason, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicMilestoneRejected, map[string]any{
		"milestone_index": m.Index,
		"reason":          req.Reason,
	})}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// DisputeRequest raises a dispute over the case.
type DisputeRequest struct {
	CaseID      string
	Reason      string
	Description string
	Evidence    []string
	Actor       Actor
}

// RaiseDispute freezes the case's entire available balance until an
// arbiter rules. Either party of the case may raise it.
func (e *Engine) RaiseDispute(ctx context.Context, req DisputeRequest) (*Status, error) {
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	party, ok := c.Party(req.Actor.ID)
	if !ok || string(party) != string(req.Actor.Role) {
		return nil, fmt.Errorf("only a party of the case may raise a dispute: %w", ErrForbidden)
	}

	now := e.now()
	d, err := c.RaiseDispute(e.idGen(), req.Actor.ID, party, req.Reason, req.Description, req.Evidence, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicDisputeRaised, map[string]any{
		"dispute_id":   d.ID,
		"raised_by":    d.RaisedBy,
		"raised_party": string(d.RaisedParty),
		"reason":       d.Reason,
		"held_minor":   d.HeldMinor,
	})}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// ResolveRequest rules on an open dispute.
type ResolveRequest struct {
	CaseID      string
	Disposition escrow.Disposition
	Actor       Actor
}

// ResolveDispute settles the held balance according to the disposition
// and closes the case. Arbitration capability is required.
func (e *Engine) ResolveDispute(ctx context.Context, req ResolveRequest) (*Status, error) {
	if req.Actor.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("arbitration capability required: %w", ErrForbidden)
	}
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	d, res, err := c.ResolveDispute(req.Actor.ID, req.Disposition, now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicDisputeResolved, map[string]any{
		"dispute_id":               d.ID,
		"disposition":              string(req.Disposition.Kind),
		"released_to_agent_minor":  res.ReleasedToAgent.AmountMinor,
		"refunded_to_client_minor": res.RefundedToClient.AmountMinor,
		"resolved_by":              req.Actor.ID,
	})}
	switch c.State {
	case escrow.CaseCompleted:
		events = append(events, e.event(c.ID, TopicCaseCompleted, map[string]any{
			"released_minor": c.Account.ReleasedMinor,
		}))
	case escrow.CaseCancelled:
		events = append(events, e.event(c.ID, TopicCaseCancelled, map[string]any{
			"refunded_minor": c.Account.RefundedMinor,
		}))
	}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// CancelRequest closes an active case and refunds the remainder.
type CancelRequest struct {
	CaseID string
	Reason string
	Actor  Actor
}

// CancelCase refunds the remaining available balance to the client and
// cancels the case. Released milestones keep their payout. Arbitration
// capability is required; mutual cancellation arrives through the
// marketplace service, which calls with its arbiter credential.
func (e *Engine) CancelCase(ctx context.Context, req CancelRequest) (*Status, error) {
	if req.Actor.Role != auth.RoleAdmin {
		return nil, fmt.Errorf("arbitration capability required: %w", ErrForbidden)
	}
	c, err := e.getCase(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	refunded, err := c.Cancel(now)
	if err != nil {
		return nil, err
	}

	events := []notify.Event{e.event(c.ID, TopicCaseCancelled, map[string]any{
		"refunded_minor": refunded.AmountMinor,
		"reason":         req.Reason,
		"cancelled_by":   req.Actor.ID,
	})}
	if err := e.store.UpdateCase(ctx, c, events); err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// GetStatus returns the current read model of a case.
func (e *Engine) GetStatus(ctx context.Context, caseID string) (*Status, error) {
	c, err := e.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// GetStatusByEscrow returns the read model of the case owning the
// escrow account.
func (e *Engine) GetStatusByEscrow(ctx context.Context, escrowID string) (*Status, error) {
	if escrowID == "" {
		return nil, &escrow.ValidationError{Field: "escrow_id", Reason: "must not be empty"}
	}
	c, err := e.store.GetCaseByEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	return StatusOf(c), nil
}

// ListAccounts pages through all escrow accounts, newest first.
func (e *Engine) ListAccounts(ctx context.Context, params ListParams) ([]AccountRecord, int, error) {
	return e.store.ListAccounts(ctx, params.normalize())
}

func (e *Engine) getCase(ctx context.Context, caseID string) (*escrow.Case, error) {
	if caseID == "" {
		return nil, &escrow.ValidationError{Field: "case_id", Reason: "must not be empty"}
	}
	return e.store.GetCase(ctx, caseID)
}

func (e *Engine) event(caseID, topic string, payload map[string]any) notify.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["case_id"] = caseID
	return notify.Event{
		ID:        e.idGen(),
		CaseID:    caseID,
		Topic:     topic,
		Payload:   payload,
		CreatedAt: e.now(),
	}
}
