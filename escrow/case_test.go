package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

var caseEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newVisaCase funds the standard fixture: a 2000.00 USD engagement with
// four equal milestones.
func newVisaCase(t *testing.T) *Case {
	t.Helper()
	plan := []MilestoneSpec{
		{Title: "Document collection", AmountMinor: 50000},
		{Title: "Application draft", AmountMinor: 50000},
		{Title: "Filing", AmountMinor: 50000},
		{Title: "Decision follow-up", AmountMinor: 50000},
	}
	c, err := NewCase("case-1", "esc-1", "prop-1", "client-1", "agent-1", ledger.New(200000, "USD"), plan, caseEpoch)
	if err != nil {
		t.Fatalf("new case: unexpected error: %v", err)
	}
	return c
}

func TestNewCase_FundsAccountAndPlan(t *testing.T) {
	c := newVisaCase(t)

	if c.State != CaseActive {
		t.Fatalf("expected active, got %s", c.State)
	}
	if c.Account.State != AccountFunded {
		t.Fatalf("expected funded account, got %s", c.Account.State)
	}
	if c.Account.Available().AmountMinor != 200000 {
		t.Fatalf("expected available 200000, got %d", c.Account.Available().AmountMinor)
	}
	if len(c.Milestones) != 4 {
		t.Fatalf("expected 4 milestones, got %d", len(c.Milestones))
	}
	for i, m := range c.Milestones {
		if m.State != MilestonePending {
			t.Fatalf("milestone %d: expected pending, got %s", i, m.State)
		}
		if m.Index != i {
			t.Fatalf("milestone %d: index recorded as %d", i, m.Index)
		}
	}
	if c.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", c.Version)
	}
}

func TestNewCase_PlanMustCoverFunding(t *testing.T) {
	plan := []MilestoneSpec{
		{Title: "Half", AmountMinor: 50000},
		{Title: "Short", AmountMinor: 40000},
	}
	_, err := NewCase("case-1", "esc-1", "prop-1", "client-1", "agent-1", ledger.New(100000, "USD"), plan, caseEpoch)
	var me *MilestoneSumMismatchError
	if !errors.As(err, &me) {
		t.Fatalf("expected MilestoneSumMismatchError, got %v", err)
	}
	if me.Sum.AmountMinor != 90000 || me.Funded.AmountMinor != 100000 {
		t.Fatalf("error fields wrong: %+v", me)
	}
}

func TestNewCase_Validation(t *testing.T) {
	plan := []MilestoneSpec{{Title: "All", AmountMinor: 1000}}
	var ve *ValidationError

	if _, err := NewCase("", "esc-1", "prop-1", "c", "a", ledger.New(1000, "USD"), plan, caseEpoch); !errors.As(err, &ve) {
		t.Fatalf("empty case id: expected ValidationError, got %v", err)
	}
	if _, err := NewCase("case-1", "esc-1", "prop-1", "c", "a", ledger.New(1000, "USD"), nil, caseEpoch); !errors.As(err, &ve) {
		t.Fatalf("empty plan: expected ValidationError, got %v", err)
	}
	if _, err := NewCase("case-1", "esc-1", "prop-1", "c", "a", ledger.New(0, "USD"), plan, caseEpoch); !errors.As(err, &ve) {
		t.Fatalf("zero funding: expected ValidationError, got %v", err)
	}
	bad := []MilestoneSpec{{Title: "", AmountMinor: 1000}}
	if _, err := NewCase("case-1", "esc-1", "prop-1", "c", "a", ledger.New(1000, "USD"), bad, caseEpoch); !errors.As(err, &ve) {
		t.Fatalf("empty title: expected ValidationError, got %v", err)
	}
}

func TestCase_MilestoneSubmitApproveRelease(t *testing.T) {
	c := newVisaCase(t)
	now := caseEpoch.Add(time.Hour)

	m, err := c.SubmitMilestone(0, []string{"doc-passport"}, "all documents uploaded", now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if m.State != MilestoneSubmitted || m.SubmittedAt == nil {
		t.Fatalf("submit not recorded: %+v", m)
	}

	m, completed, err := c.ApproveMilestone(0, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if completed {
		t.Fatal("case must not complete with milestones remaining")
	}
	if m.State != MilestoneReleased {
		t.Fatalf("expected released, got %s", m.State)
	}
	if c.Account.ReleasedMinor != 50000 {
		t.Fatalf("expected released 50000, got %d", c.Account.ReleasedMinor)
	}
	if c.Account.State != AccountPartiallyReleased {
		t.Fatalf("expected partially_released, got %s", c.Account.State)
	}
	if c.Progress() != 25 {
		t.Fatalf("expected progress 25, got %d", c.Progress())
	}
}

func TestCase_ApproveRequiresSubmission(t *testing.T) {
	c := newVisaCase(t)

	_, _, err := c.ApproveMilestone(1, caseEpoch)
	var me *MilestoneStateError
	if !errors.As(err, &me) {
		t.Fatalf("expected MilestoneStateError, got %v", err)
	}
	if me.Index != 1 || me.State != MilestonePending {
		t.Fatalf("error fields wrong: %+v", me)
	}
	if c.Account.ReleasedMinor != 0 {
		t.Fatal("failed approval must not release funds")
	}
}

func TestCase_ApproveTwiceFails(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(0, nil, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := c.ApproveMilestone(0, caseEpoch); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, _, err := c.ApproveMilestone(0, caseEpoch)
	var me *MilestoneStateError
	if !errors.As(err, &me) {
		t.Fatalf("expected MilestoneStateError on double approve, got %v", err)
	}
	if c.Account.ReleasedMinor != 50000 {
		t.Fatalf("double approve must not double release, got %d", c.Account.ReleasedMinor)
	}
}

func TestCase_RejectThenResubmit(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(0, []string{"draft-v1"}, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}

	m, err := c.RejectMilestone(0, "missing translation", caseEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if m.State != MilestoneRejected || m.RejectionReason != "missing translation" {
		t.Fatalf("reject not recorded: %+v", m)
	}

	m, err = c.SubmitMilestone(0, []string{"draft-v2"}, "translation added", caseEpoch.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if m.State != MilestoneSubmitted {
		t.Fatalf("expected submitted after resubmit, got %s", m.State)
	}
	if m.RejectionReason != "" || m.RejectedAt != nil {
		t.Fatal("resubmission must clear the rejection")
	}
	if len(m.Evidence) != 2 {
		t.Fatalf("evidence must accumulate, got %v", m.Evidence)
	}

	if _, err := c.RejectMilestone(0, "", caseEpoch); err == nil {
		t.Fatal("expected validation error for empty reason")
	}
}

func TestCase_AllMilestonesReleasedCompletes(t *testing.T) {
	c := newVisaCase(t)

	for i := 0; i < 4; i++ {
		if _, err := c.SubmitMilestone(i, nil, "", caseEpoch); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		_, completed, err := c.ApproveMilestone(i, caseEpoch)
		if err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
		if want := i == 3; completed != want {
			t.Fatalf("approve %d: completed=%v want %v", i, completed, want)
		}
	}

	if c.State != CaseCompleted {
		t.Fatalf("expected completed, got %s", c.State)
	}
	if c.Account.State != AccountFullyReleased {
		t.Fatalf("expected fully_released, got %s", c.Account.State)
	}
	if c.Progress() != 100 {
		t.Fatalf("expected progress 100, got %d", c.Progress())
	}

	var se *CaseStateError
	if _, err := c.SubmitMilestone(0, nil, "", caseEpoch); !errors.As(err, &se) {
		t.Fatalf("submit after completion: expected CaseStateError, got %v", err)
	}
}

func TestCase_DisputeHoldsRemainderAndFreezesApproval(t *testing.T) {
	c := newVisaCase(t)

	// Release the first milestone, then dispute the rest.
	if _, err := c.SubmitMilestone(0, nil, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := c.ApproveMilestone(0, caseEpoch); err != nil {
		t.Fatalf("approve: %v", err)
	}

	d, err := c.RaiseDispute("disp-1", "client-1", PartyClient, "work stalled", "no response for two weeks", []string{"email-thread"}, caseEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("raise dispute: %v", err)
	}
	if c.State != CaseDisputed {
		t.Fatalf("expected disputed, got %s", c.State)
	}
	if d.HeldMinor != 150000 {
		t.Fatalf("expected hold of 150000, got %d", d.HeldMinor)
	}
	if c.Account.State != AccountOnHold || c.Account.HeldMinor != 150000 {
		t.Fatalf("account not held: %+v", c.Account)
	}

	// Work can still be submitted, but money cannot move.
	if _, err := c.SubmitMilestone(1, []string{"draft"}, "", caseEpoch); err != nil {
		t.Fatalf("submit during dispute: %v", err)
	}
	var se *CaseStateError
	if _, _, err := c.ApproveMilestone(1, caseEpoch); !errors.As(err, &se) {
		t.Fatalf("approve during dispute: expected CaseStateError, got %v", err)
	}

	if _, err := c.RaiseDispute("disp-2", "agent-1", PartyAgent, "counter", "", nil, caseEpoch); !errors.Is(err, ErrAlreadyOnHold) {
		t.Fatalf("second dispute: expected ErrAlreadyOnHold, got %v", err)
	}
}

func TestCase_ResolveDisputeSplit(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(0, nil, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := c.ApproveMilestone(0, caseEpoch); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := c.RaiseDispute("disp-1", "client-1", PartyClient, "quality", "", nil, caseEpoch); err != nil {
		t.Fatalf("raise: %v", err)
	}

	dis, res, err := c.ResolveDispute("arbiter-1", Disposition{Kind: DispositionSplit, SplitToAgentPct: 40}, caseEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ReleasedToAgent.AmountMinor != 60000 || res.RefundedToClient.AmountMinor != 90000 {
		t.Fatalf("unexpected split: %+v", res)
	}
	if dis.State != DisputeResolvedSplit || dis.ResolvedBy != "arbiter-1" || dis.ResolvedAt == nil {
		t.Fatalf("resolution not recorded: %+v", dis)
	}
	if c.State != CaseCancelled {
		t.Fatalf("expected cancelled after split, got %s", c.State)
	}
	if c.Dispute != nil || len(c.Disputes) != 1 {
		t.Fatal("resolved dispute must move to history")
	}
	// 50000 milestone release + 60000 split share.
	if c.Account.ReleasedMinor != 110000 || c.Account.RefundedMinor != 90000 {
		t.Fatalf("unexpected buckets: released %d refunded %d", c.Account.ReleasedMinor, c.Account.RefundedMinor)
	}
	if !c.Account.Available().IsZero() || c.Account.HeldMinor != 0 {
		t.Fatal("resolution must settle the full hold")
	}
}

func TestCase_ResolveDisputeReleaseCompletes(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.RaiseDispute("disp-1", "agent-1", PartyAgent, "client unresponsive", "", nil, caseEpoch); err != nil {
		t.Fatalf("raise: %v", err)
	}

	_, res, err := c.ResolveDispute("arbiter-1", Disposition{Kind: DispositionRelease}, caseEpoch)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.ReleasedToAgent.AmountMinor != 200000 {
		t.Fatalf("expected full release, got %+v", res)
	}
	if c.State != CaseCompleted {
		t.Fatalf("expected completed, got %s", c.State)
	}
	if c.Account.State != AccountFullyReleased {
		t.Fatalf("expected fully_released, got %s", c.Account.State)
	}
	// The verdict pays out the balance; milestone records stay as the
	// work log and are not force-advanced.
	if c.Milestones[0].State != MilestonePending {
		t.Fatalf("milestones must not be force-advanced, got %s", c.Milestones[0].State)
	}
}

func TestCase_ResolveWithoutDispute(t *testing.T) {
	c := newVisaCase(t)
	if _, _, err := c.ResolveDispute("arbiter-1", Disposition{Kind: DispositionRefund}, caseEpoch); !errors.Is(err, ErrNoOpenDispute) {
		t.Fatalf("expected ErrNoOpenDispute, got %v", err)
	}
}

func TestCase_CancelRefundsRemainder(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(0, nil, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := c.ApproveMilestone(0, caseEpoch); err != nil {
		t.Fatalf("approve: %v", err)
	}

	refunded, err := c.Cancel(caseEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refunded.AmountMinor != 150000 {
		t.Fatalf("expected refund of 150000, got %d", refunded.AmountMinor)
	}
	if c.State != CaseCancelled {
		t.Fatalf("expected cancelled, got %s", c.State)
	}
	// Released work keeps its payout.
	if c.Account.ReleasedMinor != 50000 || c.Account.RefundedMinor != 150000 {
		t.Fatalf("unexpected buckets: %+v", c.Account)
	}

	var se *CaseStateError
	if _, err := c.Cancel(caseEpoch); !errors.As(err, &se) {
		t.Fatalf("second cancel: expected CaseStateError, got %v", err)
	}
}

func TestCase_MilestoneIndexOutOfRange(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(4, nil, "", caseEpoch); !errors.Is(err, ErrMilestoneIndex) {
		t.Fatalf("expected ErrMilestoneIndex, got %v", err)
	}
	if _, err := c.SubmitMilestone(-1, nil, "", caseEpoch); !errors.Is(err, ErrMilestoneIndex) {
		t.Fatalf("expected ErrMilestoneIndex for negative index, got %v", err)
	}
}

func TestCase_Party(t *testing.T) {
	c := newVisaCase(t)
	if p, ok := c.Party("client-1"); !ok || p != PartyClient {
		t.Fatalf("expected client party, got %v %v", p, ok)
	}
	if p, ok := c.Party("agent-1"); !ok || p != PartyAgent {
		t.Fatalf("expected agent party, got %v %v", p, ok)
	}
	if _, ok := c.Party("stranger"); ok {
		t.Fatal("stranger must not match a party")
	}
}

func TestCase_CloneIsolation(t *testing.T) {
	c := newVisaCase(t)
	if _, err := c.SubmitMilestone(0, []string{"doc"}, "", caseEpoch); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := c.RaiseDispute("disp-1", "client-1", PartyClient, "reason", "", nil, caseEpoch); err != nil {
		t.Fatalf("raise: %v", err)
	}

	clone := c.Clone()
	clone.Milestones[0].Evidence[0] = "tampered"
	clone.Dispute.Reason = "tampered"
	clone.Account.ReleasedMinor = 999

	if c.Milestones[0].Evidence[0] != "doc" {
		t.Fatal("clone shares milestone evidence with the original")
	}
	if c.Dispute.Reason != "reason" {
		t.Fatal("clone shares dispute with the original")
	}
	if c.Account.ReleasedMinor != 0 {
		t.Fatal("clone shares account with the original")
	}
}
