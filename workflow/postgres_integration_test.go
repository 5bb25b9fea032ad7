package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
)

func TestEscrowLifecycleAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	requiredTables := []string{
		"proposals",
		"proposal_milestones",
		"cases",
		"escrow_accounts",
		"milestones",
		"disputes",
		"payment_refs",
		"case_events",
		"outbox",
	}
	for _, tbl := range requiredTables {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	nano := time.Now().UnixNano()
	proposalID := fmt.Sprintf("prop-int-%d", nano)
	clientID := fmt.Sprintf("client-int-%d", nano)
	agentID := fmt.Sprintf("agent-int-%d", nano)
	paymentRef := fmt.Sprintf("pay-int-%d", nano)

	if _, err := pool.Exec(ctx, `
        INSERT INTO proposals (id, client_id, agent_id, service, currency, status)
        VALUES ($1, $2, $3, 'Work visa application', 'USD', 'accepted')
    `, proposalID, clientID, agentID); err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	for i, m := range []struct {
		title  string
		amount int64
	}{
		{"Document collection", 60000},
		{"Filing", 40000},
	} {
		if _, err := pool.Exec(ctx, `
            INSERT INTO proposal_milestones (proposal_id, idx, title, amount_minor)
            VALUES ($1, $2, $3, $4)
        `, proposalID, i, m.title, m.amount); err != nil {
			t.Fatalf("seed milestone %d: %v", i, err)
		}
	}

	var caseID string

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'case_id' = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM case_events WHERE case_id = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM disputes WHERE case_id = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM milestones WHERE case_id = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM escrow_accounts WHERE case_id = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM payment_refs WHERE ref = $1`, paymentRef)
		pool.Exec(ctx2, `DELETE FROM cases WHERE id = $1`, caseID)
		pool.Exec(ctx2, `DELETE FROM proposal_milestones WHERE proposal_id = $1`, proposalID)
		pool.Exec(ctx2, `DELETE FROM proposals WHERE id = $1`, proposalID)
	})

	store := NewPGStore(pool)
	engine := NewEngine(store, NewPGProposals(pool))

	clientActor := Actor{ID: clientID, Role: auth.RoleClient}
	agentActor := Actor{ID: agentID, Role: auth.RoleAgent}
	arbiterActor := Actor{ID: "arbiter-int", Role: auth.RoleAdmin}

	st, err := engine.FundEscrow(ctx, FundRequest{
		ProposalID: proposalID,
		Amount:     ledger.New(100000, "USD"),
		PaymentRef: paymentRef,
		Actor:      clientActor,
	})
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
	caseID = st.CaseID

	var (
		caseState string
		version   int64
	)
	if err := pool.QueryRow(ctx, `SELECT state, version FROM cases WHERE id = $1`, caseID).Scan(&caseState, &version); err != nil {
		t.Fatalf("inspect case: %v", err)
	}
	if caseState != "active" || version != 1 {
		t.Fatalf("expected active case at version 1, got %s/%d", caseState, version)
	}

	var funded, available int64
	if err := pool.QueryRow(ctx, `
        SELECT funded_minor, funded_minor - released_minor - held_minor - refunded_minor
        FROM escrow_accounts WHERE case_id = $1
    `, caseID).Scan(&funded, &available); err != nil {
		t.Fatalf("inspect account: %v", err)
	}
	if funded != 100000 || available != 100000 {
		t.Fatalf("expected 100000 funded and available, got %d/%d", funded, available)
	}

	var outboxCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = 'case.funded' AND payload->>'case_id' = $1`, caseID).Scan(&outboxCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected one case.funded outbox message, got %d", outboxCount)
	}

	// Replaying the capture must be rejected without touching the case.
	if _, err := engine.FundEscrow(ctx, FundRequest{
		ProposalID: proposalID,
		Amount:     ledger.New(100000, "USD"),
		PaymentRef: paymentRef,
		Actor:      clientActor,
	}); !errors.Is(err, ErrAlreadyFunded) {
		t.Fatalf("replayed ref: expected ErrAlreadyFunded, got %v", err)
	}
	if _, err := engine.FundEscrow(ctx, FundRequest{
		ProposalID: proposalID,
		Amount:     ledger.New(100000, "USD"),
		PaymentRef: paymentRef + "-again",
		Actor:      clientActor,
	}); !errors.Is(err, ErrProposalFunded) {
		t.Fatalf("second funding: expected ErrProposalFunded, got %v", err)
	}

	// Stale writers must lose the version race.
	stale, err := store.GetCase(ctx, caseID)
	if err != nil {
		t.Fatalf("load stale copy: %v", err)
	}

	if _, err := engine.SubmitMilestone(ctx, SubmitRequest{
		CaseID:   caseID,
		Index:    0,
		Evidence: []string{"doc-passport"},
		Actor:    agentActor,
	}); err != nil {
		t.Fatalf("submit milestone: %v", err)
	}
	if err := store.UpdateCase(ctx, stale, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update: expected ErrConflict, got %v", err)
	}

	st, err = engine.ApproveMilestone(ctx, ApproveRequest{CaseID: caseID, Index: 0, Actor: clientActor})
	if err != nil {
		t.Fatalf("approve milestone: %v", err)
	}
	if st.ReleasedMinor != 60000 || st.EscrowState != escrow.AccountPartiallyReleased {
		t.Fatalf("unexpected status after approval: %+v", st)
	}

	var milestoneState string
	if err := pool.QueryRow(ctx, `SELECT state FROM milestones WHERE case_id = $1 AND idx = 0`, caseID).Scan(&milestoneState); err != nil {
		t.Fatalf("inspect milestone: %v", err)
	}
	if milestoneState != "released" {
		t.Fatalf("expected released milestone, got %s", milestoneState)
	}

	st, err = engine.RaiseDispute(ctx, DisputeRequest{
		CaseID:   caseID,
		Reason:   "work stalled",
		Evidence: []string{"email-thread"},
		Actor:    clientActor,
	})
	if err != nil {
		t.Fatalf("raise dispute: %v", err)
	}
	if st.HeldMinor != 40000 {
		t.Fatalf("expected 40000 held, got %d", st.HeldMinor)
	}

	var openDisputes int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM disputes WHERE case_id = $1 AND state = 'open'`, caseID).Scan(&openDisputes); err != nil {
		t.Fatalf("count disputes: %v", err)
	}
	if openDisputes != 1 {
		t.Fatalf("expected one open dispute, got %d", openDisputes)
	}

	st, err = engine.ResolveDispute(ctx, ResolveRequest{
		CaseID:      caseID,
		Disposition: escrow.Disposition{Kind: escrow.DispositionSplit, SplitToAgentPct: 25},
		Actor:       arbiterActor,
	})
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if st.CaseState != escrow.CaseCancelled {
		t.Fatalf("expected cancelled case, got %s", st.CaseState)
	}
	if st.ReleasedMinor != 70000 || st.RefundedMinor != 30000 {
		t.Fatalf("unexpected buckets after split: released %d refunded %d", st.ReleasedMinor, st.RefundedMinor)
	}

	var (
		disputeState  string
		releasedMinor *int64
		refundedMinor *int64
	)
	if err := pool.QueryRow(ctx, `
        SELECT state, released_to_agent_minor, refunded_to_client_minor
        FROM disputes WHERE case_id = $1
    `, caseID).Scan(&disputeState, &releasedMinor, &refundedMinor); err != nil {
		t.Fatalf("inspect dispute: %v", err)
	}
	if disputeState != "resolved_split" {
		t.Fatalf("expected resolved_split, got %s", disputeState)
	}
	if releasedMinor == nil || *releasedMinor != 10000 || refundedMinor == nil || *refundedMinor != 30000 {
		t.Fatalf("resolution amounts not persisted: %v/%v", releasedMinor, refundedMinor)
	}

	var eventCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM case_events WHERE case_id = $1`, caseID).Scan(&eventCount); err != nil {
		t.Fatalf("count case events: %v", err)
	}
	// funded, submitted, approved, released, dispute raised, dispute
	// resolved, case cancelled.
	if eventCount != 7 {
		t.Fatalf("expected 7 case events, got %d", eventCount)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
