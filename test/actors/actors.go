// Package actors hosts the concurrent workload for the escrow stress run.
// Each actor loops until stop closes and drives the workflow engine the
// way a marketplace caller would. Losing a version race or hitting a
// state gate is a normal outcome under contention; only violations and
// unexpected failures are surfaced.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/workflow"
)

// Tracker points the actors at the live case for the contended proposal.
// The funder replaces the case after a terminal settlement, so everyone
// else reads the current id from here.
type Tracker struct {
	mu     sync.Mutex
	caseID string
}

func (t *Tracker) Set(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.caseID = id
}

func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caseID
}

// contention reports whether err is an expected loser outcome under
// concurrent load rather than a bug.
func contention(err error) bool {
	var (
		milestoneErr *escrow.MilestoneStateError
		caseErr      *escrow.CaseStateError
		accountErr   *escrow.AccountStateError
	)
	return errors.Is(err, workflow.ErrConflict) ||
		errors.Is(err, workflow.ErrAlreadyFunded) ||
		errors.Is(err, workflow.ErrProposalFunded) ||
		errors.Is(err, workflow.ErrCaseNotFound) ||
		errors.Is(err, escrow.ErrAlreadyOnHold) ||
		errors.Is(err, escrow.ErrNoOpenDispute) ||
		errors.As(err, &milestoneErr) ||
		errors.As(err, &caseErr) ||
		errors.As(err, &accountErr)
}

// transient reports whether err looks like fallout from the chaos actor
// killing a backend rather than an application failure.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "57P01" || pgErr.Code == "40001" || strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "unexpected EOF")
}

func tolerate(err error) error {
	if err == nil || contention(err) || transient(err) {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func jitter(base, spread int) {
	time.Sleep(time.Duration(base+rand.Intn(spread)) * time.Millisecond)
}

// Funder keeps the contended proposal funded. Whenever its case settles
// it funds a replacement, and every few iterations it replays an old
// payment reference to probe the dedup guarantee.
func Funder(ctx context.Context, engine *workflow.Engine, proposalID string, client workflow.Actor, tracker *Tracker, stop <-chan struct{}) error {
	var usedRefs []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		ref := "pay-" + uuid.NewString()
		st, err := engine.FundEscrow(ctx, workflow.FundRequest{
			ProposalID: proposalID,
			Amount:     ledger.New(200000, "USD"),
			PaymentRef: ref,
			Actor:      client,
		})
		switch {
		case err == nil:
			usedRefs = append(usedRefs, ref)
			tracker.Set(st.CaseID)
		default:
			if terr := tolerate(err); terr != nil {
				return fmt.Errorf("funder: %w", terr)
			}
		}

		if len(usedRefs) > 0 && rand.Intn(8) == 0 {
			replay := usedRefs[rand.Intn(len(usedRefs))]
			if _, err := engine.FundEscrow(ctx, workflow.FundRequest{
				ProposalID: proposalID,
				Amount:     ledger.New(200000, "USD"),
				PaymentRef: replay,
				Actor:      client,
			}); err == nil {
				return fmt.Errorf("funder: payment ref %s applied twice", replay)
			}
		}
		jitter(40, 60)
	}
}

// Onboarder steadily creates and funds fresh proposals so listings and
// oracles see a growing population of independent cases.
func Onboarder(ctx context.Context, engine *workflow.Engine, pool *pgxpool.Pool, clientID, agentID string, stop <-chan struct{}) error {
	client := workflow.Actor{ID: clientID, Role: auth.RoleClient}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		proposalID := "prop-" + uuid.NewString()
		if _, err := pool.Exec(ctx, `
            INSERT INTO proposals (id, client_id, agent_id, service, currency, status)
            VALUES ($1, $2, $3, 'Visa support', 'USD', 'accepted')
        `, proposalID, clientID, agentID); err != nil {
			if terr := tolerate(err); terr != nil {
				return fmt.Errorf("onboarder: seed proposal: %w", terr)
			}
			jitter(50, 100)
			continue
		}

		var total int64
		n := 1 + rand.Intn(3)
		ok := true
		for i := 0; i < n; i++ {
			amount := int64(10000 + rand.Intn(5)*10000)
			total += amount
			if _, err := pool.Exec(ctx, `
                INSERT INTO proposal_milestones (proposal_id, idx, title, amount_minor)
                VALUES ($1, $2, $3, $4)
            `, proposalID, i, fmt.Sprintf("Stage %d", i+1), amount); err != nil {
				if terr := tolerate(err); terr != nil {
					return fmt.Errorf("onboarder: seed milestone: %w", terr)
				}
				ok = false
				break
			}
		}
		if ok {
			_, err := engine.FundEscrow(ctx, workflow.FundRequest{
				ProposalID: proposalID,
				Amount:     ledger.New(total, "USD"),
				PaymentRef: "pay-" + uuid.NewString(),
				Actor:      client,
			})
			if terr := tolerate(err); terr != nil {
				return fmt.Errorf("onboarder: fund: %w", terr)
			}
		}
		jitter(120, 120)
	}
}

// Submitter plays the agent: it keeps submitting work for whichever
// milestone will take it.
func Submitter(ctx context.Context, engine *workflow.Engine, tracker *Tracker, agent workflow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		caseID := tracker.Current()
		if caseID == "" {
			jitter(20, 20)
			continue
		}
		_, err := engine.SubmitMilestone(ctx, workflow.SubmitRequest{
			CaseID:   caseID,
			Index:    rand.Intn(4),
			Evidence: []string{"doc-" + uuid.NewString()},
			Actor:    agent,
		})
		if terr := tolerate(err); terr != nil {
			return fmt.Errorf("submitter: %w", terr)
		}
		jitter(15, 35)
	}
}

// Approver plays the client: mostly approves submitted work, sometimes
// rejects it to force resubmission churn.
func Approver(ctx context.Context, engine *workflow.Engine, tracker *Tracker, client workflow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		caseID := tracker.Current()
		if caseID == "" {
			jitter(20, 20)
			continue
		}
		index := rand.Intn(4)
		var err error
		if rand.Intn(5) == 0 {
			_, err = engine.RejectMilestone(ctx, workflow.RejectRequest{
				CaseID: caseID,
				Index:  index,
				Reason: "needs rework",
				Actor:  client,
			})
		} else {
			_, err = engine.ApproveMilestone(ctx, workflow.ApproveRequest{
				CaseID: caseID,
				Index:  index,
				Actor:  client,
			})
		}
		if terr := tolerate(err); terr != nil {
			return fmt.Errorf("approver: %w", terr)
		}
		jitter(20, 40)
	}
}

// Disputer occasionally freezes the case from either side of the table.
func Disputer(ctx context.Context, engine *workflow.Engine, tracker *Tracker, party workflow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		caseID := tracker.Current()
		if caseID == "" {
			jitter(50, 50)
			continue
		}
		_, err := engine.RaiseDispute(ctx, workflow.DisputeRequest{
			CaseID: caseID,
			Reason: "stress dispute",
			Actor:  party,
		})
		if terr := tolerate(err); terr != nil {
			return fmt.Errorf("disputer: %w", terr)
		}
		jitter(150, 250)
	}
}

// Resolver plays the arbiter and settles whatever dispute is open.
func Resolver(ctx context.Context, engine *workflow.Engine, tracker *Tracker, arbiter workflow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		caseID := tracker.Current()
		if caseID == "" {
			jitter(50, 50)
			continue
		}
		disposition := escrow.Disposition{Kind: escrow.DispositionRelease}
		switch rand.Intn(5) {
		case 0, 1:
			disposition = escrow.Disposition{Kind: escrow.DispositionRefund}
		case 2, 3:
			disposition = escrow.Disposition{
				Kind:            escrow.DispositionSplit,
				SplitToAgentPct: int64(1 + rand.Intn(99)),
			}
		}
		_, err := engine.ResolveDispute(ctx, workflow.ResolveRequest{
			CaseID:      caseID,
			Disposition: disposition,
			Actor:       arbiter,
		})
		if terr := tolerate(err); terr != nil {
			return fmt.Errorf("resolver: %w", terr)
		}
		jitter(200, 300)
	}
}

// StatusReader keeps read pressure on the aggregate load path and the
// account listing while writers churn.
func StatusReader(ctx context.Context, engine *workflow.Engine, tracker *Tracker, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		if caseID := tracker.Current(); caseID != "" {
			if _, err := engine.GetStatus(ctx, caseID); err != nil {
				if terr := tolerate(err); terr != nil {
					return fmt.Errorf("status reader: %w", terr)
				}
			}
		}
		if _, _, err := engine.ListAccounts(ctx, workflow.ListParams{Page: 1 + rand.Intn(3), Limit: 10}); err != nil {
			if terr := tolerate(err); terr != nil {
				return fmt.Errorf("status reader: list: %w", terr)
			}
		}
		jitter(30, 50)
	}
}

// OutboxWorker drains the outbox through the notify pipeline with a
// deliberately flaky sink so retry and dead-letter paths get exercised.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	outbox := notify.NewPGOutbox(pool)
	deliver := func(_ context.Context, _ notify.Message) error {
		if rand.Intn(10) == 0 {
			return fmt.Errorf("synthetic delivery failure")
		}
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		if _, err := outbox.Drain(ctx, 10, deliver); err != nil {
			if terr := tolerate(err); terr != nil {
				return fmt.Errorf("outbox worker: %w", terr)
			}
		}
		jitter(80, 60)
	}
}
