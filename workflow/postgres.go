package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
)

// PGStore persists case aggregates in Postgres. Every write happens in
// one transaction together with the case event log and the outbox rows.
// UpdateCase guards against concurrent writers with a version
// compare-and-swap on the cases row.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateCase(ctx context.Context, c *escrow.Case, paymentRef string, events []notify.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	// Consuming the payment reference first makes funding idempotent:
	// a replayed capture hits the primary key and nothing else runs.
	if _, err := tx.Exec(ctx, `INSERT INTO payment_refs (ref, case_id, created_at) VALUES ($1,$2,$3)`,
		paymentRef, c.ID, c.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyFunded
		}
		return fmt.Errorf("workflow: consume payment ref: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO cases (id, proposal_id, client_id, agent_id, state, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5::case_state,$6,$7,$8)
    `, c.ID, c.ProposalID, c.ClientID, c.AgentID, string(c.State), c.Version, c.CreatedAt, c.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrProposalFunded
		}
		return fmt.Errorf("workflow: insert case: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO escrow_accounts (id, case_id, currency, funded_minor, released_minor, held_minor, refunded_minor, state, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8::escrow_state,$9)
    `, c.Account.ID, c.ID, c.Account.Currency, c.Account.FundedMinor, c.Account.ReleasedMinor,
		c.Account.HeldMinor, c.Account.RefundedMinor, string(c.Account.State), c.Account.CreatedAt); err != nil {
		return fmt.Errorf("workflow: insert account: %w", err)
	}

	for i := range c.Milestones {
		m := &c.Milestones[i]
		if _, err := tx.Exec(ctx, `
            INSERT INTO milestones (case_id, idx, title, amount_minor, state, evidence, notes, rejection_reason)
            VALUES ($1,$2,$3,$4,$5::milestone_state,$6,$7,$8)
        `, c.ID, m.Index, m.Title, m.Amount.AmountMinor, string(m.State), m.Evidence, m.Notes, m.RejectionReason); err != nil {
			return fmt.Errorf("workflow: insert milestone %d: %w", m.Index, err)
		}
	}

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit create: %w", err)
	}
	return nil
}

func (s *PGStore) GetCase(ctx context.Context, caseID string) (*escrow.Case, error) {
	return s.load(ctx, caseID)
}

func (s *PGStore) GetCaseByEscrow(ctx context.Context, escrowID string) (*escrow.Case, error) {
	var caseID string
	err := s.pool.QueryRow(ctx, `SELECT case_id::text FROM escrow_accounts WHERE id=$1`, escrowID).Scan(&caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("workflow: resolve escrow id: %w", err)
	}
	return s.load(ctx, caseID)
}

// load reads the whole aggregate inside a repeatable-read transaction
// so the buckets, milestones, and disputes come from one snapshot.
func (s *PGStore) load(ctx context.Context, caseID string) (*escrow.Case, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("workflow: begin load: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &escrow.Case{}
	var caseState string
	err = tx.QueryRow(ctx, `
        SELECT id::text, proposal_id::text, client_id, agent_id, state::text, version, created_at, updated_at
        FROM cases WHERE id=$1
    `, caseID).Scan(&c.ID, &c.ProposalID, &c.ClientID, &c.AgentID, &caseState, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("workflow: load case: %w", err)
	}
	c.State = escrow.CaseState(caseState)

	var accountState string
	err = tx.QueryRow(ctx, `
        SELECT id::text, currency, funded_minor, released_minor, held_minor, refunded_minor, state::text, created_at
        FROM escrow_accounts WHERE case_id=$1
    `, caseID).Scan(&c.Account.ID, &c.Account.Currency, &c.Account.FundedMinor, &c.Account.ReleasedMinor,
		&c.Account.HeldMinor, &c.Account.RefundedMinor, &accountState, &c.Account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("workflow: load account: %w", err)
	}
	c.Account.State = escrow.AccountState(accountState)
	c.Account.CaseID = c.ID

	rows, err := tx.Query(ctx, `
        SELECT idx, title, amount_minor, state::text, evidence, notes, submitted_at, approved_at, rejected_at, rejection_reason
        FROM milestones WHERE case_id=$1 ORDER BY idx
    `, caseID)
	if err != nil {
		return nil, fmt.Errorf("workflow: load milestones: %w", err)
	}
	for rows.Next() {
		var (
			m           escrow.Milestone
			state       string
			amountMinor int64
		)
		if err := rows.Scan(&m.Index, &m.Title, &amountMinor, &state, &m.Evidence, &m.Notes,
			&m.SubmittedAt, &m.ApprovedAt, &m.RejectedAt, &m.RejectionReason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("workflow: scan milestone: %w", err)
		}
		m.Amount = ledger.New(amountMinor, c.Account.Currency)
		m.State = escrow.MilestoneState(state)
		c.Milestones = append(c.Milestones, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: read milestones: %w", err)
	}

	rows, err = tx.Query(ctx, `
        SELECT id::text, raised_by, raised_party, reason, description, evidence, state::text, held_minor,
               resolved_by, released_to_agent_minor, refunded_to_client_minor, opened_at, resolved_at
        FROM disputes WHERE case_id=$1 ORDER BY opened_at, id
    `, caseID)
	if err != nil {
		return nil, fmt.Errorf("workflow: load disputes: %w", err)
	}
	for rows.Next() {
		var (
			d           escrow.Dispute
			party       string
			state       string
			releasedMin *int64
			refundedMin *int64
		)
		if err := rows.Scan(&d.ID, &d.RaisedBy, &party, &d.Reason, &d.Description, &d.Evidence, &state,
			&d.HeldMinor, &d.ResolvedBy, &releasedMin, &refundedMin, &d.OpenedAt, &d.ResolvedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("workflow: scan dispute: %w", err)
		}
		d.CaseID = c.ID
		d.RaisedParty = escrow.Party(party)
		d.State = escrow.DisputeState(state)
		if releasedMin != nil && refundedMin != nil {
			d.Resolution = &escrow.Resolution{
				ReleasedToAgent:  ledger.New(*releasedMin, c.Account.Currency),
				RefundedToClient: ledger.New(*refundedMin, c.Account.Currency),
			}
		}
		if d.State == escrow.DisputeOpen {
			open := d
			c.Dispute = &open
		} else {
			c.Disputes = append(c.Disputes, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow: read disputes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workflow: commit load: %w", err)
	}
	return c, nil
}

func (s *PGStore) UpdateCase(ctx context.Context, c *escrow.Case, events []notify.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("workflow: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE cases SET state=$1::case_state, version=version+1, updated_at=$2
        WHERE id=$3 AND version=$4
    `, string(c.State), c.UpdatedAt, c.ID, c.Version)
	if err != nil {
		return fmt.Errorf("workflow: update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("workflow: check case exists: %w", err)
		}
		if !exists {
			return ErrCaseNotFound
		}
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
        UPDATE escrow_accounts
        SET released_minor=$1, held_minor=$2, refunded_minor=$3, state=$4::escrow_state
        WHERE case_id=$5
    `, c.Account.ReleasedMinor, c.Account.HeldMinor, c.Account.RefundedMinor, string(c.Account.State), c.ID); err != nil {
		return fmt.Errorf("workflow: update account: %w", err)
	}

	for i := range c.Milestones {
		m := &c.Milestones[i]
		if _, err := tx.Exec(ctx, `
            UPDATE milestones
            SET state=$1::milestone_state, evidence=$2, notes=$3, submitted_at=$4, approved_at=$5, rejected_at=$6, rejection_reason=$7
            WHERE case_id=$8 AND idx=$9
        `, string(m.State), m.Evidence, m.Notes, m.SubmittedAt, m.ApprovedAt, m.RejectedAt, m.RejectionReason,
			c.ID, m.Index); err != nil {
			return fmt.Errorf("workflow: update milestone %d: %w", m.Index, err)
		}
	}

	if c.Dispute != nil {
		if err := upsertDispute(ctx, tx, c.ID, c.Dispute); err != nil {
			return err
		}
	}
	for i := range c.Disputes {
		if err := upsertDispute(ctx, tx, c.ID, &c.Disputes[i]); err != nil {
			return err
		}
	}

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("workflow: commit update: %w", err)
	}
	c.Version++
	return nil
}

func (s *PGStore) ListAccounts(ctx context.Context, params ListParams) ([]AccountRecord, int, error) {
	params = params.normalize()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("workflow: count accounts: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT ea.id::text, ea.case_id::text, c.proposal_id::text, c.client_id, c.agent_id, ea.currency,
               ea.funded_minor, ea.released_minor, ea.held_minor, ea.refunded_minor,
               ea.state::text, c.state::text, ea.created_at
        FROM escrow_accounts ea
        JOIN cases c ON c.id = ea.case_id
        ORDER BY ea.created_at DESC, ea.id DESC
        LIMIT $1 OFFSET $2
    `, params.Limit, (params.Page-1)*params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("workflow: list accounts: %w", err)
	}
	defer rows.Close()

	records := make([]AccountRecord, 0, params.Limit)
	for rows.Next() {
		var rec AccountRecord
		if err := rows.Scan(&rec.EscrowID, &rec.CaseID, &rec.ProposalID, &rec.ClientID, &rec.AgentID,
			&rec.Currency, &rec.FundedMinor, &rec.ReleasedMinor, &rec.HeldMinor, &rec.RefundedMinor,
			&rec.State, &rec.CaseState, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("workflow: scan account: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("workflow: read accounts: %w", err)
	}
	return records, total, nil
}

func upsertDispute(ctx context.Context, tx pgx.Tx, caseID string, d *escrow.Dispute) error {
	var releasedMin, refundedMin *int64
	if d.Resolution != nil {
		released := d.Resolution.ReleasedToAgent.AmountMinor
		refunded := d.Resolution.RefundedToClient.AmountMinor
		releasedMin = &released
		refundedMin = &refunded
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO disputes (id, case_id, raised_by, raised_party, reason, description, evidence, state, held_minor,
                              resolved_by, released_to_agent_minor, refunded_to_client_minor, opened_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8::dispute_state,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (id) DO UPDATE
        SET state=EXCLUDED.state,
            resolved_by=EXCLUDED.resolved_by,
            released_to_agent_minor=EXCLUDED.released_to_agent_minor,
            refunded_to_client_minor=EXCLUDED.refunded_to_client_minor,
            resolved_at=EXCLUDED.resolved_at
    `, d.ID, caseID, d.RaisedBy, string(d.RaisedParty), d.Reason, d.Description, d.Evidence, string(d.State),
		d.HeldMinor, d.ResolvedBy, releasedMin, refundedMin, d.OpenedAt, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("workflow: upsert dispute: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []notify.Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("workflow: encode event %s: %w", ev.Topic, err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO case_events (id, case_id, topic, payload, created_at)
            VALUES ($1,$2,$3,$4::jsonb,$5)
        `, ev.ID, ev.CaseID, ev.Topic, string(payload), ev.CreatedAt); err != nil {
			return fmt.Errorf("workflow: insert case event: %w", err)
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO outbox (id, topic, payload, created_at)
            VALUES ($1,$2,$3::jsonb,$4)
        `, ev.ID, ev.Topic, string(payload), ev.CreatedAt); err != nil {
			return fmt.Errorf("workflow: enqueue outbox: %w", err)
		}
	}
	return nil
}

// PGProposals reads accepted proposals and their milestone plans.
type PGProposals struct {
	pool *pgxpool.Pool
}

func NewPGProposals(pool *pgxpool.Pool) *PGProposals {
	return &PGProposals{pool: pool}
}

func (s *PGProposals) Lookup(ctx context.Context, proposalID string) (Proposal, error) {
	var p Proposal
	err := s.pool.QueryRow(ctx, `
        SELECT id::text, client_id, agent_id, service, currency
        FROM proposals WHERE id=$1 AND status='accepted'
    `, proposalID).Scan(&p.ID, &p.ClientID, &p.AgentID, &p.Service, &p.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrProposalNotFound
		}
		return Proposal{}, fmt.Errorf("workflow: load proposal: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT title, amount_minor FROM proposal_milestones WHERE proposal_id=$1 ORDER BY idx
    `, proposalID)
	if err != nil {
		return Proposal{}, fmt.Errorf("workflow: load proposal milestones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var spec escrow.MilestoneSpec
		if err := rows.Scan(&spec.Title, &spec.AmountMinor); err != nil {
			return Proposal{}, fmt.Errorf("workflow: scan proposal milestone: %w", err)
		}
		p.Milestones = append(p.Milestones, spec)
	}
	if err := rows.Err(); err != nil {
		return Proposal{}, fmt.Errorf("workflow: read proposal milestones: %w", err)
	}
	return p, nil
}
