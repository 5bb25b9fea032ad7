// Package oracles holds the SQL invariants the stress run checks while
// the actors churn. Every query returns rows only when an invariant is
// violated.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_money_conservation",
			SQL: `SELECT id, funded_minor, released_minor, held_minor, refunded_minor
                  FROM escrow_accounts
                  WHERE funded_minor < 0 OR released_minor < 0 OR held_minor < 0 OR refunded_minor < 0
                     OR released_minor + held_minor + refunded_minor > funded_minor`,
		},
		{
			Name: "O2_one_live_case_per_proposal",
			SQL: `SELECT proposal_id, COUNT(*) FROM cases
                  WHERE state IN ('active','disputed')
                  GROUP BY proposal_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_one_open_dispute_per_case",
			SQL: `SELECT case_id, COUNT(*) FROM disputes
                  WHERE state = 'open'
                  GROUP BY case_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_plan_covers_funding",
			SQL: `SELECT c.id FROM cases c
                  JOIN escrow_accounts ea ON ea.case_id = c.id
                  JOIN (SELECT case_id, SUM(amount_minor) AS total FROM milestones GROUP BY case_id) m
                    ON m.case_id = c.id
                  WHERE m.total <> ea.funded_minor`,
		},
		{
			Name: "O5_released_covers_milestones",
			SQL: `SELECT c.id FROM cases c
                  JOIN escrow_accounts ea ON ea.case_id = c.id
                  JOIN (SELECT case_id,
                               COALESCE(SUM(amount_minor) FILTER (WHERE state = 'released'), 0) AS released_total
                        FROM milestones GROUP BY case_id) m
                    ON m.case_id = c.id
                  WHERE ea.released_minor < m.released_total`,
		},
		{
			Name: "O6_terminal_cases_settled",
			SQL: `SELECT c.id, c.state FROM cases c
                  JOIN escrow_accounts ea ON ea.case_id = c.id
                  WHERE c.state IN ('completed','cancelled')
                    AND (ea.held_minor <> 0
                         OR ea.funded_minor - ea.released_minor - ea.held_minor - ea.refunded_minor <> 0)`,
		},
		{
			Name: "O7_completed_means_fully_released",
			SQL: `SELECT c.id FROM cases c
                  JOIN escrow_accounts ea ON ea.case_id = c.id
                  WHERE c.state = 'completed'
                    AND (ea.state <> 'fully_released' OR ea.refunded_minor <> 0)`,
		},
		{
			Name: "O8_dispute_hold_pairing",
			SQL: `SELECT c.id, c.state, ea.state FROM cases c
                  JOIN escrow_accounts ea ON ea.case_id = c.id
                  LEFT JOIN disputes d ON d.case_id = c.id AND d.state = 'open'
                  WHERE (c.state = 'disputed') <> (d.id IS NOT NULL)
                     OR (c.state = 'disputed') <> (ea.state = 'on_hold')
                     OR (ea.state = 'on_hold') <> (ea.held_minor > 0)`,
		},
		{
			Name: "O9_payment_ref_linkage",
			SQL: `SELECT pr.ref FROM payment_refs pr
                  WHERE NOT EXISTS (SELECT 1 FROM cases c WHERE c.id = pr.case_id)`,
		},
		{
			Name: "O10_outbox_not_stuck",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O11_version_positive",
			SQL:  `SELECT id, version FROM cases WHERE version < 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
