package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGOutbox drains the outbox table. Messages are claimed with
// FOR UPDATE SKIP LOCKED so multiple dispatchers can run side by side,
// and the delivery outcome commits atomically with the claim.
type PGOutbox struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPGOutbox(pool *pgxpool.Pool) *PGOutbox {
	return &PGOutbox{pool: pool, maxAttempts: defaultMaxAttempts}
}

// WithMaxAttempts overrides the retry limit before a message is dead.
func (o *PGOutbox) WithMaxAttempts(n int) *PGOutbox {
	o.maxAttempts = n
	return o
}

func (o *PGOutbox) Drain(ctx context.Context, limit int, deliver func(ctx context.Context, msg Message) error) (int, error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: begin drain: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        SELECT id, topic, payload, attempts, created_at
        FROM outbox
        WHERE status='pending'
        ORDER BY created_at
        FOR UPDATE SKIP LOCKED
        LIMIT $1
    `, limit)
	if err != nil {
		return 0, fmt.Errorf("notify: claim pending: %w", err)
	}
	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Topic, &msg.Payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("notify: scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("notify: read pending: %w", err)
	}

	delivered := 0
	for _, msg := range msgs {
		if err := deliver(ctx, msg); err != nil {
			status := "pending"
			if msg.Attempts+1 >= o.maxAttempts {
				status = "dead"
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox SET status=$1, attempts=attempts+1, last_attempt=NOW() WHERE id=$2`, status, msg.ID); err != nil {
				return 0, fmt.Errorf("notify: mark failed: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, msg.ID); err != nil {
			return 0, fmt.Errorf("notify: mark processed: %w", err)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("notify: commit drain: %w", err)
	}
	return delivered, nil
}
