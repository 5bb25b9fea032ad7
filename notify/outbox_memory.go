package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const defaultMaxAttempts = 5

// MemoryOutbox is an in-process Source. It backs the in-memory workflow
// store and the dispatcher tests; the Postgres outbox is the production
// path.
type MemoryOutbox struct {
	mu          sync.Mutex
	maxAttempts int
	pending     []Message
	processed   []Message
	dead        []Message
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{maxAttempts: defaultMaxAttempts}
}

// WithMaxAttempts overrides the retry limit before a message is dead.
func (o *MemoryOutbox) WithMaxAttempts(n int) *MemoryOutbox {
	o.maxAttempts = n
	return o
}

// Enqueue appends events to the pending queue.
func (o *MemoryOutbox) Enqueue(events ...Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("notify: encode event %s: %w", ev.Topic, err)
		}
		o.pending = append(o.pending, Message{
			ID:        ev.ID,
			Topic:     ev.Topic,
			Payload:   payload,
			CreatedAt: ev.CreatedAt,
		})
	}
	return nil
}

func (o *MemoryOutbox) Drain(ctx context.Context, limit int, deliver func(ctx context.Context, msg Message) error) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := limit
	if n > len(o.pending) {
		n = len(o.pending)
	}
	claimed := o.pending[:n]
	rest := o.pending[n:]

	var retry []Message
	delivered := 0
	for _, msg := range claimed {
		if err := deliver(ctx, msg); err != nil {
			msg.Attempts++
			if msg.Attempts >= o.maxAttempts {
				o.dead = append(o.dead, msg)
			} else {
				retry = append(retry, msg)
			}
			continue
		}
		o.processed = append(o.processed, msg)
		delivered++
	}
	o.pending = append(retry, rest...)
	return delivered, nil
}

// Pending reports how many messages await delivery.
func (o *MemoryOutbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Processed returns delivered messages in delivery order.
func (o *MemoryOutbox) Processed() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.processed...)
}

// Dead returns messages that exhausted their attempts.
func (o *MemoryOutbox) Dead() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.dead...)
}
