// Package notify carries business events out of the escrow workflow.
// Events are written to a transactional outbox together with the state
// change that produced them; a dispatcher drains the outbox and hands
// the messages to a delivery sink. Delivery is at-least-once.
package notify

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Event is a business event captured at commit time. Payload holds the
// event-specific fields and is marshalled to JSON when enqueued.
type Event struct {
	ID        string
	CaseID    string
	Topic     string
	Payload   map[string]any
	CreatedAt time.Time
}

// Message is an outbox entry ready for delivery.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Sink delivers a single message. A non-nil error requeues the message
// until the attempt limit marks it dead.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Source drains pending messages. Implementations claim up to limit
// messages, invoke deliver for each, and record the outcome (processed,
// retry, or dead) atomically with the claim. It returns the number of
// messages delivered successfully.
type Source interface {
	Drain(ctx context.Context, limit int, deliver func(ctx context.Context, msg Message) error) (int, error)
}

// LogSink writes deliveries to a logger. It is the default sink when no
// downstream broker is configured.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, msg Message) error {
	s.logger.Printf("notify: %s %s", msg.Topic, msg.Payload)
	return nil
}

// Fanout delivers each message to every sink concurrently. The message
// counts as delivered only when all sinks accept it.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, msg Message) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range f {
		sink := sink
		g.Go(func() error { return sink.Deliver(ctx, msg) })
	}
	return g.Wait()
}
