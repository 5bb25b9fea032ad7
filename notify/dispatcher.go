package notify

import (
	"context"
	"log"
	"time"
)

// Dispatcher periodically drains a source into a sink. Drain errors are
// logged and retried on the next tick; only context cancellation stops
// the loop.
type Dispatcher struct {
	source   Source
	sink     Sink
	logger   *log.Logger
	interval time.Duration
	batch    int
}

func NewDispatcher(source Source, sink Sink, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		source:   source,
		sink:     sink,
		logger:   logger,
		interval: 250 * time.Millisecond,
		batch:    10,
	}
}

// WithInterval overrides the polling interval.
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

// WithBatchSize overrides how many messages one tick may claim.
func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	d.batch = n
	return d
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := d.source.Drain(ctx, d.batch, d.sink.Deliver)
			if err != nil {
				d.logger.Printf("notify: drain: %v", err)
				continue
			}
			if n > 0 {
				d.logger.Printf("notify: delivered %d message(s)", n)
			}
		}
	}
}
