// internal/writeq/writeq.go
package writeq

import (
	"context"
	"time"

	"github.com/tamzrod/ecat-bridge/internal/wire"
)

// DefaultHeartbeat is the keep-alive period of the outbound link.
const DefaultHeartbeat = time.Second

// Queue is the outbound path toward the transport.
// It holds at most one message: Submit blocks while the slot is occupied.
// Writes are never dropped or coalesced.
type Queue struct {
	ch chan wire.Message
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{ch: make(chan wire.Message, 1)}
}

// Submit enqueues msg, waiting for the transport to drain the previous one.
// A stalled transport stalls writers; ctx is the only way out, in which case
// msg is not queued and ctx.Err() is returned.
func (q *Queue) Submit(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is drained by the transport.
func (q *Queue) C() <-chan wire.Message { return q.ch }

// Next blocks until a message is available.
func (q *Queue) Next(ctx context.Context) (wire.Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

// Heartbeat submits a heartbeat every period until ctx is done.
// One goroutine per queue.
func (q *Queue) Heartbeat(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultHeartbeat
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Submit(ctx, wire.Heartbeat()); err != nil {
				return
			}
		}
	}
}
