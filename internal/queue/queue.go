// Package queue provides the unbounded FIFO buffer that decouples submission
// acceptance from submission processing. Multiple producers and multiple
// consumers share one queue; items are delivered in arrival order.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/vesto/invest-engine/internal/metrics"
	"github.com/vesto/invest-engine/internal/model"
)

// ErrClosed is returned once the queue is shut down and drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded MPMC FIFO of submissions. Enqueue never blocks;
// Dequeue suspends until an item is available, the context is cancelled, or
// the queue is closed. Close stops new enqueues but lets consumers drain
// what is already buffered.
type Queue struct {
	mu     sync.Mutex
	items  []model.Submission
	closed bool

	// wake is signalled (capacity 1) on enqueue and closed on shutdown,
	// so sleeping consumers re-check the buffer.
	wake chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends a submission. Returns ErrClosed after shutdown.
func (q *Queue) Enqueue(sub model.Submission) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, sub)
	metrics.QueueDepth.Set(float64(len(q.items)))
	// Close sets closed before closing wake, so the check above guarantees
	// this send never hits a closed channel.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return nil
}

// Dequeue removes and returns the oldest submission, blocking while the
// queue is empty. Returns the context error on cancellation, or ErrClosed
// once the queue is shut down and empty.
func (q *Queue) Dequeue(ctx context.Context) (model.Submission, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			sub := q.items[0]
			q.items = q.items[1:]
			metrics.QueueDepth.Set(float64(len(q.items)))
			// One wake token can serve only one worker; pass it on while
			// items remain so sibling workers are not left sleeping.
			if len(q.items) > 0 && !q.closed {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return sub, nil
		}
		if q.closed {
			q.mu.Unlock()
			return model.Submission{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Submission{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close shuts the queue down. Idempotent. Enqueues fail afterwards; blocked
// consumers wake, drain any remaining items, then receive ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.wake)
}
