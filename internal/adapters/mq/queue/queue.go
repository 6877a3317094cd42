// Package queue buffers upstream feed events between the producers (HTTP
// ingest, synthetic generator) and the dispatcher that hands them to the
// engines.
package queue

import (
	"context"
	"sync"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/metrics"
)

const defaultCapacity = 4096

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. It fails with ErrFull when the buffer is full
	// and with ErrClosed after Close.
	Enqueue(ctx context.Context, e model.RawEvent) error

	// Dequeue returns a channel of queued events, closed once the queue is
	// closed and drained or ctx is done.
	Dequeue(ctx context.Context) <-chan model.RawEvent

	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.RawEvent
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.RawEvent, q.capacity)
	metrics.UpdateFeedQueue(0, q.capacity)
	return q
}

// Enqueue adds an event to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.RawEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordFeedEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordFeedEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordFeedEnqueue()
		metrics.UpdateFeedQueue(len(q.events), q.capacity)
		return nil
	default:
		metrics.RecordFeedEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that receives events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.RawEvent {
	out := make(chan model.RawEvent)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.UpdateFeedQueue(len(q.events), q.capacity)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the buffer size.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting events. Events already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
