// Package worker drains the feed queue and hands each upstream event to the
// subscribed engines.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/notify"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Queue defines how the dispatcher receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.RawEvent
}

// closable is implemented by queues that can report they stopped accepting
// events, which lets Shutdown finish delivering what is still buffered.
type closable interface {
	IsClosed() bool
}

// Dispatcher is a push-based event source fed from a queue. A single
// dispatcher goroutine preserves queue order for every subscriber.
type Dispatcher struct {
	queue       Queue
	deduper     dedupe.Deduper
	subscribers *notify.Listeners[model.RawEvent]
	name        string
	now         func() time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewDispatcher creates a dispatcher reading from queue.
func NewDispatcher(queue Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		name:     "dispatcher",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.subscribers = notify.New[model.RawEvent](d.name, notify.WithLogger[model.RawEvent](d.logger))
	return d
}

// Subscribe registers fn for every dispatched event.
func (d *Dispatcher) Subscribe(fn func(model.RawEvent)) func() {
	return d.subscribers.Subscribe(fn)
}

// Run dispatches events until ctx is canceled, Shutdown is called, or the
// queue is closed and drained. On Shutdown of a closed queue, events already
// buffered are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	events := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			d.drain(ctx, events)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

// Shutdown stops Run and waits for it to return. Close the queue first so
// buffered events are delivered rather than left behind.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownOnce.Do(func() { close(d.shutdown) })

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (d *Dispatcher) drain(ctx context.Context, events <-chan model.RawEvent) {
	if c, ok := d.queue.(closable); !ok || !c.IsClosed() {
		return
	}
	drained := 0
	defer func() {
		if drained > 0 {
			d.logger.Info(ctx, "drained queued events", logger.Int("count", drained))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, e)
			drained++
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e model.RawEvent) {
	if e.ID != "" && d.deduper != nil && d.deduper.SeenAndRecord(ctx, e.ID) {
		metrics.RecordFeedDuplicate()
		d.logger.Debug(ctx, "skipping duplicate event", logger.String("event_id", e.ID))
		return
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = d.now()
	}
	d.subscribers.Notify(ctx, e)
	metrics.RecordFeedDispatch()
}
