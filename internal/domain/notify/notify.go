// Package notify implements synchronous listener fan-out with per-listener
// panic isolation.
//
// Components that change state from several goroutines Enqueue the new value
// while still holding their own lock and Flush after releasing it. Values are
// then delivered one at a time in the order they were enqueued, whichever
// goroutine ends up flushing them.
package notify

import (
	"context"
	"sync"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Listeners is a set of subscribers receiving values of type T.
type Listeners[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	entries   []entry[T]
	component string
	clone     func(T) T
	logger    logger.Logger

	pendingMu  sync.Mutex
	pending    []T
	delivering bool
}

// Option configures Listeners.
type Option[T any] func(*Listeners[T])

// WithClone gives every listener its own copy of the notified value.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(l *Listeners[T]) {
		l.clone = clone
	}
}

// WithLogger sets the logger used to report listener panics.
func WithLogger[T any](lg logger.Logger) Option[T] {
	return func(l *Listeners[T]) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates an empty listener set. component labels logs and metrics.
func New[T any](component string, opts ...Option[T]) *Listeners[T] {
	l := &Listeners[T]{
		component: component,
		logger:    logger.Named(component),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe adds fn and returns a func that removes it. Unsubscribing twice is safe.
func (l *Listeners[T]) Subscribe(fn func(T)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, entry[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.entries {
				if e.id == id {
					l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of subscribed listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Notify calls every listener with v in subscription order. A panicking
// listener is recovered and logged; the remaining listeners still run.
// Must not be called while holding a lock a listener might need.
func (l *Listeners[T]) Notify(ctx context.Context, v T) {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()

	for _, e := range entries {
		val := v
		if l.clone != nil {
			val = l.clone(v)
		}
		l.call(ctx, e, val)
	}
}

// Enqueue records v for the next Flush. Call it under the lock that guards
// the state v was taken from so the queue order matches the change order.
func (l *Listeners[T]) Enqueue(v T) {
	l.pendingMu.Lock()
	l.pending = append(l.pending, v)
	l.pendingMu.Unlock()
}

// Flush delivers queued values in order. If another goroutine is already
// delivering, Flush returns and that goroutine delivers the rest. A listener
// that changes the component's state during delivery is safe: its value is
// queued behind the current one.
func (l *Listeners[T]) Flush(ctx context.Context) {
	l.pendingMu.Lock()
	if l.delivering {
		l.pendingMu.Unlock()
		return
	}
	l.delivering = true
	for len(l.pending) > 0 {
		v := l.pending[0]
		var zero T
		l.pending[0] = zero
		l.pending = l.pending[1:]
		l.pendingMu.Unlock()

		l.Notify(ctx, v)

		l.pendingMu.Lock()
	}
	l.pending = nil
	l.delivering = false
	l.pendingMu.Unlock()
}

func (l *Listeners[T]) call(ctx context.Context, e entry[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordListenerPanic(l.component)
			l.logger.Error(ctx, "listener panicked", logger.Any("panic", r), logger.Int("listener", int(e.id)))
		}
	}()
	e.fn(v)
}
