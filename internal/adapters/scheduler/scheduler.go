// Package scheduler provides the per-frame callback primitive that drives the
// clock and the scene player.
//
// A callback requested with RequestFrame runs once, on the next frame, with the
// frame's timestamp. Callbacks requested while a frame is being dispatched run
// on the following frame.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pulse/pkg/logger"
)

// FrameFunc receives the timestamp of the frame it runs in.
type FrameFunc func(now time.Time)

// Scheduler requests frame callbacks and reports the current frame clock.
type Scheduler interface {
	// Now returns the current monotonic time of this scheduler.
	Now() time.Time
	// RequestFrame schedules fn for the next frame. The returned cancel func
	// removes fn if it has not run yet; calling it more than once is safe.
	RequestFrame(fn FrameFunc) (cancel func())
}

const defaultFrameInterval = 16 * time.Millisecond

type pendingFrame struct {
	id uint64
	fn FrameFunc
}

// frameQueue holds requested callbacks in request order.
type frameQueue struct {
	mu      sync.Mutex
	nextID  uint64
	pending []pendingFrame
}

func (q *frameQueue) add(fn FrameFunc) func() {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.pending = append(q.pending, pendingFrame{id: id, fn: fn})
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, p := range q.pending {
			if p.id == id {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				return
			}
		}
	}
}

func (q *frameQueue) take() []pendingFrame {
	q.mu.Lock()
	defer q.mu.Unlock()
	due := q.pending
	q.pending = nil
	return due
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Loop is a wall-clock scheduler firing frames at a fixed interval from a
// single goroutine.
type Loop struct {
	queue    frameQueue
	interval time.Duration
	logger   logger.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithFrameInterval sets the frame interval.
func WithFrameInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger used to report recovered callback panics.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLoop creates a frame loop. Frames only fire while Run is active.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		interval: defaultFrameInterval,
		logger:   logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns time.Now, which carries a monotonic reading.
func (l *Loop) Now() time.Time { return time.Now() }

// RequestFrame schedules fn for the next frame.
func (l *Loop) RequestFrame(fn FrameFunc) func() { return l.queue.add(fn) }

// Interval returns the frame interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Run dispatches frames until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.dispatch(ctx, now)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, now time.Time) {
	for _, p := range l.queue.take() {
		l.invoke(ctx, p.fn, now)
	}
}

func (l *Loop) invoke(ctx context.Context, fn FrameFunc, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, "frame callback panicked", logger.Any("panic", r))
		}
	}()
	fn(now)
}

// Manual is a deterministic scheduler whose clock only moves when Advance is
// called. It backs tests and offline rendering.
type Manual struct {
	queue frameQueue
	mu    sync.Mutex
	now   time.Time
}

// NewManual creates a manual scheduler starting at start. A zero start uses a
// fixed epoch so runs are reproducible.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &Manual{now: start}
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// RequestFrame schedules fn for the next Advance.
func (m *Manual) RequestFrame(fn FrameFunc) func() { return m.queue.add(fn) }

// Pending returns the number of callbacks waiting for the next frame.
func (m *Manual) Pending() int { return m.queue.len() }

// Advance moves the clock by d and fires one frame.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	m.mu.Unlock()

	for _, p := range m.queue.take() {
		p.fn(now)
	}
}

// AdvanceFrames fires n frames spaced by frame.
func (m *Manual) AdvanceFrames(n int, frame time.Duration) {
	for i := 0; i < n; i++ {
		m.Advance(frame)
	}
}
