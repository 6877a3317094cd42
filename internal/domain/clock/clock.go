// Package clock implements a musical clock that counts bars and beats at a
// configurable tempo, advanced once per scheduler frame.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/scheduler"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/notify"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

const defaultBeatsPerBar = 4

// Listener receives the clock state after every tick.
type Listener func(model.ClockState)

// Clock advances bar/beat counters from frame deltas. Time since the last
// beat is carried between frames so uneven frame timing never gains or loses
// fractional beats.
type Clock struct {
	mu sync.Mutex

	sched       scheduler.Scheduler
	beatsPerBar int
	logger      logger.Logger
	listeners   *notify.Listeners[model.ClockState]

	tempo         float64
	bar           int
	beatInBar     int
	beatCount     int
	sinceLastBeat time.Duration
	running       bool
	lastFrame     time.Time
	at            time.Time
	cancelFrame   func()
	generation    uint64 // bumped on Start/Stop so stale frames are ignored
}

// New creates a stopped clock driven by sched.
func New(sched scheduler.Scheduler, opts ...Option) *Clock {
	c := &Clock{
		sched:       sched,
		beatsPerBar: defaultBeatsPerBar,
		logger:      logger.Named("clock"),
		tempo:       model.DefaultTempo,
		bar:         1,
		beatInBar:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.listeners = notify.New[model.ClockState]("clock", notify.WithLogger[model.ClockState](c.logger))
	metrics.UpdateClockTempo(c.tempo)
	return c
}

// Start begins ticking. It is a no-op when already running.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.generation++
	c.lastFrame = c.sched.Now()
	c.scheduleLocked()
}

// Stop halts ticking and cancels the pending frame.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.generation++
	if c.cancelFrame != nil {
		c.cancelFrame()
		c.cancelFrame = nil
	}
}

// SetTempo sets the tempo, clamped to [60,240] bpm. Beats already committed
// are not rewritten; only future beat durations change.
func (c *Clock) SetTempo(bpm float64) {
	c.mu.Lock()
	c.tempo = model.ClampTempo(bpm)
	tempo := c.tempo
	c.mu.Unlock()

	metrics.UpdateClockTempo(tempo)
}

// Reset returns the counters to bar 1, beat 1. The running state is kept and
// a running clock measures its next delta from now.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bar = 1
	c.beatInBar = 1
	c.beatCount = 0
	c.sinceLastBeat = 0
	if c.running {
		c.lastFrame = c.sched.Now()
	}
}

// Subscribe registers l for every tick and returns its unsubscribe func.
func (c *Clock) Subscribe(l Listener) func() {
	return c.listeners.Subscribe(l)
}

// State returns a copy of the current clock state.
func (c *Clock) State() model.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Running reports whether the clock is ticking.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// BeatDuration returns the length of one beat at the given tempo.
func BeatDuration(bpm float64) time.Duration {
	return time.Duration(float64(time.Minute) / model.ClampTempo(bpm))
}

func (c *Clock) stateLocked() model.ClockState {
	return model.ClockState{
		Tempo:         c.tempo,
		Bar:           c.bar,
		BeatInBar:     c.beatInBar,
		BeatCount:     c.beatCount,
		SinceLastBeat: c.sinceLastBeat,
		Running:       c.running,
		At:            c.at,
	}
}

func (c *Clock) scheduleLocked() {
	gen := c.generation
	c.cancelFrame = c.sched.RequestFrame(func(now time.Time) { c.onFrame(gen, now) })
}

func (c *Clock) onFrame(gen uint64, now time.Time) {
	c.mu.Lock()
	if !c.running || gen != c.generation {
		c.mu.Unlock()
		return
	}
	beats := c.advanceLocked(now)
	c.scheduleLocked()
	c.listeners.Enqueue(c.stateLocked())
	c.mu.Unlock()

	metrics.RecordClockTick()
	metrics.RecordClockBeats(beats)
	c.listeners.Flush(context.Background())
}

// advanceLocked folds the frame delta into the beat accumulator and commits
// every whole beat it contains. Returns the number of beats committed.
func (c *Clock) advanceLocked(now time.Time) int {
	delta := now.Sub(c.lastFrame)
	c.lastFrame = now
	c.at = now
	if delta < 0 {
		delta = 0
	}
	c.sinceLastBeat += delta

	beat := BeatDuration(c.tempo)
	beats := 0
	for c.sinceLastBeat >= beat {
		c.sinceLastBeat -= beat
		c.beatCount++
		c.beatInBar++
		if c.beatInBar > c.beatsPerBar {
			c.beatInBar = 1
			c.bar++
		}
		beats++
	}
	return beats
}
