// Package player plays an ordered sequence of fixed-duration scenes.
//
// A player advances either from scheduler frames (live mode) or from explicit
// Tick calls (manual mode). Both paths feed the same advance routine and
// positions are kept in integer nanoseconds. Manual deltas are summed in
// seconds and rounded as a running total, so any split of the same total
// delta yields the same state. Offline renders rely on this to reproduce what
// a live viewer saw.
package player

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/okian/pulse/internal/adapters/scheduler"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/notify"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Listener receives the player state after every change.
type Listener func(model.PlayerState)

// Player advances through a script of scenes.
type Player struct {
	mu sync.Mutex

	sched     scheduler.Scheduler
	logger    logger.Logger
	listeners *notify.Listeners[model.PlayerState]

	scenes    []model.SceneDescriptor
	durations []time.Duration
	offsets   []time.Duration // prefix sums: start of each scene
	total     time.Duration

	status       model.PlayerStatus
	index        int
	sceneElapsed time.Duration
	totalElapsed time.Duration
	caption      string

	manual      bool
	tickSeconds float64 // seconds requested through Tick since the last seek or reset
	lastFrame   time.Time
	cancelFrame func()
	generation  uint64
}

// New creates an idle player. The script must hold at least one scene and
// every scene must have a positive duration.
func New(scenes []model.SceneDescriptor, sched scheduler.Scheduler, opts ...Option) (*Player, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes", ErrInvalidScript)
	}
	p := &Player{
		sched:     sched,
		logger:    logger.Named("player"),
		scenes:    make([]model.SceneDescriptor, len(scenes)),
		durations: make([]time.Duration, len(scenes)),
		offsets:   make([]time.Duration, len(scenes)),
		status:    model.StatusIdle,
	}
	for i, s := range scenes {
		d := secondsToDuration(s.Duration)
		if d <= 0 {
			return nil, fmt.Errorf("%w: scene %d (%q) has duration %v", ErrInvalidScript, i, s.ID, s.Duration)
		}
		p.scenes[i] = s.Clone()
		p.durations[i] = d
		p.offsets[i] = p.total
		p.total += d
	}
	for _, opt := range opts {
		opt(p)
	}
	p.listeners = notify.New[model.PlayerState]("player", notify.WithLogger[model.PlayerState](p.logger))
	p.refreshCaptionLocked()
	return p, nil
}

// Start begins playback from idle or paused. It is a no-op when playing or complete.
func (p *Player) Start() {
	p.mu.Lock()
	if p.status != model.StatusIdle && p.status != model.StatusPaused {
		p.mu.Unlock()
		return
	}
	p.playLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// Resume continues playback after Pause.
func (p *Player) Resume() {
	p.mu.Lock()
	if p.status != model.StatusPaused {
		p.mu.Unlock()
		return
	}
	p.playLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// Pause halts playback and cancels any pending frame.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.status != model.StatusPlaying {
		p.mu.Unlock()
		return
	}
	p.status = model.StatusPaused
	p.cancelLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// Stop is an alias for Pause.
func (p *Player) Stop() { p.Pause() }

// Reset returns to the first scene in the idle state.
func (p *Player) Reset() {
	p.mu.Lock()
	p.cancelLocked()
	p.status = model.StatusIdle
	p.index = 0
	p.sceneElapsed = 0
	p.totalElapsed = 0
	p.tickSeconds = 0
	p.refreshCaptionLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// SeekToScene jumps to the start of scene i. Out of range indexes and a
// completed player are ignored.
func (p *Player) SeekToScene(i int) {
	p.mu.Lock()
	if p.status == model.StatusComplete || i < 0 || i >= len(p.scenes) {
		p.mu.Unlock()
		p.logger.Debug(context.Background(), "ignoring scene seek", logger.Int("index", i))
		return
	}
	p.index = i
	p.sceneElapsed = 0
	p.totalElapsed = p.offsets[i]
	p.tickSeconds = 0
	p.refreshCaptionLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// SeekToTime jumps to the given number of seconds into the script. Times
// outside [0, total) and a completed player are ignored.
func (p *Player) SeekToTime(seconds float64) {
	t := secondsToDuration(seconds)

	p.mu.Lock()
	if p.status == model.StatusComplete || math.IsNaN(seconds) || math.IsInf(seconds, 0) || t < 0 || t >= p.total {
		p.mu.Unlock()
		p.logger.Debug(context.Background(), "ignoring time seek", logger.Float64("seconds", seconds))
		return
	}
	for i := range p.scenes {
		if t < p.offsets[i]+p.durations[i] {
			p.index = i
			p.sceneElapsed = t - p.offsets[i]
			break
		}
	}
	p.totalElapsed = t
	p.tickSeconds = 0
	p.refreshCaptionLocked()
	p.listeners.Enqueue(p.stateLocked())
	p.mu.Unlock()

	p.flush()
}

// SetManualMode switches between scheduler-driven and Tick-driven advance.
// Enabling it cancels a pending frame; disabling it while playing resumes
// self-scheduling from now.
func (p *Player) SetManualMode(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manual == enabled {
		return
	}
	p.manual = enabled
	if enabled {
		p.tickSeconds = 0
		p.cancelLocked()
		return
	}
	if p.status == model.StatusPlaying {
		p.lastFrame = p.sched.Now()
		p.scheduleLocked()
	}
}

// ManualMode reports whether the player only advances through Tick.
func (p *Player) ManualMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manual
}

// Tick advances a manual-mode player by delta seconds. Calls outside manual
// mode or with a negative delta are logged and ignored. A player that is not
// playing ignores ticks.
func (p *Player) Tick(deltaSeconds float64) {
	ctx := context.Background()

	p.mu.Lock()
	if !p.manual {
		p.mu.Unlock()
		metrics.RecordPlayerMisuse("tick_not_manual")
		p.logger.Warn(ctx, "tick called outside manual mode", logger.Float64("delta", deltaSeconds))
		return
	}
	if math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) || deltaSeconds < 0 {
		p.mu.Unlock()
		metrics.RecordPlayerMisuse("invalid_delta")
		p.logger.Warn(ctx, "tick called with invalid delta", logger.Float64("delta", deltaSeconds))
		return
	}
	if p.status != model.StatusPlaying {
		p.mu.Unlock()
		return
	}
	prev := secondsToDuration(p.tickSeconds)
	p.tickSeconds += deltaSeconds
	p.listeners.Enqueue(p.advanceLocked(secondsToDuration(p.tickSeconds) - prev))
	p.mu.Unlock()

	p.flush()
}

// Subscribe registers l for every state change and returns its unsubscribe func.
func (p *Player) Subscribe(l Listener) func() {
	return p.listeners.Subscribe(l)
}

// State returns the current player state.
func (p *Player) State() model.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// CurrentScene returns the scene being played. It returns false if the
// index is out of bounds.
func (p *Player) CurrentScene() (model.SceneDescriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 || p.index >= len(p.scenes) {
		return model.SceneDescriptor{}, false
	}
	return p.scenes[p.index].Clone(), true
}

// Scenes returns a copy of the script.
func (p *Player) Scenes() []model.SceneDescriptor {
	out := slices.Clone(p.scenes)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// TotalDuration returns the script length in seconds.
func (p *Player) TotalDuration() float64 {
	return p.total.Seconds()
}

func (p *Player) playLocked() {
	p.status = model.StatusPlaying
	p.lastFrame = p.sched.Now()
	if !p.manual {
		p.scheduleLocked()
	}
}

func (p *Player) scheduleLocked() {
	p.generation++
	gen := p.generation
	p.cancelFrame = p.sched.RequestFrame(func(now time.Time) { p.onFrame(gen, now) })
}

func (p *Player) cancelLocked() {
	p.generation++
	if p.cancelFrame != nil {
		p.cancelFrame()
		p.cancelFrame = nil
	}
}

func (p *Player) onFrame(gen uint64, now time.Time) {
	p.mu.Lock()
	if p.status != model.StatusPlaying || p.manual || gen != p.generation {
		p.mu.Unlock()
		return
	}
	delta := now.Sub(p.lastFrame)
	if delta < 0 {
		delta = 0
	}
	p.lastFrame = now
	p.listeners.Enqueue(p.advanceLocked(delta))
	if p.status == model.StatusPlaying {
		p.scheduleLocked()
	}
	p.mu.Unlock()

	p.flush()
}

// advanceLocked moves playback forward by delta, crossing as many scene
// boundaries as the delta covers and carrying the remainder into the next
// scene. Past the last scene the player completes with its positions clamped
// to the end of the script.
func (p *Player) advanceLocked(delta time.Duration) model.PlayerState {
	if p.index < 0 || p.index >= len(p.scenes) {
		p.completeLocked()
		return p.stateLocked()
	}

	p.sceneElapsed += delta
	p.totalElapsed += delta

	crossed := 0
	for p.sceneElapsed >= p.durations[p.index] {
		p.sceneElapsed -= p.durations[p.index]
		p.index++
		crossed++
		if p.index >= len(p.scenes) {
			p.index = len(p.scenes) - 1
			p.totalElapsed = p.total
			p.sceneElapsed = p.durations[p.index]
			metrics.RecordSceneTransitions(crossed - 1)
			p.completeLocked()
			p.refreshCaptionLocked()
			return p.stateLocked()
		}
	}
	metrics.RecordSceneTransitions(crossed)

	p.refreshCaptionLocked()
	return p.stateLocked()
}

func (p *Player) completeLocked() {
	p.status = model.StatusComplete
	p.cancelLocked()
	metrics.RecordPlayerComplete()
	p.logger.Info(context.Background(), "playback complete", logger.Float64("total_seconds", p.total.Seconds()))
}

func (p *Player) refreshCaptionLocked() {
	p.caption = ""
	if p.index < 0 || p.index >= len(p.scenes) {
		return
	}
	if c, ok := p.scenes[p.index].ActiveCaption(p.sceneElapsed.Seconds()); ok {
		p.caption = c.Text
	}
}

func (p *Player) stateLocked() model.PlayerState {
	return model.PlayerState{
		Status:        p.status,
		SceneIndex:    p.index,
		SceneElapsed:  p.sceneElapsed.Seconds(),
		TotalElapsed:  p.totalElapsed.Seconds(),
		TotalDuration: p.total.Seconds(),
		Complete:      p.status == model.StatusComplete,
		ActiveCaption: p.caption,
	}
}

// flush delivers queued states in the order they were produced, so a
// listener never sees an older state after a newer one even when the frame
// loop and a control call race.
func (p *Player) flush() {
	p.listeners.Flush(context.Background())
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
