// Package aggregator turns a stream of timestamped domain events into
// per-entity activity, per-pair tension and global atmosphere, recomputed
// from the raw event log on every clock tick.
package aggregator

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pulse/internal/adapters/scheduler"
	"github.com/okian/pulse/internal/domain/clock"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/notify"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Default windows and rates.
const (
	DefaultActivityWindow = 8 * time.Second
	DefaultRetention      = 60 * time.Second
	// DefaultDecayRate is the intensity lost per second by an idle entity.
	DefaultDecayRate = 1.2
)

// UpstreamTimestampKey holds the upstream timestamp of feed events, which are
// re-stamped on arrival with the aggregator's monotonic clock.
const UpstreamTimestampKey = "upstream_ts"

// Source is a push-based upstream feed.
type Source interface {
	Subscribe(fn func(model.RawEvent)) (unsubscribe func())
}

// Listener receives a full snapshot after every recompute.
type Listener func(model.Snapshot)

// Aggregator owns a clock and recomputes derived state on each of its ticks.
type Aggregator struct {
	mu       sync.Mutex
	sourceMu sync.Mutex

	sched     scheduler.Scheduler
	clock     *clock.Clock
	mapper    *Mapper
	logger    logger.Logger
	listeners *notify.Listeners[model.Snapshot]

	activityWindow time.Duration
	retention      time.Duration
	decayRate      float64
	tempo          float64

	registered    map[string]struct{}
	events        []model.DomainEvent
	activity      map[string]model.EntityActivityState
	lastRecompute time.Time
	snapshot      model.Snapshot
	detach        func()
}

// New creates an aggregator whose clock is driven by sched.
func New(sched scheduler.Scheduler, opts ...Option) *Aggregator {
	a := &Aggregator{
		sched:          sched,
		mapper:         DefaultMapper(),
		logger:         logger.Named("aggregator"),
		activityWindow: DefaultActivityWindow,
		retention:      DefaultRetention,
		decayRate:      DefaultDecayRate,
		tempo:          model.DefaultTempo,
		registered:     make(map[string]struct{}),
		activity:       make(map[string]model.EntityActivityState),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retention < a.activityWindow {
		a.retention = a.activityWindow
	}

	a.listeners = notify.New[model.Snapshot]("aggregator",
		notify.WithLogger[model.Snapshot](a.logger),
		notify.WithClone(model.Snapshot.Clone),
	)
	a.clock = clock.New(sched, clock.WithTempo(a.tempo), clock.WithLogger(a.logger.Named("clock")))
	a.clock.Subscribe(a.onTick)

	for id := range a.registered {
		a.activity[id] = model.EntityActivityState{EntityID: id}
	}
	a.snapshot = model.Snapshot{
		Clock:    a.clock.State(),
		Activity: maps.Clone(a.activity),
	}
	return a
}

// Start starts the internal clock. Idle decay on the first frame covers only
// the time since Start, not the time spent stopped.
func (a *Aggregator) Start() {
	if a.clock.Running() {
		return
	}
	a.mu.Lock()
	a.lastRecompute = a.sched.Now()
	a.mu.Unlock()
	a.clock.Start()
}

// Stop stops the internal clock.
func (a *Aggregator) Stop() { a.clock.Stop() }

// SetTempo changes the internal clock tempo.
func (a *Aggregator) SetTempo(bpm float64) { a.clock.SetTempo(bpm) }

// Clock returns the current clock state.
func (a *Aggregator) Clock() model.ClockState { return a.clock.State() }

// Subscribe registers l for every snapshot and returns its unsubscribe func.
func (a *Aggregator) Subscribe(l Listener) func() {
	return a.listeners.Subscribe(l)
}

// Snapshot returns a copy of the latest snapshot.
func (a *Aggregator) Snapshot() model.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.Clone()
}

// RegisterEntity makes id appear in the activity map even before it has events.
func (a *Aggregator) RegisterEntity(id string) {
	if id == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registered[id] = struct{}{}
	if _, ok := a.activity[id]; !ok {
		a.activity[id] = model.EntityActivityState{EntityID: id}
	}
}

// AttachSource subscribes to src, replacing any previously attached source.
func (a *Aggregator) AttachSource(src Source) {
	a.sourceMu.Lock()
	defer a.sourceMu.Unlock()

	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	if src == nil {
		return
	}
	a.detach = src.Subscribe(a.HandleRaw)
}

// DetachSource drops the current source subscription, if any.
func (a *Aggregator) DetachSource() {
	a.AttachSource(nil)
}

// HandleRaw maps an upstream event and ingests it. Unmappable events are
// dropped silently. Accepted events are stamped with the arrival time.
func (a *Aggregator) HandleRaw(raw model.RawEvent) {
	e, ok := a.mapper.Map(raw)
	if !ok {
		metrics.RecordEventDropped("unmapped")
		a.logger.Debug(context.Background(), "dropping upstream event", logger.String("type", raw.Type))
		return
	}
	if !e.Timestamp.IsZero() {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, 1)
		}
		e.Metadata[UpstreamTimestampKey] = e.Timestamp
	}
	e.Timestamp = time.Time{}
	a.AddEvent(e)
}

// AddEvent ingests e and returns the stored copy. A missing ID gets a uuid and
// a missing timestamp gets the scheduler's current time.
func (a *Aggregator) AddEvent(e model.DomainEvent) model.DomainEvent {
	e = e.Clone()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = a.sched.Now()
	}
	if e.Severity == "" {
		e.Severity = model.SeverityLow
	}

	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()

	metrics.RecordEventIngested(string(e.Kind))
	return e
}

func (a *Aggregator) onTick(state model.ClockState) {
	start := time.Now()

	a.mu.Lock()
	a.recomputeLocked(state)
	a.listeners.Enqueue(a.snapshot)
	a.mu.Unlock()

	metrics.RecordRecomputeLatency(float64(time.Since(start).Microseconds()) / 1000)
	a.listeners.Flush(context.Background())
}
