// Package service composes the engines and the upstream feed into one
// running process and exposes what the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/pulse/internal/adapters/mq/queue"
	"github.com/okian/pulse/internal/adapters/mq/worker"
	"github.com/okian/pulse/internal/adapters/scheduler"
	"github.com/okian/pulse/internal/domain/aggregator"
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/player"
	"github.com/okian/pulse/internal/domain/script"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// runner is implemented by schedulers that own a frame loop.
type runner interface {
	Run(ctx context.Context) error
}

// Service owns the scheduler, engines and feed of one process.
type Service struct {
	mu sync.RWMutex

	sched      scheduler.Scheduler
	aggregator *aggregator.Aggregator
	player     *player.Player
	queue      *eventqueue.InMemoryQueue
	deduper    dedupe.Deduper
	dispatcher *worker.Dispatcher

	// Configuration
	tempo          float64
	activityWindow time.Duration
	retention      time.Duration
	decayRate      float64
	queueSize      int
	dedupeSize     int
	entities       []string
	script         script.Input

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithScheduler sets the frame scheduler. A Loop is run by the service.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Service) {
		if sched != nil {
			s.sched = sched
		}
	}
}

// WithTempo sets the aggregator clock tempo.
func WithTempo(bpm float64) Option {
	return func(s *Service) {
		if bpm > 0 {
			s.tempo = bpm
		}
	}
}

// WithWindows sets the activity window and retention horizon.
func WithWindows(activity, retention time.Duration) Option {
	return func(s *Service) {
		if activity > 0 {
			s.activityWindow = activity
		}
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithDecayRate sets the idle intensity decay per second.
func WithDecayRate(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.decayRate = perSecond
		}
	}
}

// WithQueueSize sets the maximum size of the feed queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many upstream IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithEntities pre-registers entities with the aggregator.
func WithEntities(ids ...string) Option {
	return func(s *Service) {
		s.entities = append(s.entities, ids...)
	}
}

// WithScript sets the script played by the scene player.
func WithScript(in script.Input) Option {
	return func(s *Service) {
		s.script = in
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		tempo:          model.DefaultTempo,
		activityWindow: aggregator.DefaultActivityWindow,
		retention:      aggregator.DefaultRetention,
		decayRate:      aggregator.DefaultDecayRate,
		queueSize:      4096,
		dedupeSize:     10_000,
		script:         script.Input{Title: "Live session"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sched == nil {
		s.sched = scheduler.NewLoop()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start builds and starts every component. Starting twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting pulse service...")

	scenes := script.Build(s.script)
	p, err := player.New(scenes, s.sched, player.WithLogger(s.logger.Named("player")))
	if err != nil {
		return fmt.Errorf("build player: %w", err)
	}

	s.deduper = dedupe.NewWindowDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.dispatcher = worker.NewDispatcher(s.queue,
		worker.WithName("feed"),
		worker.WithDeduper(s.deduper),
		worker.WithLogger(s.logger.Named("feed")),
	)
	s.aggregator = aggregator.New(s.sched,
		aggregator.WithTempo(s.tempo),
		aggregator.WithActivityWindow(s.activityWindow),
		aggregator.WithRetention(s.retention),
		aggregator.WithDecayRate(s.decayRate),
		aggregator.WithEntities(s.entities...),
		aggregator.WithLogger(s.logger.Named("aggregator")),
	)
	s.player = p
	s.aggregator.AttachSource(s.dispatcher)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(runCtx)
	}()
	if r, ok := s.sched.(runner); ok {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := r.Run(runCtx); err != nil {
				s.logger.Error(runCtx, "scheduler stopped", logger.Error(err))
			}
		}()
	}

	s.aggregator.Start()
	s.player.Start()

	s.started = true
	s.logger.Info(ctx, "pulse service started",
		logger.Int("scenes", len(scenes)),
		logger.Float64("tempo", s.tempo),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping pulse service...")

	_ = s.queue.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "feed shutdown", logger.Error(err))
	}
	cancel()

	s.aggregator.DetachSource()
	s.aggregator.Stop()
	s.player.Stop()

	s.cancel()
	s.wg.Wait()

	s.started = false
	s.logger.Info(ctx, "pulse service stopped")
}

// Publish queues an upstream event for the aggregator.
func (s *Service) Publish(ctx context.Context, e model.RawEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if err := s.queue.Enqueue(ctx, e); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Snapshot returns the latest aggregator snapshot.
func (s *Service) Snapshot() (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Snapshot{}, ErrNotStarted
	}
	return s.aggregator.Snapshot(), nil
}

// Player returns the scene player, or nil before Start.
func (s *Service) Player() *player.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player
}

// Aggregator returns the event aggregator, or nil before Start.
func (s *Service) Aggregator() *aggregator.Aggregator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"dedupeSize": s.dedupeSize,
		"tempo":      s.tempo,
	}
	if s.started {
		snap := s.aggregator.Snapshot()
		ps := s.player.State()
		stats["queueLength"] = s.queue.Len()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["recentEvents"] = len(snap.RecentEvents)
		stats["entities"] = len(snap.Activity)
		stats["pairs"] = len(snap.Pairs)
		stats["bar"] = snap.Clock.Bar
		stats["beat"] = snap.Clock.BeatInBar
		stats["playerStatus"] = string(ps.Status)
		stats["sceneIndex"] = ps.SceneIndex

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		metrics.UpdateSystemMemoryUsage(mem.Alloc)
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	}
	return stats
}
