// Package metrics provides Prometheus metrics for the pulse engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Clock
	clockTicks prometheus.Counter
	clockBeats prometheus.Counter
	clockTempo prometheus.Gauge

	// Aggregator
	eventsIngested   *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	eventsPurged     prometheus.Counter
	recentEvents     prometheus.Gauge
	activeEntities   prometheus.Gauge
	activePairs      prometheus.Gauge
	recomputeLatency prometheus.Histogram
	atmosphere       *prometheus.GaugeVec

	// Player
	sceneTransitions prometheus.Counter
	playerCompletes  prometheus.Counter
	playerMisuse     *prometheus.CounterVec

	// Listener fan-out
	listenerPanics *prometheus.CounterVec

	// Feed
	feedQueueSize     prometheus.Gauge
	feedQueueCapacity prometheus.Gauge
	feedEnqueued      prometheus.Counter
	feedDispatched    prometheus.Counter
	feedErrors        *prometheus.CounterVec
	feedDuplicates    prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "engine",
		histogramBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		enabled:          true,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.clockTicks = m.counter("clock_ticks_total", "Total number of clock frames processed")
	m.clockBeats = m.counter("clock_beats_total", "Total number of beats committed by the clock")
	m.clockTempo = m.gauge("clock_tempo_bpm", "Current clock tempo in beats per minute")

	m.eventsIngested = m.counterVec("events_ingested_total", "Domain events accepted by the aggregator", "kind")
	m.eventsDropped = m.counterVec("events_dropped_total", "Upstream events dropped before ingestion", "reason")
	m.eventsPurged = m.counter("events_purged_total", "Events purged after leaving the retention horizon")
	m.recentEvents = m.gauge("recent_events", "Events currently retained by the aggregator")
	m.activeEntities = m.gauge("active_entities", "Entities with non-zero activity intensity")
	m.activePairs = m.gauge("active_pairs", "Entity pairs currently vibrating")
	m.recomputeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "recompute_latency_milliseconds",
		Help:        "Time spent recomputing derived state per tick",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.atmosphere = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "atmosphere",
		Help:        "Global atmosphere scalars",
		ConstLabels: m.constLabels,
	}, []string{"dimension"})

	m.sceneTransitions = m.counter("scene_transitions_total", "Scene boundaries crossed by players")
	m.playerCompletes = m.counter("player_completions_total", "Scripts played to completion")
	m.playerMisuse = m.counterVec("player_misuse_total", "Ignored player calls by reason", "reason")

	m.listenerPanics = m.counterVec("listener_panics_total", "Recovered listener panics", "component")

	m.feedQueueSize = m.gauge("feed_queue_size", "Upstream events waiting for dispatch")
	m.feedQueueCapacity = m.gauge("feed_queue_capacity", "Capacity of the upstream event queue")
	m.feedEnqueued = m.counter("feed_enqueued_total", "Upstream events accepted by the queue")
	m.feedDispatched = m.counter("feed_dispatched_total", "Upstream events delivered to subscribers")
	m.feedErrors = m.counterVec("feed_enqueue_errors_total", "Rejected upstream events by reason", "reason")
	m.feedDuplicates = m.counter("feed_duplicates_total", "Upstream events skipped as duplicates")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordClockTick increments the processed frame counter.
func RecordClockTick() {
	if globalManager.enabled {
		globalManager.clockTicks.Inc()
	}
}

// RecordClockBeats adds committed beats.
func RecordClockBeats(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.clockBeats.Add(float64(n))
	}
}

// UpdateClockTempo sets the current tempo gauge.
func UpdateClockTempo(bpm float64) {
	if globalManager.enabled {
		globalManager.clockTempo.Set(bpm)
	}
}

// RecordEventIngested counts an accepted domain event by kind.
func RecordEventIngested(kind string) {
	if globalManager.enabled {
		globalManager.eventsIngested.WithLabelValues(kind).Inc()
	}
}

// RecordEventDropped counts an upstream event that never reached the aggregator.
func RecordEventDropped(reason string) {
	if globalManager.enabled {
		globalManager.eventsDropped.WithLabelValues(reason).Inc()
	}
}

// RecordEventsPurged adds purged events.
func RecordEventsPurged(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.eventsPurged.Add(float64(n))
	}
}

// UpdateAggregateSizes sets the retained event, active entity and active pair gauges.
func UpdateAggregateSizes(recent, entities, pairs int) {
	if !globalManager.enabled {
		return
	}
	globalManager.recentEvents.Set(float64(recent))
	globalManager.activeEntities.Set(float64(entities))
	globalManager.activePairs.Set(float64(pairs))
}

// RecordRecomputeLatency records one recompute pass in milliseconds.
func RecordRecomputeLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.recomputeLatency.Observe(latencyMs)
	}
}

// UpdateAtmosphere sets the three atmosphere gauges.
func UpdateAtmosphere(cohesion, tension, energy float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.atmosphere.WithLabelValues("cohesion").Set(cohesion)
	globalManager.atmosphere.WithLabelValues("tension").Set(tension)
	globalManager.atmosphere.WithLabelValues("energy").Set(energy)
}

// RecordSceneTransitions adds crossed scene boundaries.
func RecordSceneTransitions(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.sceneTransitions.Add(float64(n))
	}
}

// RecordPlayerComplete counts a finished script.
func RecordPlayerComplete() {
	if globalManager.enabled {
		globalManager.playerCompletes.Inc()
	}
}

// RecordPlayerMisuse counts an ignored player call.
func RecordPlayerMisuse(reason string) {
	if globalManager.enabled {
		globalManager.playerMisuse.WithLabelValues(reason).Inc()
	}
}

// RecordListenerPanic counts a recovered listener panic for a component.
func RecordListenerPanic(component string) {
	if globalManager.enabled {
		globalManager.listenerPanics.WithLabelValues(component).Inc()
	}
}

// UpdateFeedQueue sets the feed queue size and capacity gauges.
func UpdateFeedQueue(size, capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.feedQueueSize.Set(float64(size))
	globalManager.feedQueueCapacity.Set(float64(capacity))
}

// RecordFeedEnqueue counts an accepted upstream event.
func RecordFeedEnqueue() {
	if globalManager.enabled {
		globalManager.feedEnqueued.Inc()
	}
}

// RecordFeedDispatch counts an upstream event delivered to subscribers.
func RecordFeedDispatch() {
	if globalManager.enabled {
		globalManager.feedDispatched.Inc()
	}
}

// RecordFeedEnqueueError counts a rejected upstream event.
func RecordFeedEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.feedErrors.WithLabelValues(reason).Inc()
	}
}

// RecordFeedDuplicate counts an upstream event skipped as a duplicate.
func RecordFeedDuplicate() {
	if globalManager.enabled {
		globalManager.feedDuplicates.Inc()
	}
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// UpdateSystemMemoryUsage sets the memory gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
