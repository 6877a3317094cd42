package aggregator

import (
	"time"

	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithActivityWindow sets the horizon used to judge current activity.
func WithActivityWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.activityWindow = d
		}
	}
}

// WithRetention sets the horizon beyond which raw events are purged. It is
// raised to the activity window when shorter.
func WithRetention(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.retention = d
		}
	}
}

// WithDecayRate sets the intensity lost per second by idle entities.
func WithDecayRate(perSecond float64) Option {
	return func(a *Aggregator) {
		if perSecond > 0 {
			a.decayRate = perSecond
		}
	}
}

// WithTempo sets the tempo of the internal clock.
func WithTempo(bpm float64) Option {
	return func(a *Aggregator) {
		a.tempo = bpm
	}
}

// WithMapper replaces the upstream event mapper.
func WithMapper(m *Mapper) Option {
	return func(a *Aggregator) {
		if m != nil {
			a.mapper = m
		}
	}
}

// WithEntities pre-registers entity ids so they appear before their first event.
func WithEntities(ids ...string) Option {
	return func(a *Aggregator) {
		for _, id := range ids {
			if id != "" {
				a.registered[id] = struct{}{}
			}
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(lg logger.Logger) Option {
	return func(a *Aggregator) {
		if lg != nil {
			a.logger = lg
		}
	}
}
