package clock

import (
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Clock.
type Option func(*Clock)

// WithTempo sets the initial tempo, clamped to [60,240] bpm.
func WithTempo(bpm float64) Option {
	return func(c *Clock) {
		c.tempo = model.ClampTempo(bpm)
	}
}

// WithBeatsPerBar sets the bar length in beats.
func WithBeatsPerBar(n int) Option {
	return func(c *Clock) {
		if n > 0 {
			c.beatsPerBar = n
		}
	}
}

// WithLogger sets a custom logger for the clock.
func WithLogger(lg logger.Logger) Option {
	return func(c *Clock) {
		if lg != nil {
			c.logger = lg
		}
	}
}
