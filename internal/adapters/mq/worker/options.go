package worker

import (
	"github.com/okian/pulse/internal/domain/dedupe"
	"github.com/okian/pulse/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithName sets the dispatcher name for identification and logging.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.name = name
		}
	}
}

// WithDeduper drops events whose upstream ID was already dispatched.
func WithDeduper(dd dedupe.Deduper) Option {
	return func(d *Dispatcher) {
		d.deduper = dd
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(lg logger.Logger) Option {
	return func(d *Dispatcher) {
		if lg != nil {
			d.logger = lg
		}
	}
}
