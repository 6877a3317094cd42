// Package config defines process configuration and its loading.
package config

import (
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// TempoBPM is the musical clock tempo, clamped to [60,240].
	TempoBPM float64 `koanf:"tempo_bpm"`

	// FrameIntervalMS is the live scheduler frame interval.
	FrameIntervalMS int `koanf:"frame_interval_ms"`

	// ActivityWindowMS and RetentionMS bound the aggregator's event horizons.
	ActivityWindowMS int `koanf:"activity_window_ms"`
	RetentionMS      int `koanf:"retention_ms"`

	// DecayPerSecond is the intensity an idle entity loses per second.
	DecayPerSecond float64 `koanf:"decay_per_second"`

	// FeedQueueSize bounds the upstream event queue.
	FeedQueueSize int `koanf:"feed_queue_size"`

	// DedupeSize sets how many upstream event IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// Entities are pre-registered so they show up before their first event.
	Entities []string `koanf:"entities"`

	// SyntheticEvents enables the built-in event generator.
	SyntheticEvents     bool `koanf:"synthetic_events"`
	SyntheticIntervalMS int  `koanf:"synthetic_interval_ms"`

	// ScriptTitle and ScriptGoal feed the script builder.
	ScriptTitle string `koanf:"script_title"`
	ScriptGoal  string `koanf:"script_goal"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		TempoBPM:            model.DefaultTempo,
		FrameIntervalMS:     16,
		ActivityWindowMS:    8_000,
		RetentionMS:         60_000,
		DecayPerSecond:      1.2,
		FeedQueueSize:       4096,
		DedupeSize:          10_000,
		Entities:            []string{},
		SyntheticEvents:     false,
		SyntheticIntervalMS: 750,
		ScriptTitle:         "Live session",
	}
}

// FrameInterval returns FrameIntervalMS as a duration.
func (c *Config) FrameInterval() time.Duration { return ms(c.FrameIntervalMS) }

// ActivityWindow returns ActivityWindowMS as a duration.
func (c *Config) ActivityWindow() time.Duration { return ms(c.ActivityWindowMS) }

// Retention returns RetentionMS as a duration.
func (c *Config) Retention() time.Duration { return ms(c.RetentionMS) }

// SyntheticInterval returns SyntheticIntervalMS as a duration.
func (c *Config) SyntheticInterval() time.Duration { return ms(c.SyntheticIntervalMS) }

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TempoBPM < model.MinTempo || c.TempoBPM > model.MaxTempo:
		return fmt.Errorf("%w: tempo_bpm %v outside [%v,%v]", ErrInvalidConfig, c.TempoBPM, model.MinTempo, model.MaxTempo)
	case c.FrameIntervalMS <= 0:
		return fmt.Errorf("%w: frame_interval_ms must be positive", ErrInvalidConfig)
	case c.ActivityWindowMS <= 0:
		return fmt.Errorf("%w: activity_window_ms must be positive", ErrInvalidConfig)
	case c.RetentionMS < c.ActivityWindowMS:
		return fmt.Errorf("%w: retention_ms must be at least activity_window_ms", ErrInvalidConfig)
	case c.DecayPerSecond <= 0:
		return fmt.Errorf("%w: decay_per_second must be positive", ErrInvalidConfig)
	case c.FeedQueueSize <= 0:
		return fmt.Errorf("%w: feed_queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.SyntheticEvents && c.SyntheticIntervalMS <= 0:
		return fmt.Errorf("%w: synthetic_interval_ms must be positive", ErrInvalidConfig)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
