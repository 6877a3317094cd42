package testevents

import (
	"context"
	"errors"
	"time"

	"github.com/okian/pulse/pkg/logger"
)

const defaultInterval = 750 * time.Millisecond

// Run publishes generated events every cfg.Interval until cfg.Count events
// were generated or ctx ends. Rejected events are counted and logged, never
// fatal. Context cancellation is a normal stop.
func Run(ctx context.Context, pub Publisher, cfg Config) Stats {
	stats := Stats{StartTime: time.Now()}
	lg := logger.Get().Named("testevents")

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	gen := NewGenerator(cfg.Entities)

	lg.Info(ctx, "starting synthetic events",
		logger.Duration("interval", interval),
		logger.Int("count", cfg.Count),
		logger.Int("entities", len(gen.entities)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for cfg.Count <= 0 || stats.EventsGenerated < cfg.Count {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		e := gen.Next()
		stats.EventsGenerated++
		if perr := pub.Publish(ctx, e); perr != nil {
			if errors.Is(perr, context.Canceled) || errors.Is(perr, context.DeadlineExceeded) {
				break loop
			}
			stats.EventsRejected++
			lg.Warn(ctx, "synthetic event rejected", logger.String("type", e.Type), logger.Error(perr))
			continue
		}
		stats.EventsPublished++
		lg.Debug(ctx, "synthetic event published", logger.String("id", e.ID), logger.String("type", e.Type))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, lg, stats)
	return stats
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, lg logger.Logger, stats Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsPublished) / stats.Duration.Seconds()
	}
	lg.Info(ctx, "synthetic events stopped",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsPublished", stats.EventsPublished),
		logger.Int("eventsRejected", stats.EventsRejected),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
