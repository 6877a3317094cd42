package testevents

import "time"

// Config holds configuration for a synthetic event run.
type Config struct {
	Entities []string      // Entities events are attributed to
	Interval time.Duration // Delay between events
	Count    int           // Events to publish; 0 runs until the context ends
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated int
	EventsPublished int
	EventsRejected  int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// DefaultEntities is used when a run names none.
func DefaultEntities() []string {
	return []string{"ada", "bo", "cy", "dee"}
}
