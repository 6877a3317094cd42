package model

import (
	"maps"
	"math"
	"slices"
	"time"
)

// Tempo bounds in beats per minute.
const (
	MinTempo     = 60.0
	MaxTempo     = 240.0
	DefaultTempo = 120.0
)

// ClampTempo bounds bpm to [MinTempo, MaxTempo].
func ClampTempo(bpm float64) float64 {
	switch {
	case math.IsNaN(bpm):
		return DefaultTempo
	case bpm < MinTempo:
		return MinTempo
	case bpm > MaxTempo:
		return MaxTempo
	default:
		return bpm
	}
}

// ClockState is an immutable snapshot of a musical clock.
type ClockState struct {
	Tempo         float64       `json:"tempo"`           // beats per minute
	Bar           int           `json:"bar"`             // starts at 1
	BeatInBar     int           `json:"beat_in_bar"`     // 1..beats per bar
	BeatCount     int           `json:"beat_count"`      // beats committed since start or reset
	SinceLastBeat time.Duration `json:"since_last_beat"` // carry toward the next beat
	Running       bool          `json:"running"`
	At            time.Time     `json:"at"` // frame time that produced this state; zero before the first tick
}

// EntityActivityState is the derived activity of one entity.
type EntityActivityState struct {
	EntityID       string    `json:"entity_id"`
	Speaking       bool      `json:"speaking"`
	Thinking       bool      `json:"thinking"`
	Charged        bool      `json:"charged"`
	Intensity      float64   `json:"intensity"` // [0,1]
	LastActivityAt time.Time `json:"last_activity_at"`
}

// PairTensionState describes tension from EntityA toward EntityB.
type PairTensionState struct {
	EntityA   string  `json:"entity_a"`
	EntityB   string  `json:"entity_b"`
	Vibrating bool    `json:"vibrating"`
	Intensity float64 `json:"intensity"` // [0,1]
}

// GlobalAtmosphere summarizes aggregate recent activity.
type GlobalAtmosphere struct {
	Cohesion float64 `json:"cohesion" toml:"cohesion"`
	Tension  float64 `json:"tension" toml:"tension"`
	Energy   float64 `json:"energy" toml:"energy"`
}

// Snapshot is the full derived state published by the aggregator each tick.
type Snapshot struct {
	Clock        ClockState                     `json:"clock"`
	Activity     map[string]EntityActivityState `json:"activity"`
	Pairs        []PairTensionState             `json:"pairs"`
	RecentEvents []DomainEvent                  `json:"recent_events"`
	Atmosphere   GlobalAtmosphere               `json:"atmosphere"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Activity = maps.Clone(s.Activity)
	out.Pairs = slices.Clone(s.Pairs)
	out.RecentEvents = make([]DomainEvent, len(s.RecentEvents))
	for i, e := range s.RecentEvents {
		out.RecentEvents[i] = e.Clone()
	}
	return out
}
