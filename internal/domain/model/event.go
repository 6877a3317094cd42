// Package model contains domain models passed between layers.
package model

import (
	"maps"
	"slices"
	"time"
)

// EventKind tags a DomainEvent.
type EventKind string

// Known event kinds.
const (
	KindMessage   EventKind = "message"
	KindReaction  EventKind = "reaction"
	KindThinking  EventKind = "thinking"
	KindToolCall  EventKind = "tool_call"
	KindDecision  EventKind = "decision"
	KindMilestone EventKind = "milestone"
	KindConflict  EventKind = "conflict"
	KindChallenge EventKind = "challenge"
	KindAgreement EventKind = "agreement"
	KindAlliance  EventKind = "alliance"
	KindJoined    EventKind = "joined"
	KindLeft      EventKind = "left"
)

// Category groups event kinds for derived state.
type Category string

// Event categories.
const (
	CategoryExpressive  Category = "expressive"
	CategoryCognitive   Category = "cognitive"
	CategorySignificant Category = "significant"
	CategoryTension     Category = "tension"
	CategoryConsensus   Category = "consensus"
	CategoryAmbient     Category = "ambient"
)

var kindCategories = map[EventKind]Category{ //nolint:gochecknoglobals // fixed lookup table
	KindMessage:   CategoryExpressive,
	KindReaction:  CategoryExpressive,
	KindThinking:  CategoryCognitive,
	KindToolCall:  CategoryCognitive,
	KindDecision:  CategorySignificant,
	KindMilestone: CategorySignificant,
	KindConflict:  CategoryTension,
	KindChallenge: CategoryTension,
	KindAgreement: CategoryConsensus,
	KindAlliance:  CategoryConsensus,
	KindJoined:    CategoryAmbient,
	KindLeft:      CategoryAmbient,
}

// Category returns the category of k. Unknown kinds are ambient.
func (k EventKind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryAmbient
}

// Kinds lists every known kind in declaration order.
func Kinds() []EventKind {
	return []EventKind{
		KindMessage, KindReaction, KindThinking, KindToolCall, KindDecision, KindMilestone,
		KindConflict, KindChallenge, KindAgreement, KindAlliance, KindJoined, KindLeft,
	}
}

// Severity of a domain event.
type Severity string

// Severity levels.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps free text to a Severity, defaulting to low.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityMedium, SeverityHigh:
		return Severity(s)
	default:
		return SeverityLow
	}
}

// DomainEvent is an internal, immutable event fed into the aggregator.
type DomainEvent struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	SourceID   string         `json:"source_id,omitempty"`   // empty when the event has no source entity
	RelatedIDs []string       `json:"related_ids,omitempty"` // entities the event refers to
	Timestamp  time.Time      `json:"timestamp"`
	Severity   Severity       `json:"severity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HasSource reports whether the event names a source entity.
func (e DomainEvent) HasSource() bool { return e.SourceID != "" }

// Clone returns a copy that shares no mutable state with e.
func (e DomainEvent) Clone() DomainEvent {
	e.RelatedIDs = slices.Clone(e.RelatedIDs)
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}

// RawEvent is the opaque shape delivered by an upstream feed.
type RawEvent struct {
	ID         string         `json:"id"`      // upstream id used for deduplication; may be empty
	Type       string         `json:"type"`    // type tag, e.g. "message.created"
	Payload    map[string]any `json:"payload"` // type-specific payload
	ReceivedAt time.Time      `json:"received_at"`
}
