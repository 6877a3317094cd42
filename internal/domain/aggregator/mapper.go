package aggregator

import (
	"maps"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/model"
)

// Constructor builds a DomainEvent from an upstream payload. It returns false
// when the payload is malformed; the event is then dropped.
type Constructor func(payload map[string]any) (model.DomainEvent, bool)

// Mapper translates upstream feed events into domain events through a lookup
// table keyed by upstream type. It is the only code that interprets the
// upstream shape.
type Mapper struct {
	mu    sync.RWMutex
	table map[string]Constructor
}

// NewMapper returns a mapper with an empty table.
func NewMapper() *Mapper {
	return &Mapper{table: make(map[string]Constructor)}
}

// DefaultMapper returns a mapper preloaded with the built-in upstream types.
func DefaultMapper() *Mapper {
	m := NewMapper()
	m.Register("message.created", KindConstructor(model.KindMessage, true))
	m.Register("message.reacted", KindConstructor(model.KindReaction, true))
	m.Register("agent.thinking", KindConstructor(model.KindThinking, true))
	m.Register("agent.tool_call", KindConstructor(model.KindToolCall, true))
	m.Register("decision.made", KindConstructor(model.KindDecision, true))
	m.Register("milestone.reached", KindConstructor(model.KindMilestone, false))
	m.Register("conflict.raised", KindConstructor(model.KindConflict, true))
	m.Register("challenge.issued", KindConstructor(model.KindChallenge, true))
	m.Register("consensus.reached", KindConstructor(model.KindAgreement, false))
	m.Register("alliance.formed", KindConstructor(model.KindAlliance, true))
	m.Register("agent.joined", KindConstructor(model.KindJoined, true))
	m.Register("agent.left", KindConstructor(model.KindLeft, true))
	return m
}

// Register adds or replaces the constructor for an upstream type.
func (m *Mapper) Register(eventType string, ctor Constructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table[eventType] = ctor
}

// Types returns the registered upstream types.
func (m *Mapper) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.table))
	for k := range m.table {
		out = append(out, k)
	}
	return out
}

// Map converts raw into a domain event. Unknown types and malformed payloads
// yield false and never an error.
func (m *Mapper) Map(raw model.RawEvent) (model.DomainEvent, bool) {
	m.mu.RLock()
	ctor, ok := m.table[raw.Type]
	m.mu.RUnlock()
	if !ok || ctor == nil {
		return model.DomainEvent{}, false
	}

	payload := raw.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	e, ok := ctor(payload)
	if !ok {
		return model.DomainEvent{}, false
	}
	if e.ID == "" {
		e.ID = raw.ID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = raw.ReceivedAt
	}
	return e, true
}

// KindConstructor builds events of a fixed kind from the common payload keys:
// source/agent_id, related/targets, severity, ts and metadata.
func KindConstructor(kind model.EventKind, requireSource bool) Constructor {
	return func(p map[string]any) (model.DomainEvent, bool) {
		source, ok := stringField(p, "source", "agent_id")
		if !ok || (requireSource && source == "") {
			return model.DomainEvent{}, false
		}
		related, ok := stringListField(p, "related", "targets")
		if !ok {
			return model.DomainEvent{}, false
		}
		severity, ok := stringField(p, "severity")
		if !ok {
			return model.DomainEvent{}, false
		}
		ts, ok := timeField(p, "ts")
		if !ok {
			return model.DomainEvent{}, false
		}
		id, ok := stringField(p, "id")
		if !ok {
			return model.DomainEvent{}, false
		}
		var meta map[string]any
		if raw, present := p["metadata"]; present {
			mm, isMap := raw.(map[string]any)
			if !isMap {
				return model.DomainEvent{}, false
			}
			meta = maps.Clone(mm)
		}
		return model.DomainEvent{
			ID:         id,
			Kind:       kind,
			SourceID:   source,
			RelatedIDs: related,
			Timestamp:  ts,
			Severity:   model.ParseSeverity(severity),
			Metadata:   meta,
		}, true
	}
}

// stringField returns the first present key. A present non-string value is malformed.
func stringField(p map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, present := p[k]
		if !present || v == nil {
			continue
		}
		s, ok := v.(string)
		return s, ok
	}
	return "", true
}

func stringListField(p map[string]any, keys ...string) ([]string, bool) {
	for _, k := range keys {
		v, present := p[k]
		if !present || v == nil {
			continue
		}
		switch list := v.(type) {
		case []string:
			return append([]string(nil), list...), true
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, s)
			}
			return out, true
		case string:
			return []string{list}, true
		default:
			return nil, false
		}
	}
	return nil, true
}

// timeField accepts RFC3339 strings or unix milliseconds.
func timeField(p map[string]any, key string) (time.Time, bool) {
	v, present := p[key]
	if !present || v == nil {
		return time.Time{}, true
	}
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case float64:
		return time.UnixMilli(int64(t)), true
	case int64:
		return time.UnixMilli(t), true
	case int:
		return time.UnixMilli(int64(t)), true
	case time.Time:
		return t, true
	default:
		return time.Time{}, false
	}
}
