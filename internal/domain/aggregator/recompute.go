package aggregator

import (
	"maps"
	"math"
	"sort"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/metrics"
)

// Saturation points for derived ratios.
const (
	intensitySaturation = 5.0
	tensionSaturation   = 3.0
	consensusSaturation = 3.0
	energySaturation    = 10.0
)

type pairKey struct{ a, b string }

type entityTally struct {
	count    int
	speaking bool
	thinking bool
	charged  bool
	latest   time.Time
}

// recomputeLocked rebuilds every derived value from the retained event log.
// Nothing is carried between ticks except each entity's previous intensity
// and last activity, which feed the idle decay.
func (a *Aggregator) recomputeLocked(clockState model.ClockState) {
	now := clockState.At
	if now.IsZero() {
		now = a.sched.Now()
	}
	var dt time.Duration
	if !a.lastRecompute.IsZero() {
		dt = now.Sub(a.lastRecompute)
		if dt < 0 {
			dt = 0
		}
	}
	a.lastRecompute = now

	a.purgeLocked(now)

	tallies := make(map[string]*entityTally)
	pairs := make(map[pairKey]float64)
	var tensionCount, consensusCount, windowCount int

	for _, e := range a.events {
		age := nonNegative(now.Sub(e.Timestamp))
		if age > a.activityWindow {
			continue
		}
		windowCount++

		category := e.Kind.Category()
		switch category {
		case model.CategoryTension:
			tensionCount++
			a.collectPairs(pairs, e, age)
		case model.CategoryConsensus:
			consensusCount++
		}

		if !e.HasSource() {
			continue
		}
		t := tallies[e.SourceID]
		if t == nil {
			t = &entityTally{}
			tallies[e.SourceID] = t
		}
		t.count++
		switch category {
		case model.CategoryExpressive:
			t.speaking = true
		case model.CategoryCognitive:
			t.thinking = true
		case model.CategorySignificant:
			t.charged = true
		}
		if e.Timestamp.After(t.latest) {
			t.latest = e.Timestamp
		}
	}

	activity := a.entityActivityLocked(now, dt, tallies)
	pairList := sortedPairs(pairs)
	atmosphere := model.GlobalAtmosphere{
		Cohesion: saturate(consensusCount, consensusSaturation),
		Tension:  saturate(tensionCount, tensionSaturation),
		Energy:   saturate(windowCount, energySaturation),
	}

	recent := make([]model.DomainEvent, len(a.events))
	copy(recent, a.events)

	a.activity = activity
	a.snapshot = model.Snapshot{
		Clock:        clockState,
		Activity:     maps.Clone(activity),
		Pairs:        pairList,
		RecentEvents: recent,
		Atmosphere:   atmosphere,
	}

	active := 0
	for _, s := range activity {
		if s.Intensity > 0 {
			active++
		}
	}
	metrics.UpdateAggregateSizes(len(recent), active, len(pairList))
	metrics.UpdateAtmosphere(atmosphere.Cohesion, atmosphere.Tension, atmosphere.Energy)
}

// purgeLocked drops events older than the retention horizon.
func (a *Aggregator) purgeLocked(now time.Time) {
	kept := a.events[:0]
	for _, e := range a.events {
		if now.Sub(e.Timestamp) <= a.retention {
			kept = append(kept, e)
		}
	}
	purged := len(a.events) - len(kept)
	for i := len(kept); i < len(a.events); i++ {
		a.events[i] = model.DomainEvent{}
	}
	a.events = kept
	metrics.RecordEventsPurged(purged)
}

// entityActivityLocked derives the activity of every known entity. Entities
// without events in the window keep their last intensity until their last
// activity falls outside the window, then fade by decayRate per second.
func (a *Aggregator) entityActivityLocked(now time.Time, dt time.Duration, tallies map[string]*entityTally) map[string]model.EntityActivityState {
	ids := make(map[string]struct{}, len(a.activity)+len(tallies)+len(a.registered))
	for id := range a.registered {
		ids[id] = struct{}{}
	}
	for id := range a.activity {
		ids[id] = struct{}{}
	}
	for id := range tallies {
		ids[id] = struct{}{}
	}

	out := make(map[string]model.EntityActivityState, len(ids))
	for id := range ids {
		prev := a.activity[id]
		state := model.EntityActivityState{
			EntityID:       id,
			Intensity:      prev.Intensity,
			LastActivityAt: prev.LastActivityAt,
		}
		if t := tallies[id]; t != nil && t.count > 0 {
			state.Speaking = t.speaking
			state.Thinking = t.thinking
			state.Charged = t.charged
			state.Intensity = math.Min(1, float64(t.count)/intensitySaturation)
			state.LastActivityAt = t.latest
		} else if prev.LastActivityAt.IsZero() || now.Sub(prev.LastActivityAt) > a.activityWindow {
			state.Intensity = math.Max(0, prev.Intensity-a.decayRate*dt.Seconds())
		}
		out[id] = state
	}
	return out
}

// collectPairs records one (source, related) pair per related entity, keeping
// the maximum intensity when several events target the same ordered pair.
func (a *Aggregator) collectPairs(pairs map[pairKey]float64, e model.DomainEvent, age time.Duration) {
	if !e.HasSource() || len(e.RelatedIDs) == 0 {
		return
	}
	intensity := math.Max(0, 1-float64(age)/float64(a.activityWindow))
	for _, related := range e.RelatedIDs {
		if related == "" || related == e.SourceID {
			continue
		}
		k := pairKey{a: e.SourceID, b: related}
		if cur, ok := pairs[k]; !ok || intensity > cur {
			pairs[k] = intensity
		}
	}
}

func sortedPairs(pairs map[pairKey]float64) []model.PairTensionState {
	out := make([]model.PairTensionState, 0, len(pairs))
	for k, v := range pairs {
		out = append(out, model.PairTensionState{EntityA: k.a, EntityB: k.b, Vibrating: true, Intensity: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityA != out[j].EntityA {
			return out[i].EntityA < out[j].EntityA
		}
		return out[i].EntityB < out[j].EntityB
	})
	return out
}

func saturate(count int, at float64) float64 {
	return math.Min(1, float64(count)/at)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
