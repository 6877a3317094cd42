package testevents

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
)

const randomFloatDivisor = 1000000

// weightedType is an upstream type and its relative frequency.
type weightedType struct {
	name     string
	weight   int
	targeted bool // carries related entities
	severe   bool // carries a severity
}

// upstreamTypes mirrors the mix of a lively conversation: mostly messages,
// some thinking, rare conflicts and decisions.
var upstreamTypes = []weightedType{ //nolint:gochecknoglobals // fixed distribution
	{name: "message.created", weight: 30},
	{name: "message.reacted", weight: 10, targeted: true},
	{name: "agent.thinking", weight: 12},
	{name: "agent.tool_call", weight: 8},
	{name: "challenge.issued", weight: 6, targeted: true, severe: true},
	{name: "conflict.raised", weight: 4, targeted: true, severe: true},
	{name: "alliance.formed", weight: 4, targeted: true},
	{name: "consensus.reached", weight: 3},
	{name: "decision.made", weight: 2},
	{name: "milestone.reached", weight: 1},
}

var severities = []string{"low", "medium", "high"} //nolint:gochecknoglobals // fixed lookup

// Generator produces random upstream events in the shape the aggregator's
// default mapper understands.
type Generator struct {
	entities    []string
	totalWeight int
}

// NewGenerator returns a generator over entities, falling back to
// DefaultEntities when none are given.
func NewGenerator(entities []string) *Generator {
	unique := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e]; dup || e == "" {
			continue
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}
	if len(unique) == 0 {
		unique = DefaultEntities()
	}
	total := 0
	for _, t := range upstreamTypes {
		total += t.weight
	}
	return &Generator{entities: unique, totalWeight: total}
}

// Next returns a new event with a unique ID.
func (g *Generator) Next() model.RawEvent {
	t := g.pickType()
	source := g.entities[randIntn(len(g.entities))]

	payload := map[string]any{"source": source}
	if t.targeted && len(g.entities) > 1 {
		payload["related"] = []any{g.pickOther(source)}
	}
	if t.severe {
		payload["severity"] = severities[randIntn(len(severities))]
	}
	if t.name == "message.created" && getRandomFloat() < 0.25 && len(g.entities) > 1 {
		payload["related"] = []any{g.pickOther(source)}
	}

	return model.RawEvent{ID: uuid.NewString(), Type: t.name, Payload: payload}
}

func (g *Generator) pickType() weightedType {
	n := randIntn(g.totalWeight)
	for _, t := range upstreamTypes {
		if n < t.weight {
			return t
		}
		n -= t.weight
	}
	return upstreamTypes[0]
}

// pickOther returns an entity other than source. Needs at least two entities.
func (g *Generator) pickOther(source string) string {
	for {
		if e := g.entities[randIntn(len(g.entities))]; e != source {
			return e
		}
	}
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	return float64(randIntn(randomFloatDivisor)) / float64(randomFloatDivisor)
}

// randIntn returns a uniform int in [0, n) using crypto/rand.
func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
