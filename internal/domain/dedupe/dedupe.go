// Package dedupe tracks upstream event IDs so a redelivered feed event is
// only handed to the engines once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later delivery is accepted again. Used when an
	// event was recorded but could not be handed on.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// windowDeduper remembers the most recent maxSize IDs. The oldest ID is
// forgotten first once the window is full.
type windowDeduper struct {
	mu      sync.Mutex
	maxSize int
	seen    map[string]uint64 // id -> sequence of the ring slot holding it
	ring    []string
	next    uint64
}

// NewWindowDeduper creates a bounded in-memory deduper.
func NewWindowDeduper(opts ...Option) Deduper {
	d := &windowDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize <= 0 {
		d.maxSize = defaultMaxSize
	}
	d.seen = make(map[string]uint64, d.maxSize)
	d.ring = make([]string, d.maxSize)
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	slot := int(d.next % uint64(d.maxSize))
	if old := d.ring[slot]; old != "" {
		if seq, ok := d.seen[old]; ok && seq == d.next-uint64(d.maxSize) {
			delete(d.seen, old)
		}
	}
	d.ring[slot] = id
	d.seen[id] = d.next
	d.next++
	return false
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seq, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if slot := int(seq % uint64(d.maxSize)); d.ring[slot] == id {
		d.ring[slot] = ""
	}
}

func (d *windowDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
