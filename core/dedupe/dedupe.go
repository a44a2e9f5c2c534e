// Package dedupe tracks recently seen flood requests so an endpoint
// generates at most one FloodResponse per (flood_id, initiator_id) per
// drone, per the forwarding contract's observable behavior.
package dedupe

import "github.com/dsantoro/wgnet/core"

// DefaultCapacity is the default number of (flood_id, initiator_id) keys
// remembered before the oldest is evicted.
const DefaultCapacity = 64

// FloodKey identifies one flood round.
type FloodKey struct {
	FloodId     uint64
	InitiatorId core.NodeId
}

// FloodDeduplicator is a circular-buffer seen-set for flood keys, mirroring
// the shape of a packet-hash deduplicator but keyed on the flood identity
// instead of a content hash.
type FloodDeduplicator struct {
	seen     []FloodKey
	index    map[FloodKey]int // key -> slot, to support fast membership test
	capacity int
	next     int
	filled   int
}

// New creates a FloodDeduplicator with the default capacity.
func New() *FloodDeduplicator {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a FloodDeduplicator remembering up to capacity keys.
func NewWithCapacity(capacity int) *FloodDeduplicator {
	return &FloodDeduplicator{
		seen:     make([]FloodKey, capacity),
		index:    make(map[FloodKey]int, capacity),
		capacity: capacity,
	}
}

// HasSeen reports whether this (flood_id, initiator_id) pair has already
// been observed. If not, it records the key and returns false.
func (d *FloodDeduplicator) HasSeen(key FloodKey) bool {
	if _, ok := d.index[key]; ok {
		return true
	}

	if d.filled == d.capacity {
		evicted := d.seen[d.next]
		delete(d.index, evicted)
	} else {
		d.filled++
	}

	d.seen[d.next] = key
	d.index[key] = d.next
	d.next = (d.next + 1) % d.capacity
	return false
}

// Clear forgets every previously seen key.
func (d *FloodDeduplicator) Clear() {
	clear(d.seen)
	clear(d.index)
	d.next = 0
	d.filled = 0
}
