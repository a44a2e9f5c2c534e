package session

import (
	"sync"

	"github.com/dsantoro/wgnet/core"
)

// DefaultDirectoryCapacity bounds the number of client associations a
// Directory holds, mirroring the fixed-size contact table it is grounded
// on (core/contact/manager.go's DefaultMaxContacts).
const DefaultDirectoryCapacity = 32

type directoryEntry struct {
	client core.NodeId
	server core.NodeId
	seq    uint64
}

// Directory is a client's bounded, best-effort map of which server last
// reported knowing about which client, built opportunistically from
// ChatClientList responses. It is purely a latency optimization (skip a
// redundant ClientListRequest before sending) and is never treated as
// authoritative: a stale or evicted entry just costs one extra round trip.
//
// Eviction is adapted from ContactManager.allocateSlot: when full, the
// oldest entry not currently "pinned" is evicted first; pinned entries
// (those backing a route the caller is actively using) are only evicted
// once nothing else is left.
type Directory struct {
	mu       sync.Mutex
	capacity int
	seq      uint64
	entries  map[core.NodeId]*directoryEntry
}

// NewDirectory creates a Directory with the given capacity. A non-positive
// capacity falls back to DefaultDirectoryCapacity.
func NewDirectory(capacity int) *Directory {
	if capacity <= 0 {
		capacity = DefaultDirectoryCapacity
	}
	return &Directory{
		capacity: capacity,
		entries:  make(map[core.NodeId]*directoryEntry),
	}
}

// Index records that server knows about client, opportunistically learned
// from a ChatClientList reply. If the directory is full and client is not
// already present, an existing entry is evicted to make room.
func (d *Directory) Index(client, server core.NodeId, isPinned func(core.NodeId) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if e, ok := d.entries[client]; ok {
		e.server = server
		e.seq = d.seq
		return
	}

	if len(d.entries) >= d.capacity {
		if victim, ok := d.allocateVictim(isPinned); ok {
			delete(d.entries, victim)
		} else {
			return
		}
	}
	d.entries[client] = &directoryEntry{client: client, server: server, seq: d.seq}
}

// allocateVictim picks the oldest entry not reported pinned by isPinned,
// falling back to the oldest entry overall if every entry is pinned. Must
// be called with d.mu held. isPinned may be nil, meaning nothing is pinned.
func (d *Directory) allocateVictim(isPinned func(core.NodeId) bool) (core.NodeId, bool) {
	var oldestAny core.NodeId
	var oldestAnySeq uint64 = ^uint64(0)
	haveAny := false

	var oldestFree core.NodeId
	var oldestFreeSeq uint64 = ^uint64(0)
	haveFree := false

	for client, e := range d.entries {
		if e.seq < oldestAnySeq {
			oldestAnySeq = e.seq
			oldestAny = client
			haveAny = true
		}
		pinned := isPinned != nil && isPinned(client)
		if !pinned && e.seq < oldestFreeSeq {
			oldestFreeSeq = e.seq
			oldestFree = client
			haveFree = true
		}
	}
	if haveFree {
		return oldestFree, true
	}
	return oldestAny, haveAny
}

// Lookup returns the server last indexed for client, if any.
func (d *Directory) Lookup(client core.NodeId) (core.NodeId, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[client]
	if !ok {
		return 0, false
	}
	return e.server, true
}

// Forget removes the (client, server) association, used when a server
// replies ChatErrorWrongClientId: the association that produced the wrong
// guess must not be offered again.
func (d *Directory) Forget(client, server core.NodeId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[client]; ok && e.server == server {
		delete(d.entries, client)
	}
}

// Len returns the number of tracked associations.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
