// Package netstate holds the per-endpoint weighted topology graph, the
// server/client bookkeeping derived from it, cached shortest paths, and the
// failure counters that decide when a fresh flood is due.
//
// Ported from the original network state module (client-side NetworkState /
// NetworkManager), restated in the teacher's idiom: exported methods with
// slog-backed logging, an injectable clock, and the hand-rolled
// core/graph Dijkstra in place of a third-party graph crate.
package netstate

import (
	"log/slog"
	"math"
	"time"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/clock"
	"github.com/dsantoro/wgnet/core/graph"
)

// DefaultGracePeriod is the window after (re)initialization during which a
// missing server route does not force a new flood.
const DefaultGracePeriod = 3 * time.Second

// Config tunes flood scheduling and failure-threshold scaling.
type Config struct {
	// FloodInterval is the maximum age of the state before should_flood
	// fires on elapsed-time grounds alone.
	FloodInterval time.Duration
	// ErrorScale and DropScale scale the failure-count thresholds against
	// the current edge count (see ShouldFlood).
	ErrorScale uint32
	DropScale  uint32
	// GracePeriod overrides DefaultGracePeriod; zero means use the default.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// NetworkState is the per-endpoint topology model described in spec.md §4.B.
type NetworkState struct {
	log *slog.Logger
	clk *clock.Clock
	cfg Config

	topology *graph.Graph
	selfId   core.NodeId
	selfType core.NodeType

	nodeTypes map[core.NodeId]core.NodeType
	serverSet map[core.NodeId]bool

	routingTable map[core.NodeId][]core.NodeId

	creationTime time.Time

	failedErrorCount uint64
	failedDropCount  uint64
}

// New creates a NetworkState for selfId, already present in its own
// topology as selfType.
func New(selfId core.NodeId, selfType core.NodeType, cfg Config, clk *clock.Clock) *NetworkState {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ns := &NetworkState{
		log:          logger.WithGroup("netstate"),
		clk:          clk,
		cfg:          cfg,
		topology:     graph.New(),
		selfId:       selfId,
		selfType:     selfType,
		nodeTypes:    make(map[core.NodeId]core.NodeType),
		serverSet:    make(map[core.NodeId]bool),
		routingTable: make(map[core.NodeId][]core.NodeId),
		creationTime: clk.Now(),
	}
	ns.addNodeUnconditional(selfId, selfType)
	return ns
}

// Clone returns a deep copy of the state, used by the routing engine to
// keep an "old state" fallback snapshot.
func (ns *NetworkState) Clone() *NetworkState {
	clone := &NetworkState{
		log:              ns.log,
		clk:              ns.clk,
		cfg:              ns.cfg,
		topology:         graph.New(),
		selfId:           ns.selfId,
		selfType:         ns.selfType,
		nodeTypes:        make(map[core.NodeId]core.NodeType, len(ns.nodeTypes)),
		serverSet:        make(map[core.NodeId]bool, len(ns.serverSet)),
		routingTable:     make(map[core.NodeId][]core.NodeId, len(ns.routingTable)),
		creationTime:     ns.creationTime,
		failedErrorCount: ns.failedErrorCount,
		failedDropCount:  ns.failedDropCount,
	}
	for id, t := range ns.nodeTypes {
		clone.nodeTypes[id] = t
		clone.topology.AddNode(id)
	}
	for _, from := range ns.topology.Nodes() {
		for to, w := range ns.topology.Neighbors(from) {
			clone.topology.AddEdge(from, to, w)
		}
	}
	for id := range ns.serverSet {
		clone.serverSet[id] = true
	}
	for dest, path := range ns.routingTable {
		cp := make([]core.NodeId, len(path))
		copy(cp, path)
		clone.routingTable[dest] = cp
	}
	return clone
}

// SelfId returns this endpoint's own NodeId.
func (ns *NetworkState) SelfId() core.NodeId { return ns.selfId }

// Servers returns the set of NodeIds currently known to be servers.
func (ns *NetworkState) Servers() []core.NodeId {
	out := make([]core.NodeId, 0, len(ns.serverSet))
	for id := range ns.serverSet {
		out = append(out, id)
	}
	return out
}

// HasNode reports whether id is present in the topology.
func (ns *NetworkState) HasNode(id core.NodeId) bool {
	return ns.topology.HasNode(id)
}

// HasEdge reports whether a directed edge from->to exists in the topology.
func (ns *NetworkState) HasEdge(from, to core.NodeId) bool {
	return ns.topology.HasEdge(from, to)
}

// EdgeCount returns the number of directed edges in the topology.
func (ns *NetworkState) EdgeCount() int {
	return ns.topology.EdgeCount()
}

// AddNode adds id with the given type, honoring the client-exclusion
// invariant: a non-self client is never represented in the topology.
func (ns *NetworkState) AddNode(id core.NodeId, t core.NodeType) {
	if t == core.NodeTypeClient && id != ns.selfId {
		return
	}
	ns.addNodeUnconditional(id, t)
}

func (ns *NetworkState) addNodeUnconditional(id core.NodeId, t core.NodeType) {
	ns.topology.AddNode(id)
	ns.nodeTypes[id] = t
	if t == core.NodeTypeServer {
		ns.serverSet[id] = true
	}
}

// RemoveNode drops id from the topology. No-op for servers: a server is a
// leaf destination, not a forwarder, so its disappearance from the
// forwarding graph is never observed the way a drone's is.
func (ns *NetworkState) RemoveNode(id core.NodeId) {
	if ns.nodeTypes[id] == core.NodeTypeServer {
		return
	}
	ns.topology.RemoveNode(id)
	delete(ns.nodeTypes, id)
	for dest, path := range ns.routingTable {
		if pathContains(path, id) {
			delete(ns.routingTable, dest)
		}
	}
}

// DemoteServer removes id from the server set and the topology entirely,
// used when a Nack(DestinationIsDrone) reveals a node was misclassified as
// a server.
func (ns *NetworkState) DemoteServer(id core.NodeId) {
	delete(ns.serverSet, id)
	ns.topology.RemoveNode(id)
	delete(ns.nodeTypes, id)
	delete(ns.routingTable, id)
}

// AddLink adds an edge (or edge pair) between a and b, enforcing:
//   - the client-exclusion rule (any non-self client endpoint drops the
//     link entirely);
//   - weight 0 rewritten to 1;
//   - servers are only ever reached, never traversed, so a link touching a
//     server inserts only the forwarder -> server direction; otherwise the
//     link is bidirectional.
func (ns *NetworkState) AddLink(a, b core.NodeId, ta, tb core.NodeType, weight uint32) {
	if (ta == core.NodeTypeClient && a != ns.selfId) || (tb == core.NodeTypeClient && b != ns.selfId) {
		return
	}
	if weight == 0 {
		weight = 1
	}

	ns.AddNode(a, ta)
	ns.AddNode(b, tb)

	switch {
	case ta == core.NodeTypeServer:
		ns.topology.AddEdge(b, a, weight)
	case tb == core.NodeTypeServer:
		ns.topology.AddEdge(a, b, weight)
	default:
		ns.topology.AddEdge(a, b, weight)
		ns.topology.AddEdge(b, a, weight)
	}
}

// IncrementWeightAround bumps the weight of every edge incident to id by
// delta, saturating at the maximum representable weight on increase and
// flooring at 1 on decrease.
func (ns *NetworkState) IncrementWeightAround(id core.NodeId, delta int64) {
	ns.topology.IncrementWeightAround(id, delta)
}

// GetServerPath returns the cached path to sid if one exists, else computes
// it via Dijkstra, caches it, and returns it. It returns ok=false if sid is
// not a known server or no path exists.
func (ns *NetworkState) GetServerPath(sid core.NodeId) (path []core.NodeId, ok bool) {
	if !ns.serverSet[sid] {
		return nil, false
	}
	if cached, found := ns.routingTable[sid]; found {
		return cached, true
	}

	sp := ns.topology.Dijkstra(ns.selfId)
	p, reachable, err := sp.ReconstructPath(ns.selfId, sid)
	if err != nil {
		ns.log.Warn("cycle detected reconstructing path", "dest", sid, "err", err)
		return nil, false
	}
	if !reachable {
		return nil, false
	}
	ns.routingTable[sid] = p
	return p, true
}

// RecomputeAllRoutes re-derives cached paths for every known server. A
// server's path is recomputed when it has no cached path, or when it has
// one and filter names a node that appears in it (the link around that
// node just changed). It returns false when a server turns out to be
// unreachable and the grace period has expired — the caller must flood.
func (ns *NetworkState) RecomputeAllRoutes(filter *core.NodeId) bool {
	sp := ns.topology.Dijkstra(ns.selfId)

	canFlood := true
	for s := range ns.serverSet {
		cached, hasCached := ns.routingTable[s]
		needsRecompute := !hasCached || (filter != nil && pathContains(cached, *filter))
		if !needsRecompute {
			continue
		}

		p, reachable, err := sp.ReconstructPath(ns.selfId, s)
		if err != nil || !reachable {
			delete(ns.routingTable, s)
			if _, hasDist := sp.Dist[s]; !hasDist && ns.ShouldFloodAfterMissing() {
				canFlood = false
			}
			continue
		}
		ns.routingTable[s] = p
	}
	return canFlood
}

// InvalidateRoute drops the cached path to dest, if any, forcing the next
// GetServerPath(dest) call to recompute it.
func (ns *NetworkState) InvalidateRoute(dest core.NodeId) {
	delete(ns.routingTable, dest)
}

// ShouldFlood reports whether a fresh topology flood is due, per spec.md
// §4.B: elapsed time past FloodInterval, or either failure counter past its
// edge-scaled threshold.
func (ns *NetworkState) ShouldFlood() bool {
	if ns.cfg.FloodInterval > 0 && ns.clk.Since(ns.creationTime) > ns.cfg.FloodInterval {
		return true
	}

	edges := uint64(ns.topology.EdgeCount())
	errorThreshold := clamp(edges*uint64(ns.cfg.ErrorScale)/100, 10, 100)
	if ns.failedErrorCount > errorThreshold {
		return true
	}

	dropThreshold := clamp(edges*uint64(ns.cfg.DropScale)/100, 5, 50)
	return ns.failedDropCount > dropThreshold
}

// ShouldFloodAfterMissing reports whether the grace period following
// (re)initialization has elapsed, meaning a missing server route should now
// force a flood instead of being tolerated.
func (ns *NetworkState) ShouldFloodAfterMissing() bool {
	return ns.clk.Since(ns.creationTime) >= ns.cfg.GracePeriod
}

// RecordError increments the saturating error-nack counter.
func (ns *NetworkState) RecordError() {
	if ns.failedErrorCount < math.MaxUint64 {
		ns.failedErrorCount++
	}
}

// RecordDrop increments the saturating drop-nack counter.
func (ns *NetworkState) RecordDrop() {
	if ns.failedDropCount < math.MaxUint64 {
		ns.failedDropCount++
	}
}

// Reset reinitializes creation_time and failure counters, called when a
// fresh flood round begins.
func (ns *NetworkState) Reset() {
	ns.creationTime = ns.clk.Now()
	ns.failedErrorCount = 0
	ns.failedDropCount = 0
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pathContains(path []core.NodeId, id core.NodeId) bool {
	for _, n := range path {
		if n == id {
			return true
		}
	}
	return false
}
