// Package routing implements the Routing Engine described in spec.md §4.C:
// flood initiation, flood-response ingestion, source-routed packet
// emission with per-hop retry and link eviction, and the ack/nack-driven
// weight feedback loop. Ported from the original NetworkManager
// (send_flood_request / update_network_from_flood_response / send_packet /
// update_network_from_nack / update_network_from_ack).
package routing

import (
	"log/slog"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
	"github.com/dsantoro/wgnet/core/netstate"
	"github.com/dsantoro/wgnet/core/telemetry"
)

// maxEmissionAttempts bounds the per-hop retry loop in the emission
// subroutine (spec.md §4.C: "retry up to 3 times total").
const maxEmissionAttempts = 3

// Neighbors abstracts the endpoint's neighbor sender map: the routing
// engine never owns it directly (per spec.md §4.E, only the Endpoint Loop
// mutates it), but needs to broadcast and to send along a chosen next hop.
type Neighbors interface {
	// All returns the ids of every currently connected neighbor.
	All() []core.NodeId
	// Send hands pkt to the neighbor's sender. An error means the neighbor
	// is gone.
	Send(id core.NodeId, pkt codec.Packet) error
	// Remove evicts a neighbor whose send just failed.
	Remove(id core.NodeId)
}

// Engine holds the current NetworkState and a snapshot used as fallback
// while a fresh flood is pending.
type Engine struct {
	log      *slog.Logger
	state    *netstate.NetworkState
	oldState *netstate.NetworkState
	floodSeq uint64
	selfId   core.NodeId
	selfType core.NodeType
	emit     telemetry.Sink

	// InvalidateSession is called when an UnexpectedRecipient nack must
	// drop the entire outgoing session, per the Open Question decision in
	// DESIGN.md: reproduced as documented, flagged as possibly too
	// aggressive.
	InvalidateSession func(sessionId uint64)
}

// New creates a Routing Engine around an already-initialized NetworkState.
func New(state *netstate.NetworkState, selfType core.NodeType, emit telemetry.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = telemetry.Discard
	}
	return &Engine{
		log:      logger.WithGroup("routing"),
		state:    state,
		oldState: state.Clone(),
		selfId:   state.SelfId(),
		selfType: selfType,
		emit:     emit,
	}
}

// State returns the engine's current, live NetworkState.
func (e *Engine) State() *netstate.NetworkState { return e.state }

// SendFloodRequest snapshots the current state as the fallback old_state,
// advances the flood sequence, and broadcasts a FloodRequest seeded with
// this endpoint to every connected neighbor.
func (e *Engine) SendFloodRequest(neighbors Neighbors) {
	e.oldState = e.state.Clone()
	e.floodSeq++

	fr := codec.FloodRequest{
		FloodId:     e.floodSeq,
		InitiatorId: e.selfId,
		PathTrace:   []codec.PathEntry{{Id: e.selfId, Type: e.selfType}},
	}
	pkt := codec.Packet{
		Header:   codec.SourceRoutingHeader{Hops: []core.NodeId{e.selfId}, HopIndex: 0},
		Kind:     codec.PayloadKindFloodRequest,
		FloodReq: fr,
	}

	for _, n := range neighbors.All() {
		if err := neighbors.Send(n, pkt); err != nil {
			e.log.Debug("flood broadcast to dead neighbor", "neighbor", n)
			neighbors.Remove(n)
			continue
		}
		e.emit(telemetry.Event{Kind: telemetry.EventPacketSent, Packet: &pkt})
	}
	e.log.Debug("sent flood request", "flood_id", fr.FloodId)
}

// OnFloodResponse ingests a flood's frozen path trace into the topology,
// recomputes cached routes, and returns the servers discovered for the
// first time by this response (so the application may probe their type).
// It triggers a fresh flood if recomputation reveals an unreachable server
// past the grace period.
func (e *Engine) OnFloodResponse(fr codec.FloodResponse, neighbors Neighbors) []core.NodeId {
	knownBefore := make(map[core.NodeId]bool)
	for _, id := range e.state.Servers() {
		knownBefore[id] = true
	}

	var newlyDiscovered []core.NodeId
	for i := 0; i+1 < len(fr.PathTrace); i++ {
		prev, cur := fr.PathTrace[i], fr.PathTrace[i+1]
		e.state.AddLink(prev.Id, cur.Id, prev.Type, cur.Type, 1)
	}
	for _, entry := range fr.PathTrace {
		if entry.Type == core.NodeTypeServer && !knownBefore[entry.Id] {
			newlyDiscovered = append(newlyDiscovered, entry.Id)
			knownBefore[entry.Id] = true
		}
	}

	if !e.state.RecomputeAllRoutes(nil) {
		e.log.Debug("recompute after flood response found unreachable server, flooding again")
		e.SendFloodRequest(neighbors)
	}
	return newlyDiscovered
}

// PacketBuilder constructs the wire packet for a given chosen path, with
// the header positioned at the first forwarder (hop_index 1).
type PacketBuilder func(path []core.NodeId) codec.Packet

// SendPacket attempts to emit a packet toward dest: first via the live
// state's cached/computed path, retrying per-hop failures up to 3 times;
// if that fails entirely and the grace period is still active, it falls
// back to old_state's path with the same up-to-3-attempt emission; if
// that fails too, or the grace period is over, it triggers a fresh flood
// and reports failure.
func (e *Engine) SendPacket(dest core.NodeId, build PacketBuilder, neighbors Neighbors) bool {
	if path, ok := e.state.GetServerPath(dest); ok {
		if e.attemptEmission(e.state, dest, path, build, neighbors) {
			return true
		}
	}

	if !e.state.ShouldFloodAfterMissing() {
		if path, ok := e.oldState.GetServerPath(dest); ok {
			if e.attemptEmission(e.oldState, dest, path, build, neighbors) {
				return true
			}
		}
	}

	e.SendFloodRequest(neighbors)
	return false
}

// attemptEmission is the "Emission subroutine" of spec.md §4.C: hand the
// packet to the next hop's sender; on failure evict the broken neighbor
// from the chosen state, invalidate the destination's cached route, and
// retry with a freshly computed path, up to maxEmissionAttempts total.
func (e *Engine) attemptEmission(chosen *netstate.NetworkState, dest core.NodeId, path []core.NodeId, build PacketBuilder, neighbors Neighbors) bool {
	for attempt := 0; attempt < maxEmissionAttempts; attempt++ {
		if len(path) < 2 {
			return false
		}
		pkt := build(path)
		nextHop := path[1]

		if err := neighbors.Send(nextHop, pkt); err != nil {
			e.log.Debug("send to neighbor failed, evicting", "neighbor", nextHop, "attempt", attempt)
			chosen.RemoveNode(nextHop)
			neighbors.Remove(nextHop)
			chosen.InvalidateRoute(dest)

			newPath, ok := chosen.GetServerPath(dest)
			if !ok {
				return false
			}
			path = newPath
			continue
		}

		e.emit(telemetry.Event{Kind: telemetry.EventPacketSent, Packet: &pkt})
		return true
	}
	return false
}

// OnNack applies the weight/topology feedback for a negative
// acknowledgement. reporter is the node that emitted the nack (meaningful
// for Dropped/DestinationIsDrone, where nack carries no origin of its
// own). sessionId identifies the outgoing session the nacked fragment
// belonged to, needed only for the UnexpectedRecipient session-kill.
func (e *Engine) OnNack(nack core.Nack, reporter core.NodeId, sessionId uint64, neighbors Neighbors) {
	switch nack.Kind {
	case core.NackDropped:
		e.state.RecordDrop()
		e.state.IncrementWeightAround(reporter, 1)
		if !e.state.RecomputeAllRoutes(&reporter) {
			e.SendFloodRequest(neighbors)
		}

	case core.NackErrorInRouting, core.NackUnexpectedRecipient:
		e.state.RecordError()
		origin := nack.Origin
		e.state.RemoveNode(origin)
		if !e.state.RecomputeAllRoutes(&origin) {
			e.SendFloodRequest(neighbors)
		}
		// UnexpectedRecipient kills the entire outgoing session regardless
		// of which fragment triggered it. This reproduces the original
		// implementation's documented behavior; it is likely too
		// aggressive (the fault may be routing-local to one fragment) but
		// is kept for fidelity and flagged for review in DESIGN.md.
		if nack.Kind == core.NackUnexpectedRecipient && e.InvalidateSession != nil {
			e.InvalidateSession(sessionId)
		}

	case core.NackDestinationIsDrone:
		e.state.DemoteServer(reporter)
	}
}

// OnAck applies the weight feedback for a positive acknowledgement:
// successful forwarders earn a lower weight.
func (e *Engine) OnAck(origin core.NodeId, neighbors Neighbors) {
	e.state.IncrementWeightAround(origin, -1)
	if !e.state.RecomputeAllRoutes(&origin) {
		e.SendFloodRequest(neighbors)
	}
}
