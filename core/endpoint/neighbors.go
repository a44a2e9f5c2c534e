package endpoint

import (
	"errors"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
)

// ErrNeighborUnreachable is returned by NeighborMap.Send when id is not a
// known neighbor, or its inbound channel has no spare buffer capacity —
// this simulation's stand-in for a dead or overloaded receiver, since a
// literally unbounded channel isn't representable in Go.
var ErrNeighborUnreachable = errors.New("endpoint: neighbor unreachable")

// InboundPacket pairs a received wire packet with the neighbor it arrived
// from, needed to exclude that neighbor when re-broadcasting a flood and to
// apply ack weight feedback to the right edge. Nack feedback uses the
// nack's own source instead.
type InboundPacket struct {
	From   core.NodeId
	Packet codec.Packet
}

// NeighborMap is the endpoint's sender table: for every connected neighbor,
// the channel that feeds that neighbor's own inbound packet queue. Per
// spec.md §4.E/§5, it is mutated only by administrative commands processed
// on the endpoint's own goroutine, so it needs no internal locking.
//
// NeighborMap implements routing.Neighbors.
type NeighborMap struct {
	selfId  core.NodeId
	senders map[core.NodeId]chan<- InboundPacket
}

func newNeighborMap(selfId core.NodeId) *NeighborMap {
	return &NeighborMap{
		selfId:  selfId,
		senders: make(map[core.NodeId]chan<- InboundPacket),
	}
}

// Add installs tx as the channel used to reach id.
func (n *NeighborMap) Add(id core.NodeId, tx chan<- InboundPacket) {
	n.senders[id] = tx
}

// Remove evicts a neighbor.
func (n *NeighborMap) Remove(id core.NodeId) {
	delete(n.senders, id)
}

// All returns every currently connected neighbor's id.
func (n *NeighborMap) All() []core.NodeId {
	out := make([]core.NodeId, 0, len(n.senders))
	for id := range n.senders {
		out = append(out, id)
	}
	return out
}

// Send wraps pkt with this endpoint's id as its sender and hands it to
// neighbor id's channel without blocking. A missing neighbor or a full
// channel both report ErrNeighborUnreachable.
func (n *NeighborMap) Send(id core.NodeId, pkt codec.Packet) error {
	tx, ok := n.senders[id]
	if !ok {
		return ErrNeighborUnreachable
	}
	select {
	case tx <- InboundPacket{From: n.selfId, Packet: pkt}:
		return nil
	default:
		return ErrNeighborUnreachable
	}
}
