// Package endpoint implements the Endpoint Loop described in spec.md §4.E:
// a cooperative actor that multiplexes administrative commands, UI/
// application commands, and inbound packets with strict priority ordering,
// dispatches each to the right handler (Session Manager, Routing Engine,
// flood deduplication), and emits the endpoint's telemetry event stream.
//
// Structurally grounded on device/router/router.go's gated dispatch and
// the dual-timer select loop in device/advert/scheduler.go, generalized
// from a single inbound queue into the three-way priority select spec.md
// requires; the packet-kind dispatch itself follows the control flow in
// the original client worker loop (crates/client/src/worker.rs).
package endpoint

import (
	"context"
	"log/slog"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/clock"
	"github.com/dsantoro/wgnet/core/codec"
	"github.com/dsantoro/wgnet/core/dedupe"
	"github.com/dsantoro/wgnet/core/liveness"
	"github.com/dsantoro/wgnet/core/netstate"
	"github.com/dsantoro/wgnet/core/routing"
	"github.com/dsantoro/wgnet/core/session"
	"github.com/dsantoro/wgnet/core/telemetry"
)

// DefaultChannelCapacity bounds every one of an endpoint's three input
// channels. Chosen generously: spec.md §5 treats channels as unbounded and
// explicitly declines to model back-pressure, so this is just large enough
// that a simulation run is very unlikely to ever observe it.
const DefaultChannelCapacity = 4096

// Config configures an Endpoint.
type Config struct {
	ChannelCapacity int
	Logger          *slog.Logger
}

// Endpoint is a single parallel actor: one client, server, or drone-facing
// application sitting on top of the Routing Engine and Session Manager.
type Endpoint struct {
	log      *slog.Logger
	selfId   core.NodeId
	selfType core.NodeType

	neighbors *NeighborMap
	engine    *routing.Engine
	sessions  *session.Manager
	flood     *dedupe.FloodDeduplicator
	live      *liveness.Tracker
	emit      telemetry.Sink

	adminCh  chan AdminCommand
	uiCh     chan UICommand
	packetCh chan InboundPacket

	// OnDeliver is called with every fully reassembled and decoded incoming
	// message (or a codec.ServerTypeProbeRequest), outside any lock.
	OnDeliver func(msg any, source core.NodeId)

	// OnServerDiscovered is called for every server a flood response
	// reveals for the first time, so the application can probe its type.
	OnServerDiscovered func(id core.NodeId)
}

// New creates an Endpoint around an already-initialized NetworkState.
func New(selfId core.NodeId, selfType core.NodeType, state *netstate.NetworkState, emit telemetry.Sink, cfg Config) *Endpoint {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultChannelCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = telemetry.Discard
	}
	logger = logger.WithGroup("endpoint")

	ep := &Endpoint{
		log:       logger,
		selfId:    selfId,
		selfType:  selfType,
		neighbors: newNeighborMap(selfId),
		engine:    routing.New(state, selfType, emit, logger),
		sessions:  session.New(emit, logger),
		flood:     dedupe.New(),
		live:      liveness.New(liveness.Config{Logger: logger}, clock.New()),
		emit:      emit,
		adminCh:   make(chan AdminCommand, cfg.ChannelCapacity),
		uiCh:      make(chan UICommand, cfg.ChannelCapacity),
		packetCh:  make(chan InboundPacket, cfg.ChannelCapacity),
	}
	ep.sessions.Deliver = ep.deliver
	ep.engine.InvalidateSession = ep.sessions.InvalidateSession
	return ep
}

// SelfId returns this endpoint's NodeId.
func (e *Endpoint) SelfId() core.NodeId { return e.selfId }

// Engine returns the endpoint's Routing Engine, for inspection or wiring
// the periodic FloodScheduler.
func (e *Endpoint) Engine() *routing.Engine { return e.engine }

// Liveness returns the endpoint's neighbor-staleness tracker, for wiring its
// periodic Start/Stop scan or inspecting LastSeen/Stale.
func (e *Endpoint) Liveness() *liveness.Tracker { return e.live }

// Admin returns the channel administrative commands are sent on.
func (e *Endpoint) Admin() chan<- AdminCommand { return e.adminCh }

// UI returns the channel application/UI commands are sent on.
func (e *Endpoint) UI() chan<- UICommand { return e.uiCh }

// Inbound returns the channel this endpoint's neighbors push packets onto.
// Exposing it lets Connect wire two endpoints together directly, with no
// intermediate bridging goroutine.
func (e *Endpoint) Inbound() chan<- InboundPacket { return e.packetCh }

// Connect wires a and b as neighbors of one another: each learns to reach
// the other by pushing straight onto its Inbound channel.
func Connect(a, b *Endpoint) {
	a.adminCh <- AdminCommand{Kind: AdminAddSender, NeighborId: b.selfId, Sender: b.Inbound()}
	b.adminCh <- AdminCommand{Kind: AdminAddSender, NeighborId: a.selfId, Sender: a.Inbound()}
}

// Run is the endpoint's main loop. It blocks until ctx is cancelled,
// servicing administrative commands, then UI commands, then inbound
// packets, in strict priority order whenever more than one is ready.
func (e *Endpoint) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-e.adminCh:
			e.handleAdmin(cmd)
			continue
		default:
		}

		select {
		case cmd := <-e.adminCh:
			e.handleAdmin(cmd)
			continue
		case cmd := <-e.uiCh:
			e.handleUI(cmd)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-e.adminCh:
			e.handleAdmin(cmd)
		case cmd := <-e.uiCh:
			e.handleUI(cmd)
		case in := <-e.packetCh:
			e.HandlePacket(in)
		}
	}
}

func (e *Endpoint) handleAdmin(cmd AdminCommand) {
	switch cmd.Kind {
	case AdminAddSender:
		e.neighbors.Add(cmd.NeighborId, cmd.Sender)
		e.log.Debug("neighbor sender added", "neighbor", cmd.NeighborId)
	case AdminRemoveSender:
		e.neighbors.Remove(cmd.NeighborId)
		e.live.Forget(cmd.NeighborId)
		e.log.Debug("neighbor sender removed", "neighbor", cmd.NeighborId)
	case AdminInjectPacket:
		if cmd.Injected != nil {
			e.HandlePacket(InboundPacket{From: cmd.NeighborId, Packet: *cmd.Injected})
		}
	}
}

func (e *Endpoint) handleUI(cmd UICommand) {
	switch cmd.Kind {
	case UISendChatMessage:
		e.Send(cmd.Server, codec.ChatSendMessage{From: e.selfId, To: cmd.To, Message: cmd.Message})
	case UIRefreshTopology:
		e.engine.SendFloodRequest(e.neighbors)
	case UIAskClientList:
		e.Send(cmd.Server, codec.ChatClientListRequest{})
	case UIAskRegister:
		e.Send(cmd.Server, codec.ChatRegister{ClientId: e.selfId})
	case UIAskServerType:
		e.SendProbe(cmd.Server)
	case UIAskMediaList:
		e.Send(cmd.Server, codec.MediaListRequest{})
	case UIAskMedia:
		e.Send(cmd.Server, codec.MediaRequest{Id: cmd.MediaId})
	}
}

// Send serializes request, fragments it, registers it with the Session
// Manager, and routes every fragment toward dest.
func (e *Endpoint) Send(dest core.NodeId, request any) {
	w, err := e.sessions.NewSend(dest, request)
	if err != nil {
		e.log.Warn("failed to serialize outgoing message", "dest", dest, "err", err)
		return
	}
	e.emitFragments(w)
}

// SendProbe sends the raw "ServerType" identification probe to dest.
func (e *Endpoint) SendProbe(dest core.NodeId) {
	w, err := e.sessions.NewSendProbe(dest)
	if err != nil {
		e.log.Warn("failed to build probe message", "dest", dest, "err", err)
		return
	}
	e.emitFragments(w)
}

// SendRaw sends data verbatim to dest, bypassing the JSON envelope — used to
// answer a ServerType probe with the server's literal type tag.
func (e *Endpoint) SendRaw(dest core.NodeId, data []byte) {
	w, err := e.sessions.NewSendRaw(dest, data)
	if err != nil {
		e.log.Warn("failed to build raw outgoing message", "dest", dest, "err", err)
		return
	}
	e.emitFragments(w)
}

func (e *Endpoint) emitFragments(w *session.SentMessageWrapper) {
	for _, frag := range w.Fragments {
		frag := frag
		build := func(path []core.NodeId) codec.Packet {
			return codec.NewFragmentPacket(path, w.SessionId, frag)
		}
		e.engine.SendPacket(w.Destination, build, e.neighbors)
	}
}

// HandlePacket dispatches a single inbound packet by kind. It is exported
// so AdminInjectPacket (the simulator's ControllerShortcut bypass) and
// tests can drive it directly.
func (e *Endpoint) HandlePacket(in InboundPacket) {
	e.live.Touch(in.From)

	pkt := in.Packet
	switch pkt.Kind {
	case codec.PayloadKindFragment:
		e.handleFragment(pkt)
	case codec.PayloadKindAck:
		e.handleAck(in.From, pkt)
	case codec.PayloadKindNack:
		e.handleNack(in.From, pkt)
	case codec.PayloadKindFloodRequest:
		e.handleFloodRequest(in.From, pkt)
	case codec.PayloadKindFloodResponse:
		e.handleFloodResponse(pkt)
	}
}

func (e *Endpoint) handleFragment(pkt codec.Packet) {
	source := pkt.Header.Source()
	e.sessions.OnFragment(pkt.Fragment, pkt.SessionId, source)
	e.replyAck(pkt, source)
}

// replyAck sends an Ack back along the reverse of the fragment's own
// source-routing header — the packet already encodes the full path, so no
// NetworkState lookup is needed (NetworkState only ever tracks paths to
// known servers, not to arbitrary senders). If the reverse path is
// unusable (no intermediate hop, or the next hop has gone away), it
// reports a ControllerShortcut instead of dropping the Ack silently — the
// Open Question resolution in DESIGN.md.
func (e *Endpoint) replyAck(pkt codec.Packet, source core.NodeId) {
	traveled := pkt.Header.Hops[:pkt.Header.HopIndex+1]
	path := reversePath(traveled)
	ackPkt := codec.NewAckPacket(path, pkt.SessionId, pkt.Fragment.FragmentIndex)

	if len(path) < 2 {
		e.shortcut(ackPkt, pkt.SessionId, source)
		return
	}
	nextHop := path[1]
	if err := e.neighbors.Send(nextHop, ackPkt); err != nil {
		e.log.Debug("ack emission failed, no direct route", "next_hop", nextHop, "err", err)
		e.engine.State().RemoveNode(nextHop)
		e.neighbors.Remove(nextHop)
		e.live.Forget(nextHop)
		e.shortcut(ackPkt, pkt.SessionId, source)
		return
	}
	e.emit(telemetry.Event{Kind: telemetry.EventPacketSent, Packet: &ackPkt})
}

func (e *Endpoint) shortcut(pkt codec.Packet, sessionId uint64, dest core.NodeId) {
	e.emit(telemetry.Event{
		Kind:        telemetry.EventControllerShortcut,
		Packet:      &pkt,
		SessionId:   sessionId,
		Source:      uint8(e.selfId),
		Destination: uint8(dest),
	})
}

func (e *Endpoint) handleAck(reporter core.NodeId, pkt codec.Packet) {
	e.sessions.OnAck(pkt.SessionId, pkt.AckFragmentIndex)
	e.engine.OnAck(reporter, e.neighbors)
}

func (e *Endpoint) handleNack(reporter core.NodeId, pkt codec.Packet) {
	// The nack's own source is the node that emitted it; reporter is only
	// the neighbor that relayed it here.
	e.engine.OnNack(pkt.Nack, pkt.Header.Source(), pkt.SessionId, e.neighbors)
	if pkt.Nack.Kind == core.NackDropped {
		e.retransmit(pkt.SessionId, pkt.Nack.FragmentIndex)
	}
}

func (e *Endpoint) retransmit(sessionId uint64, fragmentIndex uint64) {
	frag, dest, ok := e.sessions.Retransmit(sessionId, fragmentIndex)
	if !ok {
		return
	}
	build := func(path []core.NodeId) codec.Packet {
		return codec.NewFragmentPacket(path, sessionId, frag)
	}
	e.engine.SendPacket(dest, build, e.neighbors)
}

func (e *Endpoint) handleFloodRequest(from core.NodeId, pkt codec.Packet) {
	fr := pkt.FloodReq
	key := dedupe.FloodKey{FloodId: fr.FloodId, InitiatorId: fr.InitiatorId}
	isDup := e.flood.HasSeen(key)

	extended := fr
	extended.PathTrace = append(append([]codec.PathEntry{}, fr.PathTrace...), codec.PathEntry{Id: e.selfId, Type: e.selfType})

	if isDup || len(e.neighbors.All()) <= 1 {
		e.respondToFlood(extended)
		return
	}

	for _, n := range e.neighbors.All() {
		if n == from {
			continue
		}
		outPkt := codec.Packet{
			Header:   selfOnlyHeader(e.selfId),
			Kind:     codec.PayloadKindFloodRequest,
			FloodReq: extended,
		}
		if err := e.neighbors.Send(n, outPkt); err != nil {
			e.neighbors.Remove(n)
			e.live.Forget(n)
			continue
		}
		e.emit(telemetry.Event{Kind: telemetry.EventPacketSent, Packet: &outPkt})
	}
}

func (e *Endpoint) respondToFlood(fr codec.FloodRequest) {
	path := reversePathEntries(fr.PathTrace)
	if len(path) < 2 {
		// This endpoint is the flood's own initiator; nothing to send back.
		return
	}
	resp := codec.FloodResponse{FloodId: fr.FloodId, PathTrace: fr.PathTrace}
	pkt := codec.Packet{
		Header:    codec.SourceRoutingHeader{Hops: path, HopIndex: 1},
		Kind:      codec.PayloadKindFloodResponse,
		FloodResp: resp,
	}
	nextHop := path[1]
	if err := e.neighbors.Send(nextHop, pkt); err != nil {
		e.log.Debug("flood response emission failed, no direct route", "next_hop", nextHop, "err", err)
		e.neighbors.Remove(nextHop)
		e.live.Forget(nextHop)
		return
	}
	e.emit(telemetry.Event{Kind: telemetry.EventPacketSent, Packet: &pkt})
}

func (e *Endpoint) handleFloodResponse(pkt codec.Packet) {
	discovered := e.engine.OnFloodResponse(pkt.FloodResp, e.neighbors)
	for _, id := range discovered {
		if e.OnServerDiscovered != nil {
			e.OnServerDiscovered(id)
		}
	}
}

func (e *Endpoint) deliver(msg any, source core.NodeId) {
	if e.OnDeliver != nil {
		e.OnDeliver(msg, source)
	}
}

func selfOnlyHeader(self core.NodeId) codec.SourceRoutingHeader {
	return codec.SourceRoutingHeader{Hops: []core.NodeId{self}, HopIndex: 0}
}

func reversePath(hops []core.NodeId) []core.NodeId {
	rev := make([]core.NodeId, len(hops))
	for i, h := range hops {
		rev[len(hops)-1-i] = h
	}
	return rev
}

func reversePathEntries(trace []codec.PathEntry) []core.NodeId {
	ids := make([]core.NodeId, len(trace))
	for i, entry := range trace {
		ids[len(trace)-1-i] = entry.Id
	}
	return ids
}
