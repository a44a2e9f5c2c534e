// Package telemetry defines the event stream an endpoint emits toward the
// simulation controller: PacketSent, CreateMessage, MessageRecv, and
// ControllerShortcut, per spec.md §6.
package telemetry

import "github.com/dsantoro/wgnet/core/codec"

// EventKind tags a telemetry event.
type EventKind uint8

const (
	// EventPacketSent fires whenever a packet is successfully handed to a
	// neighbor sender.
	EventPacketSent EventKind = iota
	// EventCreateMessage fires when the Session Manager starts tracking a
	// new outgoing message.
	EventCreateMessage
	// EventMessageRecv fires when an incoming message is fully reassembled
	// and decoded.
	EventMessageRecv
	// EventControllerShortcut fires when the endpoint has no route to
	// inject a packet normally and asks the simulator to deliver it
	// out-of-band instead of dropping it silently.
	EventControllerShortcut
)

// Event is a single telemetry occurrence. Which payload fields are set
// depends on Kind; fields a given kind does not use are left zero.
type Event struct {
	Kind EventKind

	Packet *codec.Packet

	SessionId   uint64
	Destination uint8 // a core.NodeId value
	Source      uint8

	// Description is a short human-readable summary, useful for sinks that
	// don't care to switch on Kind (e.g. a log line or MQTT publish).
	Description string
}

// Sink receives emitted telemetry events. Implementations must not block
// for long — the endpoint loop calls Sink synchronously on its hot path.
type Sink func(Event)

// Discard is a Sink that drops every event.
func Discard(Event) {}
