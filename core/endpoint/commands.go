package endpoint

import (
	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
)

// AdminKind tags an AdminCommand. Administrative commands are the only
// messages that mutate the neighbor sender map.
type AdminKind uint8

const (
	// AdminAddSender installs a channel this endpoint can push packets onto
	// to reach NeighborId.
	AdminAddSender AdminKind = iota
	// AdminRemoveSender evicts a neighbor, e.g. after a simulated link break.
	AdminRemoveSender
	// AdminInjectPacket re-enters the packet pipeline as if Packet had been
	// received normally from NeighborId. Used by the simulation controller
	// to bypass a broken path (a ControllerShortcut round trip).
	AdminInjectPacket
)

// AdminCommand is one message on an endpoint's administrative channel.
type AdminCommand struct {
	Kind       AdminKind
	NeighborId core.NodeId
	Sender     chan<- InboundPacket
	Injected   *codec.Packet
}

// UIKind tags a UICommand.
type UIKind uint8

const (
	UISendChatMessage UIKind = iota
	UIRefreshTopology
	UIAskClientList
	UIAskRegister
	UIAskServerType
	UIAskMediaList
	UIAskMedia
)

// UICommand is one message from the application/UI thread to a client
// endpoint. Server is the server this command targets; it is unused by
// UIRefreshTopology.
type UICommand struct {
	Kind    UIKind
	Server  core.NodeId
	To      core.NodeId
	Message []byte
	MediaId string
}
