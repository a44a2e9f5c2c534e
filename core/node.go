// Package core holds the small value types shared across the routing and
// reliable-delivery engine: node identifiers, node kinds, and the negative
// acknowledgement taxonomy.
package core

import "fmt"

// NodeId identifies a node in the overlay: a drone, a client, or a server.
// The overlay is small enough that a single byte is sufficient.
type NodeId uint8

// String returns a human-readable form of the id.
func (n NodeId) String() string {
	return fmt.Sprintf("%d", uint8(n))
}

// NodeType classifies a node for the purposes of the weighted topology
// graph: whether it may be traversed (Drone, or self if a Client) or is only
// ever a leaf destination (Server, or any other Client).
type NodeType uint8

const (
	NodeTypeClient NodeType = iota
	NodeTypeDrone
	NodeTypeServer
)

// String returns a human-readable name for the node type.
func (t NodeType) String() string {
	switch t {
	case NodeTypeClient:
		return "Client"
	case NodeTypeDrone:
		return "Drone"
	case NodeTypeServer:
		return "Server"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// NackKind distinguishes the reasons a forwarder may refuse or fail to
// deliver a packet.
type NackKind uint8

const (
	NackDestinationIsDrone NackKind = iota
	NackDropped
	NackErrorInRouting
	NackUnexpectedRecipient
)

// String returns a human-readable name for the nack kind.
func (k NackKind) String() string {
	switch k {
	case NackDestinationIsDrone:
		return "DestinationIsDrone"
	case NackDropped:
		return "Dropped"
	case NackErrorInRouting:
		return "ErrorInRouting"
	case NackUnexpectedRecipient:
		return "UnexpectedRecipient"
	default:
		return fmt.Sprintf("NackKind(%d)", uint8(k))
	}
}

// HasOrigin reports whether this nack kind carries an origin NodeId
// (ErrorInRouting and UnexpectedRecipient do; Dropped and
// DestinationIsDrone carry only the reporting node as origin).
func (k NackKind) HasOrigin() bool {
	return k == NackErrorInRouting || k == NackUnexpectedRecipient
}

// Nack is a negative acknowledgement for a specific fragment, optionally
// carrying the NodeId responsible (for ErrorInRouting / UnexpectedRecipient).
type Nack struct {
	FragmentIndex uint64
	Kind          NackKind
	Origin        NodeId
}
