// Package codec implements the wire format shared by every endpoint:
// fragmentation/reassembly of application messages, a JSON-equivalent
// request/response envelope, and the binary packet/flood encoding consumed
// by the drone forwarding layer.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dsantoro/wgnet/core"
)

// PayloadKind tags the payload carried by a Packet.
type PayloadKind uint8

const (
	PayloadKindFragment PayloadKind = iota
	PayloadKindAck
	PayloadKindNack
	PayloadKindFloodRequest
	PayloadKindFloodResponse
)

var (
	ErrPacketTooShort  = errors.New("codec: packet too short")
	ErrPathTooLong     = errors.New("codec: path length exceeds maximum")
	ErrInvalidEncoding = errors.New("codec: invalid packet encoding")
)

// MaxHops bounds a source-routing header; generous for any topology this
// simulator is expected to describe.
const MaxHops = 255

// PathEntry is one hop of a flood's path trace: the node visited and its
// type, needed by NetworkState.add_link to decide edge direction.
type PathEntry struct {
	Id   core.NodeId
	Type core.NodeType
}

// FloodRequest seeds topology discovery. Every forwarder appends itself to
// PathTrace before re-broadcasting.
type FloodRequest struct {
	FloodId     uint64
	InitiatorId core.NodeId
	PathTrace   []PathEntry
}

// FloodResponse carries the frozen path trace back to the initiator along
// the reversed route.
type FloodResponse struct {
	FloodId   uint64
	PathTrace []PathEntry
}

// SourceRoutingHeader is the ordered hop list a packet travels along, plus
// the index of the current forwarder within it.
type SourceRoutingHeader struct {
	Hops     []core.NodeId
	HopIndex int
}

// CurrentHop returns the node expected to process this packet next.
func (h SourceRoutingHeader) CurrentHop() core.NodeId {
	return h.Hops[h.HopIndex]
}

// Source returns the packet's origin.
func (h SourceRoutingHeader) Source() core.NodeId {
	return h.Hops[0]
}

// Destination returns the packet's final recipient.
func (h SourceRoutingHeader) Destination() core.NodeId {
	return h.Hops[len(h.Hops)-1]
}

// Packet is the unit exchanged between endpoints and drones: a source
// routing header, a session id, and exactly one payload variant.
type Packet struct {
	Header    SourceRoutingHeader
	SessionId uint64
	Kind      PayloadKind

	Fragment         Fragment
	AckFragmentIndex uint64
	Nack             core.Nack
	FloodReq         FloodRequest
	FloodResp        FloodResponse
}

// NewFragmentPacket builds a packet carrying a single message fragment
// along the given path, with the header positioned at the first forwarder
// (index 1 — hop 0 is always self).
func NewFragmentPacket(path []core.NodeId, sessionId uint64, frag Fragment) Packet {
	return Packet{
		Header:    SourceRoutingHeader{Hops: path, HopIndex: 1},
		SessionId: sessionId,
		Kind:      PayloadKindFragment,
		Fragment:  frag,
	}
}

// NewAckPacket builds an Ack packet along the given path.
func NewAckPacket(path []core.NodeId, sessionId uint64, fragmentIndex uint64) Packet {
	return Packet{
		Header:           SourceRoutingHeader{Hops: path, HopIndex: 1},
		SessionId:        sessionId,
		Kind:             PayloadKindAck,
		AckFragmentIndex: fragmentIndex,
	}
}

// NewNackPacket builds a Nack packet along the given path.
func NewNackPacket(path []core.NodeId, sessionId uint64, nack core.Nack) Packet {
	return Packet{
		Header:    SourceRoutingHeader{Hops: path, HopIndex: 1},
		SessionId: sessionId,
		Kind:      PayloadKindNack,
		Nack:      nack,
	}
}

// WriteTo encodes the packet to its wire form.
func (p *Packet) WriteTo() []byte {
	var buf []byte
	buf = append(buf, byte(p.Kind))
	buf = append(buf, byte(len(p.Header.Hops)))
	for _, h := range p.Header.Hops {
		buf = append(buf, byte(h))
	}
	buf = appendUint16(buf, uint16(p.Header.HopIndex))
	buf = appendUint64(buf, p.SessionId)

	switch p.Kind {
	case PayloadKindFragment:
		buf = appendUint64(buf, p.Fragment.FragmentIndex)
		buf = appendUint64(buf, p.Fragment.TotalNFragments)
		buf = append(buf, p.Fragment.Length)
		buf = append(buf, p.Fragment.Data[:p.Fragment.Length]...)
	case PayloadKindAck:
		buf = appendUint64(buf, p.AckFragmentIndex)
	case PayloadKindNack:
		buf = appendUint64(buf, p.Nack.FragmentIndex)
		buf = append(buf, byte(p.Nack.Kind))
		buf = append(buf, byte(p.Nack.Origin))
	case PayloadKindFloodRequest:
		buf = appendUint64(buf, p.FloodReq.FloodId)
		buf = append(buf, byte(p.FloodReq.InitiatorId))
		buf = appendPathTrace(buf, p.FloodReq.PathTrace)
	case PayloadKindFloodResponse:
		buf = appendUint64(buf, p.FloodResp.FloodId)
		buf = appendPathTrace(buf, p.FloodResp.PathTrace)
	}
	return buf
}

// ReadFrom decodes a packet from its wire form.
func (p *Packet) ReadFrom(data []byte) error {
	if len(data) < 1 {
		return ErrPacketTooShort
	}
	i := 0
	p.Kind = PayloadKind(data[i])
	i++

	if len(data) < i+1 {
		return ErrPacketTooShort
	}
	hopsLen := int(data[i])
	i++
	if hopsLen > MaxHops {
		return fmt.Errorf("%w: %d hops", ErrPathTooLong, hopsLen)
	}
	if len(data) < i+hopsLen {
		return ErrPacketTooShort
	}
	hops := make([]core.NodeId, hopsLen)
	for j := 0; j < hopsLen; j++ {
		hops[j] = core.NodeId(data[i+j])
	}
	i += hopsLen

	if len(data) < i+2 {
		return ErrPacketTooShort
	}
	hopIndex := binary.LittleEndian.Uint16(data[i : i+2])
	i += 2
	p.Header = SourceRoutingHeader{Hops: hops, HopIndex: int(hopIndex)}

	if len(data) < i+8 {
		return ErrPacketTooShort
	}
	p.SessionId = binary.LittleEndian.Uint64(data[i : i+8])
	i += 8

	switch p.Kind {
	case PayloadKindFragment:
		if len(data) < i+17 {
			return ErrPacketTooShort
		}
		p.Fragment.FragmentIndex = binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
		p.Fragment.TotalNFragments = binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
		length := data[i]
		i++
		if len(data) < i+int(length) {
			return ErrPacketTooShort
		}
		p.Fragment.Length = length
		copy(p.Fragment.Data[:], data[i:i+int(length)])
	case PayloadKindAck:
		if len(data) < i+8 {
			return ErrPacketTooShort
		}
		p.AckFragmentIndex = binary.LittleEndian.Uint64(data[i : i+8])
	case PayloadKindNack:
		if len(data) < i+10 {
			return ErrPacketTooShort
		}
		p.Nack.FragmentIndex = binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
		p.Nack.Kind = core.NackKind(data[i])
		i++
		p.Nack.Origin = core.NodeId(data[i])
	case PayloadKindFloodRequest:
		if len(data) < i+9 {
			return ErrPacketTooShort
		}
		p.FloodReq.FloodId = binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
		p.FloodReq.InitiatorId = core.NodeId(data[i])
		i++
		trace, _, err := readPathTrace(data, i)
		if err != nil {
			return err
		}
		p.FloodReq.PathTrace = trace
	case PayloadKindFloodResponse:
		if len(data) < i+8 {
			return ErrPacketTooShort
		}
		p.FloodResp.FloodId = binary.LittleEndian.Uint64(data[i : i+8])
		i += 8
		trace, _, err := readPathTrace(data, i)
		if err != nil {
			return err
		}
		p.FloodResp.PathTrace = trace
	default:
		return fmt.Errorf("%w: unknown payload kind %d", ErrInvalidEncoding, p.Kind)
	}
	return nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendPathTrace(buf []byte, trace []PathEntry) []byte {
	buf = appendUint16(buf, uint16(len(trace)))
	for _, e := range trace {
		buf = append(buf, byte(e.Id), byte(e.Type))
	}
	return buf
}

func readPathTrace(data []byte, i int) ([]PathEntry, int, error) {
	if len(data) < i+2 {
		return nil, i, ErrPacketTooShort
	}
	n := int(binary.LittleEndian.Uint16(data[i : i+2]))
	i += 2
	if len(data) < i+2*n {
		return nil, i, ErrPacketTooShort
	}
	trace := make([]PathEntry, n)
	for j := 0; j < n; j++ {
		trace[j] = PathEntry{Id: core.NodeId(data[i]), Type: core.NodeType(data[i+1])}
		i += 2
	}
	return trace, i, nil
}
