package codec

import (
	"reflect"
	"testing"

	"github.com/dsantoro/wgnet/core"
)

func TestPacketRoundTrip_Fragment(t *testing.T) {
	path := []core.NodeId{10, 0, 1, 2, 11}
	frag := FragmentBytes([]byte("hi"))[0]
	pkt := NewFragmentPacket(path, 7, frag)

	data := pkt.WriteTo()

	var got Packet
	if err := got.ReadFrom(data); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if !reflect.DeepEqual(got.Header.Hops, path) {
		t.Errorf("Hops = %v, want %v", got.Header.Hops, path)
	}
	if got.Header.HopIndex != 1 {
		t.Errorf("HopIndex = %d, want 1", got.Header.HopIndex)
	}
	if got.SessionId != 7 {
		t.Errorf("SessionId = %d, want 7", got.SessionId)
	}
	if got.Fragment.Length != frag.Length || got.Fragment.Bytes() == nil {
		t.Errorf("Fragment mismatch: %+v vs %+v", got.Fragment, frag)
	}
	if string(got.Fragment.Bytes()) != "hi" {
		t.Errorf("Fragment bytes = %q, want %q", got.Fragment.Bytes(), "hi")
	}
}

func TestPacketRoundTrip_Ack(t *testing.T) {
	path := []core.NodeId{9, 8}
	pkt := NewAckPacket(path, 42, 3)

	var got Packet
	if err := got.ReadFrom(pkt.WriteTo()); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got.Kind != PayloadKindAck || got.AckFragmentIndex != 3 {
		t.Errorf("got = %+v", got)
	}
}

func TestPacketRoundTrip_Nack(t *testing.T) {
	path := []core.NodeId{4, 5, 6}
	nack := core.Nack{FragmentIndex: 2, Kind: core.NackErrorInRouting, Origin: 4}
	pkt := NewNackPacket(path, 1, nack)

	var got Packet
	if err := got.ReadFrom(pkt.WriteTo()); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got.Nack != nack {
		t.Errorf("Nack = %+v, want %+v", got.Nack, nack)
	}
}

func TestPacketRoundTrip_FloodRequest(t *testing.T) {
	pkt := Packet{
		Header:    SourceRoutingHeader{Hops: []core.NodeId{10}, HopIndex: 0},
		SessionId: 0,
		Kind:      PayloadKindFloodRequest,
		FloodReq: FloodRequest{
			FloodId:     99,
			InitiatorId: 10,
			PathTrace: []PathEntry{
				{Id: 10, Type: core.NodeTypeClient},
				{Id: 0, Type: core.NodeTypeDrone},
			},
		},
	}

	var got Packet
	if err := got.ReadFrom(pkt.WriteTo()); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got.FloodReq.FloodId != 99 || got.FloodReq.InitiatorId != 10 {
		t.Errorf("got = %+v", got.FloodReq)
	}
	if !reflect.DeepEqual(got.FloodReq.PathTrace, pkt.FloodReq.PathTrace) {
		t.Errorf("PathTrace = %v, want %v", got.FloodReq.PathTrace, pkt.FloodReq.PathTrace)
	}
}

func TestPacketHeaderAccessors(t *testing.T) {
	h := SourceRoutingHeader{Hops: []core.NodeId{10, 0, 1, 11}, HopIndex: 1}
	if h.Source() != 10 {
		t.Errorf("Source() = %v, want 10", h.Source())
	}
	if h.Destination() != 11 {
		t.Errorf("Destination() = %v, want 11", h.Destination())
	}
	if h.CurrentHop() != 0 {
		t.Errorf("CurrentHop() = %v, want 0", h.CurrentHop())
	}
}

func TestReadFrom_TooShort(t *testing.T) {
	var p Packet
	if err := p.ReadFrom(nil); err == nil {
		t.Error("expected error on empty input")
	}
}
