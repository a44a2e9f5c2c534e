package session

import (
	"testing"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
)

func TestNewSend_FragmentsAndTracksMessage(t *testing.T) {
	m := New(nil, nil)
	req := codec.ChatSendMessage{From: 1, To: 2, Message: []byte("hello")}

	w, err := m.NewSend(2, req)
	if err != nil {
		t.Fatalf("NewSend: %v", err)
	}
	if w.SessionId == 0 {
		t.Fatal("expected a nonzero session id")
	}
	if w.Done() {
		t.Fatal("freshly created wrapper should not be done")
	}
	if len(w.Fragments) != 1 {
		t.Fatalf("fragments = %d, want 1", len(w.Fragments))
	}
}

func TestNewSend_AssignsIncreasingSessionIds(t *testing.T) {
	m := New(nil, nil)
	w1, _ := m.NewSend(2, codec.ChatClientListRequest{})
	w2, _ := m.NewSend(2, codec.ChatClientListRequest{})
	if w2.SessionId <= w1.SessionId {
		t.Fatalf("session ids not increasing: %d, %d", w1.SessionId, w2.SessionId)
	}
}

func TestOnAck_CompletesAndDropsWrapper(t *testing.T) {
	m := New(nil, nil)
	w, _ := m.NewSend(2, codec.ChatClientListRequest{})

	for i := range w.Fragments {
		m.OnAck(w.SessionId, uint64(i))
	}

	if _, _, ok := m.Retransmit(w.SessionId, 0); ok {
		t.Fatal("session should have been dropped once fully acked")
	}
}

func TestOnAck_UnknownSessionIsNoOp(t *testing.T) {
	m := New(nil, nil)
	m.OnAck(999, 0) // must not panic
}

func TestInvalidateSession_DropsWrapper(t *testing.T) {
	m := New(nil, nil)
	w, _ := m.NewSend(2, codec.ChatClientListRequest{})

	m.InvalidateSession(w.SessionId)

	if _, _, ok := m.Retransmit(w.SessionId, 0); ok {
		t.Fatal("invalidated session should not be retransmittable")
	}
}

func TestRetransmit_ReturnsTrackedFragment(t *testing.T) {
	m := New(nil, nil)
	req := codec.ChatSendMessage{From: 1, To: 2, Message: make([]byte, 300)}
	w, _ := m.NewSend(2, req)

	frag, dest, ok := m.Retransmit(w.SessionId, 1)
	if !ok {
		t.Fatal("expected fragment 1 to be retransmittable")
	}
	if dest != 2 {
		t.Errorf("dest = %d, want 2", dest)
	}
	if frag.FragmentIndex != 1 {
		t.Errorf("fragment index = %d, want 1", frag.FragmentIndex)
	}
}

func TestOnFragment_SingleFragmentDelivers(t *testing.T) {
	m := New(nil, nil)
	var delivered any
	var deliveredSource core.NodeId
	m.Deliver = func(msg any, source core.NodeId) {
		delivered = msg
		deliveredSource = source
	}

	data, err := codec.Serialize(codec.ChatClientListRequest{})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	frags := codec.FragmentBytes(data)
	if len(frags) != 1 {
		t.Fatalf("expected a single fragment, got %d", len(frags))
	}

	isNew := m.OnFragment(frags[0], 5, 9)
	if !isNew {
		t.Fatal("first delivery of a fragment should be reported new")
	}
	if delivered == nil {
		t.Fatal("expected Deliver to be called")
	}
	if _, ok := delivered.(codec.ChatClientListRequest); !ok {
		t.Fatalf("delivered = %#v, want ChatClientListRequest", delivered)
	}
	if deliveredSource != 9 {
		t.Errorf("source = %d, want 9", deliveredSource)
	}
}

func TestOnFragment_MultiFragmentDeliversOnlyWhenComplete(t *testing.T) {
	m := New(nil, nil)
	var deliverCount int
	m.Deliver = func(msg any, source core.NodeId) { deliverCount++ }

	req := codec.ChatSendMessage{From: 1, To: 2, Message: make([]byte, 300)}
	data, err := codec.Serialize(req)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	frags := codec.FragmentBytes(data)
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}

	for i := 0; i < len(frags)-1; i++ {
		m.OnFragment(frags[i], 7, 3)
	}
	if deliverCount != 0 {
		t.Fatal("should not deliver before every fragment arrives")
	}

	m.OnFragment(frags[len(frags)-1], 7, 3)
	if deliverCount != 1 {
		t.Fatalf("deliverCount = %d, want 1", deliverCount)
	}
}

func TestOnFragment_OutOfOrderStillReassembles(t *testing.T) {
	m := New(nil, nil)
	var delivered any
	m.Deliver = func(msg any, source core.NodeId) { delivered = msg }

	req := codec.ChatSendMessage{From: 1, To: 2, Message: make([]byte, 300)}
	data, _ := codec.Serialize(req)
	frags := codec.FragmentBytes(data)

	for i := len(frags) - 1; i >= 0; i-- {
		m.OnFragment(frags[i], 1, 1)
	}

	got, ok := delivered.(codec.ChatSendMessage)
	if !ok {
		t.Fatalf("delivered = %#v, want ChatSendMessage", delivered)
	}
	if len(got.Message) != len(req.Message) {
		t.Fatalf("message length = %d, want %d", len(got.Message), len(req.Message))
	}
}

func TestOnFragment_FirstDeliveryReportedNew(t *testing.T) {
	m := New(nil, nil)
	data, _ := codec.Serialize(codec.ChatClientListRequest{})
	frags := codec.FragmentBytes(data)

	if !m.OnFragment(frags[0], 1, 1) {
		t.Fatal("first delivery should be new")
	}
}

func TestOnFragment_SeparateSourcesDoNotCollide(t *testing.T) {
	m := New(nil, nil)
	var sources []core.NodeId
	m.Deliver = func(msg any, source core.NodeId) { sources = append(sources, source) }

	data, _ := codec.Serialize(codec.ChatClientListRequest{})
	frags := codec.FragmentBytes(data)

	m.OnFragment(frags[0], 1, 10)
	m.OnFragment(frags[0], 1, 20)

	if len(sources) != 2 {
		t.Fatalf("expected both sources to independently complete, got %v", sources)
	}
}

func TestOnFragment_UndecodableBytesAreDroppedWithoutDeliver(t *testing.T) {
	m := New(nil, nil)
	var called bool
	m.Deliver = func(msg any, source core.NodeId) { called = true }

	frag := codec.Fragment{FragmentIndex: 0, TotalNFragments: 1, Length: 5}
	copy(frag.Data[:], []byte("\x00\x01\x02\x03\x04"))

	m.OnFragment(frag, 1, 1)
	if called {
		t.Fatal("undecodable payload must not be delivered")
	}
}

func TestNewSendProbe_DeliversAsServerTypeProbeRequest(t *testing.T) {
	m := New(nil, nil)
	var delivered any
	m.Deliver = func(msg any, source core.NodeId) { delivered = msg }

	w, err := m.NewSendProbe(2)
	if err != nil {
		t.Fatalf("NewSendProbe: %v", err)
	}

	for _, f := range w.Fragments {
		m.OnFragment(f, 42, 1)
	}

	if _, ok := delivered.(codec.ServerTypeProbeRequest); !ok {
		t.Fatalf("delivered = %#v, want ServerTypeProbeRequest", delivered)
	}
}

func TestOnFragment_ChatClientListIndexesEachClientUnderSource(t *testing.T) {
	m := New(nil, nil)
	data, _ := codec.Serialize(codec.ChatClientList{Clients: []core.NodeId{5, 6}})
	frags := codec.FragmentBytes(data)

	for _, f := range frags {
		m.OnFragment(f, 1, 9)
	}

	for _, client := range []core.NodeId{5, 6} {
		server, ok := m.Directory().Lookup(client)
		if !ok || server != 9 {
			t.Fatalf("Lookup(%d) = (%d, %v), want (9, true)", client, server, ok)
		}
	}
}

func TestOnFragment_ChatErrorWrongClientIdForgetsAssociation(t *testing.T) {
	m := New(nil, nil)
	m.Directory().Index(5, 9, nil)

	data, _ := codec.Serialize(codec.ChatErrorWrongClientId{ClientId: 5})
	frags := codec.FragmentBytes(data)
	for _, f := range frags {
		m.OnFragment(f, 1, 9)
	}

	if _, ok := m.Directory().Lookup(5); ok {
		t.Fatal("expected association to be forgotten after ChatErrorWrongClientId")
	}
}
