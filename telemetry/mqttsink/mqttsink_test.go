package mqttsink

import (
	"context"
	"testing"

	"github.com/dsantoro/wgnet/core/telemetry"
)

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883"})

	if s.cfg.Topic != DefaultTopic {
		t.Errorf("Topic = %q, want %q", s.cfg.Topic, DefaultTopic)
	}
	if s.log == nil {
		t.Error("expected logger to be set")
	}
}

func TestNew_CustomTopic(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883", Topic: "custom/topic"})
	if s.cfg.Topic != "custom/topic" {
		t.Errorf("Topic = %q, want custom/topic", s.cfg.Topic)
	}
}

func TestStart_MissingBroker(t *testing.T) {
	s := New(Config{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected an error with empty broker")
	}
}

func TestIsConnected_DefaultFalse(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883"})
	if s.IsConnected() {
		t.Error("expected not connected before Start")
	}
}

func TestPublish_NotConnectedIsNoOp(t *testing.T) {
	s := New(Config{Broker: "tcp://localhost:1883"})
	// Should not panic or block even though no client is attached yet.
	s.Publish(telemetry.Event{Kind: telemetry.EventPacketSent})
}

func TestKindName_KnownKinds(t *testing.T) {
	cases := []struct {
		kind telemetry.EventKind
		want string
	}{
		{telemetry.EventPacketSent, "PacketSent"},
		{telemetry.EventCreateMessage, "CreateMessage"},
		{telemetry.EventMessageRecv, "MessageRecv"},
		{telemetry.EventControllerShortcut, "ControllerShortcut"},
	}
	for _, c := range cases {
		if got := kindName(c.kind); got != c.want {
			t.Errorf("kindName(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}
