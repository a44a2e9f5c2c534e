// Package mqttsink bridges a core/telemetry event stream onto an MQTT
// broker topic as JSON, for an external graph visualizer or log aggregator
// to consume. It is a transport detail only: nothing in the routing or
// session logic depends on it, and a Sink that is not connected behaves
// exactly like telemetry.Discard.
//
// Grounded on transport/mqtt/mqtt.go's Config/New/Start/Stop connection
// lifecycle, repurposed from a two-way packet transport to a one-way
// publish-only telemetry bridge.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dsantoro/wgnet/core/telemetry"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "wgnet/telemetry"

// Config holds the configuration for an MQTT telemetry sink.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// Topic is the MQTT topic telemetry events are published to.
	Topic string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Sink publishes telemetry.Events to an MQTT broker as JSON.
type Sink struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// New creates an MQTT telemetry sink with the given configuration. Start
// must be called before any event is published.
func New(cfg Config) *Sink {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqttsink"),
	}
}

// Start connects to the MQTT broker.
func (s *Sink) Start(ctx context.Context) error {
	if s.cfg.Broker == "" {
		return errors.New("mqttsink: broker URL is required")
	}

	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "wgnet-telemetry-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(s.onConnected).
		SetConnectionLostHandler(s.onConnectionLost)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	s.client = paho.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqttsink: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqttsink: connecting to broker: %w", token.Error())
	}
	return nil
}

// Stop gracefully disconnects from the broker.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(1000)
		s.connected = false
	}
	return nil
}

// IsConnected reports whether the sink is currently connected.
func (s *Sink) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.client != nil && s.client.IsConnected()
}

// Sink returns a telemetry.Sink bound to this bridge, for passing to
// endpoint.New. Publishing never blocks the caller.
func (s *Sink) Sink() telemetry.Sink {
	return s.Publish
}

// Publish encodes e as JSON and publishes it to the configured topic.
// Publishing is fire-and-forget: the endpoint hot path must not block on
// broker round trips, so delivery failures are only logged, asynchronously.
func (s *Sink) Publish(e telemetry.Event) {
	if !s.IsConnected() {
		return
	}

	payload, err := json.Marshal(wireEvent{
		Kind:        kindName(e.Kind),
		SessionId:   e.SessionId,
		Source:      e.Source,
		Destination: e.Destination,
		Description: e.Description,
	})
	if err != nil {
		s.log.Debug("failed to encode telemetry event", "err", err)
		return
	}

	token := s.client.Publish(s.cfg.Topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Debug("failed to publish telemetry event", "err", err)
		}
	}()
}

type wireEvent struct {
	Kind        string `json:"kind"`
	SessionId   uint64 `json:"session_id,omitempty"`
	Source      uint8  `json:"source,omitempty"`
	Destination uint8  `json:"destination,omitempty"`
	Description string `json:"description,omitempty"`
}

func kindName(k telemetry.EventKind) string {
	switch k {
	case telemetry.EventPacketSent:
		return "PacketSent"
	case telemetry.EventCreateMessage:
		return "CreateMessage"
	case telemetry.EventMessageRecv:
		return "MessageRecv"
	case telemetry.EventControllerShortcut:
		return "ControllerShortcut"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

func (s *Sink) onConnected(_ paho.Client) {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.log.Info("connected to MQTT broker", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
}

func (s *Sink) onConnectionLost(_ paho.Client, err error) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.log.Error("MQTT connection lost", "err", err)
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
