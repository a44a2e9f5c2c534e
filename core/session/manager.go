// Package session implements the Session Manager described in spec.md
// §4.D: tracking outgoing messages fragment-by-fragment until every
// fragment is acked, reassembling incoming fragments into a decoded
// request/response, and the identification-probe special case that lets a
// server answer a raw "ServerType" literal without going through the JSON
// envelope.
package session

import (
	"log/slog"
	"sync"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
	"github.com/dsantoro/wgnet/core/telemetry"
)

// SentMessageWrapper tracks one outgoing message's fragments and which of
// them have been acked.
type SentMessageWrapper struct {
	SessionId   uint64
	Destination core.NodeId
	Fragments   []codec.Fragment
	Acked       map[uint64]bool
}

// Done reports whether every fragment of the message has been acked.
func (w *SentMessageWrapper) Done() bool {
	return len(w.Acked) >= len(w.Fragments)
}

// Fragment returns the fragment at index, if the wrapper still has it.
func (w *SentMessageWrapper) Fragment(index uint64) (codec.Fragment, bool) {
	if index >= uint64(len(w.Fragments)) {
		return codec.Fragment{}, false
	}
	return w.Fragments[index], true
}

type recvKey struct {
	SessionId uint64
	Source    core.NodeId
}

// recvMessageWrapper accumulates the fragments of one incoming message,
// keyed by (session id, source), until all are present.
type recvMessageWrapper struct {
	source  core.NodeId
	total   uint64
	byIndex map[uint64]codec.Fragment
}

// Manager is the Session Manager: it owns every outgoing message's fragment
// wrapper and every incoming message's reassembly buffer, and bridges
// between the raw fragment/ack/nack traffic the Endpoint Loop sees and the
// decoded application messages the rest of the node cares about.
type Manager struct {
	log *slog.Logger
	emit telemetry.Sink

	mu          sync.Mutex
	nextSession uint64
	outgoing    map[uint64]*SentMessageWrapper
	incoming    map[recvKey]*recvMessageWrapper
	dir         *Directory

	// Deliver is called, outside the manager's lock, whenever an incoming
	// message has been fully reassembled and decoded. msg is either a
	// concrete codec request/response value or a codec.ServerTypeProbeRequest.
	Deliver func(msg any, source core.NodeId)
}

// New creates an empty Session Manager.
func New(emit telemetry.Sink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = telemetry.Discard
	}
	return &Manager{
		log:      logger.WithGroup("session"),
		emit:     emit,
		outgoing: make(map[uint64]*SentMessageWrapper),
		incoming: make(map[recvKey]*recvMessageWrapper),
		dir:      NewDirectory(0),
	}
}

// Directory returns the manager's client-to-server directory, built
// opportunistically from ChatClientList replies as they're decoded.
func (m *Manager) Directory() *Directory {
	return m.dir
}

// NewSend serializes request, fragments it, and begins tracking it under a
// freshly allocated session id.
func (m *Manager) NewSend(dest core.NodeId, request any) (*SentMessageWrapper, error) {
	data, err := codec.Serialize(request)
	if err != nil {
		return nil, err
	}
	return m.newSendRaw(dest, data)
}

// NewSendProbe begins tracking the raw "ServerType" identification probe,
// which bypasses the JSON envelope entirely.
func (m *Manager) NewSendProbe(dest core.NodeId) (*SentMessageWrapper, error) {
	return m.newSendRaw(dest, []byte(codec.ServerTypeProbe))
}

// NewSendRaw begins tracking data verbatim as an outgoing message, bypassing
// the JSON envelope — used for replies like ServerKind that answer a raw
// probe in kind rather than with a structured request/response variant.
func (m *Manager) NewSendRaw(dest core.NodeId, data []byte) (*SentMessageWrapper, error) {
	return m.newSendRaw(dest, data)
}

func (m *Manager) newSendRaw(dest core.NodeId, data []byte) (*SentMessageWrapper, error) {
	fragments := codec.FragmentBytes(data)

	m.mu.Lock()
	m.nextSession++
	sid := m.nextSession
	w := &SentMessageWrapper{
		SessionId:   sid,
		Destination: dest,
		Fragments:   fragments,
		Acked:       make(map[uint64]bool),
	}
	m.outgoing[sid] = w
	m.mu.Unlock()

	m.emit(telemetry.Event{Kind: telemetry.EventCreateMessage, SessionId: sid, Destination: uint8(dest)})
	m.log.Debug("tracking new outgoing message", "session", sid, "dest", dest, "fragments", len(fragments))
	return w, nil
}

// OnAck marks fragmentIndex of session as acked. It is a no-op if the
// session is unknown (already completed, or invalidated by a nack). Once
// every fragment has been acked the wrapper is dropped.
func (m *Manager) OnAck(session uint64, fragmentIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.outgoing[session]
	if !ok {
		return
	}
	w.Acked[fragmentIndex] = true
	if w.Done() {
		delete(m.outgoing, session)
	}
}

// InvalidateSession drops an outgoing message's wrapper entirely, used when
// an UnexpectedRecipient nack means the whole session is no longer worth
// retrying.
func (m *Manager) InvalidateSession(session uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outgoing, session)
}

// Retransmit returns the fragment at fragmentIndex for a still-tracked
// session, for the Endpoint Loop to resend after a retry-triggering nack.
func (m *Manager) Retransmit(session uint64, fragmentIndex uint64) (codec.Fragment, core.NodeId, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.outgoing[session]
	if !ok {
		return codec.Fragment{}, 0, false
	}
	frag, ok := w.Fragment(fragmentIndex)
	if !ok {
		return codec.Fragment{}, 0, false
	}
	return frag, w.Destination, true
}

// OnFragment inserts an incoming fragment into its message's reassembly
// buffer. It returns true if the fragment was new (not a duplicate
// delivery) — the caller acks every fragment it accepts, new or not, but
// only a new one is worth deduplicating against for other purposes. Once
// the message is complete, it is reassembled, decoded (or recognized as the
// raw ServerType probe), and handed to Deliver; a decode failure is logged
// and dropped with no reply, per the decode-error policy.
func (m *Manager) OnFragment(frag codec.Fragment, session uint64, source core.NodeId) bool {
	key := recvKey{SessionId: session, Source: source}

	m.mu.Lock()
	w, exists := m.incoming[key]
	if !exists {
		w = &recvMessageWrapper{
			source:  source,
			total:   frag.TotalNFragments,
			byIndex: make(map[uint64]codec.Fragment),
		}
		m.incoming[key] = w
	}
	_, hadIndex := w.byIndex[frag.FragmentIndex]
	isNew := !hadIndex
	if isNew {
		w.byIndex[frag.FragmentIndex] = frag
	}
	complete := uint64(len(w.byIndex)) >= w.total
	if complete {
		delete(m.incoming, key)
	}
	m.mu.Unlock()

	if complete {
		m.completeMessage(w, session, source)
	}
	return isNew
}

func (m *Manager) completeMessage(w *recvMessageWrapper, session uint64, source core.NodeId) {
	data, err := codec.Reassemble(w.byIndex, w.total)
	if err != nil {
		m.log.Warn("reassembly failed despite complete fragment count", "session", session, "source", source, "err", err)
		return
	}

	var msg any
	if string(data) == codec.ServerTypeProbe {
		msg = codec.ServerTypeProbeRequest{}
	} else {
		decoded, decErr := codec.Deserialize(data)
		if decErr != nil {
			m.log.Debug("dropping message with undecodable payload", "session", session, "source", source, "err", decErr)
			return
		}
		msg = decoded
	}

	switch resp := msg.(type) {
	case codec.ChatClientList:
		for _, client := range resp.Clients {
			m.dir.Index(client, source, nil)
		}
	case codec.ChatErrorWrongClientId:
		m.dir.Forget(resp.ClientId, source)
	}

	m.emit(telemetry.Event{Kind: telemetry.EventMessageRecv, SessionId: session, Source: uint8(source)})
	if m.Deliver != nil {
		m.Deliver(msg, source)
	}
}
