// Package serverapp implements the Server Application described in
// spec.md §4.F: the two application-layer services — chat relay and media
// serving — that sit on top of an Endpoint, answering the messages its
// Session Manager hands up through OnDeliver.
//
// Grounded on device/router/router.go's handler-dispatch style: each
// application owns no transport of its own, just a switch over decoded
// message types and a reference back to the Endpoint to reply through.
package serverapp

import (
	"log/slog"
	"sync"

	"github.com/dsantoro/wgnet/core"
	"github.com/dsantoro/wgnet/core/codec"
	"github.com/dsantoro/wgnet/core/endpoint"
)

// ChatServer implements the chat application: a client must Register
// before SendMessage will relay to it, and ClientListRequest answers with
// the current registered set.
type ChatServer struct {
	log *slog.Logger
	ep  *endpoint.Endpoint

	mu         sync.Mutex
	registered map[core.NodeId]bool
}

// NewChatServer creates a ChatServer bound to ep, wiring ep.OnDeliver to
// handle the messages it receives.
func NewChatServer(ep *endpoint.Endpoint, logger *slog.Logger) *ChatServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChatServer{
		log:        logger.WithGroup("chatserver"),
		ep:         ep,
		registered: make(map[core.NodeId]bool),
	}
	ep.OnDeliver = s.Handle
	return s
}

// Handle dispatches one decoded message delivered from source.
func (s *ChatServer) Handle(msg any, source core.NodeId) {
	switch v := msg.(type) {
	case codec.ServerTypeProbeRequest:
		s.ep.SendRaw(source, []byte(codec.ServerKindChat))
	case codec.ChatRegister:
		s.register(v.ClientId)
	case codec.ChatClientListRequest:
		s.ep.Send(source, codec.ChatClientList{Clients: s.snapshot()})
	case codec.ChatSendMessage:
		s.relay(source, v)
	default:
		s.log.Debug("chat server received unhandled message", "source", source, "type", v)
	}
}

func (s *ChatServer) register(id core.NodeId) {
	s.mu.Lock()
	s.registered[id] = true
	s.mu.Unlock()
	s.log.Info("client registered", "client", id)
}

func (s *ChatServer) snapshot() []core.NodeId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.NodeId, 0, len(s.registered))
	for id := range s.registered {
		out = append(out, id)
	}
	return out
}

func (s *ChatServer) isRegistered(id core.NodeId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[id]
}

func (s *ChatServer) relay(source core.NodeId, req codec.ChatSendMessage) {
	if !s.isRegistered(req.To) {
		s.ep.Send(source, codec.ChatErrorWrongClientId{ClientId: req.To})
		return
	}
	s.ep.Send(req.To, codec.ChatMessageFrom{From: req.From, Message: req.Message})
}

// MediaServer implements the media application: ServerType probes identify
// it as a MediaServer, MediaListRequest answers with every stored id, and
// MediaRequest answers with the stored bytes for an id, if present.
type MediaServer struct {
	log   *slog.Logger
	ep    *endpoint.Endpoint
	store MediaStore
}

// NewMediaServer creates a MediaServer bound to ep and backed by store,
// wiring ep.OnDeliver to handle the messages it receives.
func NewMediaServer(ep *endpoint.Endpoint, store MediaStore, logger *slog.Logger) *MediaServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MediaServer{
		log:   logger.WithGroup("mediaserver"),
		ep:    ep,
		store: store,
	}
	ep.OnDeliver = s.Handle
	return s
}

// Handle dispatches one decoded message delivered from source.
func (s *MediaServer) Handle(msg any, source core.NodeId) {
	switch v := msg.(type) {
	case codec.ServerTypeProbeRequest:
		s.ep.SendRaw(source, []byte(codec.ServerKindMedia))
	case codec.MediaListRequest:
		s.ep.Send(source, codec.MediaListResponse{Ids: s.store.List()})
	case codec.MediaRequest:
		data, ok := s.store.Get(v.Id)
		if !ok {
			s.log.Debug("media requested by unknown id", "source", source, "id", v.Id)
			return
		}
		s.ep.Send(source, codec.MediaResponse{Id: v.Id, Data: data})
	default:
		s.log.Debug("media server received unhandled message", "source", source, "type", v)
	}
}
