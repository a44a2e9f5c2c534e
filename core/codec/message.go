package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dsantoro/wgnet/core"
)

// ErrDecode is returned by Deserialize when bytes are not valid UTF-8/JSON
// or do not match any known request/response variant.
var ErrDecode = errors.New("codec: decode error")

// ServerTypeProbe is the literal string a client sends instead of a
// structured request to identify a server's application kind.
const ServerTypeProbe = "ServerType"

// ServerTypeProbeRequest is the sentinel value the session layer delivers
// when a reassembled message's raw bytes equal ServerTypeProbe exactly. It
// bypasses the JSON envelope entirely, so it is never produced by
// Deserialize and never accepted by Serialize.
type ServerTypeProbeRequest struct{}

// ServerKind is the reply to a ServerTypeProbe.
type ServerKind string

const (
	ServerKindChat  ServerKind = "ChatServer"
	ServerKindMedia ServerKind = "MediaServer"
)

// Chat request variants (client -> server).
type (
	// ChatRegister registers the sending client with the server.
	ChatRegister struct {
		ClientId core.NodeId `json:"client_id"`
	}

	// ChatClientListRequest asks the server for its registered client set.
	ChatClientListRequest struct{}

	// ChatSendMessage asks the server to relay Message from From to To.
	ChatSendMessage struct {
		From    core.NodeId `json:"from"`
		To      core.NodeId `json:"to"`
		Message []byte      `json:"message"`
	}
)

// Chat response variants (server -> client).
type (
	// ChatClientList is the server's reply to ChatClientListRequest.
	ChatClientList struct {
		Clients []core.NodeId `json:"clients"`
	}

	// ChatMessageFrom delivers a relayed message to its recipient.
	ChatMessageFrom struct {
		From    core.NodeId `json:"from"`
		Message []byte      `json:"message"`
	}

	// ChatErrorWrongClientId reports that the destination of a SendMessage
	// was not a registered client.
	ChatErrorWrongClientId struct {
		ClientId core.NodeId `json:"client_id"`
	}
)

// Media request/response variants, supplementing the spec's generic
// request/response envelope with the original implementation's media
// application vocabulary.
type (
	MediaListRequest struct{}

	MediaRequest struct {
		Id string `json:"id"`
	}

	MediaListResponse struct {
		Ids []string `json:"ids"`
	}

	MediaResponse struct {
		Id   string `json:"id"`
		Data []byte `json:"data"`
	}
)

// variant names used on the wire; stable across versions.
const (
	kindChatRegister         = "ChatRegister"
	kindChatClientListReq    = "ChatClientListRequest"
	kindChatSendMessage      = "ChatSendMessage"
	kindChatClientList       = "ChatClientList"
	kindChatMessageFrom      = "ChatMessageFrom"
	kindChatErrorWrongClient = "ChatErrorWrongClientId"
	kindMediaListRequest     = "MediaListRequest"
	kindMediaRequest         = "MediaRequest"
	kindMediaListResponse    = "MediaListResponse"
	kindMediaResponse        = "MediaResponse"
)

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Serialize encodes a request/response value to its stable JSON wire form.
func Serialize(v any) ([]byte, error) {
	var kind string
	switch v.(type) {
	case ChatRegister:
		kind = kindChatRegister
	case ChatClientListRequest:
		kind = kindChatClientListReq
	case ChatSendMessage:
		kind = kindChatSendMessage
	case ChatClientList:
		kind = kindChatClientList
	case ChatMessageFrom:
		kind = kindChatMessageFrom
	case ChatErrorWrongClientId:
		kind = kindChatErrorWrongClient
	case MediaListRequest:
		kind = kindMediaListRequest
	case MediaRequest:
		kind = kindMediaRequest
	case MediaListResponse:
		kind = kindMediaListResponse
	case MediaResponse:
		kind = kindMediaResponse
	default:
		return nil, fmt.Errorf("%w: unknown variant %T", ErrDecode, v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return json.Marshal(envelope{Kind: kind, Data: data})
}

// Deserialize decodes bytes produced by Serialize back into its concrete
// request/response value. It fails with ErrDecode when bytes are not valid
// UTF-8/JSON or do not match any known variant.
func Deserialize(b []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var target any
	switch env.Kind {
	case kindChatRegister:
		target = &ChatRegister{}
	case kindChatClientListReq:
		target = &ChatClientListRequest{}
	case kindChatSendMessage:
		target = &ChatSendMessage{}
	case kindChatClientList:
		target = &ChatClientList{}
	case kindChatMessageFrom:
		target = &ChatMessageFrom{}
	case kindChatErrorWrongClient:
		target = &ChatErrorWrongClientId{}
	case kindMediaListRequest:
		target = &MediaListRequest{}
	case kindMediaRequest:
		target = &MediaRequest{}
	case kindMediaListResponse:
		target = &MediaListResponse{}
	case kindMediaResponse:
		target = &MediaResponse{}
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrDecode, env.Kind)
	}

	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Deref back to value types to match Serialize's input shape.
	switch v := target.(type) {
	case *ChatRegister:
		return *v, nil
	case *ChatClientListRequest:
		return *v, nil
	case *ChatSendMessage:
		return *v, nil
	case *ChatClientList:
		return *v, nil
	case *ChatMessageFrom:
		return *v, nil
	case *ChatErrorWrongClientId:
		return *v, nil
	case *MediaListRequest:
		return *v, nil
	case *MediaRequest:
		return *v, nil
	case *MediaListResponse:
		return *v, nil
	case *MediaResponse:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: unreachable", ErrDecode)
}
