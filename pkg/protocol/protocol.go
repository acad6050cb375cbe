package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/roomplus/roomplus/pkg/model"
)

var validate = validator.New()

// Envelope is the wire framing for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one decoded client event. The concrete type is one of the
// payload structs below; handlers type-switch over it.
type Inbound interface {
	Event() string
}

// ConnectUser sets the identity of a connection.
type ConnectUser struct {
	Username string `json:"username" validate:"required"`
}

func (*ConnectUser) Event() string { return EventConnectUser }

// JoinRoom asks to join a room, implicitly leaving the current one.
type JoinRoom struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

func (*JoinRoom) Event() string { return EventJoinRoom }

// SendMessage posts a text message to the sender's current room. Text is
// not required by the schema; emptiness is a semantic error reported to
// the sender, not a malformed frame.
type SendMessage struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required"`
	Text     string `json:"text"`
}

func (*SendMessage) Event() string { return EventSendMessage }

// SendImage posts an already-uploaded image by URL.
type SendImage struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"required"`
}

func (*SendImage) Event() string { return EventSendImage }

// Typing covers both user_typing and user_stop_typing; IsTyping is set
// by the decoder from the event name.
type Typing struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required"`
	IsTyping bool   `json:"-"`
}

func (t *Typing) Event() string {
	if t.IsTyping {
		return EventUserTyping
	}
	return EventUserStopTyping
}

// DecodeInbound parses and validates one raw client frame. Unknown event
// names and schema violations are rejected with model.ErrValidation.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", model.ErrValidation, err)
	}

	var in Inbound
	switch env.Event {
	case EventConnectUser:
		in = &ConnectUser{}
	case EventJoinRoom:
		in = &JoinRoom{}
	case EventSendMessage:
		in = &SendMessage{}
	case EventSendImage:
		in = &SendImage{}
	case EventUserTyping:
		in = &Typing{IsTyping: true}
	case EventUserStopTyping:
		in = &Typing{IsTyping: false}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", model.ErrValidation, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, in); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", model.ErrValidation, env.Event, err)
		}
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrValidation, env.Event, err)
	}
	return in, nil
}

// Encode wraps a payload in the wire envelope.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
