package chat

import (
	"encoding/json"

	"github.com/umar/roomchat/internal/events"
)

// Commands sent by websocket clients.
const (
	TypeRoomJoin    = "room:join"
	TypeRoomLeave   = "room:leave"
	TypeTypingStart = events.TypingStart
	TypeTypingStop  = events.TypingStop
	TypePing        = "ping"
)

// Frames written only by the gateway itself.
const (
	TypeRoomJoined = "room:joined"
	TypeRoomLeft   = "room:left"
	TypeError      = "error"
	TypePong       = "pong"
)

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewWSMessage encodes a frame that is not addressed to any channel.
func NewWSMessage(msgType string, payload any) ([]byte, error) {
	evt, err := events.New(msgType, payload)
	if err != nil {
		return nil, err
	}
	return evt.Encode("")
}
