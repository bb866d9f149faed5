// Package events is the realtime contract shared by publishers and the
// websocket gateway: event names, channel names and the wire envelope.
package events

import (
	"encoding/json"
	"strings"

	"github.com/umar/roomchat/internal/models"
)

const (
	MessageCreated  = "message:created"
	MessageEdited   = "message:edited"
	MessageDeleted  = "message:deleted"
	MessagePinned   = "message:pinned"
	MessageUnpinned = "message:unpinned"
	MessageSeen     = "message:seen"

	ReactionAdded   = "reaction:added"
	ReactionRemoved = "reaction:removed"

	MemberAdded       = "member:added"
	MemberRemoved     = "member:removed"
	MemberRoleUpdated = "member:role_updated"

	TypingStart = "typing:start"
	TypingStop  = "typing:stop"

	// Personal channel events.
	RoomCreated              = "room:created"
	RoomRemoved              = "room:removed"
	RoomUpdated              = "room:updated"
	NotificationNewMessage   = "notification:new_message"
	NotificationMessagesRead = "notification:messages_read"
	PresenceUpdate           = "presence:update"
)

const (
	roomPrefix        = "room:"
	participantPrefix = "participant:"
)

func RoomChannel(roomID string) string { return roomPrefix + roomID }

func ParticipantChannel(p models.Participant) string { return participantPrefix + p.Key() }

// RoomIDFromChannel returns the room id of a room channel.
func RoomIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, roomPrefix)
	return id, ok && id != ""
}

// RemovedRoom returns the room named by an encoded room:removed frame sent
// on a participant channel.
func RemovedRoom(channel string, data []byte) (string, bool) {
	if !strings.HasPrefix(channel, participantPrefix) {
		return "", false
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil || evt.Type != RoomRemoved {
		return "", false
	}
	var payload struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil || payload.RoomID == "" {
		return "", false
	}
	return payload.RoomID, true
}

// Event is the envelope written to websocket clients.
type Event struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func New(eventType string, payload any) (Event, error) {
	evt := Event{Type: eventType}
	if payload != nil {
		p, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		evt.Payload = p
	}
	return evt, nil
}

// Encode renders the envelope addressed to channel.
func (e Event) Encode(channel string) ([]byte, error) {
	e.Channel = channel
	return json.Marshal(e)
}

type TypingPayload struct {
	RoomID      string             `json:"room_id"`
	Participant models.Participant `json:"participant"`
}

type MessagesReadPayload struct {
	RoomID string `json:"room_id"`
	Count  int    `json:"count"`
}

type PresencePayload struct {
	Participant models.Participant `json:"participant"`
	Status      string             `json:"status"`
}
