package chat

import (
	"context"

	"github.com/umar/roomchat/internal/events"
)

// HandleRoomJoin subscribes the client to a room it is an active member of.
// Removed participants are evicted by the hub when their room:removed
// notice is delivered.
func HandleRoomJoin(ctx context.Context, c *Client, payload RoomPayload) {
	ok, err := c.members.IsActiveMember(ctx, payload.RoomID, c.participant)
	if err != nil {
		c.log.Error("membership check failed", "room_id", payload.RoomID, "error", err)
		c.sendError("could not join room", "internal_error")
		return
	}
	if !ok {
		c.sendError("not a member of this room", "access_denied")
		return
	}

	channel := events.RoomChannel(payload.RoomID)
	if !c.hub.Subscribe(c, channel) {
		return
	}
	c.reply(TypeRoomJoined, payload)
	c.hub.emit(ctx, channel, events.PresenceUpdate, events.PresencePayload{
		Participant: c.participant,
		Status:      "online",
	})
}

func HandleRoomLeave(c *Client, payload RoomPayload) {
	c.hub.Unsubscribe(c, events.RoomChannel(payload.RoomID))
	c.reply(TypeRoomLeft, payload)
}

// HandleTyping relays typing state to the room. Clients that have not
// joined the room are ignored.
func HandleTyping(ctx context.Context, c *Client, payload RoomPayload, started bool) {
	channel := events.RoomChannel(payload.RoomID)
	if !c.hub.subscribed(c, channel) {
		c.sendError("join the room first", "not_joined")
		return
	}
	eventType := events.TypingStop
	if started {
		eventType = events.TypingStart
	}
	c.hub.emit(ctx, channel, eventType, events.TypingPayload{
		RoomID:      payload.RoomID,
		Participant: c.participant,
	})
}

func (c *Client) sendError(message, code string) {
	c.reply(TypeError, ErrorPayload{Message: message, Code: code})
}
