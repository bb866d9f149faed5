package messaging

import (
	"time"

	"github.com/umar/roomchat/internal/models"
)

// Event payloads published by the service.

type MessageDeletedPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// NewMessagePayload is delivered on each recipient's personal channel.
// IsMuted is the recipient's own setting.
type NewMessagePayload struct {
	RoomID   string          `json:"room_id"`
	RoomName string          `json:"room_name"`
	RoomType models.RoomType `json:"room_type"`
	Message  models.Message  `json:"message"`
	IsMuted  bool            `json:"is_muted"`
}

type MessageSeenPayload struct {
	RoomID      string             `json:"room_id"`
	MessageID   string             `json:"message_id"`
	Participant models.Participant `json:"participant"`
	ReadAt      time.Time          `json:"read_at"`
}

type ReactionPayload struct {
	RoomID      string             `json:"room_id"`
	MessageID   string             `json:"message_id"`
	Participant models.Participant `json:"participant"`
	Emoji       string             `json:"emoji"`
}

type PinPayload struct {
	RoomID    string             `json:"room_id"`
	MessageID string             `json:"message_id"`
	Actor     models.Participant `json:"actor"`
}

type MemberPayload struct {
	RoomID     string            `json:"room_id"`
	Membership models.Membership `json:"membership"`
}

type RoomRemovedPayload struct {
	RoomID string `json:"room_id"`
}
