package models

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageImage  MessageType = "image"
	MessageVoice  MessageType = "voice"
	MessageVideo  MessageType = "video"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage, MessageVoice, MessageVideo, MessageSystem:
		return true
	}
	return false
}

type Message struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	Sender      Participant  `json:"sender"`
	Content     *string      `json:"content"`
	Type        MessageType  `json:"type"`
	IsEdited    bool         `json:"is_edited"`
	IsDeleted   bool         `json:"is_deleted"`
	ReplyToID   *string      `json:"reply_to_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	ID           string  `json:"id"`
	MessageID    string  `json:"message_id"`
	URL          string  `json:"url"`
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	MimeType     string  `json:"mime_type"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}

type ReadReceipt struct {
	MessageID    string    `json:"message_id"`
	MembershipID string    `json:"membership_id"`
	ReadAt       time.Time `json:"read_at"`
}

type Reaction struct {
	MessageID   string      `json:"message_id"`
	Participant Participant `json:"participant"`
	Emoji       string      `json:"emoji"`
	CreatedAt   time.Time   `json:"created_at"`
}

type PinnedMessage struct {
	RoomID    string      `json:"room_id"`
	MessageID string      `json:"message_id"`
	PinnedBy  Participant `json:"pinned_by"`
	PinnedAt  time.Time   `json:"pinned_at"`
}
