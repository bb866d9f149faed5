package messaging

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/models"
)

// MessagePreview is the short form of a message used for room listings and
// reply quotes.
type MessagePreview struct {
	ID        string             `json:"id"`
	Sender    models.Participant `json:"sender"`
	Content   *string            `json:"content"`
	Type      models.MessageType `json:"type"`
	IsDeleted bool               `json:"is_deleted"`
	CreatedAt time.Time          `json:"created_at"`
}

func previewOf(m *models.Message) *MessagePreview {
	p := &MessagePreview{
		ID:        m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		Type:      m.Type,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
	}
	if m.IsDeleted {
		p.Content = nil
	}
	return p
}

type AttachmentView struct {
	models.Attachment
	SizeLabel string `json:"size_label"`
}

func attachmentViews(atts []models.Attachment) []AttachmentView {
	return lo.Map(atts, func(a models.Attachment, _ int) AttachmentView {
		return AttachmentView{Attachment: a, SizeLabel: humanize.Bytes(uint64(max(a.Size, 0)))}
	})
}

// ReactionGroup aggregates the reactions of one emoji on a message.
type ReactionGroup struct {
	Emoji        string               `json:"emoji"`
	Count        int                  `json:"count"`
	ReactedByMe  bool                 `json:"reacted_by_me"`
	Participants []models.Participant `json:"participants"`
}

// groupReactions groups by emoji in order of first use.
func groupReactions(reactions []models.Reaction, me models.Participant) []ReactionGroup {
	emojis := lo.Uniq(lo.Map(reactions, func(r models.Reaction, _ int) string { return r.Emoji }))
	byEmoji := lo.GroupBy(reactions, func(r models.Reaction) string { return r.Emoji })
	return lo.Map(emojis, func(emoji string, _ int) ReactionGroup {
		rs := byEmoji[emoji]
		return ReactionGroup{
			Emoji:       emoji,
			Count:       len(rs),
			ReactedByMe: lo.ContainsBy(rs, func(r models.Reaction) bool { return r.Participant == me }),
			Participants: lo.Map(rs, func(r models.Reaction, _ int) models.Participant {
				return r.Participant
			}),
		}
	})
}

// MessageView is one message of a history page, decorated for display.
// Content and attachments of deleted messages are withheld.
type MessageView struct {
	ID          string             `json:"id"`
	RoomID      string             `json:"room_id"`
	Sender      models.Participant `json:"sender"`
	Content     *string            `json:"content"`
	Type        models.MessageType `json:"type"`
	IsEdited    bool               `json:"is_edited"`
	IsDeleted   bool               `json:"is_deleted"`
	IsMine      bool               `json:"is_mine"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Attachments []AttachmentView   `json:"attachments"`
	Reactions   []ReactionGroup    `json:"reactions"`
	ReplyTo     *MessagePreview    `json:"reply_to,omitempty"`

	DayKey   string `json:"day_key"`
	DayLabel string `json:"day_label"`
	Divider  bool   `json:"divider"`

	// UnreadMarker is set on the first unread message of the page, which
	// then carries the room's total unread count.
	UnreadMarker bool `json:"unread_marker"`
	UnreadCount  int  `json:"unread_count,omitempty"`
}

// MemberView is a roster entry. Clients see the reduced projection without
// read state or settings.
type MemberView struct {
	ID          string             `json:"id"`
	Participant models.Participant `json:"participant"`
	Role        models.Role        `json:"role"`
	JoinedAt    time.Time          `json:"joined_at"`
	LastReadAt  *time.Time         `json:"last_read_at,omitempty"`
	IsMuted     *bool              `json:"is_muted,omitempty"`
}

func memberViews(members []models.Membership, viewer models.Participant) []MemberView {
	return lo.Map(members, func(m models.Membership, _ int) MemberView {
		v := MemberView{ID: m.ID, Participant: m.Participant, Role: m.Role, JoinedAt: m.JoinedAt}
		if viewer.IsUser() {
			v.LastReadAt = m.LastReadAt
			v.IsMuted = lo.ToPtr(m.IsMuted)
		}
		return v
	})
}

// RoomSummary is a room as seen by one member.
type RoomSummary struct {
	models.Room
	Membership  models.Membership   `json:"membership"`
	UnreadCount int                 `json:"unread_count"`
	LastMessage *MessagePreview     `json:"last_message,omitempty"`
	Peer        *models.Participant `json:"peer,omitempty"`
}

// RoomDetail adds the roster to a summary.
type RoomDetail struct {
	RoomSummary
	Members []MemberView `json:"members"`
}
