package messaging

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/daygroup"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/metrics"
	"github.com/umar/roomchat/internal/models"
)

const maxContentLength = 10000

type AttachmentInput struct {
	URL          string  `json:"url" validate:"required,url,max=2048"`
	Name         string  `json:"name" validate:"required,max=255"`
	Size         int64   `json:"size" validate:"gte=0"`
	MimeType     string  `json:"mime_type" validate:"max=255"`
	ThumbnailURL *string `json:"thumbnail_url" validate:"omitempty,url,max=2048"`
}

type SendMessageInput struct {
	Content     *string            `json:"content" validate:"omitempty,max=10000"`
	Type        models.MessageType `json:"type"`
	Attachments []AttachmentInput  `json:"attachments" validate:"max=10,dive"`
	ReplyToID   *string            `json:"reply_to_id"`
}

// SendMessage persists a message and fans it out: message:created and the
// sender's typing:stop on the room channel, then notification:new_message
// on the personal channel of every other active member.
func (s *Service) SendMessage(ctx context.Context, roomID string, sender models.Participant, in SendMessageInput) (*models.Message, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	var content *string
	if in.Content != nil {
		if c := strings.TrimSpace(*in.Content); c != "" {
			content = &c
		}
	}
	if content == nil && len(in.Attachments) == 0 {
		return nil, apperr.Validation("content or attachments are required")
	}
	if in.Type == models.MessageSystem {
		return nil, apperr.Validation("system messages cannot be sent")
	}
	if in.Type != "" && !in.Type.Valid() {
		return nil, apperr.Validation("unknown message type %q", in.Type)
	}

	now := s.timestamp()
	msg := &models.Message{
		ID:        newID(),
		RoomID:    roomID,
		Sender:    sender,
		Content:   content,
		Type:      in.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	msg.Attachments = lo.Map(in.Attachments, func(a AttachmentInput, _ int) models.Attachment {
		return models.Attachment{
			ID:           newID(),
			MessageID:    msg.ID,
			URL:          a.URL,
			Name:         a.Name,
			Size:         a.Size,
			MimeType:     normalizeMimeType(a.MimeType, a.Name),
			ThumbnailURL: a.ThumbnailURL,
		}
	})
	if msg.Type == "" {
		msg.Type = inferMessageType(msg.Attachments)
	}

	var room *models.Room
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		room, _, err = s.roomAccess(ctx, tx, roomID, sender)
		if err != nil {
			return err
		}
		if (len(msg.Attachments) > 0 || msg.Type == models.MessageFile) && !room.Flags.AllowFiles {
			return apperr.PolicyViolation("files are disabled in this room")
		}
		if !room.Flags.ChatEnabled {
			return apperr.PolicyViolation("chat is disabled in this room")
		}
		if in.ReplyToID != nil && *in.ReplyToID != "" {
			target, err := database.GetMessageByID(ctx, tx, *in.ReplyToID)
			if err != nil {
				return err
			}
			if target == nil || target.RoomID != roomID {
				return apperr.NotFound("reply target not found")
			}
			msg.ReplyToID = &target.ID
		}

		if err := database.CreateMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := database.TouchRoom(ctx, tx, roomID, now); err != nil {
			return err
		}
		return database.UnhideMemberships(ctx, tx, roomID)
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.broadcastToRoom(ctx, roomID, events.MessageCreated, msg)
	s.broadcastToRoom(ctx, roomID, events.TypingStop, events.TypingPayload{RoomID: roomID, Participant: sender})

	members, err := database.ListActiveMemberships(ctx, s.db, roomID)
	if err != nil {
		s.log.Error("failed to load roster for notifications", "room_id", roomID, "error", err)
		return msg, nil
	}
	s.notifyOthersInRoom(ctx, members, sender, events.NotificationNewMessage, func(m models.Membership) any {
		return NewMessagePayload{RoomID: roomID, RoomName: room.Name, RoomType: room.Type, Message: *msg, IsMuted: m.IsMuted}
	})
	return msg, nil
}

// EditMessage replaces the content of the requester's own message.
func (s *Service) EditMessage(ctx context.Context, messageID string, requester models.Participant, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if len(content) > maxContentLength {
		return nil, apperr.Validation("content is too long")
	}

	var msg *models.Message
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.activeMembership(ctx, tx, msg.RoomID, requester); err != nil {
			return err
		}
		if msg.Sender != requester {
			return apperr.AccessDenied("only the sender can edit a message")
		}
		if msg.IsDeleted {
			return apperr.PolicyViolation("deleted messages cannot be edited")
		}
		now := s.timestamp()
		if err := database.UpdateMessageContent(ctx, tx, msg.ID, content, now); err != nil {
			return err
		}
		msg.Content, msg.IsEdited, msg.UpdatedAt = &content, true, now
		atts, err := database.ListAttachments(ctx, tx, []string{msg.ID})
		if err != nil {
			return err
		}
		msg.Attachments = atts[msg.ID]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, msg.RoomID, events.MessageEdited, msg)
	return msg, nil
}

// DeleteMessage soft-deletes a message. The sender and the room's admins
// and moderators may delete it.
func (s *Service) DeleteMessage(ctx context.Context, messageID string, requester models.Participant) error {
	var msg *models.Message
	var changed bool
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		m, err := s.activeMembership(ctx, tx, msg.RoomID, requester)
		if err != nil {
			return err
		}
		if msg.Sender != requester && !m.Role.CanModerate() {
			return apperr.AccessDenied("only the sender or a moderator can delete a message")
		}
		if msg.IsDeleted {
			return nil
		}
		changed = true
		return database.SoftDeleteMessage(ctx, tx, msg.ID, s.timestamp())
	})
	if err != nil || !changed {
		return err
	}

	s.broadcastToRoom(ctx, msg.RoomID, events.MessageDeleted, MessageDeletedPayload{RoomID: msg.RoomID, MessageID: msg.ID})
	return nil
}

// MessagePageQuery selects a history page. Location is the viewer's time
// zone for day grouping; UTC when nil.
type MessagePageQuery struct {
	Page     int
	Limit    int
	Location *time.Location
}

type MessagePage struct {
	Messages    []MessageView `json:"messages"`
	Page        int           `json:"page"`
	Limit       int           `json:"limit"`
	HasMore     bool          `json:"has_more"`
	UnreadCount int           `json:"unread_count"`
}

// GetMessages returns one page of history in chronological order and then
// marks the whole room read for the caller. Page 0 holds the newest
// messages.
func (s *Service) GetMessages(ctx context.Context, roomID string, p models.Participant, q MessagePageQuery) (*MessagePage, error) {
	page := Page{Number: q.Page, Limit: q.Limit}.normalize(s.messageLimit)
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}

	_, m, err := s.roomAccess(ctx, s.db, roomID, p)
	if err != nil {
		return nil, err
	}
	unread, err := database.CountUnread(ctx, s.db, m)
	if err != nil {
		return nil, err
	}

	messages, err := database.ListMessagesPage(ctx, s.db, roomID, page.Limit+1, page.offset())
	if err != nil {
		return nil, err
	}
	hasMore := len(messages) > page.Limit
	if hasMore {
		messages = messages[:page.Limit]
	}
	slices.Reverse(messages)

	views, err := s.decorate(ctx, messages, m, unread, s.now().In(loc))
	if err != nil {
		return nil, err
	}

	if _, err := s.MarkMessagesAsRead(ctx, roomID, p); err != nil {
		return nil, err
	}
	return &MessagePage{Messages: views, Page: page.Number, Limit: page.Limit, HasMore: hasMore, UnreadCount: unread}, nil
}

// decorate turns an ascending slice of messages into views for member m.
func (s *Service) decorate(ctx context.Context, messages []models.Message, m *models.Membership, unread int, now time.Time) ([]MessageView, error) {
	ids := lo.Map(messages, func(msg models.Message, _ int) string { return msg.ID })
	replyIDs := lo.Uniq(lo.FilterMap(messages, func(msg models.Message, _ int) (string, bool) {
		if msg.ReplyToID == nil {
			return "", false
		}
		return *msg.ReplyToID, true
	}))

	attachments, err := database.ListAttachments(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	reactions, err := database.ListReactions(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	read, err := database.ReadMessageIDs(ctx, s.db, m.ID, ids)
	if err != nil {
		return nil, err
	}
	replies, err := database.GetMessagesByIDs(ctx, s.db, replyIDs)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(messages))
	markerPlaced := false
	prevKey := ""
	for _, msg := range messages {
		bucket := daygroup.Classify(msg.CreatedAt, now)
		v := MessageView{
			ID:          msg.ID,
			RoomID:      msg.RoomID,
			Sender:      msg.Sender,
			Content:     msg.Content,
			Type:        msg.Type,
			IsEdited:    msg.IsEdited,
			IsDeleted:   msg.IsDeleted,
			IsMine:      msg.Sender == m.Participant,
			CreatedAt:   msg.CreatedAt,
			UpdatedAt:   msg.UpdatedAt,
			Attachments: []AttachmentView{},
			Reactions:   []ReactionGroup{},
			DayKey:      bucket.Key,
			DayLabel:    bucket.Label,
			Divider:     bucket.Key != prevKey,
		}
		prevKey = bucket.Key

		if msg.IsDeleted {
			v.Content = nil
		} else {
			v.Attachments = attachmentViews(attachments[msg.ID])
			v.Reactions = groupReactions(reactions[msg.ID], m.Participant)
		}
		if msg.ReplyToID != nil {
			if target, ok := replies[*msg.ReplyToID]; ok {
				v.ReplyTo = previewOf(&target)
			}
		}
		if !markerPlaced && !msg.IsDeleted && !v.IsMine && !read[msg.ID] {
			v.UnreadMarker, v.UnreadCount = true, unread
			markerPlaced = true
		}
		views = append(views, v)
	}
	return views, nil
}

// MessagePosition locates a message within the newest-first history.
type MessagePosition struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	Position  int    `json:"position"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
}

// GetMessagePageByMessageID returns the page of GetMessages that contains
// the message, for jumping to it from a link or search result.
func (s *Service) GetMessagePageByMessageID(ctx context.Context, messageID string, p models.Participant, limit int) (*MessagePosition, error) {
	page := Page{Limit: limit}.normalize(s.messageLimit)
	msg, err := s.loadMessage(ctx, s.db, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeMembership(ctx, s.db, msg.RoomID, p); err != nil {
		return nil, err
	}
	pos, err := database.CountMessagesNewerThan(ctx, s.db, msg)
	if err != nil {
		return nil, err
	}
	return &MessagePosition{RoomID: msg.RoomID, MessageID: msg.ID, Position: pos, Page: pos / page.Limit, Limit: page.Limit}, nil
}
