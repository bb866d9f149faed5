package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/messaging/mocks"
	"github.com/umar/roomchat/internal/models"
)

func TestSendMessageFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob, carol)
	_, err := f.svc.UpdateRoom(ctx, room.ID, carol, RoomPatch{IsMuted: ptr(true)})
	require.NoError(t, err)
	f.pub.reset()

	msg := f.send(t, room.ID, alice, "  hello  ")
	require.Equal(t, "hello", *msg.Content)
	require.Equal(t, models.MessageText, msg.Type)

	require.Equal(t, []string{events.MessageCreated, events.TypingStop}, f.pub.types(events.RoomChannel(room.ID)))
	require.Empty(t, f.pub.types(events.ParticipantChannel(alice)))

	for _, tc := range []struct {
		p     models.Participant
		muted bool
	}{{bob, false}, {carol, true}} {
		notes := f.pub.find(events.ParticipantChannel(tc.p), events.NotificationNewMessage)
		require.Len(t, notes, 1)
		payload := decode[NewMessagePayload](t, notes[0])
		require.Equal(t, msg.ID, payload.Message.ID)
		require.Equal(t, room.ID, payload.RoomID)
		require.Equal(t, tc.muted, payload.IsMuted)
	}

	stop := f.pub.find(events.RoomChannel(room.ID), events.TypingStop)
	require.Equal(t, alice, decode[events.TypingPayload](t, stop[0]).Participant)

	got, err := f.svc.GetRoom(ctx, room.ID, alice)
	require.NoError(t, err)
	require.True(t, f.clock.Equal(got.UpdatedAt))
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, alice, models.RoomGroup, bob)
	blank := "   "
	text := "hi"

	tests := []struct {
		name    string
		in      SendMessageInput
		wantErr error
	}{
		{name: "empty", in: SendMessageInput{}, wantErr: apperr.ErrValidation},
		{name: "blank content", in: SendMessageInput{Content: &blank}, wantErr: apperr.ErrValidation},
		{name: "system type", in: SendMessageInput{Content: &text, Type: models.MessageSystem}, wantErr: apperr.ErrValidation},
		{name: "unknown type", in: SendMessageInput{Content: &text, Type: "sticker"}, wantErr: apperr.ErrValidation},
		{
			name:    "attachment without url",
			in:      SendMessageInput{Attachments: []AttachmentInput{{Name: "a.txt", Size: 1}}},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "reply to unknown message",
			in:      SendMessageInput{Content: &text, ReplyToID: ptr("nope")},
			wantErr: apperr.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(context.Background(), room.ID, alice, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.Zero(t, f.count(t, `SELECT COUNT(*) FROM messages`))
}

func TestSendMessageReplyMustBeInSameRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.room(t, alice, models.RoomGroup, bob)
	second := f.room(t, alice, models.RoomGroup, bob)
	other := f.send(t, first.ID, bob, "elsewhere")
	text := "reply"

	_, err := f.svc.SendMessage(ctx, second.ID, alice, SendMessageInput{Content: &text, ReplyToID: &other.ID})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	reply, err := f.svc.SendMessage(ctx, first.ID, alice, SendMessageInput{Content: &text, ReplyToID: &other.ID})
	require.NoError(t, err)
	require.Equal(t, &other.ID, reply.ReplyToID)
}

func TestSendFileWhenFilesDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)
	_, err := f.svc.UpdateRoom(ctx, room.ID, alice, RoomPatch{AllowFiles: ptr(false)})
	require.NoError(t, err)
	f.pub.reset()

	text := "see attached"
	_, err = f.svc.SendMessage(ctx, room.ID, alice, SendMessageInput{Content: &text, Type: models.MessageFile})
	require.ErrorIs(t, err, apperr.ErrPolicyViolation)

	_, err = f.svc.SendMessage(ctx, room.ID, alice, SendMessageInput{
		Attachments: []AttachmentInput{{URL: "https://files.example.com/a.pdf", Name: "a.pdf", Size: 10}},
	})
	require.ErrorIs(t, err, apperr.ErrPolicyViolation)

	require.Zero(t, f.count(t, `SELECT COUNT(*) FROM messages`))
	require.Zero(t, f.count(t, `SELECT COUNT(*) FROM attachments`))
	require.Empty(t, f.pub.sent)
}

func TestSendWhenChatDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)
	_, err := f.svc.UpdateRoom(ctx, room.ID, alice, RoomPatch{ChatEnabled: ptr(false)})
	require.NoError(t, err)

	text := "anyone?"
	_, err = f.svc.SendMessage(ctx, room.ID, bob, SendMessageInput{Content: &text})
	require.ErrorIs(t, err, apperr.ErrPolicyViolation)
}

func TestSendMessageInfersTypeFromAttachments(t *testing.T) {
	tests := []struct {
		name     string
		att      AttachmentInput
		wantType models.MessageType
		wantMime string
	}{
		{
			name:     "declared image",
			att:      AttachmentInput{URL: "https://cdn.example.com/p", Name: "photo", Size: 2048, MimeType: "IMAGE/PNG"},
			wantType: models.MessageImage,
			wantMime: "image/png",
		},
		{
			name:     "extension fallback",
			att:      AttachmentInput{URL: "https://cdn.example.com/p.png", Name: "p.png", Size: 1},
			wantType: models.MessageImage,
			wantMime: "image/png",
		},
		{
			name:     "video",
			att:      AttachmentInput{URL: "https://cdn.example.com/v", Name: "clip", Size: 1, MimeType: "video/mp4"},
			wantType: models.MessageVideo,
			wantMime: "video/mp4",
		},
		{
			name:     "audio is voice",
			att:      AttachmentInput{URL: "https://cdn.example.com/a", Name: "memo", Size: 1, MimeType: "audio/ogg"},
			wantType: models.MessageVoice,
			wantMime: "audio/ogg",
		},
		{
			name:     "unknown",
			att:      AttachmentInput{URL: "https://cdn.example.com/x", Name: "blob", Size: 1},
			wantType: models.MessageFile,
			wantMime: "application/octet-stream",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			room := f.room(t, alice, models.RoomGroup, bob)
			msg, err := f.svc.SendMessage(context.Background(), room.ID, alice, SendMessageInput{
				Attachments: []AttachmentInput{tt.att},
			})
			require.NoError(t, err)
			require.Nil(t, msg.Content)
			require.Equal(t, tt.wantType, msg.Type)
			require.Len(t, msg.Attachments, 1)
			require.Equal(t, tt.wantMime, msg.Attachments[0].MimeType)
		})
	}
}

func TestLeftMemberCannotSendButHistoryStays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)
	before := f.send(t, room.ID, alice, "before leaving")
	_, err := f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{})
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveRoom(ctx, room.ID, alice))

	text := "after leaving"
	_, err = f.svc.SendMessage(ctx, room.ID, alice, SendMessageInput{Content: &text})
	require.ErrorIs(t, err, apperr.ErrAccessDenied)

	page, err := f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, before.ID, page.Messages[0].ID)
	require.Equal(t, alice, page.Messages[0].Sender)
	require.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM read_receipts`))
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)
	msg := f.send(t, room.ID, alice, "draft")
	f.pub.reset()

	_, err := f.svc.EditMessage(ctx, msg.ID, bob, "hijack")
	require.ErrorIs(t, err, apperr.ErrAccessDenied)

	_, err = f.svc.EditMessage(ctx, msg.ID, alice, " ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.EditMessage(ctx, "missing", alice, "x")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	f.tick()
	edited, err := f.svc.EditMessage(ctx, msg.ID, alice, "final")
	require.NoError(t, err)
	require.Equal(t, "final", *edited.Content)
	require.True(t, edited.IsEdited)
	require.True(t, edited.UpdatedAt.After(edited.CreatedAt))
	require.Equal(t, []string{events.MessageEdited}, f.pub.types(events.RoomChannel(room.ID)))

	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, alice))
	_, err = f.svc.EditMessage(ctx, msg.ID, alice, "again")
	require.ErrorIs(t, err, apperr.ErrPolicyViolation)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob, carol)
	msg := f.send(t, room.ID, bob, "oops")
	f.pub.reset()

	require.ErrorIs(t, f.svc.DeleteMessage(ctx, msg.ID, carol), apperr.ErrAccessDenied)

	// Admins may delete anyone's message.
	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, alice))
	deleted := f.pub.find(events.RoomChannel(room.ID), events.MessageDeleted)
	require.Len(t, deleted, 1)
	require.Equal(t, msg.ID, decode[MessageDeletedPayload](t, deleted[0]).MessageID)

	// Deleting again is a no-op.
	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, bob))
	require.Len(t, f.pub.find(events.RoomChannel(room.ID), events.MessageDeleted), 1)
	require.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM messages WHERE is_deleted = TRUE`))
}

func TestGetMessagesPresentation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)

	f.clock = time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	first := f.send(t, room.ID, alice, "yesterday")
	f.clock = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	second := f.send(t, room.ID, bob, "morning")
	doomed := f.send(t, room.ID, alice, "secret")
	f.tick()
	reply, err := f.svc.SendMessage(ctx, room.ID, bob, SendMessageInput{
		Content:     ptr("look"),
		ReplyToID:   &first.ID,
		Attachments: []AttachmentInput{{URL: "https://cdn.example.com/r.pdf", Name: "r.pdf", Size: 2048, MimeType: "application/pdf"}},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteMessage(ctx, doomed.ID, alice))

	for _, r := range []struct {
		p     models.Participant
		emoji string
	}{{alice, "👍"}, {bob, "👍"}, {bob, "🎉"}} {
		f.tick()
		_, err := f.svc.AddReaction(ctx, second.ID, r.p, r.emoji)
		require.NoError(t, err)
	}
	f.clock = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	page, err := f.svc.GetMessages(ctx, room.ID, alice, MessagePageQuery{})
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Equal(t, 2, page.UnreadCount)
	require.Len(t, page.Messages, 4)

	views := page.Messages
	require.Equal(t, []string{first.ID, second.ID, doomed.ID, reply.ID},
		[]string{views[0].ID, views[1].ID, views[2].ID, views[3].ID})

	require.Equal(t, "2026-10-14", views[0].DayKey)
	require.Equal(t, "Yesterday", views[0].DayLabel)
	require.True(t, views[0].Divider)
	require.Equal(t, "Today", views[1].DayLabel)
	require.True(t, views[1].Divider)
	require.False(t, views[2].Divider)

	require.True(t, views[0].IsMine)
	require.False(t, views[0].UnreadMarker)
	require.True(t, views[1].UnreadMarker)
	require.Equal(t, 2, views[1].UnreadCount)
	require.False(t, views[3].UnreadMarker)

	require.Equal(t, []ReactionGroup{
		{Emoji: "👍", Count: 2, ReactedByMe: true, Participants: []models.Participant{alice, bob}},
		{Emoji: "🎉", Count: 1, ReactedByMe: false, Participants: []models.Participant{bob}},
	}, views[1].Reactions)

	require.True(t, views[2].IsDeleted)
	require.Nil(t, views[2].Content)

	require.NotNil(t, views[3].ReplyTo)
	require.Equal(t, first.ID, views[3].ReplyTo.ID)
	require.Len(t, views[3].Attachments, 1)
	require.Equal(t, "2.0 kB", views[3].Attachments[0].SizeLabel)
	require.Equal(t, models.MessageFile, views[3].Type)

	// Viewing marked everything read.
	unread, err := f.svc.UnreadCount(ctx, room.ID, alice)
	require.NoError(t, err)
	require.Zero(t, unread)
	again, err := f.svc.GetMessages(ctx, room.ID, alice, MessagePageQuery{})
	require.NoError(t, err)
	require.Zero(t, again.UnreadCount)
	for _, v := range again.Messages {
		require.False(t, v.UnreadMarker)
	}
}

func TestGetMessagesInViewerTimeZone(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, alice, models.RoomGroup, bob)
	f.clock = time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	f.send(t, room.ID, bob, "late night")

	ny := time.FixedZone("EDT", -4*60*60)
	page, err := f.svc.GetMessages(context.Background(), room.ID, alice, MessagePageQuery{Location: ny})
	require.NoError(t, err)
	require.Equal(t, "2026-10-14", page.Messages[0].DayKey)
	require.Equal(t, "Today", page.Messages[0].DayLabel)
}

func TestGetMessagesPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, alice, models.RoomGroup, bob)
	var sent []*models.Message
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		sent = append(sent, f.send(t, room.ID, alice, text))
	}

	page, err := f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{Page: 0, Limit: 2})
	require.NoError(t, err)
	require.True(t, page.HasMore)
	require.Equal(t, sent[3].ID, page.Messages[0].ID)
	require.Equal(t, sent[4].ID, page.Messages[1].ID)

	page, err = f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	require.Equal(t, sent[0].ID, page.Messages[0].ID)

	for i, want := range []int{2, 1, 1, 0, 0} {
		pos, err := f.svc.GetMessagePageByMessageID(ctx, sent[i].ID, bob, 2)
		require.NoError(t, err)
		require.Equal(t, 4-i, pos.Position)
		require.Equal(t, want, pos.Page)
	}

	_, err = f.svc.GetMessagePageByMessageID(ctx, sent[0].ID, carol, 2)
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = f.svc.GetMessagePageByMessageID(ctx, "missing", bob, 2)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	f.svc.SetPageSizes(3, 0)
	page, err = f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Limit)
	require.Len(t, page.Messages, 3)
	require.Equal(t, sent[2].ID, page.Messages[0].ID)

	page, err = f.svc.GetMessages(ctx, room.ID, bob, MessagePageQuery{Limit: 1000})
	require.NoError(t, err)
	require.Equal(t, MaxPageLimit, page.Limit)
}

func TestPublishFailureKeepsWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	f := newFixture(t)
	room := f.room(t, alice, models.RoomGroup, bob)

	svc := NewService(f.db, pub, f.svc.log)
	svc.now = f.svc.now
	pub.EXPECT().
		Publish(gomock.Any(), events.RoomChannel(room.ID), gomock.Any()).
		Return(errors.New("redis down")).
		Times(2)
	pub.EXPECT().
		Publish(gomock.Any(), events.ParticipantChannel(bob), gomock.Any()).
		Return(errors.New("redis down"))

	text := "still saved"
	msg, err := svc.SendMessage(context.Background(), room.ID, alice, SendMessageInput{Content: &text})
	require.NoError(t, err)
	require.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM messages WHERE id = $1`, msg.ID))
}
