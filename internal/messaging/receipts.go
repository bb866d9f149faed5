package messaging

import (
	"context"
	"database/sql"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/metrics"
	"github.com/umar/roomchat/internal/models"
)

// MarkMessagesAsRead writes a receipt for every unread message of the room
// and moves the membership's last_read_at forward. Concurrent sessions of
// the same member are reconciled by the receipt primary key, so the call is
// safe to retry. It returns the number of receipts created.
func (s *Service) MarkMessagesAsRead(ctx context.Context, roomID string, p models.Participant) (int, error) {
	var created int
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, m, err := s.roomAccess(ctx, tx, roomID, p)
		if err != nil {
			return err
		}
		now := s.timestamp()
		created, err = database.MarkAllRead(ctx, tx, m, now)
		if err != nil {
			return err
		}
		return database.AdvanceLastRead(ctx, tx, m.ID, now)
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		metrics.ReceiptsWritten.Add(float64(created))
		s.notifyParticipant(ctx, p, events.NotificationMessagesRead, events.MessagesReadPayload{RoomID: roomID, Count: created})
	}
	return created, nil
}

// MarkSingleMessageAsRead records a receipt for one message and announces
// it on the room channel for live seen indicators. Deleted and self-authored
// messages are never marked.
func (s *Service) MarkSingleMessageAsRead(ctx context.Context, roomID string, p models.Participant, messageID string) (bool, error) {
	var created bool
	now := s.timestamp()
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, m, err := s.roomAccess(ctx, tx, roomID, p)
		if err != nil {
			return err
		}
		msg, err := database.GetMessageByID(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg == nil || msg.RoomID != roomID {
			return apperr.NotFound("message not found")
		}
		if msg.IsDeleted || msg.Sender == p {
			return nil
		}
		created, err = database.MarkRead(ctx, tx, msg.ID, m.ID, now)
		return err
	})
	if err != nil {
		return false, err
	}

	if created {
		metrics.ReceiptsWritten.Inc()
		s.broadcastToRoom(ctx, roomID, events.MessageSeen, MessageSeenPayload{
			RoomID: roomID, MessageID: messageID, Participant: p, ReadAt: now,
		})
	}
	return created, nil
}

// UnreadCount counts the room's live messages from others that the caller's
// membership has no receipt for.
func (s *Service) UnreadCount(ctx context.Context, roomID string, p models.Participant) (int, error) {
	_, m, err := s.roomAccess(ctx, s.db, roomID, p)
	if err != nil {
		return 0, err
	}
	return database.CountUnread(ctx, s.db, m)
}
