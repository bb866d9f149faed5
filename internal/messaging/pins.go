package messaging

import (
	"context"
	"database/sql"

	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

// canPin: either peer of a staff_direct room, otherwise admins and
// moderators.
func canPin(room *models.Room, m *models.Membership) bool {
	return room.Type == models.RoomStaffDirect || m.Role.CanModerate()
}

// PinMessage pins a live message of the room and returns the stored pin.
// Pinning twice is a no-op: created is false and the pin still names
// whoever pinned it first. The event goes to the whole room, the actor
// included.
func (s *Service) PinMessage(ctx context.Context, roomID, messageID string, p models.Participant) (pin *models.PinnedMessage, created bool, err error) {
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, m, err := s.roomAccess(ctx, tx, roomID, p)
		if err != nil {
			return err
		}
		if !canPin(room, m) {
			return apperr.AccessDenied("only admins and moderators can pin messages")
		}
		msg, err := database.GetMessageByID(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg == nil || msg.RoomID != roomID {
			return apperr.NotFound("message not found")
		}
		if msg.IsDeleted {
			return apperr.PolicyViolation("cannot pin a deleted message")
		}
		created, err = database.PinMessage(ctx, tx, &models.PinnedMessage{
			RoomID: roomID, MessageID: messageID, PinnedBy: p, PinnedAt: s.timestamp(),
		})
		if err != nil {
			return err
		}
		pin, err = database.GetPin(ctx, tx, roomID, messageID)
		if err != nil {
			return err
		}
		if pin == nil {
			return apperr.NotFound("pin not found")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.broadcastToRoom(ctx, roomID, events.MessagePinned, PinPayload{RoomID: roomID, MessageID: messageID, Actor: p})
	}
	return pin, created, nil
}

func (s *Service) UnpinMessage(ctx context.Context, roomID, messageID string, p models.Participant) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, m, err := s.roomAccess(ctx, tx, roomID, p)
		if err != nil {
			return err
		}
		if !canPin(room, m) {
			return apperr.AccessDenied("only admins and moderators can unpin messages")
		}
		removed, err := database.UnpinMessage(ctx, tx, roomID, messageID)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.NotFound("message is not pinned")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastToRoom(ctx, roomID, events.MessageUnpinned, PinPayload{RoomID: roomID, MessageID: messageID, Actor: p})
	return nil
}

// GetPinnedMessages lists the room's pinned messages that are not deleted,
// newest first.
func (s *Service) GetPinnedMessages(ctx context.Context, roomID string, p models.Participant) ([]models.Message, error) {
	if _, _, err := s.roomAccess(ctx, s.db, roomID, p); err != nil {
		return nil, err
	}
	pinned, err := database.ListPinnedMessages(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	ids := lo.Map(pinned, func(m models.Message, _ int) string { return m.ID })
	atts, err := database.ListAttachments(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range pinned {
		pinned[i].Attachments = atts[pinned[i].ID]
	}
	return pinned, nil
}
