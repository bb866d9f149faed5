package messaging

import (
	"context"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/models"
)

func (s *Service) loadRoom(ctx context.Context, q database.Querier, roomID string) (*models.Room, error) {
	room, err := database.GetRoomByID(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, apperr.NotFound("room not found")
	}
	return room, nil
}

// activeMembership is the access check shared by every room operation. It
// always reads the store so a concurrent leave or role change is observed.
func (s *Service) activeMembership(ctx context.Context, q database.Querier, roomID string, p models.Participant) (*models.Membership, error) {
	m, err := database.GetActiveMembership(ctx, q, roomID, p)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.AccessDenied("not a member of this room")
	}
	return m, nil
}

// roomAccess loads the room and the caller's active membership in it.
func (s *Service) roomAccess(ctx context.Context, q database.Querier, roomID string, p models.Participant) (*models.Room, *models.Membership, error) {
	room, err := s.loadRoom(ctx, q, roomID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.activeMembership(ctx, q, roomID, p)
	if err != nil {
		return nil, nil, err
	}
	return room, m, nil
}

// loadMessage returns the message, or NotFound.
func (s *Service) loadMessage(ctx context.Context, q database.Querier, messageID string) (*models.Message, error) {
	msg, err := database.GetMessageByID(ctx, q, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.NotFound("message not found")
	}
	return msg, nil
}

// IsActiveMember reports whether p currently belongs to the room. The
// websocket gateway calls it before subscribing a connection to a room.
func (s *Service) IsActiveMember(ctx context.Context, roomID string, p models.Participant) (bool, error) {
	m, err := database.GetActiveMembership(ctx, s.db, roomID, p)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}
