package messaging

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

const maxEmojiLength = 32

func cleanEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", apperr.Validation("emoji is required")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiLength {
		return "", apperr.Validation("emoji is too long")
	}
	return emoji, nil
}

// AddReaction records p's reaction. Re-adding an existing reaction is a
// no-op and reports false.
func (s *Service) AddReaction(ctx context.Context, messageID string, p models.Participant, emoji string) (bool, error) {
	emoji, err := cleanEmoji(emoji)
	if err != nil {
		return false, err
	}

	var msg *models.Message
	var created bool
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.activeMembership(ctx, tx, msg.RoomID, p); err != nil {
			return err
		}
		if msg.IsDeleted {
			return apperr.PolicyViolation("cannot react to a deleted message")
		}
		created, err = database.AddReaction(ctx, tx, &models.Reaction{
			MessageID: msg.ID, Participant: p, Emoji: emoji, CreatedAt: s.timestamp(),
		})
		return err
	})
	if err != nil {
		return false, err
	}

	if created {
		s.broadcastToRoom(ctx, msg.RoomID, events.ReactionAdded, ReactionPayload{
			RoomID: msg.RoomID, MessageID: msg.ID, Participant: p, Emoji: emoji,
		})
	}
	return created, nil
}

func (s *Service) RemoveReaction(ctx context.Context, messageID string, p models.Participant, emoji string) error {
	emoji, err := cleanEmoji(emoji)
	if err != nil {
		return err
	}

	var msg *models.Message
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = s.loadMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.activeMembership(ctx, tx, msg.RoomID, p); err != nil {
			return err
		}
		removed, err := database.RemoveReaction(ctx, tx, msg.ID, p, emoji)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.NotFound("reaction not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastToRoom(ctx, msg.RoomID, events.ReactionRemoved, ReactionPayload{
		RoomID: msg.RoomID, MessageID: msg.ID, Participant: p, Emoji: emoji,
	})
	return nil
}
