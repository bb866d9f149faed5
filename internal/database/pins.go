package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/umar/roomchat/internal/models"
)

// PinMessage inserts the pin unless the message is already pinned in the
// room. It reports whether a row was written.
func PinMessage(ctx context.Context, q Querier, pin *models.PinnedMessage) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO pinned_messages (room_id, message_id, pinned_by_kind, pinned_by_id, pinned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		pin.RoomID, pin.MessageID, pin.PinnedBy.Kind, pin.PinnedBy.ID, pin.PinnedAt)
	if err != nil {
		return false, fmt.Errorf("failed to pin message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func UnpinMessage(ctx context.Context, q Querier, roomID, messageID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM pinned_messages WHERE room_id = $1 AND message_id = $2`, roomID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to unpin message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func GetPin(ctx context.Context, q Querier, roomID, messageID string) (*models.PinnedMessage, error) {
	var p models.PinnedMessage
	err := q.QueryRowContext(ctx, `
		SELECT room_id, message_id, pinned_by_kind, pinned_by_id, pinned_at
		FROM pinned_messages WHERE room_id = $1 AND message_id = $2`, roomID, messageID,
	).Scan(&p.RoomID, &p.MessageID, &p.PinnedBy.Kind, &p.PinnedBy.ID, &p.PinnedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pin: %w", err)
	}
	p.PinnedAt = p.PinnedAt.UTC()
	return &p, nil
}

// ListPinnedMessages returns the pinned messages of a room that are not
// deleted, newest message id first.
func ListPinnedMessages(ctx context.Context, q Querier, roomID string) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM pinned_messages p
		JOIN messages m ON m.id = p.message_id
		WHERE p.room_id = $1 AND m.is_deleted = FALSE
		ORDER BY m.id DESC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pinned messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list pinned messages: %w", err)
	}
	return messages, nil
}
