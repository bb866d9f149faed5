package database

import (
	"context"
	"fmt"

	"github.com/umar/roomchat/internal/models"
)

// AddReaction inserts r unless the same (message, participant, emoji)
// triple exists. It reports whether a row was written.
func AddReaction(ctx context.Context, q Querier, r *models.Reaction) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO reactions (message_id, participant_kind, participant_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		r.MessageID, r.Participant.Kind, r.Participant.ID, r.Emoji, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func RemoveReaction(ctx context.Context, q Querier, messageID string, p models.Participant, emoji string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE message_id = $1 AND participant_kind = $2 AND participant_id = $3 AND emoji = $4`,
		messageID, p.Kind, p.ID, emoji)
	if err != nil {
		return false, fmt.Errorf("failed to remove reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListReactions returns the reactions of the given messages keyed by
// message id, oldest first.
func ListReactions(ctx context.Context, q Querier, messageIDs []string) (map[string][]models.Reaction, error) {
	byMessage := make(map[string][]models.Reaction)
	if len(messageIDs) == 0 {
		return byMessage, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT message_id, participant_kind, participant_id, emoji, created_at
		FROM reactions
		WHERE message_id IN (`+placeholders(1, len(messageIDs))+`)
		ORDER BY created_at, emoji`, stringArgs(messageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.MessageID, &r.Participant.Kind, &r.Participant.ID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	return byMessage, rows.Err()
}
