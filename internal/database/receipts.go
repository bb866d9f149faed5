package database

import (
	"context"
	"fmt"
	"time"

	"github.com/umar/roomchat/internal/models"
)

// unreadPredicate selects the room's live messages written by someone other
// than the member and not yet acknowledged by the membership.
// $1 room id, $2 membership id, $3 participant kind, $4 participant id.
const unreadPredicate = `
	m.room_id = $1
	AND m.is_deleted = FALSE
	AND NOT (m.sender_kind = $3 AND m.sender_id = $4)
	AND NOT EXISTS (
		SELECT 1 FROM read_receipts rr
		WHERE rr.message_id = m.id AND rr.membership_id = $2
	)`

// CountUnread derives the unread count from receipt existence.
func CountUnread(ctx context.Context, q Querier, m *models.Membership) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m WHERE `+unreadPredicate,
		m.RoomID, m.ID, m.Participant.Kind, m.Participant.ID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return n, nil
}

// UnreadMessageIDs lists the membership's unread messages, oldest first.
func UnreadMessageIDs(ctx context.Context, q Querier, m *models.Membership) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT m.id FROM messages m WHERE `+unreadPredicate+`
		ORDER BY m.created_at, m.id`,
		m.RoomID, m.ID, m.Participant.Kind, m.Participant.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkAllRead writes a receipt for every unread message of the membership.
// Receipts written concurrently by another session are skipped by the
// primary key. It returns the number of receipts this call created.
func MarkAllRead(ctx context.Context, q Querier, m *models.Membership, at time.Time) (int, error) {
	ids, err := UnreadMessageIDs(ctx, q, m)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, id := range ids {
		ok, err := MarkRead(ctx, q, id, m.ID, at)
		if err != nil {
			return 0, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// MarkRead upserts a single receipt and reports whether it was new.
func MarkRead(ctx context.Context, q Querier, messageID, membershipID string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO read_receipts (message_id, membership_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, messageID, membershipID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReadMessageIDs reports which of messageIDs the membership has a receipt for.
func ReadMessageIDs(ctx context.Context, q Querier, membershipID string, messageIDs []string) (map[string]bool, error) {
	read := make(map[string]bool)
	if len(messageIDs) == 0 {
		return read, nil
	}
	args := append([]any{membershipID}, stringArgs(messageIDs)...)
	rows, err := q.QueryContext(ctx, `
		SELECT message_id FROM read_receipts
		WHERE membership_id = $1 AND message_id IN (`+placeholders(2, len(messageIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		read[id] = true
	}
	return read, rows.Err()
}
