package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/umar/roomchat/internal/models"
)

const messageColumns = `m.id, m.room_id, m.sender_kind, m.sender_id, m.content, m.type,
	m.is_edited, m.is_deleted, m.reply_to_id, m.created_at, m.updated_at`

func messageDest(m *models.Message) []any {
	return []any{&m.ID, &m.RoomID, &m.Sender.Kind, &m.Sender.ID, &m.Content, &m.Type,
		&m.IsEdited, &m.IsDeleted, &m.ReplyToID, &m.CreatedAt, &m.UpdatedAt}
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(messageDest(&m)...); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateMessage inserts the message row and its attachments. Callers that
// need both to land together pass a transaction.
func CreateMessage(ctx context.Context, q Querier, m *models.Message) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_kind, sender_id, content, type,
		                      is_edited, is_deleted, reply_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.RoomID, m.Sender.Kind, m.Sender.ID, m.Content, m.Type,
		m.IsEdited, m.IsDeleted, m.ReplyToID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	for _, a := range m.Attachments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO attachments (id, message_id, url, name, size, mime_type, thumbnail_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, m.ID, a.URL, a.Name, a.Size, a.MimeType, a.ThumbnailURL,
		)
		if err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
	}
	return nil
}

func GetMessageByID(ctx context.Context, q Querier, id string) (*models.Message, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// GetMessagesByIDs loads the given messages keyed by id.
func GetMessagesByIDs(ctx context.Context, q Querier, ids []string) (map[string]models.Message, error) {
	byID := make(map[string]models.Message, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id IN (`+placeholders(1, len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	for _, m := range messages {
		byID[m.ID] = m
	}
	return byID, nil
}

// ListMessagesPage returns one page of a room's history, newest first.
// Soft-deleted messages are included so threads keep their shape.
func ListMessagesPage(ctx context.Context, q Querier, roomID string, limit, offset int) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// GetLatestMessage returns the newest message of the room that is not
// deleted, or nil when there is none.
func GetLatestMessage(ctx context.Context, q Querier, roomID string) (*models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.room_id = $1 AND m.is_deleted = FALSE
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// CountMessagesNewerThan counts the room's messages ordered before target in
// a newest-first listing: later created_at, ties broken by larger id.
func CountMessagesNewerThan(ctx context.Context, q Querier, target *models.Message) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.room_id = $1
		  AND (m.created_at > (SELECT created_at FROM messages WHERE id = $2)
		       OR (m.created_at = (SELECT created_at FROM messages WHERE id = $2) AND m.id > $2))`,
		target.RoomID, target.ID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func UpdateMessageContent(ctx context.Context, q Querier, id, content string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE messages SET content = $1, is_edited = TRUE, updated_at = $2 WHERE id = $3`,
		content, at, id)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func SoftDeleteMessage(ctx context.Context, q Querier, id string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE, updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ListAttachments returns the attachments of the given messages keyed by
// message id.
func ListAttachments(ctx context.Context, q Querier, messageIDs []string) (map[string][]models.Attachment, error) {
	byMessage := make(map[string][]models.Attachment)
	if len(messageIDs) == 0 {
		return byMessage, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, message_id, url, name, size, mime_type, thumbnail_url
		FROM attachments
		WHERE message_id IN (`+placeholders(1, len(messageIDs))+`)
		ORDER BY id`, stringArgs(messageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.Name, &a.Size, &a.MimeType, &a.ThumbnailURL); err != nil {
			return nil, err
		}
		byMessage[a.MessageID] = append(byMessage[a.MessageID], a)
	}
	return byMessage, rows.Err()
}
