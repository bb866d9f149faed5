package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/umar/roomchat/internal/models"
)

const roomColumns = `r.id, r.name, r.type, r.created_by_kind, r.created_by_id,
	r.allow_files, r.allow_calls, r.chat_enabled, r.allow_meetings,
	r.project_id, r.lead_id, r.created_at, r.updated_at`

func roomDest(r *models.Room) []any {
	return []any{&r.ID, &r.Name, &r.Type, &r.CreatedBy.Kind, &r.CreatedBy.ID,
		&r.Flags.AllowFiles, &r.Flags.AllowCalls, &r.Flags.ChatEnabled, &r.Flags.AllowMeetings,
		&r.ProjectID, &r.LeadID, &r.CreatedAt, &r.UpdatedAt}
}

func normalizeRoom(r *models.Room) {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
}

// RoomFilter narrows ListRoomsForParticipant. Archived selects archived
// rooms instead of the regular inbox.
type RoomFilter struct {
	Type     models.RoomType
	Archived bool
	Query    string
}

// RoomWithMembership pairs a room with the listing participant's membership.
type RoomWithMembership struct {
	Room       models.Room
	Membership models.Membership
}

func CreateRoom(ctx context.Context, q Querier, r *models.Room) error {
	inserted, err := insertRoom(ctx, q, r, nil)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("failed to create room: id %s already exists", r.ID)
	}
	return nil
}

// DirectKey identifies a staff_direct pair regardless of who opened the room.
func DirectKey(a, b models.Participant) string {
	keys := []string{a.Key(), b.Key()}
	slices.Sort(keys)
	return keys[0] + "|" + keys[1]
}

// CreateDirectRoom inserts r as the staff_direct room for key. It reports
// false, inserting nothing, when another room already holds the key.
func CreateDirectRoom(ctx context.Context, q Querier, r *models.Room, key string) (bool, error) {
	return insertRoom(ctx, q, r, &key)
}

func insertRoom(ctx context.Context, q Querier, r *models.Room, directKey *string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO rooms (id, name, type, created_by_kind, created_by_id,
		                   allow_files, allow_calls, chat_enabled, allow_meetings,
		                   project_id, lead_id, direct_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING`,
		r.ID, r.Name, r.Type, r.CreatedBy.Kind, r.CreatedBy.ID,
		r.Flags.AllowFiles, r.Flags.AllowCalls, r.Flags.ChatEnabled, r.Flags.AllowMeetings,
		r.ProjectID, r.LeadID, directKey, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create room: %w", err)
	}
	return n == 1, nil
}

func GetRoomByID(ctx context.Context, q Querier, id string) (*models.Room, error) {
	var r models.Room
	err := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, id).
		Scan(roomDest(&r)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	normalizeRoom(&r)
	return &r, nil
}

// UpdateRoom writes the mutable room fields: name, flags and updated_at.
func UpdateRoom(ctx context.Context, q Querier, r *models.Room) error {
	_, err := q.ExecContext(ctx, `
		UPDATE rooms SET name = $1, allow_files = $2, allow_calls = $3, chat_enabled = $4,
		                 allow_meetings = $5, updated_at = $6
		WHERE id = $7`,
		r.Name, r.Flags.AllowFiles, r.Flags.AllowCalls, r.Flags.ChatEnabled,
		r.Flags.AllowMeetings, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	return nil
}

// TouchRoom moves updated_at forward, never backward.
func TouchRoom(ctx context.Context, q Querier, roomID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE rooms SET updated_at = $1 WHERE id = $2 AND updated_at < $1`, at, roomID)
	if err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	return nil
}

// DeleteRoom removes a room and everything hanging off it. The child tables
// are cleared explicitly so the result does not depend on cascade support.
func DeleteRoom(ctx context.Context, q Querier, roomID string) error {
	stmts := []string{
		`DELETE FROM read_receipts WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)`,
		`DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)`,
		`DELETE FROM pinned_messages WHERE room_id = $1`,
		`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE room_id = $1)`,
		`UPDATE messages SET reply_to_id = NULL WHERE room_id = $1`,
		`DELETE FROM messages WHERE room_id = $1`,
		`DELETE FROM memberships WHERE room_id = $1`,
		`DELETE FROM rooms WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, roomID); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
	}
	return nil
}

// GetDirectRoom returns the staff_direct room holding key, or nil.
func GetDirectRoom(ctx context.Context, q Querier, key string) (*models.Room, error) {
	var r models.Room
	err := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.direct_key = $1`, key).
		Scan(roomDest(&r)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get direct room: %w", err)
	}
	normalizeRoom(&r)
	return &r, nil
}

// ReleaseDirectKey detaches a staff_direct room from its pair, so the next
// request for that pair opens a fresh room.
func ReleaseDirectKey(ctx context.Context, q Querier, roomID string) error {
	_, err := q.ExecContext(ctx, `UPDATE rooms SET direct_key = NULL WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("failed to release direct room: %w", err)
	}
	return nil
}

// ListRoomsForParticipant returns the rooms p actively belongs to and has not
// hidden, most recently active first.
func ListRoomsForParticipant(ctx context.Context, q Querier, p models.Participant, filter RoomFilter, limit, offset int) ([]RoomWithMembership, error) {
	query := `
		SELECT ` + roomColumns + `, ` + membershipColumns + `
		FROM rooms r
		JOIN memberships mb ON mb.room_id = r.id
		WHERE mb.participant_kind = $1 AND mb.participant_id = $2
		  AND mb.left_at IS NULL AND mb.is_deleted = FALSE AND mb.is_archived = $3`
	args := []any{p.Kind, p.ID, filter.Archived}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND r.type = $%d", len(args))
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		query += fmt.Sprintf(" AND LOWER(r.name) LIKE $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY r.updated_at DESC, r.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []RoomWithMembership{}
	for rows.Next() {
		var rm RoomWithMembership
		if err := rows.Scan(append(roomDest(&rm.Room), membershipDest(&rm.Membership)...)...); err != nil {
			return nil, err
		}
		normalizeRoom(&rm.Room)
		normalizeMembership(&rm.Membership)
		rooms = append(rooms, rm)
	}
	return rooms, rows.Err()
}
