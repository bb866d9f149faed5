package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umar/roomchat/internal/models"
)

const membershipColumns = `mb.id, mb.room_id, mb.participant_kind, mb.participant_id, mb.role,
	mb.joined_at, mb.left_at, mb.last_read_at, mb.is_muted, mb.is_archived, mb.is_deleted`

func membershipDest(m *models.Membership) []any {
	return []any{&m.ID, &m.RoomID, &m.Participant.Kind, &m.Participant.ID, &m.Role,
		&m.JoinedAt, &m.LeftAt, &m.LastReadAt, &m.IsMuted, &m.IsArchived, &m.IsDeleted}
}

func normalizeMembership(m *models.Membership) {
	m.JoinedAt = m.JoinedAt.UTC()
	m.LeftAt = utcPtr(m.LeftAt)
	m.LastReadAt = utcPtr(m.LastReadAt)
}

// AddMembership inserts m unless the participant already holds an active
// membership in the room. It reports whether a row was written.
func AddMembership(ctx context.Context, q Querier, m *models.Membership) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO memberships (id, room_id, participant_kind, participant_id, role, joined_at,
		                         is_muted, is_archived, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		m.ID, m.RoomID, m.Participant.Kind, m.Participant.ID, m.Role, m.JoinedAt,
		m.IsMuted, m.IsArchived, m.IsDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func getMembership(ctx context.Context, q Querier, where string, args ...any) (*models.Membership, error) {
	var m models.Membership
	err := q.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships mb WHERE `+where, args...).
		Scan(membershipDest(&m)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	normalizeMembership(&m)
	return &m, nil
}

// GetActiveMembership is the access check used by every room operation.
func GetActiveMembership(ctx context.Context, q Querier, roomID string, p models.Participant) (*models.Membership, error) {
	return getMembership(ctx, q,
		`mb.room_id = $1 AND mb.participant_kind = $2 AND mb.participant_id = $3 AND mb.left_at IS NULL`,
		roomID, p.Kind, p.ID)
}

func GetMembershipByID(ctx context.Context, q Querier, id string) (*models.Membership, error) {
	return getMembership(ctx, q, `mb.id = $1`, id)
}

// ListActiveMemberships returns the current roster in join order.
func ListActiveMemberships(ctx context.Context, q Querier, roomID string) ([]models.Membership, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships mb
		WHERE mb.room_id = $1 AND mb.left_at IS NULL
		ORDER BY mb.joined_at, mb.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	members := []models.Membership{}
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(membershipDest(&m)...); err != nil {
			return nil, err
		}
		normalizeMembership(&m)
		members = append(members, m)
	}
	return members, rows.Err()
}

// EndMembership soft-leaves an active membership. It reports false when the
// membership had already ended.
func EndMembership(ctx context.Context, q Querier, id string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE memberships SET left_at = $1 WHERE id = $2 AND left_at IS NULL`, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to end membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func UpdateMembershipRole(ctx context.Context, q Querier, id string, role models.Role) error {
	_, err := q.ExecContext(ctx,
		`UPDATE memberships SET role = $1 WHERE id = $2 AND left_at IS NULL`, role, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// UpdateMembershipSettings writes the per-member flags of m.
func UpdateMembershipSettings(ctx context.Context, q Querier, m *models.Membership) error {
	_, err := q.ExecContext(ctx,
		`UPDATE memberships SET is_muted = $1, is_archived = $2, is_deleted = $3 WHERE id = $4`,
		m.IsMuted, m.IsArchived, m.IsDeleted, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update membership settings: %w", err)
	}
	return nil
}

// UnhideMemberships brings a room back into the inbox of members who hid it.
func UnhideMemberships(ctx context.Context, q Querier, roomID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE memberships SET is_deleted = FALSE WHERE room_id = $1 AND left_at IS NULL AND is_deleted = TRUE`,
		roomID)
	if err != nil {
		return fmt.Errorf("failed to unhide memberships: %w", err)
	}
	return nil
}

// AdvanceLastRead sets last_read_at to at unless it is already later.
func AdvanceLastRead(ctx context.Context, q Querier, membershipID string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE memberships SET last_read_at = $1
		WHERE id = $2 AND (last_read_at IS NULL OR last_read_at < $1)`,
		at, membershipID)
	if err != nil {
		return fmt.Errorf("failed to update last read: %w", err)
	}
	return nil
}
