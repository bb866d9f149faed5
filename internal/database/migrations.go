package database

import (
	"database/sql"
	"fmt"
	"strings"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL DEFAULT '',
		type            TEXT NOT NULL CHECK (type IN ('staff_direct', 'group', 'client_to_staff', 'project_group', 'multi_project')),
		created_by_kind TEXT NOT NULL,
		created_by_id   TEXT NOT NULL,
		allow_files     BOOLEAN NOT NULL DEFAULT TRUE,
		allow_calls     BOOLEAN NOT NULL DEFAULT TRUE,
		chat_enabled    BOOLEAN NOT NULL DEFAULT TRUE,
		allow_meetings  BOOLEAN NOT NULL DEFAULT TRUE,
		project_id      TEXT,
		lead_id         TEXT,
		direct_key      TEXT,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_updated ON rooms (updated_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_rooms_direct_key ON rooms (direct_key)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		id               TEXT PRIMARY KEY,
		room_id          TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		participant_kind TEXT NOT NULL CHECK (participant_kind IN ('user', 'client')),
		participant_id   TEXT NOT NULL,
		role             TEXT NOT NULL CHECK (role IN ('admin', 'moderator', 'member')),
		joined_at        TIMESTAMPTZ NOT NULL,
		left_at          TIMESTAMPTZ,
		last_read_at     TIMESTAMPTZ,
		is_muted         BOOLEAN NOT NULL DEFAULT FALSE,
		is_archived      BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted       BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_memberships_active
		ON memberships (room_id, participant_kind, participant_id) WHERE left_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_participant ON memberships (participant_kind, participant_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_kind TEXT NOT NULL CHECK (sender_kind IN ('user', 'client', 'system')),
		sender_id   TEXT NOT NULL DEFAULT '',
		content     TEXT,
		type        TEXT NOT NULL CHECK (type IN ('text', 'file', 'image', 'voice', 'video', 'system')),
		is_edited   BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
		reply_to_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS attachments (
		id            TEXT PRIMARY KEY,
		message_id    TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		url           TEXT NOT NULL,
		name          TEXT NOT NULL,
		size          BIGINT NOT NULL DEFAULT 0,
		mime_type     TEXT NOT NULL,
		thumbnail_url TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments (message_id)`,

	`CREATE TABLE IF NOT EXISTS read_receipts (
		message_id    TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		membership_id TEXT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
		read_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, membership_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_read_receipts_membership ON read_receipts (membership_id)`,

	`CREATE TABLE IF NOT EXISTS reactions (
		message_id       TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		participant_kind TEXT NOT NULL,
		participant_id   TEXT NOT NULL,
		emoji            TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, participant_kind, participant_id, emoji)
	)`,

	`CREATE TABLE IF NOT EXISTS pinned_messages (
		room_id        TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		message_id     TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		pinned_by_kind TEXT NOT NULL,
		pinned_by_id   TEXT NOT NULL,
		pinned_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (room_id, message_id)
	)`,
}

// RunMigrations creates the schema. SQLite has no TIMESTAMPTZ; its driver
// only converts columns declared TIMESTAMP back into time.Time.
func RunMigrations(db *sql.DB, driver string) error {
	for _, stmt := range migrations {
		if driver == DriverSQLite {
			stmt = strings.ReplaceAll(stmt, "TIMESTAMPTZ", "TIMESTAMP")
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
