package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

type Membership struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"room_id"`
	Participant Participant `json:"participant"`
	Role        Role        `json:"role"`
	JoinedAt    time.Time   `json:"joined_at"`
	LeftAt      *time.Time  `json:"left_at,omitempty"`
	LastReadAt  *time.Time  `json:"last_read_at,omitempty"`
	IsMuted     bool        `json:"is_muted"`
	IsArchived  bool        `json:"is_archived"`
	IsDeleted   bool        `json:"is_deleted"`
}

func (m Membership) Active() bool { return m.LeftAt == nil }
