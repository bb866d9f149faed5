package models

import "time"

type RoomType string

const (
	RoomStaffDirect   RoomType = "staff_direct"
	RoomGroup         RoomType = "group"
	RoomClientToStaff RoomType = "client_to_staff"
	RoomProjectGroup  RoomType = "project_group"
	RoomMultiProject  RoomType = "multi_project"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomStaffDirect, RoomGroup, RoomClientToStaff, RoomProjectGroup, RoomMultiProject:
		return true
	}
	return false
}

// Structural rooms cannot be deleted by anyone, admins included.
func (t RoomType) Structural() bool {
	return t == RoomStaffDirect || t == RoomProjectGroup
}

// AcceptsClients reports whether external clients may hold a membership.
func (t RoomType) AcceptsClients() bool {
	return t == RoomClientToStaff || t == RoomProjectGroup || t == RoomMultiProject
}

type RoomFlags struct {
	AllowFiles    bool `json:"allow_files"`
	AllowCalls    bool `json:"allow_calls"`
	ChatEnabled   bool `json:"chat_enabled"`
	AllowMeetings bool `json:"allow_meetings"`
}

func DefaultRoomFlags() RoomFlags {
	return RoomFlags{AllowFiles: true, AllowCalls: true, ChatEnabled: true, AllowMeetings: true}
}

type Room struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      RoomType    `json:"type"`
	CreatedBy Participant `json:"created_by"`
	Flags     RoomFlags   `json:"flags"`
	ProjectID *string     `json:"project_id,omitempty"`
	LeadID    *string     `json:"lead_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
