package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

type CreateRoomInput struct {
	Name         string               `json:"name" validate:"max=255"`
	Type         models.RoomType      `json:"type" validate:"required"`
	Participants []models.Participant `json:"participants" validate:"max=500"`
	Flags        *models.RoomFlags    `json:"flags"`
	ProjectID    *string              `json:"project_id" validate:"omitempty,max=255"`
	LeadID       *string              `json:"lead_id" validate:"omitempty,max=255"`
}

// CreateRoom creates a room with creator as admin and the other participants
// as members. A staff_direct request for a pair that already shares one
// returns that room with created set to false.
func (s *Service) CreateRoom(ctx context.Context, creator models.Participant, in CreateRoomInput) (room *models.Room, created bool, err error) {
	if err := s.check(in); err != nil {
		return nil, false, err
	}
	if !in.Type.Valid() {
		return nil, false, apperr.Validation("unknown room type %q", in.Type)
	}
	if creator.IsClient() && in.Type != models.RoomClientToStaff {
		return nil, false, apperr.AccessDenied("clients can only open client_to_staff rooms")
	}
	for _, p := range in.Participants {
		if !p.Valid() {
			return nil, false, apperr.Validation("invalid participant %q", p.Key())
		}
	}
	others := lo.Reject(lo.Uniq(in.Participants), func(p models.Participant, _ int) bool { return p == creator })
	all := append([]models.Participant{creator}, others...)
	name := strings.TrimSpace(in.Name)

	if !in.Type.AcceptsClients() && lo.ContainsBy(all, models.Participant.IsClient) {
		return nil, false, apperr.PolicyViolation("%s rooms accept staff only", in.Type)
	}
	var directKey string
	switch in.Type {
	case models.RoomStaffDirect:
		if len(others) != 1 {
			return nil, false, apperr.Validation("staff_direct rooms need exactly one other participant")
		}
		directKey = database.DirectKey(creator, others[0])
	case models.RoomGroup, models.RoomMultiProject:
		if name == "" {
			return nil, false, apperr.Validation("name is required")
		}
	case models.RoomClientToStaff:
		if lo.CountBy(all, models.Participant.IsClient) != 1 {
			return nil, false, apperr.Validation("client_to_staff rooms need exactly one client")
		}
	case models.RoomProjectGroup:
		if in.ProjectID == nil || strings.TrimSpace(*in.ProjectID) == "" {
			return nil, false, apperr.Validation("project_id is required")
		}
	}

	now := s.timestamp()
	room = &models.Room{
		ID:        newID(),
		Name:      name,
		Type:      in.Type,
		CreatedBy: creator,
		Flags:     models.DefaultRoomFlags(),
		ProjectID: in.ProjectID,
		LeadID:    in.LeadID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Flags != nil {
		room.Flags = *in.Flags
	}

	var existing *models.Room
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if directKey == "" {
			if err := database.CreateRoom(ctx, tx, room); err != nil {
				return err
			}
		} else {
			// The unique direct key settles concurrent requests for one pair.
			claimed, err := database.CreateDirectRoom(ctx, tx, room, directKey)
			if err != nil {
				return err
			}
			if !claimed {
				existing, err = database.GetDirectRoom(ctx, tx, directKey)
				if err != nil {
					return err
				}
				if existing == nil {
					return fmt.Errorf("direct room %s not visible after conflict", directKey)
				}
				return nil
			}
		}
		for i, p := range all {
			m := &models.Membership{ID: newID(), RoomID: room.ID, Participant: p, Role: models.RoleMember, JoinedAt: now}
			if i == 0 {
				m.Role = models.RoleAdmin
			}
			if _, err := database.AddMembership(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	s.log.Info("room created", "room_id", room.ID, "type", room.Type, "creator", creator.Key())
	for _, p := range all {
		s.notifyParticipant(ctx, p, events.RoomCreated, room)
	}
	return room, true, nil
}

type RoomFilter = database.RoomFilter

// ListRooms returns the participant's inbox, most recently active first.
func (s *Service) ListRooms(ctx context.Context, p models.Participant, filter RoomFilter, page Page) ([]RoomSummary, error) {
	page = page.normalize(s.roomLimit)
	rooms, err := database.ListRoomsForParticipant(ctx, s.db, p, filter, page.Limit, page.offset())
	if err != nil {
		return nil, err
	}
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		summary, _, err := s.summarize(ctx, rm.Room, rm.Membership)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// GetRoom returns one room with the caller's annotations and the roster.
func (s *Service) GetRoom(ctx context.Context, roomID string, p models.Participant) (*RoomDetail, error) {
	room, m, err := s.roomAccess(ctx, s.db, roomID, p)
	if err != nil {
		return nil, err
	}
	summary, members, err := s.summarize(ctx, *room, *m)
	if err != nil {
		return nil, err
	}
	return &RoomDetail{RoomSummary: *summary, Members: memberViews(members, p)}, nil
}

// summarize derives the per-member annotations of a room. It also returns
// the active roster it loaded.
func (s *Service) summarize(ctx context.Context, room models.Room, m models.Membership) (*RoomSummary, []models.Membership, error) {
	unread, err := database.CountUnread(ctx, s.db, &m)
	if err != nil {
		return nil, nil, err
	}
	last, err := database.GetLatestMessage(ctx, s.db, room.ID)
	if err != nil {
		return nil, nil, err
	}
	members, err := database.ListActiveMemberships(ctx, s.db, room.ID)
	if err != nil {
		return nil, nil, err
	}

	summary := &RoomSummary{Room: room, Membership: m, UnreadCount: unread}
	if last != nil {
		summary.LastMessage = previewOf(last)
	}
	if room.Type == models.RoomStaffDirect || len(members) == 2 {
		if peer, ok := lo.Find(members, func(o models.Membership) bool { return o.Participant != m.Participant }); ok {
			summary.Peer = &peer.Participant
		}
	}
	return summary, members, nil
}

// RoomPatch holds optional updates. Name and the flags change the room;
// IsMuted, IsArchived and IsDeleted only touch the requester's membership.
type RoomPatch struct {
	Name          *string `json:"name" validate:"omitempty,max=255"`
	AllowFiles    *bool   `json:"allow_files"`
	AllowCalls    *bool   `json:"allow_calls"`
	ChatEnabled   *bool   `json:"chat_enabled"`
	AllowMeetings *bool   `json:"allow_meetings"`

	IsMuted    *bool `json:"is_muted"`
	IsArchived *bool `json:"is_archived"`
	IsDeleted  *bool `json:"is_deleted"`
}

func (p RoomPatch) touchesRoom() bool {
	return p.Name != nil || p.AllowFiles != nil || p.AllowCalls != nil || p.ChatEnabled != nil || p.AllowMeetings != nil
}

func (p RoomPatch) touchesMembership() bool {
	return p.IsMuted != nil || p.IsArchived != nil || p.IsDeleted != nil
}

func applyBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// UpdateRoom applies patch. Room fields need admin or moderator except in
// staff_direct rooms, where either peer may change them.
func (s *Service) UpdateRoom(ctx context.Context, roomID string, requester models.Participant, patch RoomPatch) (*RoomSummary, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	if !patch.touchesRoom() && !patch.touchesMembership() {
		return nil, apperr.Validation("nothing to update")
	}

	var room *models.Room
	var m *models.Membership
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		room, m, err = s.roomAccess(ctx, tx, roomID, requester)
		if err != nil {
			return err
		}

		if patch.touchesRoom() {
			if room.Type != models.RoomStaffDirect && !m.Role.CanModerate() {
				return apperr.AccessDenied("only admins and moderators can change room settings")
			}
			if patch.Name != nil {
				name := strings.TrimSpace(*patch.Name)
				if name == "" && (room.Type == models.RoomGroup || room.Type == models.RoomMultiProject) {
					return apperr.Validation("name is required")
				}
				room.Name = name
			}
			applyBool(&room.Flags.AllowFiles, patch.AllowFiles)
			applyBool(&room.Flags.AllowCalls, patch.AllowCalls)
			applyBool(&room.Flags.ChatEnabled, patch.ChatEnabled)
			applyBool(&room.Flags.AllowMeetings, patch.AllowMeetings)
			room.UpdatedAt = s.timestamp()
			if err := database.UpdateRoom(ctx, tx, room); err != nil {
				return err
			}
		}

		if patch.touchesMembership() {
			applyBool(&m.IsMuted, patch.IsMuted)
			applyBool(&m.IsArchived, patch.IsArchived)
			applyBool(&m.IsDeleted, patch.IsDeleted)
			if err := database.UpdateMembershipSettings(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if patch.touchesRoom() {
		members, err := database.ListActiveMemberships(ctx, s.db, roomID)
		if err != nil {
			s.log.Error("failed to load roster for room update", "room_id", roomID, "error", err)
		}
		for _, member := range members {
			s.notifyParticipant(ctx, member.Participant, events.RoomUpdated, room)
		}
	}

	summary, _, err := s.summarize(ctx, *room, *m)
	return summary, err
}

// DeleteRoom hard-deletes a room and everything in it. Structural rooms can
// never be deleted; other rooms only by an admin.
func (s *Service) DeleteRoom(ctx context.Context, roomID string, requester models.Participant) error {
	var members []models.Membership
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, m, err := s.roomAccess(ctx, tx, roomID, requester)
		if err != nil {
			return err
		}
		if room.Type.Structural() {
			return apperr.PolicyViolation("%s rooms cannot be deleted", room.Type)
		}
		if m.Role != models.RoleAdmin {
			return apperr.AccessDenied("only admins can delete a room")
		}
		members, err = database.ListActiveMemberships(ctx, tx, roomID)
		if err != nil {
			return err
		}
		return database.DeleteRoom(ctx, tx, roomID)
	})
	if err != nil {
		return err
	}

	s.log.Info("room deleted", "room_id", roomID, "by", requester.Key())
	for _, member := range members {
		s.notifyParticipant(ctx, member.Participant, events.RoomRemoved, RoomRemovedPayload{RoomID: roomID})
	}
	return nil
}
