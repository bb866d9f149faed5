package messaging

import (
	"context"
	"database/sql"

	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

// AddMembers adds participants to the room and returns the memberships it
// created. Participants that are already active members are skipped.
func (s *Service) AddMembers(ctx context.Context, roomID string, requester models.Participant, participants []models.Participant) ([]models.Membership, error) {
	if len(participants) == 0 {
		return nil, apperr.Validation("participants are required")
	}
	for _, p := range participants {
		if !p.Valid() {
			return nil, apperr.Validation("invalid participant %q", p.Key())
		}
	}

	var room *models.Room
	added := []models.Membership{}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var m *models.Membership
		var err error
		room, m, err = s.roomAccess(ctx, tx, roomID, requester)
		if err != nil {
			return err
		}
		if !m.Role.CanModerate() {
			return apperr.AccessDenied("only admins and moderators can add members")
		}
		if room.Type == models.RoomStaffDirect {
			return apperr.PolicyViolation("staff_direct rooms cannot take new members")
		}
		if !room.Type.AcceptsClients() && lo.ContainsBy(participants, models.Participant.IsClient) {
			return apperr.PolicyViolation("%s rooms accept staff only", room.Type)
		}

		now := s.timestamp()
		for _, p := range lo.Uniq(participants) {
			existing, err := database.GetActiveMembership(ctx, tx, roomID, p)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			nm := models.Membership{ID: newID(), RoomID: roomID, Participant: p, Role: models.RoleMember, JoinedAt: now}
			// A concurrent add of the same participant lands on the unique index.
			inserted, err := database.AddMembership(ctx, tx, &nm)
			if err != nil {
				return err
			}
			if inserted {
				added = append(added, nm)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, nm := range added {
		s.broadcastToRoom(ctx, roomID, events.MemberAdded, MemberPayload{RoomID: roomID, Membership: nm})
		s.notifyParticipant(ctx, nm.Participant, events.RoomCreated, room)
	}
	return added, nil
}

// RemoveMember ends a membership. Members may always remove themselves;
// removing someone else needs admin or moderator.
func (s *Service) RemoveMember(ctx context.Context, roomID string, requester models.Participant, membershipID string) error {
	var target *models.Membership
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, m, err := s.roomAccess(ctx, tx, roomID, requester)
		if err != nil {
			return err
		}
		target, err = database.GetMembershipByID(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		if target == nil || target.RoomID != roomID || !target.Active() {
			return apperr.NotFound("member not found")
		}
		if target.ID != m.ID && !m.Role.CanModerate() {
			return apperr.AccessDenied("only admins and moderators can remove other members")
		}
		now := s.timestamp()
		ended, err := database.EndMembership(ctx, tx, target.ID, now)
		if err != nil {
			return err
		}
		if !ended {
			return apperr.NotFound("member not found")
		}
		target.LeftAt = &now
		if room.Type == models.RoomStaffDirect {
			return database.ReleaseDirectKey(ctx, tx, roomID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastToRoom(ctx, roomID, events.MemberRemoved, MemberPayload{RoomID: roomID, Membership: *target})
	s.notifyParticipant(ctx, target.Participant, events.RoomRemoved, RoomRemovedPayload{RoomID: roomID})
	return nil
}

// LeaveRoom removes the caller's own membership.
func (s *Service) LeaveRoom(ctx context.Context, roomID string, p models.Participant) error {
	m, err := s.activeMembership(ctx, s.db, roomID, p)
	if err != nil {
		return err
	}
	return s.RemoveMember(ctx, roomID, p, m.ID)
}

// UpdateRole changes a member's role. Admin only.
func (s *Service) UpdateRole(ctx context.Context, roomID string, requester models.Participant, membershipID string, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}

	var target *models.Membership
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, m, err := s.roomAccess(ctx, tx, roomID, requester)
		if err != nil {
			return err
		}
		if m.Role != models.RoleAdmin {
			return apperr.AccessDenied("only admins can change roles")
		}
		target, err = database.GetMembershipByID(ctx, tx, membershipID)
		if err != nil {
			return err
		}
		if target == nil || target.RoomID != roomID || !target.Active() {
			return apperr.NotFound("member not found")
		}
		target.Role = role
		return database.UpdateMembershipRole(ctx, tx, target.ID, role)
	})
	if err != nil {
		return nil, err
	}

	s.broadcastToRoom(ctx, roomID, events.MemberRoleUpdated, MemberPayload{RoomID: roomID, Membership: *target})
	return target, nil
}

// GetMembers returns the active roster projected for the caller's kind.
func (s *Service) GetMembers(ctx context.Context, roomID string, p models.Participant) ([]MemberView, error) {
	if _, _, err := s.roomAccess(ctx, s.db, roomID, p); err != nil {
		return nil, err
	}
	members, err := database.ListActiveMemberships(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	return memberViews(members, p), nil
}
