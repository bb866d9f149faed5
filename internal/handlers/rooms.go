package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/umar/roomchat/internal/messaging"
	"github.com/umar/roomchat/internal/models"
)

// PresenceChecker reports which participants are connected.
type PresenceChecker interface {
	IsOnline(ctx context.Context, candidates []models.Participant) (map[models.Participant]bool, error)
}

type presenceEntry struct {
	Participant models.Participant `json:"participant"`
	Online      bool               `json:"online"`
}

func ListRooms(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		page, ok := queryInt(w, r, "page")
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		archived, ok := queryBool(w, r, "archived")
		if !ok {
			return
		}
		filter := messaging.RoomFilter{
			Type:     models.RoomType(r.URL.Query().Get("type")),
			Archived: archived,
			Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		}

		rooms, err := svc.ListRooms(r.Context(), p, filter, messaging.Page{Number: page, Limit: limit})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

// CreateRoom answers 201 for a new room and 200 when an existing
// staff_direct room is returned instead.
func CreateRoom(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req messaging.CreateRoomInput
		if !decodeJSON(w, r, &req) {
			return
		}

		room, created, err := svc.CreateRoom(r.Context(), p, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, room)
	}
}

func GetRoom(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		room, err := svc.GetRoom(r.Context(), mux.Vars(r)["id"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func UpdateRoom(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var patch messaging.RoomPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		room, err := svc.UpdateRoom(r.Context(), mux.Vars(r)["id"], p, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func DeleteRoom(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteRoom(r.Context(), mux.Vars(r)["id"], p); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func LeaveRoom(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		if err := svc.LeaveRoom(r.Context(), mux.Vars(r)["id"], p); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RoomPresence lists the room's active members with their online state.
func RoomPresence(svc *messaging.Service, presence PresenceChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		members, err := svc.GetMembers(r.Context(), mux.Vars(r)["id"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		participants := lo.Map(members, func(m messaging.MemberView, _ int) models.Participant {
			return m.Participant
		})
		online, err := presence.IsOnline(r.Context(), participants)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lo.Map(participants, func(who models.Participant, _ int) presenceEntry {
			return presenceEntry{Participant: who, Online: online[who]}
		}))
	}
}
