package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/umar/roomchat/internal/messaging"
	"github.com/umar/roomchat/internal/models"
)

type addMembersRequest struct {
	Participants []models.Participant `json:"participants"`
}

type updateRoleRequest struct {
	Role models.Role `json:"role"`
}

func ListMembers(svc *messaging.Service) http.HandlerFunc {
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
		writeJSON(w, http.StatusOK, members)
	}
}

func AddMembers(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req addMembersRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		added, err := svc.AddMembers(r.Context(), mux.Vars(r)["id"], p, req.Participants)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, added)
	}
}

func RemoveMember(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		if err := svc.RemoveMember(r.Context(), vars["id"], p, vars["memberId"]); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateMemberRole(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req updateRoleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		vars := mux.Vars(r)
		m, err := svc.UpdateRole(r.Context(), vars["id"], p, vars["memberId"], req.Role)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
