package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/umar/roomchat/internal/messaging"
)

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// AddReaction answers 201 when the reaction is new and 200 when the caller
// had already reacted with the same emoji.
func AddReaction(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req reactionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		added, err := svc.AddReaction(r.Context(), mux.Vars(r)["id"], p, req.Emoji)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if added {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]bool{"added": added})
	}
}

func RemoveReaction(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		if err := svc.RemoveReaction(r.Context(), vars["id"], p, vars["emoji"]); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListPins(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		pins, err := svc.GetPinnedMessages(r.Context(), mux.Vars(r)["id"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pins)
	}
}

func PinMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		pin, created, err := svc.PinMessage(r.Context(), vars["id"], vars["messageId"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, pin)
	}
}

func UnpinMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		if err := svc.UnpinMessage(r.Context(), vars["id"], vars["messageId"], p); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
