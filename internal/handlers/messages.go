package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/messaging"
)

type editMessageRequest struct {
	Content string `json:"content"`
}

// GetMessages serves a history page. tz is an IANA zone name used for the
// day headers; it defaults to UTC.
func GetMessages(svc *messaging.Service) http.HandlerFunc {
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
		loc := time.UTC
		if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unknown time zone "+tz, apperr.Code(apperr.ErrValidation))
				return
			}
			loc = l
		}

		result, err := svc.GetMessages(r.Context(), mux.Vars(r)["id"], p, messaging.MessagePageQuery{
			Page:     page,
			Limit:    limit,
			Location: loc,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func SendMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req messaging.SendMessageInput
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := svc.SendMessage(r.Context(), mux.Vars(r)["id"], p, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func EditMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req editMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := svc.EditMessage(r.Context(), mux.Vars(r)["id"], p, req.Content)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func DeleteMessage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteMessage(r.Context(), mux.Vars(r)["id"], p); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetMessagePage(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		pos, err := svc.GetMessagePageByMessageID(r.Context(), mux.Vars(r)["id"], p, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	}
}

func MarkRoomRead(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		n, err := svc.MarkMessagesAsRead(r.Context(), mux.Vars(r)["id"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	}
}

func MarkMessageRead(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		vars := mux.Vars(r)
		marked, err := svc.MarkSingleMessageAsRead(r.Context(), vars["id"], p, vars["messageId"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"marked": marked})
	}
}

func UnreadCount(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		n, err := svc.UnreadCount(r.Context(), mux.Vars(r)["id"], p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
	}
}
