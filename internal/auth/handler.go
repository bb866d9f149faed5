package auth

import (
	"encoding/json"
	"net/http"

	"github.com/umar/roomchat/internal/models"
)

type meResponse struct {
	Participant models.Participant `json:"participant"`
	Name        string             `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": "unauthorized"})
}

// MeHandler echoes the identity carried by the bearer token.
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := ParticipantFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		writeJSON(w, http.StatusOK, meResponse{Participant: p, Name: NameFrom(r.Context())})
	}
}
