package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/auth"
	"github.com/umar/roomchat/internal/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrPolicyViolation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError maps a service failure to its status. Unclassified
// errors are logged and hidden from the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error", apperr.Code(err))
		return
	}
	writeError(w, status, err.Error(), apperr.Code(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", apperr.Code(apperr.ErrValidation))
		return false
	}
	return true
}

// caller returns the authenticated participant. The JWT middleware always
// sets one, so a miss means the route was registered outside it.
func caller(w http.ResponseWriter, r *http.Request) (models.Participant, bool) {
	p, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated", "unauthorized")
	}
	return p, ok
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer", apperr.Code(apperr.ErrValidation))
		return 0, false
	}
	return n, true
}

func queryBool(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a boolean", apperr.Code(apperr.ErrValidation))
		return false, false
	}
	return v, true
}
