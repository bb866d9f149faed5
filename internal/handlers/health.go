package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "roomchat",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "roomchat",
		})
	}
}
