package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/umar/roomchat/internal/models"
)

type contextKey string

const (
	participantKey contextKey = "participant"
	nameKey        contextKey = "name"
)

// WithParticipant stores the caller's identity in ctx.
func WithParticipant(ctx context.Context, p models.Participant, name string) context.Context {
	ctx = context.WithValue(ctx, participantKey, p)
	return context.WithValue(ctx, nameKey, name)
}

func ParticipantFrom(ctx context.Context) (models.Participant, bool) {
	p, ok := ctx.Value(participantKey).(models.Participant)
	return p, ok
}

func NameFrom(ctx context.Context) string {
	name, _ := ctx.Value(nameKey).(string)
	return name
}

func JWTMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims, err := ValidateToken(strings.TrimSpace(token), jwtSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithParticipant(r.Context(), claims.Participant(), claims.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
