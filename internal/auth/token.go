package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/umar/roomchat/internal/models"
)

var ErrInvalidParticipant = errors.New("token does not name a user or client")

// Claims identify the calling participant. Tokens are issued by the
// surrounding platform; this service only verifies them.
type Claims struct {
	ParticipantKind models.ParticipantKind `json:"participant_kind"`
	ParticipantID   string                 `json:"participant_id"`
	Name            string                 `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Participant() models.Participant {
	return models.Participant{Kind: c.ParticipantKind, ID: c.ParticipantID}
}

func GenerateToken(p models.Participant, name, secret string, ttl time.Duration) (string, error) {
	if !p.Valid() {
		return "", ErrInvalidParticipant
	}
	now := time.Now()
	claims := Claims{
		ParticipantKind: p.Kind,
		ParticipantID:   p.ID,
		Name:            name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Key(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !claims.Participant().Valid() {
		return nil, ErrInvalidParticipant
	}
	return claims, nil
}
