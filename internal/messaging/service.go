// Package messaging implements rooms, memberships, messages, read receipts,
// reactions and pins on top of the relational store, and publishes the
// resulting realtime events once the writes have committed.
package messaging

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/umar/roomchat/internal/events"
)

const (
	DefaultMessageLimit = 50
	DefaultRoomLimit    = 20
	MaxPageLimit        = 100
)

// Publisher delivers an event to every subscriber of a channel. The
// websocket hub and the Redis bus both satisfy it.
//
//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks github.com/umar/roomchat/internal/messaging Publisher
type Publisher interface {
	Publish(ctx context.Context, channel string, evt events.Event) error
}

type Service struct {
	db       *sql.DB
	pub      Publisher
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	messageLimit int
	roomLimit    int
}

func NewService(db *sql.DB, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		pub:      pub,
		log:      logger.With("component", "messaging"),
		validate: newValidator(),
		now:      time.Now,

		messageLimit: DefaultMessageLimit,
		roomLimit:    DefaultRoomLimit,
	}
}

// SetPageSizes changes the limits used when a request names none.
// Non-positive values keep the current setting.
func (s *Service) SetPageSizes(messages, rooms int) {
	if messages > 0 {
		s.messageLimit = min(messages, MaxPageLimit)
	}
	if rooms > 0 {
		s.roomLimit = min(rooms, MaxPageLimit)
	}
}

// timestamp is the current time at the precision Postgres stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Page selects the zero-based page Number of Limit items.
type Page struct {
	Number int
	Limit  int
}

func (p Page) normalize(defaultLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Number < 0 {
		p.Number = 0
	}
	return p
}

func (p Page) offset() int { return p.Number * p.Limit }
