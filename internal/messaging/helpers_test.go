package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umar/roomchat/internal/database"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

var (
	alice = models.User("alice")
	bob   = models.User("bob")
	carol = models.User("carol")
	dave  = models.Client("dave")
)

type published struct {
	channel string
	event   events.Event
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{channel: channel, event: evt})
	return nil
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

// types lists the event types published to channel, in order.
func (p *recordingPublisher) types(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.sent {
		if s.channel == channel {
			out = append(out, s.event.Type)
		}
	}
	return out
}

// find returns the events of one type published to channel.
func (p *recordingPublisher) find(channel, eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, s := range p.sent {
		if s.channel == channel && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

func decode[T any](t *testing.T, evt events.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(evt.Payload, &v))
	return v
}

type fixture struct {
	db    *sql.DB
	svc   *Service
	pub   *recordingPublisher
	clock time.Time
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitDB(database.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, database.DriverSQLite))
	t.Cleanup(func() { db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    openDB(t),
		pub:   &recordingPublisher{},
		clock: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.db, f.pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) tick() { f.clock = f.clock.Add(time.Second) }

func (f *fixture) room(t *testing.T, creator models.Participant, roomType models.RoomType, others ...models.Participant) *models.Room {
	t.Helper()
	in := CreateRoomInput{Name: "room", Type: roomType, Participants: others}
	if roomType == models.RoomProjectGroup {
		in.ProjectID = ptr("project-1")
	}
	room, created, err := f.svc.CreateRoom(context.Background(), creator, in)
	require.NoError(t, err)
	require.True(t, created)
	return room
}

func (f *fixture) send(t *testing.T, roomID string, sender models.Participant, text string) *models.Message {
	t.Helper()
	f.tick()
	msg, err := f.svc.SendMessage(context.Background(), roomID, sender, SendMessageInput{Content: &text})
	require.NoError(t, err)
	return msg
}

func (f *fixture) membership(t *testing.T, roomID string, p models.Participant) *models.Membership {
	t.Helper()
	m, err := database.GetActiveMembership(context.Background(), f.db, roomID, p)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func ptr[T any](v T) *T { return &v }
