package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/roomchat/internal/auth"
	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/models"
)

const testSecret = "ws-secret"

var (
	alice = models.User("alice")
	bob   = models.User("bob")
	dave  = models.Client("dave")
)

type memberTable map[string][]models.Participant

func (m memberTable) IsActiveMember(_ context.Context, roomID string, p models.Participant) (bool, error) {
	for _, member := range m[roomID] {
		if member == p {
			return true, nil
		}
	}
	return false, nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[models.Participant]bool
	calls  []string
}

func (f *fakePresence) SetOnline(_ context.Context, p models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[p] = true
	f.calls = append(f.calls, "online:"+p.Key())
	return nil
}

func (f *fakePresence) SetOffline(_ context.Context, p models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, p)
	f.calls = append(f.calls, "offline:"+p.Key())
	return nil
}

func (f *fakePresence) isOnline(p models.Participant) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[p]
}

func (f *fakePresence) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type gateway struct {
	hub      *Hub
	srv      *httptest.Server
	presence *fakePresence
	cancel   context.CancelFunc
}

func startGateway(t *testing.T, limits Limits) *gateway {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	presence := &fakePresence{online: make(map[models.Participant]bool)}
	hub.SetPresence(presence)

	members := memberTable{
		"r1": {alice, bob, dave},
		"r2": {alice},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	srv := httptest.NewServer(ServeWS(hub, members, testSecret, limits))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &gateway{hub: hub, srv: srv, presence: presence, cancel: cancel}
}

// dial connects as p and waits until the hub has registered the connection.
func (g *gateway) dial(t *testing.T, p models.Participant) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(p, "", testSecret, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	command(t, conn, TypePing, nil)
	readUntil(t, conn, TypePong)
	return conn
}

func command(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	frame := map[string]any{"type": msgType}
	if payload != nil {
		frame["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(frame))
}

// readUntil skips frames of other types, such as presence updates.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		var evt events.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		if evt.Type == msgType {
			return evt
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	command(t, conn, TypeRoomJoin, RoomPayload{RoomID: roomID})
	readUntil(t, conn, TypeRoomJoined)
}

func TestServeWSRequiresToken(t *testing.T) {
	g := startGateway(t, Limits{})

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing", query: ""},
		{name: "invalid", query: "?token=nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestJoinAndReceiveRoomEvents(t *testing.T) {
	g := startGateway(t, Limits{})
	conn := g.dial(t, alice)
	join(t, conn, "r1")

	evt, err := events.New(events.MessageCreated, map[string]string{"id": "m1"})
	require.NoError(t, err)
	require.NoError(t, g.hub.Publish(context.Background(), events.RoomChannel("r1"), evt))

	got := readUntil(t, conn, events.MessageCreated)
	assert.Equal(t, "room:r1", got.Channel)
	assert.JSONEq(t, `{"id":"m1"}`, string(got.Payload))
}

func TestJoinRejectsNonMember(t *testing.T) {
	g := startGateway(t, Limits{})
	conn := g.dial(t, bob)

	command(t, conn, TypeRoomJoin, RoomPayload{RoomID: "r2"})
	frame := readUntil(t, conn, TypeError)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "access_denied", payload.Code)
	assert.False(t, g.hub.subscribed(clientOf(t, g.hub, bob), events.RoomChannel("r2")))
}

func TestLeaveStopsRoomEvents(t *testing.T) {
	g := startGateway(t, Limits{})
	conn := g.dial(t, alice)
	join(t, conn, "r1")

	command(t, conn, TypeRoomLeave, RoomPayload{RoomID: "r1"})
	readUntil(t, conn, TypeRoomLeft)

	evt, err := events.New(events.MessageCreated, nil)
	require.NoError(t, err)
	require.NoError(t, g.hub.Publish(context.Background(), events.RoomChannel("r1"), evt))
	require.NoError(t, g.hub.Publish(context.Background(), events.ParticipantChannel(alice), evt))

	got := readUntil(t, conn, events.MessageCreated)
	assert.Equal(t, "participant:user:alice", got.Channel)
}

func TestRoomRemovedEvictsEveryConnection(t *testing.T) {
	g := startGateway(t, Limits{})
	first := g.dial(t, bob)
	second := g.dial(t, bob)
	watcher := g.dial(t, alice)
	join(t, first, "r1")
	join(t, second, "r1")
	join(t, watcher, "r1")

	removed, err := events.New(events.RoomRemoved, map[string]string{"room_id": "r1"})
	require.NoError(t, err)
	require.NoError(t, g.hub.Publish(context.Background(), events.ParticipantChannel(bob), removed))
	readUntil(t, first, events.RoomRemoved)
	readUntil(t, second, events.RoomRemoved)

	g.hub.mu.RLock()
	for client := range g.hub.clients {
		_, joined := client.channels[events.RoomChannel("r1")]
		assert.Equal(t, client.participant == alice, joined, client.participant.Key())
	}
	g.hub.mu.RUnlock()

	msg, err := events.New(events.MessageCreated, nil)
	require.NoError(t, err)
	require.NoError(t, g.hub.Publish(context.Background(), events.RoomChannel("r1"), msg))
	require.NoError(t, g.hub.Publish(context.Background(), events.ParticipantChannel(bob), msg))

	assert.Equal(t, "room:r1", readUntil(t, watcher, events.MessageCreated).Channel)
	assert.Equal(t, "participant:user:bob", readUntil(t, first, events.MessageCreated).Channel)
	assert.Equal(t, "participant:user:bob", readUntil(t, second, events.MessageCreated).Channel)
}

func TestTypingRequiresJoin(t *testing.T) {
	g := startGateway(t, Limits{})
	sender := g.dial(t, alice)
	watcher := g.dial(t, bob)
	join(t, watcher, "r1")

	command(t, sender, TypeTypingStart, RoomPayload{RoomID: "r1"})
	frame := readUntil(t, sender, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "not_joined", payload.Code)

	join(t, sender, "r1")
	command(t, sender, TypeTypingStart, RoomPayload{RoomID: "r1"})

	got := readUntil(t, watcher, events.TypingStart)
	var typing events.TypingPayload
	require.NoError(t, json.Unmarshal(got.Payload, &typing))
	assert.Equal(t, "r1", typing.RoomID)
	assert.Equal(t, alice, typing.Participant)
}

func TestParticipantChannelReachesEveryConnection(t *testing.T) {
	g := startGateway(t, Limits{})
	first := g.dial(t, dave)
	second := g.dial(t, dave)
	other := g.dial(t, bob)

	evt, err := events.New(events.NotificationNewMessage, map[string]string{"room_id": "r1"})
	require.NoError(t, err)
	require.NoError(t, g.hub.Publish(context.Background(), events.ParticipantChannel(dave), evt))

	readUntil(t, first, events.NotificationNewMessage)
	readUntil(t, second, events.NotificationNewMessage)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "bob should not receive dave's notification")
}

func TestPresenceFollowsConnections(t *testing.T) {
	g := startGateway(t, Limits{})
	first := g.dial(t, alice)
	second := g.dial(t, alice)
	watcher := g.dial(t, bob)
	join(t, watcher, "r1")
	join(t, first, "r1")
	join(t, second, "r1")

	assert.Eventually(t, func() bool {
		return g.presence.isOnline(alice)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, g.presence.count("online:user:alice"))

	first.Close()
	assert.Eventually(t, func() bool {
		return connections(g.hub) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, g.presence.isOnline(alice), "second connection is still open")

	second.Close()
	assert.Eventually(t, func() bool {
		return !g.presence.isOnline(alice)
	}, 2*time.Second, 10*time.Millisecond)

	got := readUntil(t, watcher, events.PresenceUpdate)
	var presence events.PresencePayload
	require.NoError(t, json.Unmarshal(got.Payload, &presence))
	for presence.Status != "offline" {
		got = readUntil(t, watcher, events.PresenceUpdate)
		require.NoError(t, json.Unmarshal(got.Payload, &presence))
	}
	assert.Equal(t, alice, presence.Participant)
}

func TestRateLimitedCommandsAreDropped(t *testing.T) {
	g := startGateway(t, Limits{MessagesPerSecond: 0.001, Burst: 1})
	token, err := auth.GenerateToken(alice, "", testSecret, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	command(t, conn, TypePing, nil)
	readUntil(t, conn, TypePong)

	command(t, conn, TypePing, nil)
	frame := readUntil(t, conn, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "rate_limited", payload.Code)
}

func TestDeliverAfterShutdown(t *testing.T) {
	g := startGateway(t, Limits{})
	conn := g.dial(t, alice)

	g.cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	assert.ErrorIs(t, g.hub.Deliver(context.Background(), "room:r1", []byte("{}")), ErrHubClosed)
	assert.Empty(t, g.hub.Online())
}

func clientOf(t *testing.T, hub *Hub, p models.Participant) *Client {
	t.Helper()
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.clients {
		if c.participant == p {
			return c
		}
	}
	t.Fatalf("no connection for %s", p)
	return nil
}

func connections(hub *Hub) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}
