package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/umar/roomchat/internal/events"
	"github.com/umar/roomchat/internal/metrics"
	"github.com/umar/roomchat/internal/models"
)

var ErrHubClosed = errors.New("hub is not running")

// Presence records which participants hold at least one connection.
type Presence interface {
	SetOnline(ctx context.Context, p models.Participant) error
	SetOffline(ctx context.Context, p models.Participant) error
}

type delivery struct {
	channel string
	data    []byte
}

// Hub tracks connected clients and the channels each one subscribes to.
// A participant may hold several connections at once.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	channels    map[string]map[*Client]struct{}
	connections map[models.Participant]int

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}

	log      *slog.Logger
	presence Presence
	fanout   func(ctx context.Context, channel string, evt events.Event) error
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:     make(map[*Client]struct{}),
		channels:    make(map[string]map[*Client]struct{}),
		connections: make(map[models.Participant]int),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		deliver:     make(chan delivery, 256),
		done:        make(chan struct{}),
		log:         logger.With("component", "hub"),
	}
	h.fanout = h.Publish
	return h
}

// SetPresence enables online/offline tracking.
func (h *Hub) SetPresence(p Presence) { h.presence = p }

// SetFanout routes events that originate in the gateway, typing and
// presence, through publish instead of delivering them locally. With
// several server instances this is the shared bus.
func (h *Hub) SetFanout(publish func(ctx context.Context, channel string, evt events.Event) error) {
	h.fanout = publish
}

func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.subscribeLocked(client, events.ParticipantChannel(client.participant))
			h.connections[client.participant]++
			first := h.connections[client.participant] == 1
			h.mu.Unlock()
			metrics.WebsocketConnections.Inc()
			h.log.Info("client connected", "participant", client.participant.Key())
			if first && h.presence != nil {
				if err := h.presence.SetOnline(ctx, client.participant); err != nil {
					h.log.Warn("failed to record presence", "participant", client.participant.Key(), "error", err)
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			var rooms []string
			var last bool
			if ok {
				rooms, last = h.removeLocked(client)
			}
			h.mu.Unlock()
			if !ok {
				continue
			}
			h.log.Info("client disconnected", "participant", client.participant.Key())
			if last {
				h.wentOffline(ctx, client.participant, rooms)
			}

		case d := <-h.deliver:
			h.fanOut(ctx, d)
		}
	}
}

func (h *Hub) fanOut(ctx context.Context, d delivery) {
	if roomID, ok := events.RemovedRoom(d.channel, d.data); ok {
		h.evict(d.channel, events.RoomChannel(roomID))
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.channels[d.channel] {
		select {
		case client.send <- d.data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.mu.Lock()
		_, ok := h.clients[client]
		var rooms []string
		var last bool
		if ok {
			rooms, last = h.removeLocked(client)
		}
		h.mu.Unlock()
		if !ok {
			continue
		}
		metrics.WebsocketDropped.WithLabelValues("slow_consumer").Inc()
		h.log.Warn("dropping slow client", "participant", client.participant.Key())
		if last {
			h.wentOffline(ctx, client.participant, rooms)
		}
	}
}

// evict unsubscribes every connection listening on participantChannel from
// roomChannel. The removal notice itself still reaches them on the personal
// channel.
func (h *Hub) evict(participantChannel, roomChannel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.channels[participantChannel] {
		h.unsubscribeLocked(client, roomChannel)
	}
}

// removeLocked disconnects client. It returns the room channels the client
// was subscribed to and whether it was the participant's last connection.
func (h *Hub) removeLocked(client *Client) (rooms []string, last bool) {
	rooms = h.dropLocked(client)
	metrics.WebsocketConnections.Dec()
	h.connections[client.participant]--
	if h.connections[client.participant] <= 0 {
		delete(h.connections, client.participant)
		last = true
	}
	return rooms, last
}

// dropLocked removes client from every channel and closes its send queue.
// It returns the room channels the client was subscribed to.
func (h *Hub) dropLocked(client *Client) []string {
	var rooms []string
	for channel := range client.channels {
		if _, ok := events.RoomIDFromChannel(channel); ok {
			rooms = append(rooms, channel)
		}
		h.unsubscribeLocked(client, channel)
	}
	delete(h.clients, client)
	close(client.send)
	return rooms
}

// wentOffline runs on the hub loop, so the announcements are handed to a
// goroutine; delivering them inline could block on the loop's own queue.
func (h *Hub) wentOffline(ctx context.Context, p models.Participant, rooms []string) {
	if h.presence != nil {
		if err := h.presence.SetOffline(ctx, p); err != nil {
			h.log.Warn("failed to clear presence", "participant", p.Key(), "error", err)
		}
	}
	if len(rooms) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		for _, channel := range rooms {
			h.emit(ctx, channel, events.PresenceUpdate, events.PresencePayload{Participant: p, Status: "offline"})
		}
	}()
}

// emit sends a gateway-originated event through the fan-out path.
func (h *Hub) emit(ctx context.Context, channel, eventType string, payload any) {
	evt, err := events.New(eventType, payload)
	if err != nil {
		return
	}
	if err := h.fanout(ctx, channel, evt); err != nil {
		h.log.Warn("failed to publish event", "type", eventType, "channel", channel, "error", err)
		metrics.PublishFailures.WithLabelValues(eventType).Inc()
	}
}

func (h *Hub) subscribeLocked(client *Client, channel string) {
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.channels[channel] = subs
	}
	subs[client] = struct{}{}
	client.channels[channel] = struct{}{}
}

func (h *Hub) unsubscribeLocked(client *Client, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(client.channels, channel)
}

// Subscribe adds client to channel. It reports false when the client has
// already disconnected.
func (h *Hub) Subscribe(client *Client, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	h.subscribeLocked(client, channel)
	return true
}

func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		h.unsubscribeLocked(client, channel)
	}
}

func (h *Hub) subscribed(client *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := client.channels[channel]
	return ok
}

// Publish delivers evt to this instance's subscribers of channel.
func (h *Hub) Publish(ctx context.Context, channel string, evt events.Event) error {
	data, err := evt.Encode(channel)
	if err != nil {
		return err
	}
	return h.Deliver(ctx, channel, data)
}

// Deliver queues an encoded frame for the subscribers of channel.
func (h *Hub) Deliver(ctx context.Context, channel string, data []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.deliver <- delivery{channel: channel, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Online lists the participants with at least one connection here.
func (h *Hub) Online() []models.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Participant, 0, len(h.connections))
	for p := range h.connections {
		out = append(out, p)
	}
	return out
}

// IsOnline answers from this instance's connections only.
func (h *Hub) IsOnline(_ context.Context, candidates []models.Participant) (map[models.Participant]bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[models.Participant]bool, len(candidates))
	for _, p := range candidates {
		out[p] = h.connections[p] > 0
	}
	return out, nil
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
