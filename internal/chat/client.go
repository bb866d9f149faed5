package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/umar/roomchat/internal/auth"
	"github.com/umar/roomchat/internal/metrics"
	"github.com/umar/roomchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
	commandTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MembershipChecker decides whether a participant may subscribe to a room.
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, roomID string, p models.Participant) (bool, error)
}

// Limits bounds how many commands one connection may send.
type Limits struct {
	MessagesPerSecond float64
	Burst             int
}

func (l Limits) limiter() *rate.Limiter {
	if l.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.MessagesPerSecond), burst)
}

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	participant models.Participant
	name        string
	send        chan []byte
	// channels is guarded by hub.mu.
	channels map[string]struct{}
	limiter  *rate.Limiter
	members  MembershipChecker
	log      *slog.Logger
}

func ServeWS(hub *Hub, members MembershipChecker, jwtSecret string, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Error("websocket upgrade failed", "error", err)
			return
		}

		p := claims.Participant()
		client := &Client{
			hub:         hub,
			conn:        conn,
			participant: p,
			name:        claims.Name,
			send:        make(chan []byte, sendBuffer),
			channels:    make(map[string]struct{}),
			limiter:     limits.limiter(),
			members:     members,
			log:         hub.log.With("participant", p.Key()),
		}

		if !hub.add(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("ws read error", "error", err)
			}
			break
		}

		if !c.limiter.Allow() {
			metrics.WebsocketDropped.WithLabelValues("rate_limited").Inc()
			c.sendError("too many messages", "rate_limited")
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("malformed frame", "invalid_payload")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg.Type {
	case TypeRoomJoin, TypeRoomLeave, TypeTypingStart, TypeTypingStop:
		var payload RoomPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.RoomID == "" {
			c.sendError("room_id is required", "invalid_payload")
			return
		}
		switch msg.Type {
		case TypeRoomJoin:
			HandleRoomJoin(ctx, c, payload)
		case TypeRoomLeave:
			HandleRoomLeave(c, payload)
		case TypeTypingStart:
			HandleTyping(ctx, c, payload, true)
		case TypeTypingStop:
			HandleTyping(ctx, c, payload, false)
		}
	case TypePing:
		c.reply(TypePong, nil)
	default:
		c.sendError("unknown message type", "unknown_type")
	}
}

// reply writes a frame to this connection only. It is dropped when the
// send queue is full or already closed by the hub.
func (c *Client) reply(msgType string, payload any) {
	data, err := NewWSMessage(msgType, payload)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
