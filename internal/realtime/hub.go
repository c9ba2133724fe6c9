// Package realtime maintains per-recipient broadcast rooms over
// WebSocket connections. Delivery is at-most-once and best-effort: a
// recipient with no live connections simply misses the event and
// reconciles through the REST API. There is no replay on reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/metrics"
)

// Event names pushed to clients.
const (
	EventNewNotification   = "new_notification"
	EventUnreadCountUpdate = "unread_count_update"
	eventAuthenticate      = "authenticate"
	eventAuthenticated     = "authenticated"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthRequest is the payload of the authenticate frame a client must send
// as its first message.
type AuthRequest struct {
	RecipientID   string `json:"recipientId"`
	RecipientKind string `json:"recipientKind"`
	Token         string `json:"token"`
}

// AuthFunc verifies the credentials presented on connect. Identity
// issuance itself belongs to the platform's auth service; the hub only
// needs a yes/no.
type AuthFunc func(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error

// Config holds hub tuning parameters.
type Config struct {
	// AuthTimeout bounds the authentication handshake. Connections that
	// have not authenticated when it expires are dropped.
	AuthTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// PongTimeout is how long a connection may stay silent before it is
	// considered dead. Pings go out at a fraction of this.
	PongTimeout time.Duration

	// SendBuffer is the per-connection outbound queue. A connection that
	// cannot drain it is closed rather than allowed to block the hub.
	SendBuffer int
}

// Hub tracks live connections grouped into per-recipient rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*connection]struct{}

	auth     AuthFunc
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a hub. auth must not be nil.
func NewHub(auth AuthFunc, cfg Config, logger *zap.Logger) *Hub {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}

	return &Hub{
		rooms:  make(map[string]map[*connection]struct{}),
		auth:   auth,
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the fronting gateway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RoomKey returns the room name for a recipient.
func RoomKey(recipientID uuid.UUID) string {
	return "recipient_" + recipientID.String()
}

// HandleWS upgrades an HTTP request and runs the connection lifecycle:
// Connecting -> Authenticating -> Joined -> Disconnected. Any failure
// along the way tears the connection down; a reconnect starts over.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		ws:   ws,
		send: make(chan []byte, h.config.SendBuffer),
		done: make(chan struct{}),
		hub:  h,
	}

	// The request context dies when this handler returns, which is
	// immediately; the connection outlives it and gets its own.
	go c.run(context.Background())
}

// EmitToRecipient delivers an event to every live connection in the
// recipient's room. With no connections present this is a silent no-op.
func (h *Hub) EmitToRecipient(recipientID uuid.UUID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	frame, err := json.Marshal(Envelope{Event: event, Payload: data})
	if err != nil {
		return err
	}

	room := RoomKey(recipientID)

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return nil
	}

	for _, c := range conns {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: close it rather than block the emitter.
			h.logger.Warn("dropping slow websocket connection",
				zap.String("room", room),
			)
			c.close()
		}
	}

	metrics.RecordRealtimeEvent(event)
	h.logger.Debug("event emitted",
		zap.String("event", event),
		zap.String("room", room),
		zap.Int("connections", len(conns)),
	)

	return nil
}

// RoomSize returns the number of live connections for a recipient.
func (h *Hub) RoomSize(recipientID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomKey(recipientID)])
}

func (h *Hub) join(room string, c *connection) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*connection]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	metrics.IncRealtimeConnections()
	h.logger.Info("connection joined room", zap.String("room", room))
}

func (h *Hub) leave(room string, c *connection) {
	h.mu.Lock()
	if conns, ok := h.rooms[room]; ok {
		if _, member := conns[c]; member {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.rooms, room)
			}
			metrics.DecRealtimeConnections()
		}
	}
	h.mu.Unlock()
}
